package nats

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
)

var errEncodeEvent = errors.New("encode routing event")

func encodeEvent(event domain.RoutingEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errEncodeEvent, err)
	}
	return payload, nil
}

func decodeEvent(data []byte) (domain.RoutingEvent, error) {
	var event domain.RoutingEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.RoutingEvent{}, fmt.Errorf("unmarshal routing event: %w", err)
	}
	if event.ID == "" {
		return domain.RoutingEvent{}, errors.New("routing event without id")
	}
	if event.Sources == nil {
		event.Sources = []string{}
	}
	return event, nil
}
