package ports

import (
	"context"
	"time"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
)

// Retriever fetches raw hits for a query from a knowledge base.
type Retriever interface {
	Fetch(ctx context.Context, query string, maxResults int) ([]domain.RawHit, error)
}

// EventPublisher emits routing events for out-of-process monitoring.
type EventPublisher interface {
	PublishRouteCompleted(ctx context.Context, event domain.RoutingEvent) error
}

// EventSubscriber consumes routing events.
type EventSubscriber interface {
	SubscribeRouteCompleted(ctx context.Context, handler func(context.Context, domain.RoutingEvent) error) error
}

// RouteObserver receives every routing outcome, e.g. for Prometheus.
type RouteObserver interface {
	ObserveRoute(outcome domain.RouteOutcome, duration time.Duration)
}
