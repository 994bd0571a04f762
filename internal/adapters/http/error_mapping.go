package httpadapter

import (
	"net/http"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
)

var statusByKind = map[string]int{
	"invalid_input":     http.StatusBadRequest,
	"unauthorized":      http.StatusUnauthorized,
	"config_validation": http.StatusUnprocessableEntity,
	"temporary":         http.StatusServiceUnavailable,
	"retrieval":         http.StatusBadGateway,
}

func mapErrorToHTTPStatus(err error) int {
	if status, ok := statusByKind[domain.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
