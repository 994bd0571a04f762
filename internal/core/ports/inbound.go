package ports

import (
	"context"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
)

// SourceRouter is the inbound contract for routing a query to ranked knowledge-source snippets.
type SourceRouter interface {
	Route(ctx context.Context, query string) ([]domain.SourceResult, error)
	RouteDetailed(ctx context.Context, query string) (*domain.RouteOutcome, error)
	Analyze(query string) domain.QueryAnalysis
	MaxResults() int
}

// RoutingMetricsReader exposes accumulated routing counters to monitoring and reporting.
type RoutingMetricsReader interface {
	Snapshot() domain.RoutingMetrics
	Reset()
}
