package domain

import "time"

// RoutingMetrics is a point-in-time view of accumulated routing counters.
type RoutingMetrics struct {
	TotalQueries         int            `json:"total_queries"`
	SuccessfulRoutes     int            `json:"successful_routes"`
	SourceUsage          map[string]int `json:"source_usage"`
	RunningAvgConfidence float64        `json:"running_avg_confidence"`
	LastUpdated          time.Time      `json:"last_updated,omitzero"`
}

func (m RoutingMetrics) SuccessRate() float64 {
	if m.TotalQueries == 0 {
		return 0
	}
	return float64(m.SuccessfulRoutes) / float64(m.TotalQueries)
}

// RoutingEvent is published after every routing call for out-of-process monitoring.
type RoutingEvent struct {
	ID            string    `json:"id"`
	Query         string    `json:"query"`
	Degraded      bool      `json:"degraded"`
	ResultCount   int       `json:"result_count"`
	Sources       []string  `json:"sources"`
	TopSource     string    `json:"top_source,omitempty"`
	TopScore      float64   `json:"top_score"`
	AvgConfidence float64   `json:"avg_confidence"`
	DurationMS    float64   `json:"duration_ms"`
	OccurredAt    time.Time `json:"occurred_at"`
}
