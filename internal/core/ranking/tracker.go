package ranking

import (
	"sync"
	"time"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
)

// MetricsTracker accumulates routing outcomes. It is safe for concurrent use.
type MetricsTracker struct {
	mu      sync.Mutex
	now     func() time.Time
	metrics domain.RoutingMetrics
}

func NewMetricsTracker() *MetricsTracker {
	return &MetricsTracker{
		now:     time.Now,
		metrics: domain.RoutingMetrics{SourceUsage: map[string]int{}},
	}
}

// Record folds one routing call into the counters.
func (t *MetricsTracker) Record(results []domain.SourceResult) {
	sources := make([]string, 0, len(results))
	confidenceSum := 0.0
	for _, r := range results {
		sources = append(sources, r.Source)
		confidenceSum += r.Confidence
	}
	meanConfidence := 0.0
	if len(results) > 0 {
		meanConfidence = confidenceSum / float64(len(results))
	}
	t.record(sources, meanConfidence)
}

// RecordEvent folds a published routing event into the counters.
func (t *MetricsTracker) RecordEvent(event domain.RoutingEvent) {
	sources := event.Sources
	if event.ResultCount == 0 {
		sources = nil
	}
	t.record(sources, event.AvgConfidence)
}

func (t *MetricsTracker) record(sources []string, meanConfidence float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := &t.metrics
	m.TotalQueries++
	if len(sources) > 0 {
		m.SuccessfulRoutes++
	}

	seen := make(map[string]struct{}, len(sources))
	for _, source := range sources {
		if _, dup := seen[source]; dup {
			continue
		}
		seen[source] = struct{}{}
		m.SourceUsage[source]++
	}

	m.RunningAvgConfidence += (meanConfidence - m.RunningAvgConfidence) / float64(m.TotalQueries)
	m.LastUpdated = t.now().UTC()
}

// Snapshot returns a consistent deep copy of the counters.
func (t *MetricsTracker) Snapshot() domain.RoutingMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.metrics
	out.SourceUsage = make(map[string]int, len(t.metrics.SourceUsage))
	for k, v := range t.metrics.SourceUsage {
		out.SourceUsage[k] = v
	}
	return out
}

func (t *MetricsTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = domain.RoutingMetrics{SourceUsage: map[string]int{}}
}
