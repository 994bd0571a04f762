package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
)

const (
	outcomeRouted   = "routed"
	outcomeEmpty    = "empty"
	outcomeDegraded = "degraded"
)

// RoutingCollector exports per-query routing outcomes. It implements ports.RouteObserver.
type RoutingCollector struct {
	service string

	queriesTotal      *prometheus.CounterVec
	sourceSelected    *prometheus.CounterVec
	topCombinedScore  *prometheus.HistogramVec
	resultsPerQuery   *prometheus.HistogramVec
	duration          *prometheus.HistogramVec
	retrievalFailures *prometheus.CounterVec
	breakerState      *prometheus.GaugeVec
}

func NewRoutingCollector(service string, registerer prometheus.Registerer) *RoutingCollector {
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbr",
			Subsystem: "routing",
			Name:      "queries_total",
			Help:      "Total routed queries by outcome.",
		},
		[]string{"service", "outcome"},
	)
	sourceSelected := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbr",
			Subsystem: "routing",
			Name:      "source_selected_total",
			Help:      "Queries whose results included the source.",
		},
		[]string{"service", "source"},
	)
	topCombinedScore := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kbr",
			Subsystem: "routing",
			Name:      "top_combined_score",
			Help:      "Combined score of the top ranked result.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
		[]string{"service"},
	)
	resultsPerQuery := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kbr",
			Subsystem: "routing",
			Name:      "results_per_query",
			Help:      "Distribution of ranked results per query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kbr",
			Subsystem: "routing",
			Name:      "duration_seconds",
			Help:      "Routing duration in seconds, retrieval included.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	retrievalFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbr",
			Name:      "retrieval_failures_total",
			Help:      "Retrieval calls that failed or timed out and degraded the route.",
		},
		[]string{"service"},
	)

	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kbr",
			Subsystem: "retrieval",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per backend operation: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"service", "operation"},
	)

	registerer.MustRegister(queriesTotal, sourceSelected, topCombinedScore, resultsPerQuery, duration, retrievalFailures, breakerState)

	return &RoutingCollector{
		service:           service,
		queriesTotal:      queriesTotal,
		sourceSelected:    sourceSelected,
		topCombinedScore:  topCombinedScore,
		resultsPerQuery:   resultsPerQuery,
		duration:          duration,
		retrievalFailures: retrievalFailures,
		breakerState:      breakerState,
	}
}

func (c *RoutingCollector) ObserveRoute(outcome domain.RouteOutcome, took time.Duration) {
	sources, _ := domain.GroupBySource(outcome.Results)
	topScore := 0.0
	if len(outcome.Results) > 0 {
		topScore = outcome.Results[0].CombinedScore
	}
	c.observe(outcome.Degraded, len(outcome.Results), sources, topScore, took)
}

// ObserveEvent records a routing event consumed from the bus.
func (c *RoutingCollector) ObserveEvent(event domain.RoutingEvent) {
	took := time.Duration(event.DurationMS * float64(time.Millisecond))
	c.observe(event.Degraded, event.ResultCount, event.Sources, event.TopScore, took)
}

func (c *RoutingCollector) observe(degraded bool, results int, sources []string, topScore float64, took time.Duration) {
	outcome := outcomeRouted
	switch {
	case degraded:
		outcome = outcomeDegraded
		c.retrievalFailures.WithLabelValues(c.service).Inc()
	case results == 0:
		outcome = outcomeEmpty
	}
	c.queriesTotal.WithLabelValues(c.service, outcome).Inc()
	c.resultsPerQuery.WithLabelValues(c.service).Observe(float64(results))
	c.duration.WithLabelValues(c.service).Observe(took.Seconds())

	if results == 0 {
		return
	}
	c.topCombinedScore.WithLabelValues(c.service).Observe(topScore)
	for _, source := range sources {
		c.sourceSelected.WithLabelValues(c.service, source).Inc()
	}
}

// ObserveBreakerState has the shape of resilience.StateListener.
func (c *RoutingCollector) ObserveBreakerState(operation string, _, to gobreaker.State) {
	c.breakerState.WithLabelValues(c.service, operation).Set(float64(to))
}
