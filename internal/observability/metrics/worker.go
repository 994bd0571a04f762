package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	eventsTotal *prometheus.CounterVec
	eventLag    *prometheus.HistogramVec

	routing *RoutingCollector
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbr",
			Subsystem: "worker",
			Name:      "routing_events_total",
			Help:      "Total consumed routing events by status.",
		},
		[]string{"service", "status"},
	)
	eventLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kbr",
			Subsystem: "worker",
			Name:      "event_lag_seconds",
			Help:      "Delay between route completion and event consumption.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service"},
	)

	registry.MustRegister(eventsTotal, eventLag)

	return &WorkerMetrics{
		registry:    registry,
		eventsTotal: eventsTotal,
		eventLag:    eventLag,
		routing:     NewRoutingCollector(service, registry),
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) Routing() *RoutingCollector {
	return m.routing
}

func (m *WorkerMetrics) ConsumeEvent(service string, event domain.RoutingEvent, now time.Time) {
	m.eventsTotal.WithLabelValues(service, "consumed").Inc()
	m.routing.ObserveEvent(event)

	if lag := now.Sub(event.OccurredAt); !event.OccurredAt.IsZero() && lag >= 0 {
		m.eventLag.WithLabelValues(service).Observe(lag.Seconds())
	}
}

func (m *WorkerMetrics) RejectEvent(service string) {
	m.eventsTotal.WithLabelValues(service, "rejected").Inc()
}
