package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/kb-source-router/internal/bootstrap"
	"github.com/kirillkom/kb-source-router/internal/config"
	"github.com/kirillkom/kb-source-router/internal/core/domain"
	"github.com/kirillkom/kb-source-router/internal/core/ranking"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/resilience"
	"github.com/kirillkom/kb-source-router/internal/observability/logging"
	"github.com/kirillkom/kb-source-router/internal/observability/metrics"
)

// The worker aggregates routing events from every API replica into one view.
func main() {
	cfg := config.Load()
	service := cfg.ServiceName + "-worker"
	logging.Setup(service, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := ranking.NewMetricsTracker()
	workerMetrics := metrics.NewWorkerMetrics(service)

	executor := resilience.NewExecutor(cfg.Resilience(), resilience.WithStateListener(workerMetrics.Routing().ObserveBreakerState))
	queue, err := bootstrap.NewEventQueue(cfg, executor)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	mux.HandleFunc("GET /v1/metrics/routing", func(w http.ResponseWriter, _ *http.Request) {
		snapshot := tracker.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total_queries":          snapshot.TotalQueries,
			"successful_routes":      snapshot.SuccessfulRoutes,
			"success_rate":           snapshot.SuccessRate(),
			"source_usage":           snapshot.SourceUsage,
			"running_avg_confidence": snapshot.RunningAvgConfidence,
			"last_updated":           snapshot.LastUpdated,
		})
	})
	server := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = queue.SubscribeRouteCompleted(ctx, func(_ context.Context, event domain.RoutingEvent) error {
		tracker.RecordEvent(event)
		workerMetrics.ConsumeEvent(service, event, time.Now())
		return nil
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
