package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/kb-source-router/internal/config"
	"github.com/kirillkom/kb-source-router/internal/core/ports"
	"github.com/kirillkom/kb-source-router/internal/core/usecase"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/queue/nats"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/resilience"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/retrieval/cache"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/retrieval/httpkb"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/retrieval/localfs"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/retrieval/mock"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/retrieval/multi"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/retrieval/neo4jkg"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/retrieval/postgres"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/retrieval/qdrant"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/retrieval/s3kb"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/routingconfig"
)

const (
	BackendMock     = "mock"
	BackendLocalFS  = "localfs"
	BackendPostgres = "postgres"
	BackendNeo4j    = "neo4j"
	BackendS3       = "s3"
	BackendHTTP     = "http"
	BackendQdrant   = "qdrant"
)

// breakerObserver is implemented by observers that also export breaker transitions.
type breakerObserver interface {
	ObserveBreakerState(operation string, from, to gobreaker.State)
}

type App struct {
	Config config.Config

	RouteUC *usecase.RouteUseCase
	Queue   *nats.Queue

	closers []func()
}

// New wires retrievers, the optional event publisher and the routing use case.
// observer may be nil.
func New(ctx context.Context, cfg config.Config, observer ports.RouteObserver) (*App, error) {
	app := &App{Config: cfg}

	routing, err := routingconfig.Load(cfg.RoutingConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load routing config: %w", err)
	}

	var execOpts []resilience.Option
	if bo, ok := observer.(breakerObserver); ok {
		execOpts = append(execOpts, resilience.WithStateListener(bo.ObserveBreakerState))
	}
	executor := resilience.NewExecutor(cfg.Resilience(), execOpts...)
	retriever, err := app.buildRetriever(ctx, cfg, executor)
	if err != nil {
		app.Close()
		return nil, err
	}

	opts := usecase.RouteOptions{Observer: observer}
	if cfg.EventsEnabled {
		queue, err := NewEventQueue(cfg, executor)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Queue = queue
		app.closers = append(app.closers, queue.Close)
		opts.Publisher = queue
	}

	routeUC, err := usecase.NewRouteUseCase(retriever, routing, opts)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init route usecase: %w", err)
	}
	app.RouteUC = routeUC

	slog.Info("bootstrap_completed",
		"backends", cfg.RetrievalBackends,
		"routing_config", cfg.RoutingConfigPath,
		"events_enabled", cfg.EventsEnabled,
		"cache_enabled", cfg.RedisAddr != "",
	)
	return app, nil
}

// NewEventQueue connects to NATS for routing events.
func NewEventQueue(cfg config.Config, executor *resilience.Executor) (*nats.Queue, error) {
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: executor})
	if err != nil {
		return nil, fmt.Errorf("init event queue: %w", err)
	}
	return queue, nil
}

// WatchRoutingConfig hot-reloads the routing file until ctx is done. It is a no-op
// when no file is configured or watching is disabled.
func (a *App) WatchRoutingConfig(ctx context.Context) {
	if a.Config.RoutingConfigPath == "" || !a.Config.RoutingConfigWatch {
		return
	}
	watcher := routingconfig.NewWatcher(a.Config.RoutingConfigPath, a.RouteUC.SwapConfig)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			slog.Error("routing_config_watch_failed", "path", a.Config.RoutingConfigPath, "error", err)
		}
	}()
}

func (a *App) buildRetriever(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.Retriever, error) {
	names := cfg.RetrievalBackends
	if len(names) == 0 {
		names = []string{BackendMock}
	}

	backends := make([]multi.Backend, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		retriever, err := a.newBackend(ctx, name, cfg, executor)
		if err != nil {
			return nil, fmt.Errorf("init %s retriever: %w", name, err)
		}
		backends = append(backends, multi.Backend{Name: name, Retriever: retriever})
	}

	var retriever ports.Retriever = backends[0].Retriever
	if len(backends) > 1 {
		retriever = multi.New(backends...)
	}

	if cfg.RedisAddr != "" {
		client, err := cache.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("init retrieval cache: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		retriever = cache.New(retriever, client, cache.Options{TTL: cfg.CacheTTL})
	}
	return retriever, nil
}

func (a *App) newBackend(ctx context.Context, name string, cfg config.Config, executor *resilience.Executor) (ports.Retriever, error) {
	switch name {
	case BackendMock:
		return mock.New(nil, mock.Options{Jitter: cfg.MockJitter, Seed: cfg.MockSeed}), nil
	case BackendLocalFS:
		return localfs.New(cfg.LocalKBPath)
	case BackendPostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
		return postgres.NewRetriever(db, executor), nil
	case BackendNeo4j:
		driver, err := neo4jkg.Open(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = driver.Close(context.Background()) })
		return neo4jkg.NewRetriever(driver, neo4jkg.Options{Database: cfg.Neo4jDatabase, Index: cfg.Neo4jIndex}, executor), nil
	case BackendS3:
		return s3kb.New(s3kb.Options{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
		}, executor)
	case BackendHTTP:
		return httpkb.New(cfg.HTTPKBURL, httpkb.Options{Token: cfg.HTTPKBToken, ResilienceExecutor: executor}), nil
	case BackendQdrant:
		retriever := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{APIKey: cfg.QdrantAPIKey}, executor)
		if err := retriever.EnsureCollection(ctx); err != nil {
			return nil, err
		}
		return retriever, nil
	default:
		return nil, fmt.Errorf("unknown retrieval backend %q", name)
	}
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
