package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
	"github.com/kirillkom/kb-source-router/internal/core/ports"
	"github.com/kirillkom/kb-source-router/internal/core/ranking"
)

type routeStage string

const (
	stageFetching  routeStage = "fetching"
	stageAnalyzing routeStage = "analyzing"
	stageScoring   routeStage = "scoring"
	stageRecording routeStage = "recording"
	stageDone      routeStage = "done"
)

type RouteOptions struct {
	Tracker   *ranking.MetricsTracker
	Publisher ports.EventPublisher
	Observer  ports.RouteObserver
	Now       func() time.Time
}

// RouteUseCase fetches hits for a query, ranks them and records the outcome.
// The ranking engine is swapped atomically on config reload; requests in flight
// keep the engine they started with.
type RouteUseCase struct {
	retriever ports.Retriever
	engine    atomic.Pointer[ranking.Engine]
	tracker   *ranking.MetricsTracker
	publisher ports.EventPublisher
	observer  ports.RouteObserver
	now       func() time.Time
}

func NewRouteUseCase(retriever ports.Retriever, cfg ranking.Config, opts RouteOptions) (*RouteUseCase, error) {
	if retriever == nil {
		return nil, domain.WrapError(domain.ErrConfigValidation, "new route usecase", errors.New("retriever is required"))
	}
	engine, err := ranking.NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	tracker := opts.Tracker
	if tracker == nil {
		tracker = ranking.NewMetricsTracker()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	uc := &RouteUseCase{
		retriever: retriever,
		tracker:   tracker,
		publisher: opts.Publisher,
		observer:  opts.Observer,
		now:       now,
	}
	uc.engine.Store(engine)
	return uc, nil
}

// Route returns ranked results for query. Retrieval failures degrade to an empty list;
// the error is always nil.
func (uc *RouteUseCase) Route(ctx context.Context, query string) ([]domain.SourceResult, error) {
	outcome, err := uc.RouteDetailed(ctx, query)
	if err != nil {
		return []domain.SourceResult{}, err
	}
	return outcome.Results, nil
}

func (uc *RouteUseCase) RouteDetailed(ctx context.Context, query string) (*domain.RouteOutcome, error) {
	start := uc.now()
	engine := uc.engine.Load()

	enter := func(stage routeStage) {
		slog.Debug("route_stage", "stage", stage, "query_len", len(query))
	}

	enter(stageFetching)
	hits, fetchErr := uc.fetch(ctx, engine, query)
	degraded := fetchErr != nil
	if degraded {
		slog.Warn("retrieval_failed",
			"stage", stageFetching,
			"query_len", len(query),
			"timeout", errors.Is(fetchErr, context.DeadlineExceeded),
			"error", fetchErr,
		)
		hits = []domain.RawHit{}
	}

	enter(stageAnalyzing)
	preferred, scores := engine.Analyze(query)

	enter(stageScoring)
	results := engine.Score(hits, preferred, scores)

	enter(stageRecording)
	uc.tracker.Record(results)

	outcome := &domain.RouteOutcome{
		Query:            query,
		PreferredSources: preferred,
		MatchScores:      scores,
		Results:          results,
		Degraded:         degraded,
	}
	duration := uc.now().Sub(start)
	if uc.observer != nil {
		uc.observer.ObserveRoute(*outcome, duration)
	}
	uc.publish(ctx, outcome, duration)

	enter(stageDone)
	slog.Debug("route_completed",
		"hits", len(hits),
		"results", len(results),
		"preferred_sources", preferred,
		"degraded", degraded,
		"duration_ms", float64(duration.Microseconds())/1000.0,
	)
	return outcome, nil
}

func (uc *RouteUseCase) fetch(ctx context.Context, engine *ranking.Engine, query string) ([]domain.RawHit, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, engine.RetrievalTimeout())
	defer cancel()

	hits, err := uc.retriever.Fetch(fetchCtx, query, engine.MaxResults())
	if err == nil {
		err = fetchCtx.Err()
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "fetch hits", err)
	}
	if hits == nil {
		hits = []domain.RawHit{}
	}
	return hits, nil
}

func (uc *RouteUseCase) publish(ctx context.Context, outcome *domain.RouteOutcome, duration time.Duration) {
	if uc.publisher == nil {
		return
	}
	event := newRoutingEvent(outcome, duration, uc.now().UTC())
	if err := uc.publisher.PublishRouteCompleted(context.WithoutCancel(ctx), event); err != nil {
		slog.Warn("routing_event_publish_failed", "event_id", event.ID, "error", err)
	}
}

func newRoutingEvent(outcome *domain.RouteOutcome, duration time.Duration, occurredAt time.Time) domain.RoutingEvent {
	event := domain.RoutingEvent{
		ID:          uuid.NewString(),
		Query:       outcome.Query,
		Degraded:    outcome.Degraded,
		ResultCount: len(outcome.Results),
		Sources:     []string{},
		DurationMS:  float64(duration.Microseconds()) / 1000.0,
		OccurredAt:  occurredAt,
	}
	if len(outcome.Results) == 0 {
		return event
	}

	order, _ := domain.GroupBySource(outcome.Results)
	event.Sources = order
	event.TopSource = outcome.Results[0].Source
	event.TopScore = outcome.Results[0].CombinedScore

	sum := 0.0
	for _, r := range outcome.Results {
		sum += r.Confidence
	}
	event.AvgConfidence = sum / float64(len(outcome.Results))
	return event
}

func (uc *RouteUseCase) Analyze(query string) domain.QueryAnalysis {
	preferred, scores := uc.engine.Load().Analyze(query)
	return domain.QueryAnalysis{
		PreferredSources: preferred,
		MatchScores:      scores,
	}
}

func (uc *RouteUseCase) MaxResults() int {
	return uc.engine.Load().MaxResults()
}

// SwapConfig validates cfg and replaces the whole engine. On error the current engine stays.
func (uc *RouteUseCase) SwapConfig(cfg ranking.Config) error {
	engine, err := ranking.NewEngine(cfg)
	if err != nil {
		return err
	}
	uc.engine.Store(engine)
	return nil
}

func (uc *RouteUseCase) Config() ranking.Config {
	return uc.engine.Load().Config()
}

func (uc *RouteUseCase) Snapshot() domain.RoutingMetrics {
	return uc.tracker.Snapshot()
}

func (uc *RouteUseCase) Reset() {
	uc.tracker.Reset()
}
