// Package ranking implements query intent analysis, source priority resolution and
// weighted scoring of retrieval hits. Everything except MetricsTracker is stateless.
package ranking

import (
	"time"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
)

// Engine is a validated Config compiled into its analyzer and scorer. It is immutable.
type Engine struct {
	cfg      Config
	table    *PatternTable
	analyzer *Analyzer
	scorer   *Scorer
}

// NewEngine validates cfg (after WithDefaults) and compiles it.
func NewEngine(cfg Config) (*Engine, error) {
	return newEngine(cfg, time.Now)
}

func newEngine(cfg Config, now func() time.Time) (*Engine, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	table, err := NewPatternTable(cfg.Keywords, cfg.Patterns)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfigValidation, "compile pattern table", err)
	}

	cfg.Priorities = clonePriorities(cfg.Priorities)
	return &Engine{
		cfg:      cfg,
		table:    table,
		analyzer: NewAnalyzer(table, cfg.Boost),
		scorer:   NewScorer(Resolver{DefaultPriority: cfg.DefaultPriority}, cfg.Boost, now),
	}, nil
}

// Config returns a copy of the configuration the engine was built from.
func (e *Engine) Config() Config {
	out := e.cfg
	out.Priorities = clonePriorities(e.cfg.Priorities)
	out.Keywords = append([]KeywordRule(nil), e.cfg.Keywords...)
	out.Patterns = append([]PatternRule(nil), e.cfg.Patterns...)
	return out
}

func (e *Engine) MaxResults() int {
	return e.cfg.MaxResults
}

func (e *Engine) RetrievalTimeout() time.Duration {
	return e.cfg.RetrievalTimeout
}

func (e *Engine) Analyze(query string) ([]string, map[string]float64) {
	return e.analyzer.Analyze(query)
}

func (e *Engine) Resolve(raw string) (string, float64) {
	return e.scorer.resolver.Resolve(raw, e.cfg.Priorities)
}

func (e *Engine) Score(hits []domain.RawHit, preferred []string, matchScores map[string]float64) []domain.SourceResult {
	return e.scorer.Score(hits, preferred, matchScores, e.cfg.Weights, e.cfg.Priorities)
}

func clonePriorities(in domain.PriorityMap) domain.PriorityMap {
	out := make(domain.PriorityMap, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
