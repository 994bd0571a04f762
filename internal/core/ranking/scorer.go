package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
)

// Scorer blends priority, confidence and query match into ranked results.
type Scorer struct {
	resolver Resolver
	boost    BoostConfig
	now      func() time.Time
}

func NewScorer(resolver Resolver, boost BoostConfig, now func() time.Time) *Scorer {
	if now == nil {
		now = time.Now
	}
	return &Scorer{
		resolver: resolver,
		boost:    boost,
		now:      now,
	}
}

// AdjustedPriority applies the preferred-source boost and the match bonus to a base priority.
func (s *Scorer) AdjustedPriority(base, queryMatch float64, preferred bool) float64 {
	boost := 1.0
	if preferred {
		boost = s.boost.PreferredBoost
	}
	return math.Min(1.0, base*boost+queryMatch*s.boost.MatchBonus)
}

// Score returns every hit as a SourceResult ordered by combined score, highest first.
// Equal scores keep retrieval order. The result is never nil.
func (s *Scorer) Score(
	hits []domain.RawHit,
	preferredSources []string,
	matchScores map[string]float64,
	weights domain.WeightConfig,
	priorities domain.PriorityMap,
) []domain.SourceResult {
	results := make([]domain.SourceResult, 0, len(hits))
	if len(hits) == 0 {
		return results
	}

	preferred := make(map[string]struct{}, len(preferredSources))
	for _, source := range preferredSources {
		preferred[source] = struct{}{}
	}

	createdAt := s.now()
	for _, hit := range hits {
		name, base := s.resolver.Resolve(hit.SourceIdentifier, priorities)
		queryMatch := domain.Clamp01(matchScores[name])
		_, isPreferred := preferred[name]
		priority := s.AdjustedPriority(base, queryMatch, isPreferred)

		results = append(results, domain.NewSourceResult(
			hit.Content,
			name,
			priority,
			domain.Clamp01(hit.Confidence),
			queryMatch,
			weights,
			hit.Metadata,
			createdAt,
		))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CombinedScore > results[j].CombinedScore
	})
	return results
}
