package domain

import (
	"math"
	"time"
)

// RawHit is a single snippet returned by a knowledge-base retriever before ranking.
type RawHit struct {
	Content          string         `json:"content"`
	SourceIdentifier string         `json:"source_identifier"`
	Confidence       float64        `json:"confidence"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// PriorityMap maps a source name to its trust weight in [0,1].
type PriorityMap map[string]float64

// WeightConfig controls how priority, confidence and query match blend into the combined score.
type WeightConfig struct {
	PriorityWeight   float64 `json:"priority_weight" yaml:"priority"`
	ConfidenceWeight float64 `json:"confidence_weight" yaml:"confidence"`
	QueryMatchWeight float64 `json:"query_match_weight" yaml:"query_match"`
}

func DefaultWeights() WeightConfig {
	return WeightConfig{
		PriorityWeight:   0.6,
		ConfidenceWeight: 0.3,
		QueryMatchWeight: 0.1,
	}
}

func (w WeightConfig) Sum() float64 {
	return w.PriorityWeight + w.ConfidenceWeight + w.QueryMatchWeight
}

// Combine returns the weighted combined score for the given inputs.
func (w WeightConfig) Combine(priority, confidence, queryMatch float64) float64 {
	return priority*w.PriorityWeight + confidence*w.ConfidenceWeight + queryMatch*w.QueryMatchWeight
}

// SourceResult is a ranked snippet handed to the presentation layer.
// CombinedScore is derived from the other scores; build values with NewSourceResult.
type SourceResult struct {
	Content         string         `json:"content"`
	Source          string         `json:"source"`
	Priority        float64        `json:"priority"`
	Confidence      float64        `json:"confidence"`
	QueryMatchScore float64        `json:"query_match_score"`
	CombinedScore   float64        `json:"combined_score"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

func NewSourceResult(
	content, source string,
	priority, confidence, queryMatch float64,
	weights WeightConfig,
	metadata map[string]any,
	createdAt time.Time,
) SourceResult {
	priority = Clamp01(priority)
	confidence = Clamp01(confidence)
	queryMatch = Clamp01(queryMatch)
	return SourceResult{
		Content:         content,
		Source:          source,
		Priority:        priority,
		Confidence:      confidence,
		QueryMatchScore: queryMatch,
		CombinedScore:   weights.Combine(priority, confidence, queryMatch),
		Metadata:        metadata,
		Timestamp:       createdAt,
	}
}

// Rescore returns a copy whose combined score reflects weights.
func (r SourceResult) Rescore(weights WeightConfig) SourceResult {
	r.CombinedScore = weights.Combine(r.Priority, r.Confidence, r.QueryMatchScore)
	return r
}

// Clamp01 bounds v to [0,1]; NaN becomes 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// QueryAnalysis is the intent extracted from a query.
type QueryAnalysis struct {
	PreferredSources []string           `json:"preferred_sources"`
	MatchScores      map[string]float64 `json:"match_scores"`
}

// RouteOutcome is the full result of one routing call.
type RouteOutcome struct {
	Query            string             `json:"query"`
	PreferredSources []string           `json:"preferred_sources"`
	MatchScores      map[string]float64 `json:"match_scores"`
	Results          []SourceResult     `json:"results"`
	Degraded         bool               `json:"degraded"`
}

// GroupBySource groups results by source, keeping the order in which sources first appear.
func GroupBySource(results []SourceResult) ([]string, map[string][]SourceResult) {
	order := make([]string, 0, len(results))
	groups := make(map[string][]SourceResult, len(results))
	for _, r := range results {
		if _, ok := groups[r.Source]; !ok {
			order = append(order, r.Source)
		}
		groups[r.Source] = append(groups[r.Source], r)
	}
	return order, groups
}
