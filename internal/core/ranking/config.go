package ranking

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
)

const (
	DefaultPriority         = 0.3
	DefaultMaxResults       = 10
	DefaultRetrievalTimeout = 10 * time.Second

	// weightSumTolerance bounds |Wp+Wc+Wq-1|.
	weightSumTolerance = 0.1
)

// KeywordRule maps a case-insensitive keyword to the sources it favors.
type KeywordRule struct {
	Keyword string   `json:"keyword" yaml:"keyword"`
	Sources []string `json:"sources" yaml:"sources"`
}

// PatternRule maps a regular expression to the sources it favors.
type PatternRule struct {
	Pattern string   `json:"pattern" yaml:"pattern"`
	Sources []string `json:"sources" yaml:"sources"`
}

// BoostConfig holds the tunable constants of the analyzer and the priority adjustment.
type BoostConfig struct {
	KeywordHit     float64 `json:"keyword_hit" yaml:"keyword_hit"`
	PatternHit     float64 `json:"pattern_hit" yaml:"pattern_hit"`
	PreferredBoost float64 `json:"preferred_boost" yaml:"preferred_boost"`
	MatchBonus     float64 `json:"match_bonus" yaml:"match_bonus"`
}

func DefaultBoost() BoostConfig {
	return BoostConfig{
		KeywordHit:     0.3,
		PatternHit:     0.5,
		PreferredBoost: 1.3,
		MatchBonus:     0.2,
	}
}

// Config is the declarative router configuration. It is treated as immutable once
// handed to an Engine.
type Config struct {
	Priorities       domain.PriorityMap  `json:"priorities" yaml:"priorities"`
	Keywords         []KeywordRule       `json:"keywords" yaml:"keywords"`
	Patterns         []PatternRule       `json:"patterns" yaml:"patterns"`
	Weights          domain.WeightConfig `json:"weights" yaml:"weights"`
	Boost            BoostConfig         `json:"boost" yaml:"boost"`
	DefaultPriority  float64             `json:"default_priority" yaml:"default_priority"`
	MaxResults       int                 `json:"max_results" yaml:"max_results"`
	RetrievalTimeout time.Duration       `json:"retrieval_timeout" yaml:"retrieval_timeout"`
}

// DefaultConfig returns the built-in source tables used when no routing file is configured.
func DefaultConfig() Config {
	return Config{
		Priorities: domain.PriorityMap{
			"Templates":  0.9,
			"Guidelines": 0.85,
			"Policies":   0.8,
			"Procedures": 0.75,
			"Reports":    0.7,
			"Examples":   0.6,
			"FAQ":        0.5,
		},
		Keywords: []KeywordRule{
			{Keyword: "template", Sources: []string{"Templates"}},
			{Keyword: "format", Sources: []string{"Templates"}},
			{Keyword: "layout", Sources: []string{"Templates"}},
			{Keyword: "report", Sources: []string{"Reports"}},
			{Keyword: "metric", Sources: []string{"Reports"}},
			{Keyword: "guideline", Sources: []string{"Guidelines"}},
			{Keyword: "best practice", Sources: []string{"Guidelines"}},
			{Keyword: "policy", Sources: []string{"Policies"}},
			{Keyword: "compliance", Sources: []string{"Policies", "Guidelines"}},
			{Keyword: "procedure", Sources: []string{"Procedures"}},
			{Keyword: "steps", Sources: []string{"Procedures"}},
			{Keyword: "example", Sources: []string{"Examples"}},
			{Keyword: "sample", Sources: []string{"Examples", "Templates"}},
			{Keyword: "faq", Sources: []string{"FAQ"}},
		},
		Patterns: []PatternRule{
			{Pattern: `\btemplates?\b`, Sources: []string{"Templates"}},
			{Pattern: `\b(q[1-4]|quarterly|annual)\b`, Sources: []string{"Reports"}},
			{Pattern: `\bhow (do|to|can)\b`, Sources: []string{"Procedures", "FAQ"}},
			{Pattern: `\b(must|required|allowed|prohibited)\b`, Sources: []string{"Policies"}},
			{Pattern: `\b(show|give) me an? example\b`, Sources: []string{"Examples"}},
		},
		Weights:          domain.DefaultWeights(),
		Boost:            DefaultBoost(),
		DefaultPriority:  DefaultPriority,
		MaxResults:       DefaultMaxResults,
		RetrievalTimeout: DefaultRetrievalTimeout,
	}
}

// WithDefaults fills zero-valued tunables from DefaultConfig. Tables are left as-is.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	out := c
	if out.Weights == (domain.WeightConfig{}) {
		out.Weights = def.Weights
	}
	if out.Boost == (BoostConfig{}) {
		out.Boost = def.Boost
	}
	if out.DefaultPriority == 0 {
		out.DefaultPriority = def.DefaultPriority
	}
	if out.MaxResults <= 0 {
		out.MaxResults = def.MaxResults
	}
	if out.RetrievalTimeout <= 0 {
		out.RetrievalTimeout = def.RetrievalTimeout
	}
	if out.Priorities == nil {
		out.Priorities = domain.PriorityMap{}
	}
	return out
}

// Validate reports every problem in the config as a single ErrConfigValidation error.
func (c Config) Validate() error {
	var problems []error

	w := c.Weights
	for _, named := range []struct {
		name  string
		value float64
	}{
		{"priority", w.PriorityWeight},
		{"confidence", w.ConfidenceWeight},
		{"query_match", w.QueryMatchWeight},
	} {
		if named.value < 0 || math.IsNaN(named.value) {
			problems = append(problems, fmt.Errorf("weight %s must be >= 0, got %v", named.name, named.value))
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > weightSumTolerance || math.IsNaN(sum) {
		problems = append(problems, fmt.Errorf("weights sum to %.4f, must be within %.1f of 1.0", sum, weightSumTolerance))
	}

	for _, source := range sortedSources(c.Priorities) {
		p := c.Priorities[source]
		if strings.TrimSpace(source) == "" {
			problems = append(problems, errors.New("priority map contains an empty source name"))
		}
		if !inUnitRange(p) {
			problems = append(problems, fmt.Errorf("priority for %q must be in [0,1], got %v", source, p))
		}
	}
	if !inUnitRange(c.DefaultPriority) {
		problems = append(problems, fmt.Errorf("default priority must be in [0,1], got %v", c.DefaultPriority))
	}

	b := c.Boost
	if b.KeywordHit <= 0 {
		problems = append(problems, fmt.Errorf("boost keyword_hit must be > 0, got %v", b.KeywordHit))
	}
	if b.PatternHit <= 0 {
		problems = append(problems, fmt.Errorf("boost pattern_hit must be > 0, got %v", b.PatternHit))
	}
	if b.PreferredBoost < 1 {
		problems = append(problems, fmt.Errorf("boost preferred_boost must be >= 1, got %v", b.PreferredBoost))
	}
	if b.MatchBonus < 0 {
		problems = append(problems, fmt.Errorf("boost match_bonus must be >= 0, got %v", b.MatchBonus))
	}

	for i, rule := range c.Keywords {
		if strings.TrimSpace(rule.Keyword) == "" {
			problems = append(problems, fmt.Errorf("keyword rule %d has an empty keyword", i))
		}
		if len(rule.Sources) == 0 {
			problems = append(problems, fmt.Errorf("keyword rule %q has no sources", rule.Keyword))
		}
	}
	for i, rule := range c.Patterns {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			problems = append(problems, fmt.Errorf("pattern rule %d: %w", i, err))
		}
		if len(rule.Sources) == 0 {
			problems = append(problems, fmt.Errorf("pattern rule %q has no sources", rule.Pattern))
		}
	}

	if c.MaxResults <= 0 {
		problems = append(problems, fmt.Errorf("max_results must be > 0, got %d", c.MaxResults))
	}
	if c.RetrievalTimeout <= 0 {
		problems = append(problems, fmt.Errorf("retrieval_timeout must be > 0, got %s", c.RetrievalTimeout))
	}

	if len(problems) == 0 {
		return nil
	}
	return domain.WrapError(domain.ErrConfigValidation, "validate routing config", errors.Join(problems...))
}

func sortedSources(priorities domain.PriorityMap) []string {
	keys := make([]string, 0, len(priorities))
	for k := range priorities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1 && !math.IsNaN(v)
}
