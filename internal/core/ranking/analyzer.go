package ranking

import (
	"fmt"
	"regexp"
	"strings"
)

type keywordEntry struct {
	keyword string
	sources []string
}

type patternEntry struct {
	re      *regexp.Regexp
	sources []string
}

// PatternTable is the compiled, read-only form of the keyword and regex rules.
// Rule order is preserved so analysis results are deterministic.
type PatternTable struct {
	keywords []keywordEntry
	patterns []patternEntry
}

func NewPatternTable(keywords []KeywordRule, patterns []PatternRule) (*PatternTable, error) {
	table := &PatternTable{
		keywords: make([]keywordEntry, 0, len(keywords)),
		patterns: make([]patternEntry, 0, len(patterns)),
	}
	for _, rule := range keywords {
		kw := strings.ToLower(strings.TrimSpace(rule.Keyword))
		if kw == "" {
			continue
		}
		table.keywords = append(table.keywords, keywordEntry{
			keyword: kw,
			sources: append([]string(nil), rule.Sources...),
		})
	}
	for _, rule := range patterns {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", rule.Pattern, err)
		}
		table.patterns = append(table.patterns, patternEntry{
			re:      re,
			sources: append([]string(nil), rule.Sources...),
		})
	}
	return table, nil
}

func (t *PatternTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keywords) + len(t.patterns)
}

// Analyzer turns a query into preferred sources and normalized match scores.
type Analyzer struct {
	table      *PatternTable
	keywordHit float64
	patternHit float64
}

func NewAnalyzer(table *PatternTable, boost BoostConfig) *Analyzer {
	return &Analyzer{
		table:      table,
		keywordHit: boost.KeywordHit,
		patternHit: boost.PatternHit,
	}
}

// Analyze scans keywords then patterns against the lowercased query.
// preferred lists matched sources once, in first-match order. Scores are divided by
// the highest raw score so the strongest source is 1.0; nothing matched yields an empty map.
func (a *Analyzer) Analyze(query string) (preferred []string, scores map[string]float64) {
	preferred = []string{}
	scores = map[string]float64{}
	if a == nil || a.table == nil {
		return preferred, scores
	}

	q := strings.ToLower(query)
	raw := make(map[string]float64)
	add := func(sources []string, weight float64) {
		for _, source := range sources {
			if _, seen := raw[source]; !seen {
				preferred = append(preferred, source)
			}
			raw[source] += weight
		}
	}

	for _, entry := range a.table.keywords {
		if strings.Contains(q, entry.keyword) {
			add(entry.sources, a.keywordHit)
		}
	}
	for _, entry := range a.table.patterns {
		if entry.re.MatchString(q) {
			add(entry.sources, a.patternHit)
		}
	}

	maxRaw := 0.0
	for _, v := range raw {
		if v > maxRaw {
			maxRaw = v
		}
	}
	if maxRaw <= 0 {
		return preferred, scores
	}
	for source, v := range raw {
		scores[source] = v / maxRaw
	}
	return preferred, scores
}
