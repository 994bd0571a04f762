package ranking

import (
	"reflect"
	"testing"
)

func newTestAnalyzer(t *testing.T, keywords []KeywordRule, patterns []PatternRule) *Analyzer {
	t.Helper()
	table, err := NewPatternTable(keywords, patterns)
	if err != nil {
		t.Fatalf("NewPatternTable() error = %v", err)
	}
	return NewAnalyzer(table, DefaultBoost())
}

func TestAnalyzeNormalizesToTopSource(t *testing.T) {
	a := newTestAnalyzer(t,
		[]KeywordRule{
			{Keyword: "template", Sources: []string{"Templates"}},
			{Keyword: "report", Sources: []string{"Reports"}},
		},
		[]PatternRule{
			{Pattern: `\btemplates?\b`, Sources: []string{"Templates"}},
		},
	)

	preferred, scores := a.Analyze("Show me the TEMPLATE for status reports")
	if !reflect.DeepEqual(preferred, []string{"Templates", "Reports"}) {
		t.Fatalf("unexpected preferred sources: %v", preferred)
	}
	if scores["Templates"] != 1.0 {
		t.Fatalf("expected top source score 1.0, got %v", scores["Templates"])
	}
	want := 0.3 / 0.8
	if diff := scores["Reports"] - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected Reports score %v, got %v", want, scores["Reports"])
	}
}

func TestAnalyzeDeduplicatesInFirstMatchOrder(t *testing.T) {
	a := newTestAnalyzer(t,
		[]KeywordRule{
			{Keyword: "sample", Sources: []string{"Examples", "Templates"}},
			{Keyword: "template", Sources: []string{"Templates"}},
		},
		[]PatternRule{
			{Pattern: `sample`, Sources: []string{"Templates", "Examples"}},
		},
	)

	preferred, scores := a.Analyze("sample template")
	if !reflect.DeepEqual(preferred, []string{"Examples", "Templates"}) {
		t.Fatalf("unexpected preferred order: %v", preferred)
	}
	if scores["Templates"] != 1.0 {
		t.Fatalf("expected Templates to be top, got %v", scores)
	}
}

func TestAnalyzeNoMatchReturnsEmptyScores(t *testing.T) {
	a := newTestAnalyzer(t, []KeywordRule{{Keyword: "policy", Sources: []string{"Policies"}}}, nil)

	preferred, scores := a.Analyze("what is the weather")
	if preferred == nil || len(preferred) != 0 {
		t.Fatalf("expected empty non-nil preferred list, got %#v", preferred)
	}
	if scores == nil || len(scores) != 0 {
		t.Fatalf("expected empty non-nil score map, got %#v", scores)
	}
}

func TestAnalyzePatternOutweighsKeyword(t *testing.T) {
	a := newTestAnalyzer(t,
		[]KeywordRule{{Keyword: "steps", Sources: []string{"Procedures"}}},
		[]PatternRule{{Pattern: `\bhow to\b`, Sources: []string{"FAQ"}}},
	)

	_, scores := a.Analyze("how to list the steps")
	if scores["FAQ"] != 1.0 {
		t.Fatalf("expected regex-matched source on top, got %v", scores)
	}
	if scores["Procedures"] >= scores["FAQ"] {
		t.Fatalf("expected keyword source below regex source, got %v", scores)
	}
}

func TestNewPatternTableRejectsBadRegex(t *testing.T) {
	if _, err := NewPatternTable(nil, []PatternRule{{Pattern: "(", Sources: []string{"X"}}}); err == nil {
		t.Fatalf("expected compile error")
	}
}
