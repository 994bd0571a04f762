package multi

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
)

type staticRetriever struct {
	hits []domain.RawHit
	err  error
}

func (s staticRetriever) Fetch(context.Context, string, int) ([]domain.RawHit, error) {
	return s.hits, s.err
}

func hits(ids ...string) []domain.RawHit {
	out := make([]domain.RawHit, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.RawHit{SourceIdentifier: id, Confidence: 0.5})
	}
	return out
}

func TestFetchInterleavesByRank(t *testing.T) {
	r := New(
		Backend{Name: "pg", Retriever: staticRetriever{hits: hits("a1", "a2", "a3")}},
		Backend{Name: "fs", Retriever: staticRetriever{hits: hits("b1")}},
	)
	got, err := r.Fetch(context.Background(), "q", 10)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	want := []string{"a1", "b1", "a2", "a3"}
	if len(got) != len(want) {
		t.Fatalf("expected %d hits, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].SourceIdentifier != want[i] {
			t.Fatalf("hit %d = %s, want %s", i, got[i].SourceIdentifier, want[i])
		}
	}
	if got[1].Metadata["retriever"] != "fs" {
		t.Fatalf("expected retriever tag, got %v", got[1].Metadata)
	}
}

func TestFetchTruncatesToMaxResults(t *testing.T) {
	r := New(
		Backend{Name: "a", Retriever: staticRetriever{hits: hits("a1", "a2")}},
		Backend{Name: "b", Retriever: staticRetriever{hits: hits("b1", "b2")}},
	)
	got, err := r.Fetch(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 3 || got[2].SourceIdentifier != "a2" {
		t.Fatalf("unexpected truncation: %+v", got)
	}
}

func TestFetchToleratesPartialFailure(t *testing.T) {
	r := New(
		Backend{Name: "down", Retriever: staticRetriever{err: errors.New("boom")}},
		Backend{Name: "up", Retriever: staticRetriever{hits: hits("u1")}},
	)
	got, err := r.Fetch(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("expected partial success, got %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(got))
	}
}

func TestFetchFailsWhenAllBackendsFail(t *testing.T) {
	errA := errors.New("a down")
	r := New(
		Backend{Name: "a", Retriever: staticRetriever{err: errA}},
		Backend{Name: "b", Retriever: staticRetriever{err: errors.New("b down")}},
	)
	_, err := r.Fetch(context.Background(), "q", 5)
	if !errors.Is(err, errA) {
		t.Fatalf("expected joined error containing errA, got %v", err)
	}
}
