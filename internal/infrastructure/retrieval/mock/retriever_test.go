package mock

import (
	"context"
	"strings"
	"testing"
)

func TestFetchReturnsMatchingFixtures(t *testing.T) {
	r := New(nil, Options{})
	hits, err := r.Fetch(context.Background(), "status report template", 3)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if !strings.HasPrefix(hits[0].SourceIdentifier, "Templates/") {
		t.Fatalf("expected template fixture first, got %s", hits[0].SourceIdentifier)
	}
	for _, h := range hits {
		if h.Confidence < 0 || h.Confidence > 1 {
			t.Fatalf("confidence out of range: %v", h.Confidence)
		}
	}
}

func TestFetchNoMatchReturnsEmpty(t *testing.T) {
	hits, err := New(nil, Options{}).Fetch(context.Background(), "zebra", 5)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Fatalf("expected empty non-nil hits, got %#v", hits)
	}
}

func TestFetchJitterIsReproducibleForSeed(t *testing.T) {
	a := New(nil, Options{Jitter: 0.1, Seed: 42})
	b := New(nil, Options{Jitter: 0.1, Seed: 42})

	ha, _ := a.Fetch(context.Background(), "policy", 5)
	hb, _ := b.Fetch(context.Background(), "policy", 5)
	if len(ha) == 0 || len(ha) != len(hb) {
		t.Fatalf("unexpected hit counts %d/%d", len(ha), len(hb))
	}
	for i := range ha {
		if ha[i].Confidence != hb[i].Confidence {
			t.Fatalf("hit %d differs for same seed: %v vs %v", i, ha[i].Confidence, hb[i].Confidence)
		}
	}
}

func TestFetchHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(nil, Options{}).Fetch(ctx, "policy", 5); err == nil {
		t.Fatalf("expected context error")
	}
}
