package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
)

type storeFake struct {
	data   map[string]string
	getErr error
	setErr error
	ttl    time.Duration
}

func newStoreFake() *storeFake {
	return &storeFake{data: map[string]string{}}
}

func (s *storeFake) Get(_ context.Context, key string) *redis.StringCmd {
	if s.getErr != nil {
		return redis.NewStringResult("", s.getErr)
	}
	v, ok := s.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (s *storeFake) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	if s.setErr != nil {
		return redis.NewStatusResult("", s.setErr)
	}
	s.data[key] = string(value.([]byte))
	s.ttl = ttl
	return redis.NewStatusResult("OK", nil)
}

type countingRetriever struct {
	calls int
	err   error
}

func (c *countingRetriever) Fetch(context.Context, string, int) ([]domain.RawHit, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []domain.RawHit{{Content: "c", SourceIdentifier: "FAQ/a.md", Confidence: 0.4}}, nil
}

func TestFetchReadsThroughCache(t *testing.T) {
	next := &countingRetriever{}
	kv := newStoreFake()
	r := newRetriever(next, kv, Options{TTL: time.Minute})

	for i := 0; i < 3; i++ {
		hits, err := r.Fetch(context.Background(), "faq", 5)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if len(hits) != 1 || hits[0].SourceIdentifier != "FAQ/a.md" {
			t.Fatalf("unexpected hits: %+v", hits)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected one backend call, got %d", next.calls)
	}
	if kv.ttl != time.Minute {
		t.Fatalf("expected ttl to be passed through, got %s", kv.ttl)
	}
}

func TestFetchKeysIncludeMaxResults(t *testing.T) {
	r := newRetriever(&countingRetriever{}, newStoreFake(), Options{})
	if r.key("faq", 5) == r.key("faq", 6) {
		t.Fatalf("expected different keys for different limits")
	}
}

func TestFetchFallsBackWhenCacheUnavailable(t *testing.T) {
	next := &countingRetriever{}
	kv := newStoreFake()
	kv.getErr = errors.New("connection refused")
	kv.setErr = errors.New("connection refused")
	r := newRetriever(next, kv, Options{})

	hits, err := r.Fetch(context.Background(), "faq", 5)
	if err != nil || len(hits) != 1 {
		t.Fatalf("expected direct fetch, got %v / %v", hits, err)
	}
}

func TestFetchDoesNotCacheErrors(t *testing.T) {
	next := &countingRetriever{err: errors.New("kb down")}
	kv := newStoreFake()
	r := newRetriever(next, kv, Options{})

	if _, err := r.Fetch(context.Background(), "faq", 5); err == nil {
		t.Fatalf("expected error")
	}
	if len(kv.data) != 0 {
		t.Fatalf("expected nothing cached")
	}
}

func TestFetchLogsDecodeErrorAndRefetches(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	next := &countingRetriever{}
	kv := newStoreFake()
	r := newRetriever(next, kv, Options{})
	key := r.key("faq", 5)
	kv.data[key] = "{not json"

	hits, err := r.Fetch(context.Background(), "faq", 5)
	if err != nil || len(hits) != 1 {
		t.Fatalf("expected backend hits, got %v / %v", hits, err)
	}
	if next.calls != 1 {
		t.Fatalf("expected backend call after corrupt entry, got %d", next.calls)
	}

	var entry struct {
		Msg   string `json:"msg"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(bytes.SplitN(logs.Bytes(), []byte("\n"), 2)[0], &entry); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, logs.String())
	}
	if entry.Msg != "retrieval_cache_decode_failed" || entry.Error == "" {
		t.Fatalf("expected decode failure with its cause, got %+v", entry)
	}

	var cached []domain.RawHit
	if err := json.Unmarshal([]byte(kv.data[key]), &cached); err != nil || len(cached) != 1 {
		t.Fatalf("expected corrupt entry to be replaced, got %q", kv.data[key])
	}
}
