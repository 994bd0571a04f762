// Package cache is a Redis read-through decorator for retrievers. Cache failures
// fall back to the wrapped retriever.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
	"github.com/kirillkom/kb-source-router/internal/core/ports"
)

type store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

type Options struct {
	TTL       time.Duration
	KeyPrefix string
}

type Retriever struct {
	next   ports.Retriever
	store  store
	ttl    time.Duration
	prefix string
}

// NewClient connects to Redis and pings it.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func New(next ports.Retriever, client redis.Cmdable, opts Options) *Retriever {
	return newRetriever(next, client, opts)
}

func newRetriever(next ports.Retriever, s store, opts Options) *Retriever {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "kbr:hits:"
	}
	return &Retriever{next: next, store: s, ttl: ttl, prefix: prefix}
}

func (r *Retriever) Fetch(ctx context.Context, query string, maxResults int) ([]domain.RawHit, error) {
	key := r.key(query, maxResults)

	raw, err := r.store.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var hits []domain.RawHit
		decodeErr := json.Unmarshal(raw, &hits)
		if decodeErr == nil {
			return hits, nil
		}
		slog.Warn("retrieval_cache_decode_failed", "key", key, "error", decodeErr)
	case !errors.Is(err, redis.Nil):
		slog.Warn("retrieval_cache_get_failed", "key", key, "error", err)
	}

	hits, err := r.next.Fetch(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(hits)
	if err != nil {
		slog.Warn("retrieval_cache_encode_failed", "key", key, "error", err)
		return hits, nil
	}
	if err := r.store.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		slog.Warn("retrieval_cache_set_failed", "key", key, "error", err)
	}
	return hits, nil
}

func (r *Retriever) key(query string, maxResults int) string {
	sum := sha256.Sum256([]byte(query + "|" + strconv.Itoa(maxResults)))
	return r.prefix + hex.EncodeToString(sum[:])
}
