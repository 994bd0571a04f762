// Package multi fans a query out to several retrievers and merges their hits.
package multi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
	"github.com/kirillkom/kb-source-router/internal/core/ports"
)

type Backend struct {
	Name      string
	Retriever ports.Retriever
}

type Retriever struct {
	backends []Backend
}

func New(backends ...Backend) *Retriever {
	return &Retriever{backends: backends}
}

// Fetch queries every backend concurrently. Hits are interleaved by rank in backend
// order, so the merged list is deterministic. It fails only when all backends fail.
func (r *Retriever) Fetch(ctx context.Context, query string, maxResults int) ([]domain.RawHit, error) {
	if len(r.backends) == 0 {
		return []domain.RawHit{}, nil
	}

	results := make([][]domain.RawHit, len(r.backends))
	errs := make([]error, len(r.backends))

	var g errgroup.Group
	for i, backend := range r.backends {
		g.Go(func() error {
			hits, err := backend.Retriever.Fetch(ctx, query, maxResults)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", backend.Name, err)
				return nil
			}
			tagged := make([]domain.RawHit, len(hits))
			for j, hit := range hits {
				hit.Metadata = withBackend(hit.Metadata, backend.Name)
				tagged[j] = hit
			}
			results[i] = tagged
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed++
		slog.Warn("retrieval_backend_failed", "backend", r.backends[i].Name, "error", err)
	}
	if failed == len(r.backends) {
		return nil, errors.Join(errs...)
	}

	return interleave(results, maxResults), nil
}

func interleave(results [][]domain.RawHit, maxResults int) []domain.RawHit {
	total := 0
	longest := 0
	for _, hits := range results {
		total += len(hits)
		longest = max(longest, len(hits))
	}
	if maxResults > 0 {
		total = min(total, maxResults)
	}

	merged := make([]domain.RawHit, 0, total)
	for rank := 0; rank < longest; rank++ {
		for _, hits := range results {
			if rank >= len(hits) {
				continue
			}
			if maxResults > 0 && len(merged) == maxResults {
				return merged
			}
			merged = append(merged, hits[rank])
		}
	}
	return merged
}

func withBackend(metadata map[string]any, name string) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out["retriever"] = name
	return out
}
