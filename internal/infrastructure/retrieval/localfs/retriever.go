// Package localfs searches a directory tree of markdown, text and PDF documents.
// The first directory level under the root is expected to name the source.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/chunking"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/retrieval"
)

type Retriever struct {
	basePath string
	splitter *chunking.Splitter
}

func New(basePath string) (*Retriever, error) {
	if basePath == "" {
		basePath = "./data/kb"
	}
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("stat kb dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("kb path is not a directory: %s", basePath)
	}
	return &Retriever{
		basePath: basePath,
		splitter: chunking.NewSplitter(chunking.DefaultChunkSize, chunking.DefaultChunkOverlap),
	}, nil
}

type candidate struct {
	rel   string
	chunk string
	index int
	score float64
}

func (r *Retriever) Fetch(ctx context.Context, query string, maxResults int) ([]domain.RawHit, error) {
	terms := retrieval.Terms(query)
	candidates := make([]candidate, 0)

	err := filepath.WalkDir(r.basePath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !retrieval.Supported(path) {
			return nil
		}

		rel, err := filepath.Rel(r.basePath, path)
		if err != nil {
			return fmt.Errorf("relative path: %w", err)
		}
		rel = filepath.ToSlash(rel)

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		text, err := retrieval.ExtractText(rel, data)
		if errors.Is(err, retrieval.ErrUnreadable) {
			slog.Warn("kb_document_skipped", "backend", "localfs", "path", rel, "error", err)
			return nil
		}
		if err != nil {
			return fmt.Errorf("extract %s: %w", rel, err)
		}

		chunk, index, score := retrieval.BestChunk(terms, rel, r.splitter.Split(text))
		if score > 0 {
			candidates = append(candidates, candidate{rel: rel, chunk: chunk, index: index, score: score})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk kb dir: %w", err)
	}

	// WalkDir visits in lexical order, so equal scores stay path ordered.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if maxResults > 0 && len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}

	hits := make([]domain.RawHit, 0, len(candidates))
	for _, c := range candidates {
		hits = append(hits, domain.RawHit{
			Content:          retrieval.Snippet(c.chunk),
			SourceIdentifier: c.rel,
			Confidence:       c.score,
			Metadata: map[string]any{
				"path":        c.rel,
				"chunk_index": c.index,
				"backend":     "localfs",
			},
		})
	}
	return hits, nil
}
