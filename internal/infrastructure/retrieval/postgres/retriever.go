// Package postgres retrieves knowledge-base chunks with PostgreSQL full-text search.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/resilience"
)

// ts_rank_cd normalization 32 maps rank to rank/(rank+1), keeping it in [0,1).
const searchQuery = `
SELECT id, source, title, content, metadata,
	ts_rank_cd(search_vector, plainto_tsquery('english', $1), 32) AS rank
FROM kb_chunks
WHERE search_vector @@ plainto_tsquery('english', $1)
ORDER BY rank DESC, id
LIMIT $2
`

type Retriever struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewRetriever(db *sql.DB, executor *resilience.Executor) *Retriever {
	return &Retriever{db: db, executor: executor}
}

func (r *Retriever) Fetch(ctx context.Context, query string, maxResults int) ([]domain.RawHit, error) {
	hits, err := resilience.Call(ctx, r.executor, "retrieval.postgres", func(callCtx context.Context) ([]domain.RawHit, error) {
		return r.search(callCtx, query, maxResults)
	}, classifyPostgresError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded(err)
	}
	return hits, nil
}

func (r *Retriever) search(ctx context.Context, query string, maxResults int) ([]domain.RawHit, error) {
	rows, err := r.db.QueryContext(ctx, searchQuery, query, maxResults)
	if err != nil {
		return nil, fmt.Errorf("search kb chunks: %w", err)
	}
	defer rows.Close()

	hits := make([]domain.RawHit, 0, maxResults)
	for rows.Next() {
		var (
			id, source, title, content string
			metadataRaw                []byte
			rank                       float64
		)
		if err := rows.Scan(&id, &source, &title, &content, &metadataRaw, &rank); err != nil {
			return nil, fmt.Errorf("scan kb chunk: %w", err)
		}

		metadata := map[string]any{}
		if len(metadataRaw) > 0 {
			if err := json.Unmarshal(metadataRaw, &metadata); err != nil {
				return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
			}
		}
		metadata["chunk_id"] = id
		metadata["title"] = title
		metadata["backend"] = "postgres"

		hits = append(hits, domain.RawHit{
			Content:          content,
			SourceIdentifier: source,
			Confidence:       rank,
			Metadata:         metadata,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kb chunks: %w", err)
	}
	return hits, nil
}
