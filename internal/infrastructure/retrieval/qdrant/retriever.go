// Package qdrant searches a Qdrant collection through a named sparse vector, so no
// embedding model is needed at query time.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/resilience"
)

const defaultVectorName = "text"

type Options struct {
	APIKey     string
	VectorName string
	Timeout    time.Duration
}

type Retriever struct {
	baseURL    string
	collection string
	vectorName string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, collection string, opts Options, executor *resilience.Executor) *Retriever {
	vectorName := opts.VectorName
	if vectorName == "" {
		vectorName = defaultVectorName
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Retriever{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		vectorName: vectorName,
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

// EnsureCollection creates the collection with an IDF-weighted sparse vector.
// An existing collection is left as is.
func (r *Retriever) EnsureCollection(ctx context.Context) error {
	body := map[string]any{
		"sparse_vectors": map[string]any{
			r.vectorName: map[string]any{"modifier": "idf"},
		},
	}
	err := r.do(ctx, http.MethodPut, "/collections/"+r.collection, body, nil, "ensure collection")
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		return nil
	}
	return err
}

type queryResponse struct {
	Result struct {
		Points []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	} `json:"result"`
}

func (r *Retriever) Fetch(ctx context.Context, query string, maxResults int) ([]domain.RawHit, error) {
	vector := encodeSparseQuery(query)
	if len(vector.Indices) == 0 {
		return []domain.RawHit{}, nil
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	reqBody := map[string]any{
		"query":        vector,
		"using":        r.vectorName,
		"limit":        maxResults,
		"with_payload": true,
	}
	resp, err := resilience.Call(ctx, r.executor, "retrieval.qdrant", func(callCtx context.Context) (queryResponse, error) {
		var out queryResponse
		err := r.do(callCtx, http.MethodPost, "/collections/"+r.collection+"/points/query", reqBody, &out, "query")
		return out, err
	}, classifyQdrantError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("qdrant query", err)
	}

	hits := make([]domain.RawHit, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		text := getStringPayload(p.Payload, "text")
		if text == "" {
			continue
		}
		metadata := map[string]any{
			"backend":  "qdrant",
			"point_id": fmt.Sprintf("%v", p.ID),
			"score":    p.Score,
		}
		hits = append(hits, domain.RawHit{
			Content:          text,
			SourceIdentifier: sourceIdentifier(p.Payload, p.ID),
			Confidence:       p.Score / (p.Score + 1),
			Metadata:         metadata,
		})
	}
	return hits, nil
}

func sourceIdentifier(payload map[string]any, id any) string {
	source := getStringPayload(payload, "source")
	title := getStringPayload(payload, "title")
	switch {
	case source != "" && title != "":
		return source + "/" + title
	case source != "":
		return source
	case title != "":
		return title
	default:
		return fmt.Sprintf("%v", id)
	}
}

func (r *Retriever) do(ctx context.Context, method, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("api-key", r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(msg),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
