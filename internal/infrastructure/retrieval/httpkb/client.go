// Package httpkb queries a JSON knowledge-base search endpoint over HTTP.
package httpkb

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Token              string
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      opts.Token,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.ResilienceExecutor,
	}
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Results []struct {
		Content  string         `json:"content"`
		Source   string         `json:"source"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"results"`
}

func (c *Client) Fetch(ctx context.Context, query string, maxResults int) ([]domain.RawHit, error) {
	resp, err := resilience.Call(ctx, c.executor, "retrieval.httpkb", func(callCtx context.Context) (searchResponse, error) {
		var out searchResponse
		err := c.postJSON(callCtx, "/search", searchRequest{Query: query, Limit: maxResults}, &out, "search")
		return out, err
	}, classifyHTTPKBError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("httpkb search", err)
	}

	hits := make([]domain.RawHit, 0, len(resp.Results))
	for _, r := range resp.Results {
		metadata := r.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["backend"] = "httpkb"
		hits = append(hits, domain.RawHit{
			Content:          r.Content,
			SourceIdentifier: r.Source,
			Confidence:       r.Score,
			Metadata:         metadata,
		})
	}
	return hits, nil
}
