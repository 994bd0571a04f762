package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/kb-source-router/internal/config"
	"github.com/kirillkom/kb-source-router/internal/core/domain"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/report/xlsx"
	"github.com/kirillkom/kb-source-router/internal/observability/metrics"
)

type sourceRouterFake struct {
	outcome    *domain.RouteOutcome
	err        error
	maxResults int
	queries    []string
}

func (f *sourceRouterFake) Route(ctx context.Context, query string) ([]domain.SourceResult, error) {
	outcome, err := f.RouteDetailed(ctx, query)
	if err != nil {
		return nil, err
	}
	return outcome.Results, nil
}

func (f *sourceRouterFake) RouteDetailed(_ context.Context, query string) (*domain.RouteOutcome, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	out := *f.outcome
	out.Query = query
	return &out, nil
}

func (f *sourceRouterFake) Analyze(string) domain.QueryAnalysis {
	return domain.QueryAnalysis{
		PreferredSources: []string{"Templates"},
		MatchScores:      map[string]float64{"Templates": 1},
	}
}

func (f *sourceRouterFake) MaxResults() int {
	return f.maxResults
}

type metricsReaderFake struct {
	snapshot domain.RoutingMetrics
	resets   int
}

func (f *metricsReaderFake) Snapshot() domain.RoutingMetrics {
	return f.snapshot
}

func (f *metricsReaderFake) Reset() {
	f.resets++
	f.snapshot = domain.RoutingMetrics{SourceUsage: map[string]int{}}
}

func threeResults() []domain.SourceResult {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return []domain.SourceResult{
		{Content: "a", Source: "Templates", CombinedScore: 0.9, Timestamp: ts},
		{Content: "b", Source: "Reports", CombinedScore: 0.7, Timestamp: ts},
		{Content: "c", Source: "Wiki", CombinedScore: 0.5, Timestamp: ts},
	}
}

func newTestRouter(cfg config.Config) (*Router, *sourceRouterFake, *metricsReaderFake) {
	router := &sourceRouterFake{
		outcome:    &domain.RouteOutcome{PreferredSources: []string{"Templates"}, Results: threeResults()},
		maxResults: 2,
	}
	reader := &metricsReaderFake{snapshot: domain.RoutingMetrics{
		TotalQueries:         4,
		SuccessfulRoutes:     3,
		SourceUsage:          map[string]int{"Templates": 3, "Reports": 1},
		RunningAvgConfidence: 0.75,
	}}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "kbr-api-test"
	}
	return NewRouter(cfg, router, reader, metrics.NewHTTPServerMetrics(cfg.ServiceName)), router, reader
}

func newTestHandler(cfg config.Config) http.Handler {
	rt, _, _ := newTestRouter(cfg)
	return rt.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func decodeRoute(t *testing.T, res *httptest.ResponseRecorder) routeResponse {
	t.Helper()
	var out routeResponse
	if err := json.Unmarshal(res.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode route response: %v (body %s)", err, res.Body.String())
	}
	return out
}

func TestRoutePostAppliesDefaultLimit(t *testing.T) {
	rt, router, _ := newTestRouter(config.Config{})
	res := doJSON(t, rt.Handler(), http.MethodPost, "/v1/route", `{"query":"  status template  "}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	out := decodeRoute(t, res)
	if len(out.Results) != 2 {
		t.Fatalf("expected results truncated to max results 2, got %d", len(out.Results))
	}
	if out.Query != "status template" || router.queries[0] != "status template" {
		t.Fatalf("expected trimmed query, got %q / %q", out.Query, router.queries[0])
	}
	if out.Results[0].Source != "Templates" {
		t.Fatalf("expected ranking order preserved, got %+v", out.Results)
	}
}

func TestRoutePostHonorsExplicitLimit(t *testing.T) {
	handler := newTestHandler(config.Config{})
	res := doJSON(t, handler, http.MethodPost, "/v1/route", `{"query":"status","limit":1}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if out := decodeRoute(t, res); len(out.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out.Results))
	}
}

func TestRouteGetBindsQueryParameters(t *testing.T) {
	handler := newTestHandler(config.Config{})
	res := doJSON(t, handler, http.MethodGet, "/v1/route?q=status&limit=3", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if out := decodeRoute(t, res); len(out.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out.Results))
	}

	res = doJSON(t, handler, http.MethodGet, "/v1/route?q=status&limit=abc", "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric limit, got %d", res.Code)
	}
}

func TestRouteRejectsBlankQuery(t *testing.T) {
	handler := newTestHandler(config.Config{})
	res := doJSON(t, handler, http.MethodPost, "/v1/route", `{"query":"   "}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	res = doJSON(t, handler, http.MethodPost, "/v1/route", `{"query":"x","limit":-1}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", res.Code)
	}
}

func TestRouteMapsTemporaryErrorTo503(t *testing.T) {
	rt, router, _ := newTestRouter(config.Config{})
	router.err = domain.WrapError(domain.ErrTemporary, "route", context.DeadlineExceeded)
	res := doJSON(t, rt.Handler(), http.MethodPost, "/v1/route", `{"query":"status"}`)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["kind"] != "temporary" || body["error"] == "" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestRouteReportsDegradedOutcome(t *testing.T) {
	rt, router, _ := newTestRouter(config.Config{})
	router.outcome = &domain.RouteOutcome{PreferredSources: []string{}, Results: []domain.SourceResult{}, Degraded: true}
	res := doJSON(t, rt.Handler(), http.MethodPost, "/v1/route", `{"query":"status"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	out := decodeRoute(t, res)
	if !out.Degraded || out.Results == nil || len(out.Results) != 0 {
		t.Fatalf("expected degraded empty results, got %+v", out)
	}
}

func TestAnalyzeReturnsPreferredSources(t *testing.T) {
	handler := newTestHandler(config.Config{})
	res := doJSON(t, handler, http.MethodPost, "/v1/analyze", `{"query":"template"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var out domain.QueryAnalysis
	if err := json.Unmarshal(res.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode analysis: %v", err)
	}
	if len(out.PreferredSources) != 1 || out.PreferredSources[0] != "Templates" {
		t.Fatalf("unexpected analysis: %+v", out)
	}
}

func TestRoutingMetricsAndReset(t *testing.T) {
	rt, _, reader := newTestRouter(config.Config{})
	handler := rt.Handler()

	res := doJSON(t, handler, http.MethodGet, "/v1/metrics/routing", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var out map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if out["total_queries"] != float64(4) || out["success_rate"] != 0.75 {
		t.Fatalf("unexpected metrics payload: %v", out)
	}

	res = doJSON(t, handler, http.MethodDelete, "/v1/metrics/routing", "")
	if res.Code != http.StatusNoContent || reader.resets != 1 {
		t.Fatalf("expected 204 and one reset, got %d / %d", res.Code, reader.resets)
	}
}

func TestRoutingReportReturnsWorkbook(t *testing.T) {
	handler := newTestHandler(config.Config{})
	res := doJSON(t, handler, http.MethodGet, "/v1/metrics/routing/report.xlsx", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if got := res.Header().Get("Content-Type"); got != xlsx.ContentType {
		t.Fatalf("unexpected content type %q", got)
	}

	f, err := excelize.OpenReader(bytes.NewReader(res.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	if idx, err := f.GetSheetIndex(xlsx.SourcesSheet); err != nil || idx < 0 {
		t.Fatalf("expected %s sheet, got %d / %v", xlsx.SourcesSheet, idx, err)
	}
}

func TestOpenAPIValidationRejectsUnknownFields(t *testing.T) {
	handler := newTestHandler(config.Config{APIValidateRequests: true})

	res := doJSON(t, handler, http.MethodPost, "/v1/route", `{"query":"status","extra":true}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", res.Code)
	}

	res = doJSON(t, handler, http.MethodPost, "/v1/route", `{"query":"status","limit":500}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit above maximum, got %d", res.Code)
	}

	res = doJSON(t, handler, http.MethodGet, "/v1/route", "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing q, got %d", res.Code)
	}

	res = doJSON(t, handler, http.MethodPost, "/v1/route", `{"query":"status"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected valid request to pass, got %d: %s", res.Code, res.Body.String())
	}
}

func TestOpenAPIValidatorPassesUndocumentedPaths(t *testing.T) {
	handler := newTestHandler(config.Config{APIValidateRequests: true})
	res := doJSON(t, handler, http.MethodGet, "/metrics", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected /metrics to bypass validation, got %d", res.Code)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		kind error
		want int
	}{
		{kind: domain.ErrInvalidInput, want: http.StatusBadRequest},
		{kind: domain.ErrUnauthorized, want: http.StatusUnauthorized},
		{kind: domain.ErrConfigValidation, want: http.StatusUnprocessableEntity},
		{kind: domain.ErrTemporary, want: http.StatusServiceUnavailable},
		{kind: domain.ErrRetrieval, want: http.StatusBadGateway},
	}
	for _, tt := range tests {
		err := domain.WrapError(tt.kind, "op", context.Canceled)
		if got := mapErrorToHTTPStatus(err); got != tt.want {
			t.Fatalf("kind %v: expected %d, got %d", tt.kind, tt.want, got)
		}
	}

	temporaryRetrieval := domain.WrapError(domain.ErrRetrieval, "fetch", domain.WrapError(domain.ErrTemporary, "kb", context.DeadlineExceeded))
	if got := mapErrorToHTTPStatus(temporaryRetrieval); got != http.StatusServiceUnavailable {
		t.Fatalf("temporary retrieval: expected 503, got %d", got)
	}
	if got := mapErrorToHTTPStatus(errors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("untyped error: expected 500, got %d", got)
	}
}
