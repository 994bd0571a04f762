package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/oapi-codegen/runtime"
	"golang.org/x/time/rate"

	"github.com/kirillkom/kb-source-router/internal/config"
	"github.com/kirillkom/kb-source-router/internal/core/domain"
	"github.com/kirillkom/kb-source-router/internal/core/ports"
	"github.com/kirillkom/kb-source-router/internal/infrastructure/report/xlsx"
	"github.com/kirillkom/kb-source-router/internal/observability/metrics"
)

type Router struct {
	cfg           config.Config
	router        ports.SourceRouter
	metricsReader ports.RoutingMetricsReader
	httpMetrics   *metrics.HTTPServerMetrics
	validator     *openAPIValidator
}

func NewRouter(
	cfg config.Config,
	router ports.SourceRouter,
	routingMetrics ports.RoutingMetricsReader,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	rt := &Router{
		cfg:           cfg,
		router:        router,
		metricsReader: routingMetrics,
		httpMetrics:   httpMetrics,
	}
	if cfg.APIValidateRequests {
		validator, err := newOpenAPIValidator()
		if err != nil {
			slog.Error("openapi_validator_disabled", "error", err)
		} else {
			rt.validator = validator
		}
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/route", rt.routeQuery)
	mux.HandleFunc("GET /v1/route", rt.routeQueryParams)
	mux.HandleFunc("POST /v1/analyze", rt.analyzeQuery)
	mux.HandleFunc("GET /v1/metrics/routing", rt.routingMetrics)
	mux.HandleFunc("DELETE /v1/metrics/routing", rt.resetRoutingMetrics)
	mux.HandleFunc("GET /v1/metrics/routing/report.xlsx", rt.routingReport)
	if rt.httpMetrics != nil {
		mux.Handle("GET /metrics", rt.httpMetrics.Handler())
	}

	var handler http.Handler = mux
	if rt.validator != nil {
		handler = rt.validator.middleware(handler)
	}
	if rt.cfg.APIKey != "" {
		handler = bearerAuthMiddleware(handler, rt.cfg.APIKey)
	}
	if rt.cfg.APIMaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		burst := max(rt.cfg.APIRateLimitBurst, 1)
		handler = rateLimitMiddleware(handler, rate.NewLimiter(rate.Limit(rt.cfg.APIRateLimitRPS), burst))
	}
	if rt.httpMetrics != nil {
		handler = rt.httpMetrics.Middleware(rt.cfg.ServiceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type routeRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type routeResponse struct {
	Query            string                `json:"query"`
	PreferredSources []string              `json:"preferred_sources"`
	Degraded         bool                  `json:"degraded"`
	Results          []domain.SourceResult `json:"results"`
}

func (rt *Router) routeQuery(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	rt.route(w, r, req)
}

func (rt *Router) routeQueryParams(w http.ResponseWriter, r *http.Request) {
	req := routeRequest{Query: r.URL.Query().Get("q")}
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &req.Limit); err != nil {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "bind limit", err))
		return
	}
	rt.route(w, r, req)
}

func (rt *Router) route(w http.ResponseWriter, r *http.Request, req routeRequest) {
	query, err := validateQuery(req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Limit < 0 {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "route", errors.New("limit must not be negative")))
		return
	}

	outcome, err := rt.router.RouteDetailed(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}

	limit := req.Limit
	if limit == 0 {
		limit = rt.router.MaxResults()
	}
	results := outcome.Results
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	writeJSON(w, http.StatusOK, routeResponse{
		Query:            outcome.Query,
		PreferredSources: outcome.PreferredSources,
		Degraded:         outcome.Degraded,
		Results:          results,
	})
}

func (rt *Router) analyzeQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	query, err := validateQuery(req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.router.Analyze(query))
}

func (rt *Router) routingMetrics(w http.ResponseWriter, _ *http.Request) {
	snapshot := rt.metricsReader.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"total_queries":          snapshot.TotalQueries,
		"successful_routes":      snapshot.SuccessfulRoutes,
		"success_rate":           snapshot.SuccessRate(),
		"source_usage":           snapshot.SourceUsage,
		"running_avg_confidence": snapshot.RunningAvgConfidence,
		"last_updated":           snapshot.LastUpdated,
	})
}

func (rt *Router) resetRoutingMetrics(w http.ResponseWriter, _ *http.Request) {
	rt.metricsReader.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) routingReport(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := xlsx.WriteSnapshot(&buf, rt.metricsReader.Snapshot()); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", xlsx.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="routing-report.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func validateQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "validate query", errors.New("query is required"))
	}
	return query, nil
}

func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	kind := domain.KindOf(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed", "status", status, "kind", kind, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": kind})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
