// Package mcpadapter exposes the source router as MCP tools so agents can ask
// which knowledge source to trust for a query.
package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
	"github.com/kirillkom/kb-source-router/internal/core/ports"
)

const (
	serverName    = "kb-source-router"
	serverVersion = "1.0.0"

	toolRouteQuery     = "route_query"
	toolAnalyzeQuery   = "analyze_query"
	toolRoutingMetrics = "routing_metrics"
)

type Server struct {
	router        ports.SourceRouter
	metricsReader ports.RoutingMetricsReader
	mcp           *server.MCPServer
}

func NewServer(router ports.SourceRouter, metricsReader ports.RoutingMetricsReader) *Server {
	s := &Server{
		router:        router,
		metricsReader: metricsReader,
		mcp:           server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false), server.WithRecovery()),
	}

	s.mcp.AddTool(mcp.NewTool(toolRouteQuery,
		mcp.WithDescription("Rank knowledge-base snippets for a query by source priority, confidence and query intent."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language question.")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results; 0 uses the configured default.")),
	), s.routeQuery)

	s.mcp.AddTool(mcp.NewTool(toolAnalyzeQuery,
		mcp.WithDescription("Return the sources a query prefers and the per-source match scores."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language question.")),
	), s.analyzeQuery)

	s.mcp.AddTool(mcp.NewTool(toolRoutingMetrics,
		mcp.WithDescription("Return accumulated routing counters."),
	), s.routingMetrics)

	return s
}

func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio blocks until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// StreamableHTTP returns a server speaking the streamable HTTP transport at /mcp.
func (s *Server) StreamableHTTP() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcp)
}

func (s *Server) routeQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := requireQuery(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := request.GetInt("limit", 0)
	if limit < 0 {
		return mcp.NewToolResultError("limit must not be negative"), nil
	}

	outcome, err := s.router.RouteDetailed(ctx, query)
	if err != nil {
		slog.Error("mcp_tool_failed", "tool", toolRouteQuery, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	if limit == 0 {
		limit = s.router.MaxResults()
	}
	results := outcome.Results
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return jsonResult(map[string]any{
		"query":             outcome.Query,
		"preferred_sources": outcome.PreferredSources,
		"degraded":          outcome.Degraded,
		"results":           results,
	})
}

func (s *Server) analyzeQuery(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := requireQuery(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.router.Analyze(query))
}

func (s *Server) routingMetrics(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snapshot := s.metricsReader.Snapshot()
	return jsonResult(struct {
		domain.RoutingMetrics
		SuccessRate float64 `json:"success_rate"`
	}{snapshot, snapshot.SuccessRate()})
}

func requireQuery(request mcp.CallToolRequest) (string, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return "", err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("query is required")
	}
	return query, nil
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
