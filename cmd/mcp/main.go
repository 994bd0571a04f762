package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpadapter "github.com/kirillkom/kb-source-router/internal/adapters/mcp"
	"github.com/kirillkom/kb-source-router/internal/bootstrap"
	"github.com/kirillkom/kb-source-router/internal/config"
	"github.com/kirillkom/kb-source-router/internal/observability/logging"
)

// Logs go to stderr so the stdio transport stays clean.
func main() {
	cfg := config.Load()
	logging.SetupWriter(os.Stderr, cfg.ServiceName+"-mcp", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, nil)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()
	app.WatchRoutingConfig(ctx)

	srv := mcpadapter.NewServer(app.RouteUC, app.RouteUC)

	if cfg.MCPTransport != "http" {
		if err := srv.ServeStdio(); err != nil {
			slog.Error("mcp_stdio_failed", "error", err)
		}
		return
	}

	addr := ":" + cfg.MCPPort
	httpServer := srv.StreamableHTTP()
	go func() {
		slog.Info("mcp_listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp_http_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("mcp_shutdown_failed", "error", err)
	}
}
