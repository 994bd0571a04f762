package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/kb-source-router/internal/config"
)

func TestNewWiresMockBackendByDefault(t *testing.T) {
	app, err := New(context.Background(), config.Config{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	results, err := app.RouteUC.Route(context.Background(), "show me the template for status reports")
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected fixture hits from the mock backend")
	}
	if app.Queue != nil {
		t.Fatalf("expected no event queue when events are disabled")
	}
}

func TestNewCombinesMultipleBackends(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "runbook.md"), []byte("restart the payment service"), 0o600); err != nil {
		t.Fatalf("write kb file: %v", err)
	}

	app, err := New(context.Background(), config.Config{
		RetrievalBackends: []string{"mock", " LocalFS "},
		LocalKBPath:       dir,
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	outcome, err := app.RouteUC.RouteDetailed(context.Background(), "restart payment service")
	if err != nil {
		t.Fatalf("RouteDetailed() error = %v", err)
	}
	if outcome.Degraded {
		t.Fatalf("expected healthy outcome")
	}
	found := false
	for _, r := range outcome.Results {
		if r.Metadata["retriever"] == BackendLocalFS {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a localfs hit in %+v", outcome.Results)
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	if _, err := New(context.Background(), config.Config{RetrievalBackends: []string{"ftp"}}, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestNewRejectsInvalidRoutingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	if err := os.WriteFile(path, []byte("weights:\n  priority: 2\n"), 0o600); err != nil {
		t.Fatalf("write routing file: %v", err)
	}
	if _, err := New(context.Background(), config.Config{RoutingConfigPath: path}, nil); err == nil {
		t.Fatalf("expected invalid routing file to fail bootstrap")
	}
}
