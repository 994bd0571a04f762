package routingconfig

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/kb-source-router/internal/core/ranking"
)

func TestWatcherAppliesValidChangesOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var (
		mu      sync.Mutex
		applied []ranking.Config
	)
	w := NewWatcher(path, func(cfg ranking.Config) error {
		mu.Lock()
		defer mu.Unlock()
		applied = append(applied, cfg)
		return nil
	})
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(applied)
	}

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("priorities:\n  Bad: 7\n"), 0o644); err != nil {
		t.Fatalf("write invalid: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if got := count(); got != 0 {
		t.Fatalf("invalid config must not be applied, got %d applies", got)
	}

	if err := os.WriteFile(path, []byte("max_results: 7\n"), 0o644); err != nil {
		t.Fatalf("write valid: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(applied) == 0 {
		t.Fatalf("expected valid config to be applied")
	}
	if got := applied[len(applied)-1].MaxResults; got != 7 {
		t.Fatalf("expected max_results 7, got %d", got)
	}
}
