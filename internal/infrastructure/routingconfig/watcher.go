package routingconfig

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kirillkom/kb-source-router/internal/core/ranking"
)

const defaultDebounce = 250 * time.Millisecond

// ApplyFunc installs a freshly loaded config. A returned error keeps the previous one.
type ApplyFunc func(ranking.Config) error

type Watcher struct {
	path     string
	apply    ApplyFunc
	debounce time.Duration
}

func NewWatcher(path string, apply ApplyFunc) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		apply:    apply,
		debounce: defaultDebounce,
	}
}

// Run watches the directory holding the routing file, so editors that replace the
// file by rename are picked up too. It blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	var (
		timer   *time.Timer
		trigger <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			trigger = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("routing_config_watch_error", "path", w.path, "error", err)
		case <-trigger:
			trigger = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Error("routing_config_reload_failed", "path", w.path, "error", err)
		return
	}
	if err := w.apply(cfg); err != nil {
		slog.Error("routing_config_reload_failed", "path", w.path, "error", err)
		return
	}
	slog.Info("routing_config_reloaded",
		"path", w.path,
		"sources", len(cfg.Priorities),
		"keywords", len(cfg.Keywords),
		"patterns", len(cfg.Patterns),
	)
}
