package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mr-karan/searchwatch/pkg/models"
)

// WatchOptions tunes Watch.
type WatchOptions struct {
	// Debounce coalesces bursts of events from a single save.
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watch reloads the rules file at path whenever it changes and calls onChange
// with the new configuration. It runs until ctx is cancelled.
//
// The parent directory is watched so that editors saving via rename are seen.
// A file that fails to load is logged and onChange is not called, so the
// previous configuration stays active.
func Watch(ctx context.Context, path string, opts WatchOptions, onChange func(models.AlertConfiguration)) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "rules_watcher")
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving rules path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	logger.Info("watching rules file for changes", "path", abs)

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(debounce)

		case <-timer.C:
			cfg, err := LoadRules(abs)
			if err != nil {
				logger.Error("rules reload failed, keeping previous configuration", "path", abs, "error", err)
				continue
			}
			logger.Info("rules file reloaded", "path", abs, "rules", len(cfg.Rules))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "error", err)
		}
	}
}
