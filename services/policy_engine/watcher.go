// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy_engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce is how long the watcher waits for further events
// before reloading.
const DefaultReloadDebounce = 100 * time.Millisecond

// Watcher reloads a policy file into an Engine when it changes.
//
// # Description
//
// Watches the file's directory rather than the file, so editors that
// replace the file by rename are followed. Events are debounced. A file
// that fails to load is logged and the engine keeps its configuration.
//
// # Thread Safety
//
// Run should only be called once.
type Watcher struct {
	path     string
	engine   *Engine
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	metrics  *Metrics
	debounce time.Duration
	onReload func(Config, error)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWatcherMetrics records reload outcomes.
func WithWatcherMetrics(m *Metrics) WatcherOption {
	return func(w *Watcher) { w.metrics = m }
}

// WithDebounce overrides DefaultReloadDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// OnReload registers a callback run after every reload attempt.
func OnReload(fn func(Config, error)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher creates a watcher for the policy file at path.
//
// # Outputs
//
//   - *Watcher: Ready to Run.
//   - error: Non-nil if the fsnotify watcher cannot be created or the
//     directory cannot be watched.
func NewWatcher(path string, engine *Engine, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve policy path: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:     abs,
		engine:   engine,
		watcher:  fsw,
		logger:   slog.Default(),
		debounce: DefaultReloadDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run processes events until ctx is cancelled, then closes the watcher.
//
// # Example
//
//	w, _ := policy_engine.NewWatcher(path, engine)
//	go w.Run(ctx)
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	w.logger.Debug("watching policy file", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("policy watcher error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			_ = w.Reload()
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// Reload loads the file and applies it. The previous configuration stays
// in force when loading fails.
func (w *Watcher) Reload() error {
	cfg, err := LoadConfig(w.path)
	if err == nil {
		err = w.engine.UpdateConfig(cfg)
	}
	w.metrics.observeReload(err)
	if err != nil {
		w.logger.Warn("policy reload failed, keeping previous configuration",
			"path", w.path,
			"error", err)
	} else {
		w.logger.Info("policy reloaded", "path", w.path)
	}
	if w.onReload != nil {
		w.onReload(cfg, err)
	}
	return err
}
