// Package watcher re-syncs a tenant's index when files under its docs
// directory change. Bursts of filesystem events (editors write several
// events per save) are debounced into a single sync.
package watcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last event
// before triggering a sync.
const DefaultDebounce = 2 * time.Second

// SyncFunc runs one sync pass for the watched tenant.
type SyncFunc func(ctx context.Context) error

// Watcher debounces docs-directory events into sync calls.
type Watcher struct {
	docsDir  string
	debounce time.Duration
	sync     SyncFunc
}

// New creates a watcher over docsDir. A non-positive debounce uses the
// default window.
func New(docsDir string, debounce time.Duration, sync SyncFunc) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{docsDir: docsDir, debounce: debounce, sync: sync}
}

// Run watches until ctx is cancelled. Sync failures are logged and the
// watch continues; only watcher setup errors are fatal.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.docsDir); err != nil {
		return err
	}
	slog.Info("watching documents", slog.String("dir", w.docsDir))

	// The timer starts drained; each relevant event re-arms it.
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			slog.Debug("document event",
				slog.String("path", event.Name), slog.String("op", event.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", slog.String("error", err.Error()))

		case <-timer.C:
			if err := w.sync(ctx); err != nil {
				slog.Error("watch-triggered sync failed", slog.String("error", err.Error()))
			}
		}
	}
}

func relevant(event fsnotify.Event) bool {
	return event.Op.Has(fsnotify.Create) ||
		event.Op.Has(fsnotify.Write) ||
		event.Op.Has(fsnotify.Remove) ||
		event.Op.Has(fsnotify.Rename)
}
