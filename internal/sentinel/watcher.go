package sentinel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/throw-if-null/yolo/internal/logging"
)

// DefaultInterval is the polling period used when none is configured.
const DefaultInterval = time.Second

// Watcher detects the completion marker at Path. Only the marker's existence
// matters; it is deleted when detected so a later run cannot see it again.
type Watcher struct {
	Path     string
	Interval time.Duration
	// Notify enables filesystem notifications. Polling still runs as a backstop
	// and takes over entirely if notifications cannot be set up.
	Notify bool
	Log    *logging.Logger
}

// Start begins watching in a background goroutine. The returned channel
// receives exactly one value, when the marker is detected and consumed. The
// returned cancel func stops the watcher.
func (w *Watcher) Start(ctx context.Context) (<-chan struct{}, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	fired := make(chan struct{}, 1)
	go func() {
		if w.watch(ctx) {
			fired <- struct{}{}
		}
	}()
	return fired, cancel
}

// Wait blocks until the marker is detected and consumed, returning nil, or
// until ctx is done, returning ctx.Err().
func (w *Watcher) Wait(ctx context.Context) error {
	if w.watch(ctx) {
		return nil
	}
	return ctx.Err()
}

func (w *Watcher) watch(ctx context.Context) bool {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	target := filepath.Clean(w.Path)

	if w.consume() {
		return true
	}

	var events chan fsnotify.Event
	var errs chan error
	if w.Notify {
		fw, err := fsnotify.NewWatcher()
		if err == nil {
			err = fw.Add(filepath.Dir(target))
			if err != nil {
				_ = fw.Close()
			}
		}
		if err != nil {
			w.Log.Debugf("sentinel: notifications unavailable, polling every %v: %v", interval, err)
		} else {
			defer fw.Close()
			events, errs = fw.Events, fw.Errors
			// the marker may have appeared between the first check and Add
			if w.consume() {
				return true
			}
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Chmod) {
				continue
			}
			if w.consume() {
				return true
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.Log.Debugf("sentinel: watch error: %v", err)
		case <-ticker.C:
			if w.consume() {
				return true
			}
		}
	}
}

// consume removes the marker and reports whether it was present.
func (w *Watcher) consume() bool {
	err := os.Remove(w.Path)
	if err == nil {
		w.Log.Debugf("sentinel: completion marker %s detected and removed", w.Path)
		return true
	}
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	if _, serr := os.Stat(w.Path); serr != nil {
		return false
	}
	w.Log.Warnf("completion marker %s detected but could not be removed: %v", w.Path, err)
	return true
}
