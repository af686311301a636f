package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// #region watcher

// Watcher reloads a catalog directory into a Holder when its *.md files change.
// Bursts of events are coalesced: a reload runs once the directory has been
// quiet for the debounce interval. A failed reload keeps the previous catalog.
type Watcher struct {
	mu       sync.Mutex
	holder   *Holder
	dir      string
	debounce time.Duration
	logger   *zap.Logger
	onReload func(*Catalog, error)

	watcher *fsnotify.Watcher
	pending time.Time // zero when nothing is queued
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a reload. Non-positive values are ignored.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithReloadHook registers fn to run after every reload attempt.
func WithReloadHook(fn func(*Catalog, error)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher prepares a watcher for dir. Call Start or Run to begin watching.
func NewWatcher(dir string, holder *Holder, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		holder:   holder,
		dir:      dir,
		debounce: 250 * time.Millisecond,
		logger:   zap.NewNop(),
		watcher:  fw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start adds the directory watch and runs the event loop in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching catalog", zap.String("dir", w.dir))

	go w.run(ctx)
	return nil
}

// Stop ends the event loop and releases the fsnotify handle.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("close catalog watcher", zap.Error(err))
	}
}

// Run starts the watcher and blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounce / 4
	if tick <= 0 {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("catalog watcher error", zap.Error(err))
		case now := <-ticker.C:
			w.flush(now)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".md") {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	w.logger.Debug("catalog change",
		zap.String("file", filepath.Base(event.Name)),
		zap.String("op", event.Op.String()))
	w.pending = time.Now().Add(w.debounce)
}

func (w *Watcher) flush(now time.Time) {
	if w.pending.IsZero() || now.Before(w.pending) {
		return
	}
	w.pending = time.Time{}
	w.Reload()
}

// Reload loads the directory now and swaps it in on success.
func (w *Watcher) Reload() (*Catalog, error) {
	c, err := LoadDir(w.dir)
	if err != nil {
		w.logger.Error("catalog reload failed, keeping previous catalog",
			zap.String("dir", w.dir), zap.Error(err))
	} else {
		w.holder.Swap(c)
		w.logger.Info("catalog reloaded", zap.String("dir", w.dir), zap.Int("modules", c.Len()))
	}
	if w.onReload != nil {
		w.onReload(c, err)
	}
	return c, err
}

// #endregion watcher
