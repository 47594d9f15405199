package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/ragstudio/core"
)

// DefaultDebounce is how long a file must stay quiet before it is ingested.
const DefaultDebounce = 500 * time.Millisecond

// Ingester is the part of Pipeline a Watcher needs.
type Ingester interface {
	Ingest(ctx context.Context, path string) (core.IngestResult, error)
}

// Watcher ingests files under a directory as they are created or written.
type Watcher struct {
	ingester Ingester
	root     string
	pattern  string
	debounce time.Duration
	workers  int
	onResult func(core.IngestResult, error)
	logger   *slog.Logger

	mu       sync.Mutex
	pending  map[string]*time.Timer
	closed   bool
	inflight sync.WaitGroup
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher) error

// WithPattern restricts ingestion to paths, relative to the watched
// directory, matching a doublestar pattern. Default is "**".
func WithPattern(pattern string) WatchOption {
	return func(w *Watcher) error {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
		}
		w.pattern = pattern
		return nil
	}
}

// WithDebounce sets the quiet period before a changed file is ingested.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) error {
		w.debounce = max(d, 0)
		return nil
	}
}

// WithWatchWorkers sets how many files may be ingested at once.
func WithWatchWorkers(n int) WatchOption {
	return func(w *Watcher) error {
		w.workers = max(n, 1)
		return nil
	}
}

// WithResultHandler is called after every ingest attempt.
func WithResultHandler(fn func(core.IngestResult, error)) WatchOption {
	return func(w *Watcher) error {
		w.onResult = fn
		return nil
	}
}

// WithWatchLogger sets a custom logger.
func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(w *Watcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

// NewWatcher creates a watcher for root. Nothing is watched until Run.
func NewWatcher(ingester Ingester, root string, opts ...WatchOption) (*Watcher, error) {
	if ingester == nil {
		return nil, ErrWatchTargetRequired
	}
	if root == "" {
		return nil, ErrWatchTargetRequired
	}
	w := &Watcher{
		ingester: ingester,
		root:     filepath.Clean(root),
		pattern:  "**",
		debounce: DefaultDebounce,
		workers:  1,
		logger:   slog.Default(),
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	w.logger = w.logger.With("component", "watcher", "root", w.root)
	return w, nil
}

// Run watches until ctx is cancelled. Files already present are left
// alone; only later creates and writes trigger ingestion.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := w.addTree(watcher, w.root); err != nil {
		return err
	}

	pool, err := ants.NewPool(w.workers)
	if err != nil {
		return err
	}
	defer pool.Release()

	w.mu.Lock()
	w.closed = false
	w.mu.Unlock()
	defer w.inflight.Wait()
	defer w.stopTimers()

	w.logger.Info("watching for files", "pattern", w.pattern)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("watcher events channel closed")
			}
			w.handle(ctx, watcher, pool, event)

		case werr, ok := <-watcher.Errors:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error("fsnotify error", "err", werr)
		}
	}
}

func (w *Watcher) addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) handle(ctx context.Context, watcher *fsnotify.Watcher, pool *ants.Pool, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := w.addTree(watcher, event.Name); err != nil {
				w.logger.Warn("cannot watch new directory", "path", event.Name, "err", err)
			}
		}
		return
	}
	if !w.Matches(event.Name) {
		return
	}

	w.schedule(event.Name, func() {
		err := pool.Submit(func() {
			defer w.inflight.Done()
			res, err := w.ingester.Ingest(ctx, event.Name)
			if err != nil {
				w.logger.Error("watch ingest failed", "path", event.Name, "err", err)
			}
			if w.onResult != nil {
				w.onResult(res, err)
			}
		})
		if err != nil {
			w.inflight.Done()
			w.logger.Warn("dropped file change", "path", event.Name, "err", err)
		}
	})
}

// Matches reports whether path, inside the watched directory, matches the
// watcher's pattern.
func (w *Watcher) Matches(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	ok, err := doublestar.Match(w.pattern, filepath.ToSlash(rel))
	return err == nil && ok
}

// schedule runs fn once path has been quiet for the debounce period.
// fn owns one count on w.inflight and must release it.
func (w *Watcher) schedule(path string, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		if w.closed {
			w.mu.Unlock()
			return
		}
		w.inflight.Add(1)
		w.mu.Unlock()
		fn()
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}
