// Package watcher keeps the knowledge base in sync with a drop directory.
// Files written into the directory are ingested after a debounce window;
// removed files have their source deleted from the knowledge base.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kensaku-ai/kensaku/internal/fileid"
)

const defaultDebounce = 400 * time.Millisecond

// Handler receives sync events. HandleFile ingests the file and returns the
// source ID it produced; HandleRemove deletes that source.
type Handler interface {
	HandleFile(ctx context.Context, path string) (sourceID string, err error)
	HandleRemove(ctx context.Context, sourceID string) error
}

// Watcher watches a directory tree and drives a Handler on file changes.
type Watcher struct {
	root       string
	extensions []string
	handler    Handler
	debounce   time.Duration
	logger     *zap.Logger

	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	pending  map[string]*time.Timer
	sources  map[string]string // fileid.FileDocID(path) -> source id
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the write-settle window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithExtensions restricts sync to the given file extensions (empty = all).
func WithExtensions(exts []string) Option {
	return func(w *Watcher) { w.extensions = exts }
}

// New creates a watcher over root. The directory is created if missing.
func New(root string, handler Handler, logger *zap.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		root:     filepath.Clean(root),
		handler:  handler,
		debounce: defaultDebounce,
		logger:   logger,
		pending:  make(map[string]*time.Timer),
		sources:  make(map[string]string),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	if _, err := os.Stat(w.root); os.IsNotExist(err) {
		if err := os.MkdirAll(w.root, 0755); err != nil {
			w.mu.Unlock()
			return err
		}
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	if err := w.watchTreeLocked(w.root); err != nil {
		_ = w.watcher.Close()
		w.watcher = nil
		w.started = false
		w.mu.Unlock()
		return err
	}
	w.mu.Unlock()

	w.logger.Info("watching directory",
		zap.String("root", w.root),
		zap.Strings("extensions", w.extensions))
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watch error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.mu.Lock()
			if w.watcher != nil {
				if err := w.watchTreeLocked(path); err != nil {
					w.logger.Warn("watch new directory failed", zap.String("path", path), zap.Error(err))
				}
			}
			w.mu.Unlock()
			w.syncTree(ctx, path)
			return
		}
		if w.matchExtension(path) {
			w.scheduleIngest(ctx, path)
		}
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		w.cancelPending(path)
		w.removeSource(ctx, path)
	}
}

// scheduleIngest ingests path after the debounce window. A new write event
// before the window expires restarts it, so partially written files settle.
func (w *Watcher) scheduleIngest(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.ingest(ctx, path)
	})
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	sourceID, err := w.handler.HandleFile(ctx, path)
	if err != nil {
		w.logger.Warn("sync ingest failed", zap.String("path", path), zap.Error(err))
		return
	}
	key := fileid.FileDocID(path)
	w.mu.Lock()
	oldSourceID, hadOld := w.sources[key]
	w.sources[key] = sourceID
	w.mu.Unlock()
	if hadOld && oldSourceID != sourceID {
		// Changed content means a new content-hash source id; the previous
		// version's chunks would otherwise stay indexed forever.
		if err := w.handler.HandleRemove(ctx, oldSourceID); err != nil {
			w.logger.Warn("stale source cleanup failed",
				zap.String("path", path), zap.String("source_id", oldSourceID), zap.Error(err))
		}
	}
	w.logger.Info("file synced", zap.String("path", path), zap.String("source_id", sourceID))
}

func (w *Watcher) removeSource(ctx context.Context, path string) {
	key := fileid.FileDocID(path)
	w.mu.Lock()
	sourceID, ok := w.sources[key]
	if ok {
		delete(w.sources, key)
	}
	w.mu.Unlock()
	if !ok {
		return
	}
	if err := w.handler.HandleRemove(ctx, sourceID); err != nil {
		w.logger.Warn("sync remove failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Info("file removed from knowledge base",
		zap.String("path", path), zap.String("source_id", sourceID))
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) matchExtension(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range w.extensions {
		if ext == strings.TrimPrefix(strings.ToLower(e), ".") {
			return true
		}
	}
	return false
}

func (w *Watcher) watchTreeLocked(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// SyncExisting ingests every matching file already present under the root.
// Call after Start so files predating the watcher end up in the knowledge base.
func (w *Watcher) SyncExisting(ctx context.Context) {
	w.syncTree(ctx, w.root)
}

func (w *Watcher) syncTree(ctx context.Context, dir string) {
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if w.matchExtension(path) {
			w.ingest(ctx, filepath.Clean(path))
		}
		return nil
	})
}

// Tracked returns the number of files currently mapped to sources.
func (w *Watcher) Tracked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sources)
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
