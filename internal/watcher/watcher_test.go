package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeHandler records sync events and hands out sequential source ids.
type fakeHandler struct {
	mu      sync.Mutex
	next    int
	ingests map[string]string // path -> source id
	removed []string
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{ingests: make(map[string]string)}
}

func (h *fakeHandler) HandleFile(ctx context.Context, path string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := fmt.Sprintf("source-%d", h.next)
	h.ingests[path] = id
	return id, nil
}

func (h *fakeHandler) HandleRemove(ctx context.Context, sourceID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removed = append(h.removed, sourceID)
	return nil
}

func (h *fakeHandler) ingestCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ingests)
}

func (h *fakeHandler) sourceFor(path string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ingests[path]
}

func (h *fakeHandler) removedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.removed)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func startWatcher(t *testing.T, root string, handler Handler, opts ...Option) *Watcher {
	t.Helper()
	opts = append([]Option{WithDebounce(50 * time.Millisecond)}, opts...)
	w := New(root, handler, zap.NewNop(), opts...)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_IngestsNewFile(t *testing.T) {
	root := t.TempDir()
	h := newFakeHandler()
	w := startWatcher(t, root, h, WithExtensions([]string{".txt"}))

	path := filepath.Join(root, "note.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 5*time.Second, func() bool { return h.ingestCount() == 1 })
	if h.sourceFor(path) == "" {
		t.Errorf("no source recorded for %s", path)
	}
	if w.Tracked() != 1 {
		t.Errorf("Tracked() = %d", w.Tracked())
	}
}

func TestWatcher_RemoveDeletesSource(t *testing.T) {
	root := t.TempDir()
	h := newFakeHandler()
	w := startWatcher(t, root, h)

	path := filepath.Join(root, "gone.txt")
	if err := os.WriteFile(path, []byte("short lived"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 5*time.Second, func() bool { return h.ingestCount() == 1 })
	sourceID := h.sourceFor(path)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 5*time.Second, func() bool { return h.removedCount() == 1 })
	if h.removed[0] != sourceID {
		t.Errorf("removed %q, want %q", h.removed[0], sourceID)
	}
	if w.Tracked() != 0 {
		t.Errorf("Tracked() = %d after remove", w.Tracked())
	}
}

func TestWatcher_RewriteDeletesStaleSource(t *testing.T) {
	root := t.TempDir()
	h := newFakeHandler()
	w := startWatcher(t, root, h)

	path := filepath.Join(root, "draft.txt")
	if err := os.WriteFile(path, []byte("first version"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 5*time.Second, func() bool { return h.ingestCount() == 1 })
	firstID := h.sourceFor(path)

	if err := os.WriteFile(path, []byte("second version, fully rewritten"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 5*time.Second, func() bool { return h.sourceFor(path) != firstID })

	// The old version's source must be deleted, not left indexed.
	waitFor(t, 5*time.Second, func() bool { return h.removedCount() == 1 })
	if h.removed[0] != firstID {
		t.Errorf("removed %q, want %q", h.removed[0], firstID)
	}
	if w.Tracked() != 1 {
		t.Errorf("Tracked() = %d after rewrite", w.Tracked())
	}
}

func TestWatcher_SyncExisting(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.txt", "b.md"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("existing"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "skip.bin"), []byte{0x0}, 0644); err != nil {
		t.Fatal(err)
	}

	h := newFakeHandler()
	w := startWatcher(t, root, h, WithExtensions([]string{".txt", ".md"}))
	w.SyncExisting(context.Background())

	if h.ingestCount() != 2 {
		t.Errorf("ingested %d files, want 2", h.ingestCount())
	}
}

func TestWatcher_IgnoresUnmatchedExtensions(t *testing.T) {
	root := t.TempDir()
	h := newFakeHandler()
	startWatcher(t, root, h, WithExtensions([]string{".txt"}))

	if err := os.WriteFile(filepath.Join(root, "data.bin"), []byte("binary"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if h.ingestCount() != 0 {
		t.Errorf("ingested %d files, want 0", h.ingestCount())
	}
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	root := t.TempDir()
	h := newFakeHandler()
	startWatcher(t, root, h)

	sub := filepath.Join(root, "nested")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to pick up the new directory.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(sub, "deep.txt"), []byte("nested file"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 5*time.Second, func() bool { return h.ingestCount() >= 1 })
}

func TestWatcher_StartCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "drop", "inbox")
	h := newFakeHandler()
	startWatcher(t, root, h)
	if _, err := os.Stat(root); err != nil {
		t.Fatalf("root not created: %v", err)
	}
}
