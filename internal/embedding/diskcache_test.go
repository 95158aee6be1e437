package embedding

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"
)

func TestDiskCache_RoundTrip(t *testing.T) {
	cache, err := NewDiskCache(t.TempDir(), "m1", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.Get("missing"); ok {
		t.Fatal("expected miss for unknown text")
	}
	vec := []float32{0.1, -0.2, 0.3}
	cache.Set("some text", vec)
	got, ok := cache.Get("some text")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if !reflect.DeepEqual(got, vec) {
		t.Errorf("got %v, want %v", got, vec)
	}
}

func TestDiskCache_KeyNamespacedByModel(t *testing.T) {
	dir := t.TempDir()
	a, _ := NewDiskCache(dir, "model-a", zap.NewNop())
	b, _ := NewDiskCache(dir, "model-b", zap.NewNop())
	if a.Key("same text") == b.Key("same text") {
		t.Error("different models must produce different cache keys")
	}
	a.Set("same text", []float32{1})
	if _, ok := b.Get("same text"); ok {
		t.Error("model-b must not see model-a's entries")
	}
}

func TestDiskCache_CorruptedEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	cache, _ := NewDiskCache(dir, "m", zap.NewNop())
	cache.Set("t", []float32{1, 2})

	// Corrupt the entry on disk.
	path := filepath.Join(dir, cache.Key("t")+".emb")
	if err := os.WriteFile(path, []byte("not gob data"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.Get("t"); ok {
		t.Error("corrupted entry must be treated as a miss, not an error")
	}
}

func TestDiskCache_Clear(t *testing.T) {
	cache, _ := NewDiskCache(t.TempDir(), "m", zap.NewNop())
	cache.Set("t", []float32{1})
	if err := cache.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.Get("t"); ok {
		t.Error("expected miss after Clear")
	}
	// The cache stays usable after clearing.
	cache.Set("t", []float32{2})
	if _, ok := cache.Get("t"); !ok {
		t.Error("cache must accept writes after Clear")
	}
}
