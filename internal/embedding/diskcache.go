package embedding

import (
	"crypto/md5"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// DiskCache persists embeddings on disk, one file per key. Entries are keyed
// by a hash of (model name, text), so changing the configured model naturally
// namespaces the cache. Entries are immutable: the same key always maps to the
// same vector for the lifetime of the model configuration.
type DiskCache struct {
	dir    string
	model  string
	logger *zap.Logger
}

// NewDiskCache creates a cache rooted at dir for the given model name.
// The directory is created if missing.
func NewDiskCache(dir, model string, logger *zap.Logger) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &DiskCache{dir: dir, model: model, logger: logger}, nil
}

// Key returns the deterministic cache key for text under the configured model.
func (c *DiskCache) Key(text string) string {
	sum := md5.Sum([]byte(c.model + ":" + text))
	return hex.EncodeToString(sum[:])
}

func (c *DiskCache) path(key string) string {
	return filepath.Join(c.dir, key+".emb")
}

// Get returns the cached embedding for text, if present. A corrupted or
// unreadable entry is logged and treated as a miss; corruption never propagates
// to the caller.
func (c *DiskCache) Get(text string) ([]float32, bool) {
	key := c.Key(text)
	f, err := os.Open(c.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("failed to open cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	defer f.Close()

	var vec []float32
	if err := gob.NewDecoder(f).Decode(&vec); err != nil {
		c.logger.Warn("corrupted cache entry, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

// Set stores the embedding for text. Write failures are logged, not returned:
// a missed cache write only costs a recompute later.
func (c *DiskCache) Set(text string, vec []float32) {
	key := c.Key(text)
	f, err := os.Create(c.path(key))
	if err != nil {
		c.logger.Warn("failed to write cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(vec); err != nil {
		c.logger.Warn("failed to encode cache entry", zap.String("key", key), zap.Error(err))
		// Remove the partial file so a later Get does not see a corrupted entry.
		_ = os.Remove(c.path(key))
	}
}

// Clear removes every cache entry.
func (c *DiskCache) Clear() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return os.MkdirAll(c.dir, 0755)
}
