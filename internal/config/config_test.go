package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("Dimensions = %d, want 384", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.BatchSize != 32 {
		t.Errorf("BatchSize = %d, want 32", cfg.Embedding.BatchSize)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("TopK = %d, want 5", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.SemanticWeight != 0.7 || cfg.Retrieval.KeywordWeight != 0.3 {
		t.Errorf("weights = %v/%v, want 0.7/0.3", cfg.Retrieval.SemanticWeight, cfg.Retrieval.KeywordWeight)
	}
	if cfg.Vector.SimilarityThreshold != 0.1 {
		t.Errorf("SimilarityThreshold = %v, want 0.1", cfg.Vector.SimilarityThreshold)
	}
	if !cfg.Embedding.CacheEnabledOrDefault() {
		t.Error("cache should default to enabled")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"threshold above range", func(c *Config) { c.Vector.SimilarityThreshold = 1.5 }, true},
		{"threshold below range", func(c *Config) { c.Vector.SimilarityThreshold = -0.1 }, true},
		{"zero dimensions", func(c *Config) { c.Embedding.Dimensions = -1 }, true},
		{"overlap >= chunk size", func(c *Config) { c.Ingest.ChunkOverlap = c.Ingest.ChunkSize }, true},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = -3 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
debug: true
server:
  port: 9090
embedding:
  model_name: test-model
  dimensions: 8
  cache_dir: ./cache
vector:
  similarity_threshold: 0.25
`)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Debug {
		t.Error("Debug should be true")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Embedding.Dimensions != 8 {
		t.Errorf("Dimensions = %d", cfg.Embedding.Dimensions)
	}
	if cfg.Vector.SimilarityThreshold != 0.25 {
		t.Errorf("SimilarityThreshold = %v", cfg.Vector.SimilarityThreshold)
	}
	// "./cache" is resolved relative to the config directory.
	if cfg.Embedding.CacheDir != filepath.Join(dir, "cache") {
		t.Errorf("CacheDir = %q", cfg.Embedding.CacheDir)
	}
	// Unset fields still get defaults.
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("TopK = %d, want default 5", cfg.Retrieval.TopK)
	}
}

func TestLoad_InvalidThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("vector:\n  similarity_threshold: 2.0\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for out-of-range threshold")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
