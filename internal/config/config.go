// Package config provides configuration loading and structs for the Kensaku engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// EmbeddingConfig holds embedding model and cache settings.
type EmbeddingConfig struct {
	ModelPath    string `yaml:"model_path"`
	ModelName    string `yaml:"model_name"`
	Dimensions   int    `yaml:"dimensions"`
	MaxTokens    int    `yaml:"max_tokens"`
	CacheDir     string `yaml:"cache_dir"`
	CacheEnabled *bool  `yaml:"cache_enabled"`
	BatchSize    int    `yaml:"batch_size"`
}

// CacheEnabledOrDefault returns whether the disk cache is enabled; defaults to true when unset.
func (e *EmbeddingConfig) CacheEnabledOrDefault() bool {
	if e.CacheEnabled != nil {
		return *e.CacheEnabled
	}
	return true
}

// VectorConfig holds vector store settings.
type VectorConfig struct {
	PersistDir          string  `yaml:"persist_dir"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// RetrievalConfig holds retriever defaults.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
}

// IngestConfig holds chunking and upload settings.
type IngestConfig struct {
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	UploadDir    string `yaml:"upload_dir"`
	Watch        bool   `yaml:"watch"`
}

// StorageConfig holds paths for the document registry and keyword index.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// Load reads and parses the config file at path, expands paths, applies defaults,
// and validates. Returns an error if the file cannot be read or parsed, or if a
// setting is out of range.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Embedding.CacheDir = expandPath(cfg.Embedding.CacheDir, configDir)
	cfg.Vector.PersistDir = expandPath(cfg.Vector.PersistDir, configDir)
	cfg.Ingest.UploadDir = expandPath(cfg.Ingest.UploadDir, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings whose invalid values must abort startup rather than
// degrade silently.
func (c *Config) Validate() error {
	if c.Vector.SimilarityThreshold < 0 || c.Vector.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be between 0.0 and 1.0, got %v", c.Vector.SimilarityThreshold)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be less than chunk_size (%d)", c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
