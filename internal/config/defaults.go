package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/kensaku/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.ModelName == "" {
		cfg.Embedding.ModelName = "all-MiniLM-L6-v2"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheDir == "" {
		cfg.Embedding.CacheDir = "/usr/local/var/kensaku/data/embedding_cache"
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Vector.PersistDir == "" {
		cfg.Vector.PersistDir = "/usr/local/var/kensaku/data/index"
	}
	if cfg.Vector.SimilarityThreshold == 0 {
		cfg.Vector.SimilarityThreshold = 0.1
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.SemanticWeight == 0 && cfg.Retrieval.KeywordWeight == 0 {
		cfg.Retrieval.SemanticWeight = 0.7
		cfg.Retrieval.KeywordWeight = 0.3
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 1000
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 200
	}
	if cfg.Ingest.UploadDir == "" {
		cfg.Ingest.UploadDir = "/usr/local/var/kensaku/data/uploads"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kensaku/data/db/documents.db"
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = "/usr/local/var/kensaku/data/indices/bleve"
	}
}
