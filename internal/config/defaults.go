package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8085
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/shiken/data/db/chunks.db"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/shiken/data/indices/vectors.bin"
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = "/usr/local/var/shiken/data/indices/bleve"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "remote"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "SHIKEN_EMBEDDING_API_KEY"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Chunking.MaxChunkChars == 0 {
		cfg.Chunking.MaxChunkChars = 500
	}
	if cfg.Chunking.MinSegmentChars == 0 {
		cfg.Chunking.MinSegmentChars = 50
	}
	if cfg.Topics.AssignThreshold == 0 {
		cfg.Topics.AssignThreshold = 0.3
	}
	if cfg.Topics.SimilarityWeight == 0 && cfg.Topics.KeywordWeight == 0 {
		cfg.Topics.SimilarityWeight = 0.7
		cfg.Topics.KeywordWeight = 0.3
	}
	if cfg.Retrieval.Metric == "" {
		cfg.Retrieval.Metric = "cosine"
	}
	if cfg.Retrieval.TopKCandidates == 0 {
		cfg.Retrieval.TopKCandidates = 100
	}
	if cfg.Retrieval.DuplicateThreshold == 0 {
		cfg.Retrieval.DuplicateThreshold = 0.8
	}
	if cfg.Retrieval.DefaultBudgetChars == 0 {
		cfg.Retrieval.DefaultBudgetChars = 4000
	}
	if cfg.Coverage.HighThreshold == 0 {
		cfg.Coverage.HighThreshold = 0.7
	}
	if cfg.Coverage.LowThreshold == 0 {
		cfg.Coverage.LowThreshold = 0.3
	}
	if cfg.Coverage.CountTarget == 0 {
		cfg.Coverage.CountTarget = 5
	}
	if cfg.Coverage.CountWeight == 0 && cfg.Coverage.KeywordWeight == 0 {
		cfg.Coverage.CountWeight = 0.5
		cfg.Coverage.KeywordWeight = 0.5
	}
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
}
