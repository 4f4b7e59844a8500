// Package config provides configuration loading and structs for the Shiken engine.
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
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Topics    TopicsConfig    `yaml:"topics"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Coverage  CoverageConfig  `yaml:"coverage"`
	Watch     WatchConfig     `yaml:"watch"`
	Workers   int             `yaml:"workers"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and persisted indices.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	VectorIndexPath  string `yaml:"vector_index_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// EmbeddingConfig holds settings for the external embedding service.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // "remote" or "mock"
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	Model          string `yaml:"model"`
	Dimensions     int    `yaml:"dimensions"`
	BatchSize      int    `yaml:"batch_size"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	CacheSize      int    `yaml:"cache_size"`
}

// ChunkingConfig holds chunk segmentation settings.
type ChunkingConfig struct {
	MaxChunkChars   int `yaml:"max_chunk_chars"`
	MinSegmentChars int `yaml:"min_segment_chars"`
}

// TopicsConfig holds topic definitions and mapping thresholds.
type TopicsConfig struct {
	Path             string  `yaml:"path"`
	AssignThreshold  float64 `yaml:"assign_threshold"`
	SimilarityWeight float64 `yaml:"similarity_weight"`
	KeywordWeight    float64 `yaml:"keyword_weight"`
}

// RetrievalConfig holds retrieval and deduplication settings.
type RetrievalConfig struct {
	Metric             string  `yaml:"metric"` // "cosine" or "l2"
	TopKCandidates     int     `yaml:"top_k_candidates"`
	DuplicateThreshold float64 `yaml:"duplicate_threshold"`
	DefaultBudgetChars int     `yaml:"default_budget_chars"`
	SourceDiversity    bool    `yaml:"source_diversity"`
}

// CoverageConfig holds coverage scoring thresholds and weights.
type CoverageConfig struct {
	HighThreshold float64 `yaml:"high_threshold"`
	LowThreshold  float64 `yaml:"low_threshold"`
	CountTarget   int     `yaml:"count_target"` // chunk count that saturates the count component
	CountWeight   float64 `yaml:"count_weight"`
	KeywordWeight float64 `yaml:"keyword_weight"`
}

// WatchConfig holds record drop directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
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
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	if cfg.Topics.Path != "" {
		cfg.Topics.Path = expandPath(cfg.Topics.Path, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
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
