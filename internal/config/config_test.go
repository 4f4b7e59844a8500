package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	if cfg.Server.Port != 8085 {
		t.Errorf("port = %d, want 8085", cfg.Server.Port)
	}
	if cfg.Chunking.MaxChunkChars != 500 || cfg.Chunking.MinSegmentChars != 50 {
		t.Errorf("chunking defaults: %+v", cfg.Chunking)
	}
	if cfg.Topics.AssignThreshold != 0.3 {
		t.Errorf("assign threshold = %v, want 0.3", cfg.Topics.AssignThreshold)
	}
	if cfg.Topics.SimilarityWeight != 0.7 || cfg.Topics.KeywordWeight != 0.3 {
		t.Errorf("mapping weights: %+v", cfg.Topics)
	}
	if cfg.Retrieval.Metric != "cosine" || cfg.Retrieval.DuplicateThreshold != 0.8 {
		t.Errorf("retrieval defaults: %+v", cfg.Retrieval)
	}
	if cfg.Coverage.HighThreshold != 0.7 || cfg.Coverage.LowThreshold != 0.3 {
		t.Errorf("coverage thresholds: %+v", cfg.Coverage)
	}
	if cfg.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Workers)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{}
	cfg.Server.Port = 9000
	cfg.Topics.SimilarityWeight = 1.0
	ApplyDefaults(&cfg)
	if cfg.Server.Port != 9000 {
		t.Errorf("explicit port overwritten: %d", cfg.Server.Port)
	}
	// Setting one mapping weight means the pair was configured deliberately.
	if cfg.Topics.KeywordWeight != 0 {
		t.Errorf("keyword weight defaulted despite explicit similarity weight: %v", cfg.Topics.KeywordWeight)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  port: 9090
storage:
  database_path: ./data/chunks.db
retrieval:
  metric: l2
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug || cfg.Server.Port != 9090 {
		t.Errorf("parsed values: debug=%v port=%d", cfg.Debug, cfg.Server.Port)
	}
	if cfg.Retrieval.Metric != "l2" {
		t.Errorf("metric = %q, want l2", cfg.Retrieval.Metric)
	}
	want := filepath.Join(dir, "data/chunks.db")
	if cfg.Storage.DatabasePath != want {
		t.Errorf("database path = %q, want %q", cfg.Storage.DatabasePath, want)
	}
	// Unset fields still get defaults.
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("dimensions = %d, want 384", cfg.Embedding.Dimensions)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config")
	}
}

func TestLoadTopics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	content := `
topics:
  - id: sorting
    name: Sorting algorithms
    keywords: [merge sort, quick sort, stability]
    required: true
  - id: hashing
    name: Hash tables
    keywords: [collision, chaining]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	topics, err := LoadTopics(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(topics) != 2 {
		t.Fatalf("got %d topics, want 2", len(topics))
	}
	if topics[0].ID != "sorting" || !topics[0].Required {
		t.Errorf("first topic: %+v", topics[0])
	}
	if len(topics[0].Keywords) != 3 {
		t.Errorf("keywords: %v", topics[0].Keywords)
	}
}

func TestLoadTopicsRejectsDuplicateIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	content := `
topics:
  - id: dup
    name: One
  - id: dup
    name: Two
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTopics(path); err == nil {
		t.Error("expected duplicate ID error")
	}
}
