package models

import "strings"

// Topic is a configured subject area. Read-only to the engine.
type Topic struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Keywords []string `json:"keywords" yaml:"keywords"`
	Required bool     `json:"required" yaml:"required"`
}

// QueryText returns the text embedded to produce the topic's representative
// query vector: the name followed by its keywords.
func (t Topic) QueryText() string {
	parts := make([]string, 0, len(t.Keywords)+1)
	if t.Name != "" {
		parts = append(parts, t.Name)
	}
	parts = append(parts, t.Keywords...)
	return strings.Join(parts, " ")
}

// TopicAssignment relates a chunk to a topic with a confidence score in [0,1].
// Assignments are regenerated wholesale, never mutated.
type TopicAssignment struct {
	ChunkID string  `json:"chunk_id" db:"chunk_id"`
	TopicID string  `json:"topic_id" db:"topic_id"`
	Score   float64 `json:"score" db:"score"`
}

// CoverageStatus is the verdict for a topic's coverage.
type CoverageStatus string

const (
	CoverageCovered CoverageStatus = "covered"
	CoveragePartial CoverageStatus = "partial"
	CoverageMissing CoverageStatus = "missing"
)

// CoverageRecord is the derived per-topic coverage metric. It carries no
// independent identity and is recomputed on demand.
type CoverageRecord struct {
	TopicID           string         `json:"topic_id"`
	MatchedChunkCount int            `json:"matched_chunk_count"`
	KeywordHitRatio   float64        `json:"keyword_hit_ratio"`
	CoverageScore     float64        `json:"coverage_score"`
	Status            CoverageStatus `json:"status"`
}
