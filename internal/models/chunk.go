package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SourceRecord is a normalized piece of source material produced by the
// transcript/slide/exam parsers: a locator plus raw text.
type SourceRecord struct {
	Locator Locator `json:"locator"`
	Text    string  `json:"text"`
}

// Chunk is a bounded-length text unit carrying its locator. Chunks are
// content-addressed: identical (locator, text) always yields the same ID,
// which makes re-ingestion idempotent. The embedding is write-once.
type Chunk struct {
	ID        string    `json:"id" db:"id"`
	Text      string    `json:"text" db:"text"`
	Locator   Locator   `json:"locator"`
	Embedding []float32 `json:"-" db:"-"`
}

// ChunkID returns the stable content-addressed ID for a chunk: a SHA-256
// over source ID, canonical position, and text.
func ChunkID(loc Locator, text string) string {
	h := sha256.New()
	h.Write([]byte(loc.SourceID))
	h.Write([]byte{0})
	h.Write([]byte(loc.PositionKey()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// NewChunk builds a chunk with its content-addressed ID.
func NewChunk(loc Locator, text string) *Chunk {
	return &Chunk{
		ID:      ChunkID(loc, text),
		Text:    text,
		Locator: loc,
	}
}

// SetEmbedding assigns the chunk's embedding. Assignment is write-once;
// re-assigning returns an error.
func (c *Chunk) SetEmbedding(emb []float32) error {
	if c.Embedding != nil {
		return fmt.Errorf("chunk %s: embedding already set", c.ID)
	}
	c.Embedding = emb
	return nil
}
