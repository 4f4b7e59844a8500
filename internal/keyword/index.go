// Package keyword provides keyword (BM25) indexing and search over chunk text.
package keyword

import (
	"context"

	"github.com/hyperjump/shiken/internal/models"
)

// Index defines keyword search operations over chunks.
type Index interface {
	IndexChunk(ctx context.Context, chunk *models.Chunk) error
	IndexBatch(ctx context.Context, chunks []*models.Chunk) error
	// Search runs a match query over chunk text and returns up to limit hits.
	Search(ctx context.Context, query string, limit int) ([]*Hit, error)
	DocCount() (uint64, error)
	Close() error
}

// Hit is a single keyword search hit. ID is a chunk ID.
type Hit struct {
	ID    string
	Score float64
}
