// Package embedding provides text embedding via an external embedding service,
// with caching and batch orchestration.
package embedding

import "context"

// Embedder produces vector embeddings for text. Implementations must be
// deterministic for identical input.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
