// Package vector provides vector index and similarity search.
package vector

import (
	"context"
	"errors"
)

// ErrIndexEmpty is returned by Search when the index holds zero vectors.
var ErrIndexEmpty = errors.New("vector index is empty")

// Metric selects the distance function used for search.
type Metric string

const (
	// MetricCosine ranks by inner product over unit-normalized vectors.
	MetricCosine Metric = "cosine"
	// MetricL2 ranks by smallest Euclidean distance.
	MetricL2 Metric = "l2"
)

// Index defines vector storage and similarity search over chunk embeddings.
// Add is idempotent per ID; writes are serialized against reads.
type Index interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) (added int, err error)
	Search(ctx context.Context, query []float32, k int) ([]*Result, error)
	Contains(id string) bool
	// Vector returns a copy of the stored vector for id, if present. The index
	// is the sole owner of vector storage; callers get copies, never aliases.
	Vector(id string) ([]float32, bool)
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}

// Result is a single vector search hit. Score is higher-is-better regardless
// of metric (negated distance for L2).
type Result struct {
	ID    string
	Score float64
}
