// Package storage defines the persistence interface for chunks, topic
// assignments, and citations, partitioned by source session.
package storage

import (
	"context"

	"github.com/hyperjump/shiken/internal/models"
)

// Storage defines chunk, assignment, and citation persistence. Chunks are
// content-addressed, so creating a chunk that already exists in a session is
// a no-op. Embeddings are never stored here; the vector index owns them.
type Storage interface {
	// Chunk operations
	CreateChunks(ctx context.Context, session string, chunks []*models.Chunk) error
	GetChunk(ctx context.Context, session, id string) (*models.Chunk, error)
	GetChunksBySession(ctx context.Context, session string) ([]*models.Chunk, error)
	CountChunks(ctx context.Context) (int64, error)

	// Assignment operations (wholesale replace per session, never incremental)
	ReplaceAssignments(ctx context.Context, session string, assignments []models.TopicAssignment) error
	GetAssignments(ctx context.Context, session string) ([]models.TopicAssignment, error)
	GetAssignmentsByTopic(ctx context.Context, session, topicID string) ([]models.TopicAssignment, error)

	// Citation operations
	SaveCitations(ctx context.Context, session string, citations []*models.Citation) error
	GetCitations(ctx context.Context, session string) ([]*models.Citation, error)

	Close() error
}
