// Package ingest turns source records into chunked, embedded, indexed
// material ready for topic mapping and retrieval.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hyperjump/shiken/internal/chunker"
	"github.com/hyperjump/shiken/internal/embedding"
	"github.com/hyperjump/shiken/internal/keyword"
	"github.com/hyperjump/shiken/internal/models"
	"github.com/hyperjump/shiken/internal/storage"
	"github.com/hyperjump/shiken/internal/vector"
	"go.uber.org/zap"
)

// Summary reports what one ingest pass did. Re-ingesting identical records
// yields zero NewChunks and leaves the indexes unchanged. RunID identifies
// the pass in logs; chunk identity is content-addressed and run-independent.
type Summary struct {
	RunID          string   `json:"run_id"`
	Session        string   `json:"session"`
	Records        int      `json:"records"`
	Chunks         int      `json:"chunks"`
	NewChunks      int      `json:"new_chunks"`
	Embedded       int      `json:"embedded"`
	FailedChunkIDs []string `json:"failed_chunk_ids,omitempty"`
}

// Pipeline chains chunking, embedding, vector indexing, keyword indexing, and
// metadata persistence. Chunk IDs are content-addressed, so the whole pass is
// idempotent end to end.
type Pipeline struct {
	chunker      *chunker.Chunker
	embeddings   *embedding.Service
	index        vector.Index
	keywordIndex keyword.Index
	store        storage.Storage
	indexPath    string
	logger       *zap.Logger // optional
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets a logger for ingest progress and warnings.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates an ingest pipeline. indexPath is where the vector index
// is persisted after each pass; empty disables persistence. keywordIndex may
// be nil.
func NewPipeline(
	ck *chunker.Chunker,
	embeddings *embedding.Service,
	index vector.Index,
	keywordIndex keyword.Index,
	store storage.Storage,
	indexPath string,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		chunker:      ck,
		embeddings:   embeddings,
		index:        index,
		keywordIndex: keywordIndex,
		store:        store,
		indexPath:    indexPath,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IngestRecords runs the full pass for one session's records: chunk, persist
// metadata, embed, index. Embedding failures are partial: chunks from failed
// batches are reported in the summary and skipped by the indexes, while the
// rest of the pass completes. The returned error is non-nil only when the
// pass could not proceed at all.
func (p *Pipeline) IngestRecords(ctx context.Context, session string, records []models.SourceRecord) (*Summary, error) {
	summary := &Summary{RunID: uuid.NewString(), Session: session, Records: len(records)}
	if len(records) == 0 {
		return summary, nil
	}

	chunks := p.chunker.Chunk(records)
	summary.Chunks = len(chunks)

	if err := p.store.CreateChunks(ctx, session, chunks); err != nil {
		return nil, fmt.Errorf("persist chunks: %w", err)
	}

	if err := p.embeddings.EmbedChunks(ctx, chunks); err != nil {
		var embErr *embedding.EmbeddingError
		if !errors.As(err, &embErr) {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		summary.FailedChunkIDs = embErr.FailedChunkIDs()
		if p.logger != nil {
			p.logger.Warn("some chunks could not be embedded",
				zap.String("session", session),
				zap.Int("failed", len(summary.FailedChunkIDs)),
			)
		}
	}

	ids := make([]string, 0, len(chunks))
	vectors := make([][]float32, 0, len(chunks))
	embedded := make([]*models.Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if ch.Embedding == nil {
			continue
		}
		ids = append(ids, ch.ID)
		vectors = append(vectors, ch.Embedding)
		embedded = append(embedded, ch)
	}
	summary.Embedded = len(embedded)

	added, err := p.index.Add(ctx, ids, vectors)
	if err != nil {
		return nil, fmt.Errorf("index vectors: %w", err)
	}
	summary.NewChunks = added

	if p.keywordIndex != nil && added > 0 {
		if err := p.keywordIndex.IndexBatch(ctx, embedded); err != nil {
			return nil, fmt.Errorf("index keywords: %w", err)
		}
	}

	if p.indexPath != "" {
		if err := p.index.Save(p.indexPath); err != nil {
			return nil, fmt.Errorf("save vector index: %w", err)
		}
	}

	if p.logger != nil {
		p.logger.Info("ingest pass complete",
			zap.String("run_id", summary.RunID),
			zap.String("session", session),
			zap.Int("records", summary.Records),
			zap.Int("chunks", summary.Chunks),
			zap.Int("new_chunks", summary.NewChunks),
			zap.Int("embedded", summary.Embedded),
			zap.Int("failed", len(summary.FailedChunkIDs)),
		)
	}
	return summary, nil
}
