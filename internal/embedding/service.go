package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/shiken/internal/models"
	"go.uber.org/zap"
)

// BatchFailure records one embedding batch that failed after its retry.
type BatchFailure struct {
	ChunkIDs []string
	Err      error
}

// EmbeddingError aggregates batch failures from one EmbedChunks call. Other
// batches in the same call still succeed; the caller gets the full list of
// affected chunks.
type EmbeddingError struct {
	Failures []BatchFailure
}

func (e *EmbeddingError) Error() string {
	n := 0
	for _, f := range e.Failures {
		n += len(f.ChunkIDs)
	}
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Err.Error())
	}
	return fmt.Sprintf("embedding failed for %d chunks in %d batches: %s", n, len(e.Failures), strings.Join(msgs, "; "))
}

// FailedChunkIDs returns the IDs of all chunks whose batch failed.
func (e *EmbeddingError) FailedChunkIDs() []string {
	var ids []string
	for _, f := range e.Failures {
		ids = append(ids, f.ChunkIDs...)
	}
	return ids
}

// Service embeds chunks in batches through an Embedder, with an LRU cache and
// one retry per failed batch. Failed batches are isolated: their chunks stay
// unembedded and are reported in an aggregated EmbeddingError.
type Service struct {
	embedder  Embedder
	cache     *Cache
	batchSize int
	logger    *zap.Logger // optional; when set, logs debug events
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets a logger for debug output (batch embedded, batch retried, etc.).
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates an embedding service. cacheSize <= 0 disables caching.
func NewService(embedder Embedder, batchSize, cacheSize int, opts ...ServiceOption) *Service {
	if batchSize <= 0 {
		batchSize = 32
	}
	s := &Service{embedder: embedder, batchSize: batchSize}
	if cacheSize > 0 {
		s.cache = NewCache(cacheSize)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dimensions returns the underlying embedder's dimension.
func (s *Service) Dimensions() int {
	return s.embedder.Dimensions()
}

// EmbedText embeds a single text through the cache.
func (s *Service) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if s.cache != nil {
		if emb, ok := s.cache.Get(text); ok {
			return emb, nil
		}
	}
	emb, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(text, emb)
	}
	return emb, nil
}

// EmbedChunks computes an embedding for every chunk that does not have one,
// in batches. Each failed batch is retried once; batches that still fail are
// collected into an *EmbeddingError while the remaining batches proceed.
// Returns nil when every pending chunk was embedded. Cancellation is honored
// between batches.
func (s *Service) EmbedChunks(ctx context.Context, chunks []*models.Chunk) error {
	var pending []*models.Chunk
	for _, ch := range chunks {
		if ch.Embedding != nil {
			continue
		}
		if s.cache != nil {
			if emb, ok := s.cache.Get(ch.Text); ok {
				_ = ch.SetEmbedding(emb)
				continue
			}
		}
		pending = append(pending, ch)
	}
	if len(pending) == 0 {
		return nil
	}

	var failures []BatchFailure
	for start := 0; start < len(pending); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + s.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		if err := s.embedBatch(ctx, batch); err != nil {
			ids := make([]string, len(batch))
			for i, ch := range batch {
				ids[i] = ch.ID
			}
			failures = append(failures, BatchFailure{ChunkIDs: ids, Err: err})
			if s.logger != nil {
				s.logger.Warn("embedding batch failed after retry", zap.Int("batch_size", len(batch)), zap.Error(err))
			}
		}
	}
	if len(failures) > 0 {
		return &EmbeddingError{Failures: failures}
	}
	return nil
}

// embedBatch embeds one batch with a single retry.
func (s *Service) embedBatch(ctx context.Context, batch []*models.Chunk) error {
	texts := make([]string, len(batch))
	for i, ch := range batch {
		texts[i] = ch.Text
	}
	embs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if s.logger != nil {
			s.logger.Debug("retrying embedding batch", zap.Error(err))
		}
		embs, err = s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
	}
	if len(embs) != len(batch) {
		return fmt.Errorf("embedder returned %d vectors for %d texts", len(embs), len(batch))
	}
	for i, ch := range batch {
		if err := ch.SetEmbedding(embs[i]); err != nil {
			return err
		}
		if s.cache != nil {
			s.cache.Set(ch.Text, embs[i])
		}
	}
	return nil
}

// Close closes the underlying embedder.
func (s *Service) Close() error {
	return s.embedder.Close()
}
