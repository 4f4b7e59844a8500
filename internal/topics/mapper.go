// Package topics scores chunk relevance to configured topics and derives
// per-topic coverage.
package topics

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/shiken/internal/config"
	"github.com/hyperjump/shiken/internal/embedding"
	"github.com/hyperjump/shiken/internal/models"
	"github.com/hyperjump/shiken/internal/vector"
	"github.com/hyperjump/shiken/pkg/utils"
	"go.uber.org/zap"
)

// Mapper assigns chunks to topics. The score for a (chunk, topic) pair
// combines embedding similarity against the topic's representative query
// vector with a literal keyword match bonus. Mapping is a batch operation:
// the assignment set is regenerated wholesale, never updated incrementally,
// and identical inputs always yield an identical assignment set.
type Mapper struct {
	embeddings *embedding.Service
	cfg        config.TopicsConfig
	workers    int
	logger     *zap.Logger // optional; when set, logs debug events
}

// MapperOption configures a Mapper.
type MapperOption func(*Mapper)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) MapperOption {
	return func(m *Mapper) { m.logger = l }
}

// NewMapper creates a topic mapper. workers bounds the per-topic parallelism.
func NewMapper(embeddings *embedding.Service, cfg config.TopicsConfig, workers int, opts ...MapperOption) *Mapper {
	if workers <= 0 {
		workers = 1
	}
	m := &Mapper{embeddings: embeddings, cfg: cfg, workers: workers}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MapTopics scores every (chunk, topic) pair and returns the assignments whose
// score meets the threshold, ordered by topic then chunk input order. Chunks
// without an embedding contribute no similarity and are scored on keyword
// evidence alone. Topic query vectors are derived from each topic's name and
// keyword set through the same embedding function used for chunks.
func (m *Mapper) MapTopics(ctx context.Context, chunks []*models.Chunk, topics []models.Topic) ([]models.TopicAssignment, error) {
	if len(chunks) == 0 || len(topics) == 0 {
		return nil, nil
	}
	queryVecs := make([][]float32, len(topics))
	for i, t := range topics {
		vec, err := m.embeddings.EmbedText(ctx, t.QueryText())
		if err != nil {
			return nil, fmt.Errorf("embed topic %s query: %w", t.ID, err)
		}
		queryVecs[i] = vec
	}

	perTopic := make([][]models.TopicAssignment, len(topics))
	sem := make(chan struct{}, m.workers)
	var wg sync.WaitGroup
	for i := range topics {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			perTopic[i] = m.mapTopic(chunks, topics[i], queryVecs[i])
		}(i)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []models.TopicAssignment
	for i, assignments := range perTopic {
		if m.logger != nil {
			m.logger.Debug("topic mapped",
				zap.String("topic_id", topics[i].ID),
				zap.Int("assigned_chunks", len(assignments)),
			)
		}
		out = append(out, assignments...)
	}
	return out, nil
}

func (m *Mapper) mapTopic(chunks []*models.Chunk, topic models.Topic, queryVec []float32) []models.TopicAssignment {
	var out []models.TopicAssignment
	for _, ch := range chunks {
		score := m.score(ch, topic, queryVec)
		if score >= m.cfg.AssignThreshold {
			out = append(out, models.TopicAssignment{
				ChunkID: ch.ID,
				TopicID: topic.ID,
				Score:   score,
			})
		}
	}
	return out
}

// score combines clamped cosine similarity with the fraction of the topic's
// keywords literally present in the chunk text.
func (m *Mapper) score(ch *models.Chunk, topic models.Topic, queryVec []float32) float64 {
	var sim float64
	if ch.Embedding != nil {
		sim = vector.CosineSimilarity(ch.Embedding, queryVec)
	}
	return utils.Clamp01(m.cfg.SimilarityWeight*sim + m.cfg.KeywordWeight*KeywordHitRatio(ch.Text, topic.Keywords))
}

// KeywordHitRatio returns the fraction of keywords found in text by
// case-insensitive substring match. Returns 0 when keywords is empty.
func KeywordHitRatio(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	hits := 0
	for _, kw := range keywords {
		if utils.ContainsFold(text, kw) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}
