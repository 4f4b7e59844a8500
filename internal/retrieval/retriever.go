// Package retrieval provides per-topic, budget-bounded chunk retrieval with
// deduplication and citation-safe ordering.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hyperjump/shiken/internal/config"
	"github.com/hyperjump/shiken/internal/embedding"
	"github.com/hyperjump/shiken/internal/keyword"
	"github.com/hyperjump/shiken/internal/models"
	"github.com/hyperjump/shiken/internal/storage"
	"github.com/hyperjump/shiken/internal/vector"
	"github.com/hyperjump/shiken/pkg/utils"
	"go.uber.org/zap"
)

// ErrBudgetTooSmall is returned when the budget cannot fit even the single
// best candidate chunk. The result is empty, never truncated.
var ErrBudgetTooSmall = errors.New("retrieval budget smaller than smallest candidate chunk")

// hintBoost scales the normalized keyword-hint score added on top of vector
// similarity when hints are supplied.
const hintBoost = 0.25

// Retriever returns ranked, deduplicated, budget-bounded chunk sets for a
// topic. Results are deterministic for an unchanged index: ranking ties break
// on the lower chunk ID and the dedup pass always keeps the higher-scoring
// chunk of a near-duplicate pair.
type Retriever struct {
	store        storage.Storage
	index        vector.Index
	keywordIndex keyword.Index
	embeddings   *embedding.Service
	cfg          config.RetrievalConfig
	logger       *zap.Logger // optional; when set, logs fallback and debug events
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithLogger sets a logger for fallback observability and debug output.
func WithLogger(l *zap.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever creates a retriever. keywordIndex may be nil; hints are then ignored.
func NewRetriever(
	store storage.Storage,
	index vector.Index,
	keywordIndex keyword.Index,
	embeddings *embedding.Service,
	cfg config.RetrievalConfig,
	opts ...RetrieverOption,
) *Retriever {
	r := &Retriever{
		store:        store,
		index:        index,
		keywordIndex: keywordIndex,
		embeddings:   embeddings,
		cfg:          cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns the ranked chunk set for topic within budgetChars.
// Candidates are restricted to chunks assigned to the topic; when the topic
// has no assignments the retriever falls back to a full-index similarity
// search against the topic's query vector. The fallback changes citation
// quality, so it is reported on the result and logged, never silent.
// Optional hints add a keyword-match boost to candidate ranking.
func (r *Retriever) Retrieve(ctx context.Context, session string, topic models.Topic, budgetChars int, hints []string) (*models.RetrievalResult, error) {
	if budgetChars <= 0 {
		budgetChars = r.cfg.DefaultBudgetChars
	}
	queryVec, err := r.embeddings.EmbedText(ctx, topic.QueryText())
	if err != nil {
		return nil, fmt.Errorf("embed topic query: %w", err)
	}

	assignments, err := r.store.GetAssignmentsByTopic(ctx, session, topic.ID)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}

	fallback := len(assignments) == 0
	var hits []*vector.Result
	if fallback {
		if r.logger != nil {
			r.logger.Info("no chunks assigned to topic, falling back to full-index search",
				zap.String("topic_id", topic.ID),
				zap.String("session", session),
			)
		}
		hits, err = r.index.Search(ctx, queryVec, r.cfg.TopKCandidates)
	} else {
		hits, err = r.searchAssigned(ctx, queryVec, assignments)
	}
	if err != nil {
		return nil, err
	}

	if len(hints) > 0 && r.keywordIndex != nil {
		hits, err = r.applyHints(ctx, hits, hints)
		if err != nil {
			return nil, err
		}
	}

	candidates, err := r.loadChunks(ctx, session, hits)
	if err != nil {
		return nil, err
	}
	candidates = r.dedup(candidates)
	if r.cfg.SourceDiversity {
		candidates = interleaveBySource(candidates)
	}

	result := &models.RetrievalResult{
		TopicID:      topic.ID,
		FallbackUsed: fallback,
		BudgetChars:  budgetChars,
	}
	for _, c := range candidates {
		if result.TotalChars+len(c.Chunk.Text) > budgetChars {
			break
		}
		result.Chunks = append(result.Chunks, c)
		result.TotalChars += len(c.Chunk.Text)
	}
	if len(result.Chunks) == 0 && len(candidates) > 0 {
		return result, ErrBudgetTooSmall
	}
	return result, nil
}

// searchAssigned scores the full index and keeps only assigned chunk IDs, so
// the topic restriction never loses assigned chunks to a top-k cutoff.
func (r *Retriever) searchAssigned(ctx context.Context, queryVec []float32, assignments []models.TopicAssignment) ([]*vector.Result, error) {
	assigned := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		assigned[a.ChunkID] = true
	}
	all, err := r.index.Search(ctx, queryVec, r.index.Size())
	if err != nil {
		return nil, err
	}
	hits := make([]*vector.Result, 0, len(assignments))
	for _, h := range all {
		if assigned[h.ID] {
			hits = append(hits, h)
		}
	}
	return hits, nil
}

// applyHints adds a normalized keyword-match boost to hit scores and re-sorts.
func (r *Retriever) applyHints(ctx context.Context, hits []*vector.Result, hints []string) ([]*vector.Result, error) {
	kwHits, err := r.keywordIndex.Search(ctx, strings.Join(hints, " "), r.cfg.TopKCandidates)
	if err != nil {
		return nil, fmt.Errorf("keyword hint search: %w", err)
	}
	var maxScore float64
	for _, h := range kwHits {
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}
	boosts := make(map[string]float64, len(kwHits))
	if maxScore > 0 {
		for _, h := range kwHits {
			boosts[h.ID] = h.Score / maxScore
		}
	}
	boosted := make([]*vector.Result, len(hits))
	for i, h := range hits {
		boosted[i] = &vector.Result{ID: h.ID, Score: h.Score + hintBoost*boosts[h.ID]}
	}
	sort.Slice(boosted, func(i, j int) bool {
		if boosted[i].Score != boosted[j].Score {
			return boosted[i].Score > boosted[j].Score
		}
		return boosted[i].ID < boosted[j].ID
	})
	return boosted, nil
}

// loadChunks resolves hits to stored chunks for the session, preserving rank
// order. Hits for chunks outside the session are skipped.
func (r *Retriever) loadChunks(ctx context.Context, session string, hits []*vector.Result) ([]models.ScoredChunk, error) {
	out := make([]models.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		ch, err := r.store.GetChunk(ctx, session, h.ID)
		if err != nil {
			continue
		}
		out = append(out, models.ScoredChunk{Chunk: ch, Score: h.Score})
	}
	return out, nil
}

// dedup drops chunks whose token Jaccard overlap with an already-kept chunk
// meets the duplicate threshold. Candidates arrive rank-ordered, so the kept
// chunk of each near-duplicate pair is always the higher-scoring one.
func (r *Retriever) dedup(candidates []models.ScoredChunk) []models.ScoredChunk {
	kept := make([]models.ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		dup := false
		for _, k := range kept {
			if utils.TokenJaccard(c.Chunk.Text, k.Chunk.Text) >= r.cfg.DuplicateThreshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, c)
		}
	}
	return kept
}

// sourcePriority orders source kinds for the diversity interleave: exam
// material first, then slides, then transcripts, then raw video segments.
var sourcePriority = []models.SourceKind{models.SourceExam, models.SourceSlide, models.SourceTranscript, models.SourceVideo}

// interleaveBySource re-orders candidates round-robin across source kinds,
// preserving rank order within each kind. Applied before the budget pass so
// citation mapping is unaffected.
func interleaveBySource(candidates []models.ScoredChunk) []models.ScoredChunk {
	byKind := make(map[models.SourceKind][]models.ScoredChunk)
	for _, c := range candidates {
		kind := c.Chunk.Locator.SourceKind
		byKind[kind] = append(byKind[kind], c)
	}
	out := make([]models.ScoredChunk, 0, len(candidates))
	for i := 0; len(out) < len(candidates); i++ {
		progressed := false
		for _, kind := range sourcePriority {
			if i < len(byKind[kind]) {
				out = append(out, byKind[kind][i])
				progressed = true
			}
		}
		if !progressed {
			// Remaining candidates have kinds outside the priority list.
			for kind, list := range byKind {
				if !isPriorityKind(kind) {
					out = append(out, list...)
				}
			}
			break
		}
	}
	return out
}

func isPriorityKind(kind models.SourceKind) bool {
	for _, k := range sourcePriority {
		if k == kind {
			return true
		}
	}
	return false
}

// TopicResult pairs a topic's retrieval result with its error, if any.
type TopicResult struct {
	Result *models.RetrievalResult
	Err    error
}

// RetrieveAll retrieves every topic in parallel over a bounded worker pool.
// Per-topic failures are isolated: one topic's error never aborts the others.
func (r *Retriever) RetrieveAll(ctx context.Context, session string, topicList []models.Topic, budgetChars, workers int) map[string]TopicResult {
	if workers <= 0 {
		workers = 1
	}
	results := make([]TopicResult, len(topicList))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, t := range topicList {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, t models.Topic) {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := r.Retrieve(ctx, session, t, budgetChars, nil)
			results[i] = TopicResult{Result: res, Err: err}
		}(i, t)
	}
	wg.Wait()
	out := make(map[string]TopicResult, len(topicList))
	for i, t := range topicList {
		out[t.ID] = results[i]
	}
	return out
}
