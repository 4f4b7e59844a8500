package topics

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/shiken/internal/config"
	"github.com/hyperjump/shiken/internal/models"
	"github.com/hyperjump/shiken/pkg/utils"
)

// ErrMissingRequiredCoverage marks a build-blocking condition: one or more
// required topics have coverage status missing.
var ErrMissingRequiredCoverage = errors.New("required topics missing coverage")

// Scorer derives per-topic coverage records from topic assignments.
type Scorer struct {
	cfg config.CoverageConfig
}

// NewScorer creates a coverage scorer.
func NewScorer(cfg config.CoverageConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes a coverage record for each topic. The chunk count component
// saturates at CountTarget matched chunks; the keyword component is the
// fraction of the topic's keywords found in the union of its matched chunks'
// text. The combined score is clamped to [0,1]. Adding a matching chunk never
// decreases a topic's score.
func (s *Scorer) Score(topicList []models.Topic, assignments []models.TopicAssignment, chunks map[string]*models.Chunk) []models.CoverageRecord {
	byTopic := make(map[string][]string)
	for _, a := range assignments {
		byTopic[a.TopicID] = append(byTopic[a.TopicID], a.ChunkID)
	}

	records := make([]models.CoverageRecord, 0, len(topicList))
	for _, t := range topicList {
		chunkIDs := byTopic[t.ID]
		var union strings.Builder
		for _, id := range chunkIDs {
			if ch, ok := chunks[id]; ok {
				union.WriteString(ch.Text)
				union.WriteByte('\n')
			}
		}
		kwRatio := KeywordHitRatio(union.String(), t.Keywords)
		countScore := float64(len(chunkIDs)) / float64(s.cfg.CountTarget)
		if countScore > 1 {
			countScore = 1
		}
		score := utils.Clamp01(s.cfg.CountWeight*countScore + s.cfg.KeywordWeight*kwRatio)
		records = append(records, models.CoverageRecord{
			TopicID:           t.ID,
			MatchedChunkCount: len(chunkIDs),
			KeywordHitRatio:   kwRatio,
			CoverageScore:     score,
			Status:            s.status(score),
		})
	}
	return records
}

func (s *Scorer) status(score float64) models.CoverageStatus {
	switch {
	case score >= s.cfg.HighThreshold:
		return models.CoverageCovered
	case score >= s.cfg.LowThreshold:
		return models.CoveragePartial
	default:
		return models.CoverageMissing
	}
}

// RequireCovered returns ErrMissingRequiredCoverage when any required topic
// has status missing. Non-required topics never block.
func RequireCovered(topicList []models.Topic, records []models.CoverageRecord) error {
	required := make(map[string]bool, len(topicList))
	for _, t := range topicList {
		if t.Required {
			required[t.ID] = true
		}
	}
	var missing []string
	for _, r := range records {
		if required[r.TopicID] && r.Status == models.CoverageMissing {
			missing = append(missing, r.TopicID)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequiredCoverage, strings.Join(missing, ", "))
	}
	return nil
}
