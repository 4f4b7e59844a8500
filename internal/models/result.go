package models

// ScoredChunk is a retrieved chunk with its similarity score.
type ScoredChunk struct {
	Chunk *Chunk  `json:"chunk"`
	Score float64 `json:"score"`
}

// RetrievalResult is an ordered, deduplicated, budget-bounded chunk list for
// one topic. FallbackUsed reports that the topic had no assigned chunks and
// the retriever fell back to a full-index similarity search.
type RetrievalResult struct {
	TopicID      string        `json:"topic_id"`
	Chunks       []ScoredChunk `json:"chunks"`
	FallbackUsed bool          `json:"fallback_used"`
	BudgetChars  int           `json:"budget_chars"`
	TotalChars   int           `json:"total_chars"`
}
