package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/shiken/internal/citations"
	"github.com/hyperjump/shiken/internal/models"
	"github.com/hyperjump/shiken/internal/retrieval"
	"github.com/hyperjump/shiken/internal/topics"
	"github.com/hyperjump/shiken/internal/vector"
	"go.uber.org/zap"
)

type ingestRequest struct {
	Records []models.SourceRecord `json:"records"`
}

func (s *Server) handleIngestRecords(w http.ResponseWriter, r *http.Request) {
	session := chi.URLParam(r, "session")
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, rec := range req.Records {
		if err := rec.Locator.Validate(); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	s.logger.Debug("ingest request", zap.String("session", session), zap.Int("records", len(req.Records)))
	summary, err := s.pipeline.IngestRecords(r.Context(), session, req.Records)
	if err != nil {
		s.logger.Error("ingest failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, summary)
}

func (s *Server) handleMapTopics(w http.ResponseWriter, r *http.Request) {
	session := chi.URLParam(r, "session")
	ctx := r.Context()

	chunks, err := s.storage.GetChunksBySession(ctx, session)
	if err != nil {
		s.logger.Error("map-topics: load chunks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Stored chunks carry no embeddings; the vector index owns them.
	for _, ch := range chunks {
		if vec, ok := s.index.Vector(ch.ID); ok {
			_ = ch.SetEmbedding(vec)
		}
	}

	assignments, err := s.mapper.MapTopics(ctx, chunks, s.topicList)
	if err != nil {
		s.logger.Error("map-topics failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.storage.ReplaceAssignments(ctx, session, assignments); err != nil {
		s.logger.Error("map-topics: persist assignments failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"session":     session,
		"chunks":      len(chunks),
		"topics":      len(s.topicList),
		"assignments": len(assignments),
	})
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	session := chi.URLParam(r, "session")
	ctx := r.Context()

	assignments, err := s.storage.GetAssignments(ctx, session)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chunks, err := s.storage.GetChunksBySession(ctx, session)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	byID := make(map[string]*models.Chunk, len(chunks))
	for _, ch := range chunks {
		byID[ch.ID] = ch
	}

	records := s.scorer.Score(s.topicList, assignments, byID)
	if r.URL.Query().Get("enforce") == "true" {
		if err := topics.RequireCovered(s.topicList, records); err != nil {
			s.respondJSON(w, http.StatusConflict, map[string]interface{}{
				"error":    err.Error(),
				"coverage": records,
			})
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"session": session, "coverage": records})
}

type retrieveRequest struct {
	TopicID     string   `json:"topic_id"`
	BudgetChars int      `json:"budget_chars"`
	Hints       []string `json:"hints,omitempty"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	session := chi.URLParam(r, "session")
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	topic, ok := s.findTopic(req.TopicID)
	if !ok {
		s.respondError(w, http.StatusNotFound, "unknown topic: "+req.TopicID)
		return
	}
	result, err := s.retriever.Retrieve(r.Context(), session, topic, req.BudgetChars, req.Hints)
	if err != nil {
		switch {
		case errors.Is(err, retrieval.ErrBudgetTooSmall):
			s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, vector.ErrIndexEmpty):
			s.respondError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("retrieve failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) findTopic(id string) (models.Topic, bool) {
	for _, t := range s.topicList {
		if t.ID == id {
			return t, true
		}
	}
	return models.Topic{}, false
}

type citeRequest struct {
	ChunkIDs []string `json:"chunk_ids"`
}

func (s *Server) handleCite(w http.ResponseWriter, r *http.Request) {
	session := chi.URLParam(r, "session")
	var req citeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ctx := r.Context()
	registry, err := s.registryFor(ctx, session)
	if err != nil {
		s.logger.Error("load citation registry failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	cited := make([]*models.Citation, 0, len(req.ChunkIDs))
	for _, id := range req.ChunkIDs {
		ch, err := s.storage.GetChunk(ctx, session, id)
		if err != nil {
			s.respondError(w, http.StatusNotFound, "chunk not found: "+id)
			return
		}
		cited = append(cited, registry.Cite(ch))
	}
	if err := s.storage.SaveCitations(ctx, session, registry.Citations()); err != nil {
		s.logger.Error("persist citations failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"citations": cited})
}

type attachRequest struct {
	UnitID      string   `json:"unit_id"`
	CitationIDs []string `json:"citation_ids"`
}

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	session := chi.URLParam(r, "session")
	var req attachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UnitID == "" {
		s.respondError(w, http.StatusBadRequest, "unit_id is required")
		return
	}
	registry, err := s.registryFor(r.Context(), session)
	if err != nil {
		s.logger.Error("load citation registry failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	registry.Attach(req.UnitID, req.CitationIDs)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"session":    session,
		"unit_id":    req.UnitID,
		"attached":   registry.Attachments(req.UnitID),
		"violations": len(registry.Violations()),
	})
}

func (s *Server) handleListCitations(w http.ResponseWriter, r *http.Request) {
	session := chi.URLParam(r, "session")
	cited, err := s.storage.GetCitations(r.Context(), session)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"session": session, "citations": cited})
}

// handleViolations reports uncited content violations for every session seen
// since startup, keyed by session.
func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	violations := make(map[string][]citations.Violation, len(s.registries))
	for session, reg := range s.registries {
		if v := reg.Violations(); len(v) > 0 {
			violations[session] = v
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"violations": violations})
}

func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"topics": s.topicList})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	chunkCount, err := s.storage.CountChunks(r.Context())
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	citationCount, violationCount := 0, 0
	s.regMu.Lock()
	for _, reg := range s.registries {
		citationCount += reg.Len()
		violationCount += len(reg.Violations())
	}
	s.regMu.Unlock()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"chunks":            chunkCount,
		"vector_index_size": s.index.Size(),
		"topics":            len(s.topicList),
		"citations":         citationCount,
		"violations":        violationCount,
		"config": map[string]interface{}{
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"metric":               s.config.Retrieval.Metric,
			"assign_threshold":     s.config.Topics.AssignThreshold,
			"database_path":        s.config.Storage.DatabasePath,
			"vector_index_path":    s.config.Storage.VectorIndexPath,
		},
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
