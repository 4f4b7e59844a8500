// Package server provides the HTTP API for Shiken.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/shiken/internal/citations"
	"github.com/hyperjump/shiken/internal/config"
	"github.com/hyperjump/shiken/internal/ingest"
	"github.com/hyperjump/shiken/internal/models"
	"github.com/hyperjump/shiken/internal/retrieval"
	"github.com/hyperjump/shiken/internal/storage"
	"github.com/hyperjump/shiken/internal/topics"
	"github.com/hyperjump/shiken/internal/vector"
	"go.uber.org/zap"
)

// Server is the HTTP server for the Shiken API. Citation registries are kept
// per session, created on first use and seeded from the session's persisted
// citations so ordinals survive restarts.
type Server struct {
	pipeline   *ingest.Pipeline
	mapper     *topics.Mapper
	scorer     *topics.Scorer
	retriever  *retrieval.Retriever
	storage    storage.Storage
	index      vector.Index
	topicList  []models.Topic
	config     *config.Config
	logger     *zap.Logger
	server     *http.Server
	regMu      sync.Mutex
	registries map[string]*citations.Registry
}

// NewServer creates a server with the given dependencies.
func NewServer(
	pipeline *ingest.Pipeline,
	mapper *topics.Mapper,
	scorer *topics.Scorer,
	retriever *retrieval.Retriever,
	store storage.Storage,
	index vector.Index,
	topicList []models.Topic,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		pipeline:   pipeline,
		mapper:     mapper,
		scorer:     scorer,
		retriever:  retriever,
		storage:    store,
		index:      index,
		topicList:  topicList,
		config:     cfg,
		logger:     logger,
		registries: make(map[string]*citations.Registry),
	}
}

// registryFor returns the session's citation registry, restoring it from
// persisted citations the first time the session is seen.
func (s *Server) registryFor(ctx context.Context, session string) (*citations.Registry, error) {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	if reg, ok := s.registries[session]; ok {
		return reg, nil
	}
	reg := citations.NewRegistry(citations.WithLogger(s.logger))
	persisted, err := s.storage.GetCitations(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("load citations for %s: %w", session, err)
	}
	reg.Restore(persisted)
	s.registries[session] = reg
	return reg, nil
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/sessions/{session}/records", s.handleIngestRecords)
	r.Post("/api/v1/sessions/{session}/map-topics", s.handleMapTopics)
	r.Get("/api/v1/sessions/{session}/coverage", s.handleCoverage)
	r.Post("/api/v1/sessions/{session}/retrieve", s.handleRetrieve)
	r.Post("/api/v1/sessions/{session}/citations", s.handleCite)
	r.Post("/api/v1/sessions/{session}/citations/attach", s.handleAttach)
	r.Get("/api/v1/sessions/{session}/citations", s.handleListCitations)
	r.Get("/api/v1/violations", s.handleViolations)
	r.Get("/api/v1/topics", s.handleListTopics)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
