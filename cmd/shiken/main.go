// Package main is the Shiken CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/shiken/internal/chunker"
	"github.com/hyperjump/shiken/internal/config"
	"github.com/hyperjump/shiken/internal/embedding"
	"github.com/hyperjump/shiken/internal/ingest"
	"github.com/hyperjump/shiken/internal/keyword"
	"github.com/hyperjump/shiken/internal/models"
	"github.com/hyperjump/shiken/internal/retrieval"
	"github.com/hyperjump/shiken/internal/server"
	"github.com/hyperjump/shiken/internal/storage"
	"github.com/hyperjump/shiken/internal/topics"
	"github.com/hyperjump/shiken/internal/vector"
	"github.com/hyperjump/shiken/internal/watcher"
	"github.com/hyperjump/shiken/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/shiken/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "shiken server" from the project dir uses the project's
// config. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "map-topics":
		runMapTopics()
	case "coverage":
		runCoverage()
	case "retrieve":
		runRetrieve()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("shiken version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		pipeline := components.Pipeline
		watchOpts := []watcher.WatcherOption{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc = watcher.NewWatcher(cfg.Watch.Directories, func(path string) {
			if _, err := pipeline.IngestFile(context.Background(), path); err != nil {
				logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
			}
		}, watchOpts...)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		if err := watchSvc.SyncExistingFiles(); err != nil {
			logger.Warn("initial record sync failed", zap.Error(err))
		}
	}

	srv := server.NewServer(
		components.Pipeline,
		components.Mapper,
		components.Scorer,
		components.Retriever,
		components.Storage,
		components.VectorIndex,
		components.Topics,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if cfg.Storage.VectorIndexPath != "" {
		if err := components.VectorIndex.Save(cfg.Storage.VectorIndexPath); err != nil {
			logger.Warn("vector index save failed", zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
		}
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: shiken ingest [flags] <records.jsonl>...")
		os.Exit(1)
	}

	cfg, logger, components := mustInitialize(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()
	_ = cfg

	for _, path := range fs.Args() {
		summary, err := components.Pipeline.IngestFile(context.Background(), path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed for %s: %v\n", path, err)
			os.Exit(1)
		}
		printJSON(summary)
	}
}

func runMapTopics() {
	fs := flag.NewFlagSet("map-topics", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	session := fs.String("session", "", "session to map")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])
	if *session == "" {
		fmt.Fprintln(os.Stderr, "Usage: shiken map-topics --session <session>")
		os.Exit(1)
	}

	_, logger, components := mustInitialize(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	chunks, err := components.Storage.GetChunksBySession(ctx, *session)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load chunks: %v\n", err)
		os.Exit(1)
	}
	for _, ch := range chunks {
		if vec, ok := components.VectorIndex.Vector(ch.ID); ok {
			_ = ch.SetEmbedding(vec)
		}
	}
	assignments, err := components.Mapper.MapTopics(ctx, chunks, components.Topics)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Topic mapping failed: %v\n", err)
		os.Exit(1)
	}
	if err := components.Storage.ReplaceAssignments(ctx, *session, assignments); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save assignments: %v\n", err)
		os.Exit(1)
	}
	printJSON(map[string]interface{}{
		"session":     *session,
		"chunks":      len(chunks),
		"topics":      len(components.Topics),
		"assignments": len(assignments),
	})
}

func runCoverage() {
	fs := flag.NewFlagSet("coverage", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	session := fs.String("session", "", "session to score")
	enforce := fs.Bool("enforce", false, "exit non-zero when a required topic is missing")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])
	if *session == "" {
		fmt.Fprintln(os.Stderr, "Usage: shiken coverage --session <session> [--enforce]")
		os.Exit(1)
	}

	_, logger, components := mustInitialize(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	assignments, err := components.Storage.GetAssignments(ctx, *session)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load assignments: %v\n", err)
		os.Exit(1)
	}
	chunks, err := components.Storage.GetChunksBySession(ctx, *session)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load chunks: %v\n", err)
		os.Exit(1)
	}
	byID := make(map[string]*models.Chunk, len(chunks))
	for _, ch := range chunks {
		byID[ch.ID] = ch
	}
	records := components.Scorer.Score(components.Topics, assignments, byID)
	printJSON(map[string]interface{}{"session": *session, "coverage": records})
	if *enforce {
		if err := topics.RequireCovered(components.Topics, records); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
}

func runRetrieve() {
	fs := flag.NewFlagSet("retrieve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	session := fs.String("session", "", "session to retrieve from")
	topicID := fs.String("topic", "", "topic ID")
	budget := fs.Int("budget", 0, "character budget (0 = configured default)")
	hints := fs.String("hints", "", "comma-separated keyword hints")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])
	if *session == "" || *topicID == "" {
		fmt.Fprintln(os.Stderr, "Usage: shiken retrieve --session <session> --topic <id> [--budget n] [--hints a,b]")
		os.Exit(1)
	}

	_, logger, components := mustInitialize(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	var topic models.Topic
	found := false
	for _, t := range components.Topics {
		if t.ID == *topicID {
			topic = t
			found = true
			break
		}
	}
	if !found {
		fmt.Fprintf(os.Stderr, "Unknown topic: %s\n", *topicID)
		os.Exit(1)
	}
	var hintList []string
	if *hints != "" {
		for _, h := range strings.Split(*hints, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hintList = append(hintList, h)
			}
		}
	}
	result, err := components.Retriever.Retrieve(context.Background(), *session, topic, *budget, hintList)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Retrieval failed: %v\n", err)
		os.Exit(1)
	}
	printJSON(result)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := mustInitialize(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	chunkCount, err := components.Storage.CountChunks(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to count chunks: %v\n", err)
		os.Exit(1)
	}
	printJSON(map[string]interface{}{
		"chunks":            chunkCount,
		"vector_index_size": components.VectorIndex.Size(),
		"topics":            len(components.Topics),
		"database_path":     cfg.Storage.DatabasePath,
		"vector_index_path": cfg.Storage.VectorIndexPath,
	})
}

func mustInitialize(configPath string, debug bool) (*config.Config, *zap.Logger, *Components) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger, cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, components
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// Components holds the engine parts shared by the server and CLI commands.
type Components struct {
	Storage      storage.Storage
	Embeddings   *embedding.Service
	VectorIndex  vector.Index
	KeywordIndex keyword.Index
	Pipeline     *ingest.Pipeline
	Mapper       *topics.Mapper
	Scorer       *topics.Scorer
	Retriever    *retrieval.Retriever
	Topics       []models.Topic
}

// Close releases all component resources.
func (c *Components) Close() {
	if c.Embeddings != nil {
		_ = c.Embeddings.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var embedder embedding.Embedder
	if cfg.Embedding.Provider == "mock" {
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		remote, err := embedding.NewRemoteEmbedder(embedding.RemoteConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			APIKeyEnv:  cfg.Embedding.APIKeyEnv,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			logger.Warn("remote embedder unavailable, falling back to mock", zap.Error(err))
			embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
		} else {
			embedder = remote
		}
	}

	svcOpts := []embedding.ServiceOption{}
	if debug {
		svcOpts = append(svcOpts, embedding.WithLogger(logger))
	}
	embeddings := embedding.NewService(embedder, cfg.Embedding.BatchSize, cfg.Embedding.CacheSize, svcOpts...)

	vectorIndex, err := vector.NewFlatIndex(cfg.Embedding.Dimensions, vector.Metric(cfg.Retrieval.Metric))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	// Load returns nil for an absent file; anything else means the persisted
	// index is corrupt, and continuing with an empty index would silently
	// break reload equivalence.
	if cfg.Storage.VectorIndexPath != "" {
		if loadErr := vectorIndex.Load(cfg.Storage.VectorIndexPath); loadErr != nil {
			return nil, fmt.Errorf("failed to load vector index %s: %w", cfg.Storage.VectorIndexPath, loadErr)
		}
	}

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	var topicList []models.Topic
	if cfg.Topics.Path != "" {
		topicList, err = config.LoadTopics(cfg.Topics.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load topics: %w", err)
		}
	}

	ck := chunker.New(cfg.Chunking.MaxChunkChars, cfg.Chunking.MinSegmentChars)

	pipeOpts := []ingest.PipelineOption{ingest.WithLogger(logger)}
	pipeline := ingest.NewPipeline(ck, embeddings, vectorIndex, keywordIndex, store, cfg.Storage.VectorIndexPath, pipeOpts...)

	mapperOpts := []topics.MapperOption{}
	if debug {
		mapperOpts = append(mapperOpts, topics.WithLogger(logger))
	}
	mapper := topics.NewMapper(embeddings, cfg.Topics, cfg.Workers, mapperOpts...)
	scorer := topics.NewScorer(cfg.Coverage)

	retriever := retrieval.NewRetriever(store, vectorIndex, keywordIndex, embeddings, cfg.Retrieval,
		retrieval.WithLogger(logger))

	return &Components{
		Storage:      store,
		Embeddings:   embeddings,
		VectorIndex:  vectorIndex,
		KeywordIndex: keywordIndex,
		Pipeline:     pipeline,
		Mapper:       mapper,
		Scorer:       scorer,
		Retriever:    retriever,
		Topics:       topicList,
	}, nil
}

func printUsage() {
	fmt.Println(`shiken - Lecture material retrieval and provenance engine

Usage:
  shiken server [flags]                 Start the HTTP server
  shiken ingest [flags] <file>...       Ingest JSONL record files
  shiken map-topics [flags]             Map a session's chunks to topics
  shiken coverage [flags]               Score per-topic coverage
  shiken retrieve [flags]               Retrieve chunks for a topic
  shiken status [flags]                 Show engine status
  shiken version                        Show version

Common flags:
  --config <path>    Config file (default ` + defaultConfigPath + `)
  --debug            Enable debug logging

Examples:
  shiken server --debug
  shiken ingest algo101_week3.jsonl
  shiken map-topics --session algo101
  shiken coverage --session algo101 --enforce
  shiken retrieve --session algo101 --topic sorting --budget 4000`)
}
