package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/policyrag/internal/config"
	"github.com/fyrsmithlabs/policyrag/internal/embeddings"
	"github.com/fyrsmithlabs/policyrag/internal/ingest"
	"github.com/fyrsmithlabs/policyrag/internal/logging"
	"github.com/fyrsmithlabs/policyrag/internal/retrieval"
	"github.com/fyrsmithlabs/policyrag/internal/segment"
	"github.com/fyrsmithlabs/policyrag/internal/vectorstore"
)

// app holds the wired pipeline shared by every command.
type app struct {
	cfg          *config.Config
	logger       *logging.Logger
	embedder     embeddings.Provider
	store        vectorstore.Store
	orchestrator *retrieval.Orchestrator
	ingester     *ingest.Ingester
}

// newLogger writes to stderr so command output on stdout stays clean.
func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	lc, err := logging.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	lc.Output = "stderr"
	return logging.NewLogger(lc)
}

func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}
	return cfg, logger, nil
}

// newApp connects the embedding gateway and vector store and builds the
// search and ingestion services on top of them.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	z := logger.Underlying()

	embedder, err := embeddings.NewProvider(cfg.Embeddings, z)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}

	store, err := vectorstore.NewStore(ctx, cfg.VectorStore, embedder.Dimension(), z)
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("vector store: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, embedder: embedder, store: store}

	backend := retrieval.NewBackend(store, cfg.Search.OverFetch)
	a.orchestrator, err = retrieval.NewOrchestrator(embedder, backend, cfg.Search.Limit, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.ingester, err = ingest.NewIngester(
		segment.New(cfg.Segment.ChunkSize),
		embedder,
		store,
		ingest.Config{BatchSize: cfg.Embeddings.BatchSize},
		logger,
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info(ctx, "pipeline ready",
		zap.String("backend", backend.Name()),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.Int("dimension", embedder.Dimension()),
	)
	return a, nil
}

// Close releases the store and the embedding provider.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn(context.Background(), "closing vector store", zap.Error(err))
	}
	if err := a.embedder.Close(); err != nil {
		a.logger.Warn(context.Background(), "closing embedding provider", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// setup loads configuration and wires the pipeline for a command.
func setup(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, logger)
}
