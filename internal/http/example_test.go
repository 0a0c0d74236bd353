package http_test

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/policyrag/internal/embeddings"
	httpserver "github.com/fyrsmithlabs/policyrag/internal/http"
	"github.com/fyrsmithlabs/policyrag/internal/ingest"
	"github.com/fyrsmithlabs/policyrag/internal/logging"
	"github.com/fyrsmithlabs/policyrag/internal/retrieval"
	"github.com/fyrsmithlabs/policyrag/internal/segment"
	"github.com/fyrsmithlabs/policyrag/internal/vectorstore"
)

// ExampleServer wires an embedded store, the transformers embedding service
// and the HTTP API.
func ExampleServer() {
	logger, err := logging.NewLogger(logging.NewDefaultConfig())
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: "http://localhost:8081",
		Model:   "sentence-transformers-multi-qa-MiniLM-L6-cos-v1",
	}, logger.Underlying())
	if err != nil {
		panic(err)
	}

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		VectorSize: embedder.Dimension(),
	}, logger.Underlying().With(zap.String("component", "vectorstore")))
	if err != nil {
		panic(err)
	}

	orchestrator, err := retrieval.NewOrchestrator(embedder, retrieval.NewBackend(store, 3), 3, logger)
	if err != nil {
		panic(err)
	}
	ingester, err := ingest.NewIngester(segment.New(300), embedder, store, ingest.Config{}, logger)
	if err != nil {
		panic(err)
	}

	server, err := httpserver.NewServer(orchestrator, ingester, logger, &httpserver.Config{
		Host:    "127.0.0.1",
		Port:    8090,
		DataDir: "./data",
		Pattern: "*.txt",
	})
	if err != nil {
		panic(err)
	}

	go func() {
		if err := server.Start(); err != nil {
			fmt.Println("server stopped:", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}
