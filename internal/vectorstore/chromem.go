package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/policyrag/internal/document"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("policyrag.vectorstore.chromem")

// errPrecomputedOnly is returned by the collection's embedding func. Records
// always carry their vectors, so chromem must never embed on its own.
var errPrecomputedOnly = errors.New("chromem store accepts precomputed embeddings only")

// ChromemConfig holds configuration for the chromem-go embedded database.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty keeps the
	// database in memory.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// CollectionName is the collection holding policy chunks.
	// Default: "policy_documents"
	CollectionName string

	// VectorSize is the expected embedding dimension. Zero disables the
	// dimension check.
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.CollectionName == "" {
		c.CollectionName = "policy_documents"
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize < 0 {
		return fmt.Errorf("%w: vector size must not be negative", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.CollectionName)
}

// ChromemStore is the approximate-filter Store backed by chromem-go. It
// ranks by embedding similarity only; access filtering happens in the caller
// after retrieval.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	mu         sync.RWMutex
	collection *chromem.Collection
}

// NewChromemStore opens (or creates) the chromem database and its
// collection. Existing data is kept.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandChromemPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = NewResilientChromemDB(path, config.Compress, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: opening chromem DB: %v", ErrConnectionFailed, err)
		}
		config.Path = path
	}

	collection, err := db.GetOrCreateCollection(config.CollectionName, nil, precomputedOnly)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", config.CollectionName, err)
	}

	logger.Info("chromem store initialized",
		zap.String("path", config.Path),
		zap.Bool("compress", config.Compress),
		zap.String("collection", config.CollectionName),
		zap.Int("documents", collection.Count()),
	)

	return &ChromemStore{
		db:         db,
		config:     config,
		logger:     logger,
		collection: collection,
	}, nil
}

func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, errPrecomputedOnly
}

// expandChromemPath expands ~ to the home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Name implements Store.
func (s *ChromemStore) Name() string { return "chromem" }

// NativeFilter implements Store. chromem's where-clause is not used for
// access control, so filtering is left to the caller.
func (s *ChromemStore) NativeFilter() bool { return false }

// Close implements Store. chromem persists on write; nothing to flush.
func (s *ChromemStore) Close() error {
	s.logger.Info("chromem store closed")
	return nil
}

func (s *ChromemStore) current() *chromem.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection
}

// Reset implements Store.
func (s *ChromemStore) Reset(ctx context.Context) (err error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.Reset")
	defer span.End()
	defer observe(s.Name(), "reset", time.Now(), &err)

	span.SetAttributes(attribute.String("collection", s.config.CollectionName))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err = s.db.DeleteCollection(s.config.CollectionName); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", s.config.CollectionName, err)
	}
	collection, err := s.db.CreateCollection(s.config.CollectionName, nil, precomputedOnly)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", s.config.CollectionName, err)
	}
	s.collection = collection

	s.logger.Info("reset collection", zap.String("collection", s.config.CollectionName))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Upsert implements Store.
func (s *ChromemStore) Upsert(ctx context.Context, records []Record) (err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	defer observe(s.Name(), "upsert", time.Now(), &err)

	span.SetAttributes(attribute.Int("record_count", len(records)))

	if len(records) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		if err = s.checkDimension(len(r.Vector)); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("record %s: %w", r.Chunk.ID(), err)
		}
		docs[i] = chromem.Document{
			ID:        r.Chunk.ID(),
			Content:   r.Chunk.Content,
			Metadata:  chromemMetadata(r.Chunk),
			Embedding: r.Vector,
		}
	}

	if err = s.current().AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents to collection %s: %w", s.config.CollectionName, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query implements Store. A non-nil filter is rejected with
// ErrFilterUnsupported.
func (s *ChromemStore) Query(ctx context.Context, vector []float32, filter *LevelFilter, fetch int) (_ []Candidate, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()
	defer observe(s.Name(), "query", time.Now(), &err)

	span.SetAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.Int("fetch", fetch),
	)

	if filter != nil {
		return nil, ErrFilterUnsupported
	}
	if fetch <= 0 {
		return nil, fmt.Errorf("fetch must be positive, got %d", fetch)
	}
	if err = s.checkDimension(len(vector)); err != nil {
		return nil, err
	}

	collection := s.current()

	// chromem requires nResults <= document count.
	n := collection.Count()
	if n == 0 {
		return []Candidate{}, nil
	}
	if fetch > n {
		fetch = n
	}

	results, err := collection.QueryEmbedding(ctx, vector, fetch, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.CollectionName, err)
	}

	candidates := make([]Candidate, 0, len(results))
	for _, r := range results {
		chunk, err := chunkFromChromem(r.Content, r.Metadata)
		if err != nil {
			s.logger.Warn("skipping undecodable document",
				zap.String("id", r.ID),
				zap.Error(err),
			)
			continue
		}
		candidates = append(candidates, Candidate{Chunk: chunk, Score: r.Similarity})
	}

	span.SetAttributes(attribute.Int("results_count", len(candidates)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("queried chromem collection",
		zap.String("collection", s.config.CollectionName),
		zap.Int("fetch", fetch),
		zap.Int("results", len(candidates)),
	)
	return candidates, nil
}

// DeleteByFilename implements Store.
func (s *ChromemStore) DeleteByFilename(ctx context.Context, filename string) (err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteByFilename")
	defer span.End()
	defer observe(s.Name(), "delete", time.Now(), &err)

	if filename == "" {
		return fmt.Errorf("%w: empty filename", ErrInvalidConfig)
	}
	where := map[string]string{document.FieldFilename: filename}
	if err = s.current().Delete(ctx, where, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting %s from collection %s: %w", filename, s.config.CollectionName, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Count implements Store.
func (s *ChromemStore) Count(ctx context.Context) (_ int, err error) {
	defer observe(s.Name(), "count", time.Now(), &err)
	return s.current().Count(), nil
}

func (s *ChromemStore) checkDimension(n int) error {
	if s.config.VectorSize > 0 && n != s.config.VectorSize {
		return fmt.Errorf("%w: got %d dimensions, collection expects %d", ErrDimensionMismatch, n, s.config.VectorSize)
	}
	if n == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	return nil
}

// Ensure ChromemStore implements Store interface.
var _ Store = (*ChromemStore)(nil)
