// Package ingest loads policy documents into the vector store.
//
// A run segments each file, embeds its chunks in batches and upserts them.
// Failures are local: a failed batch is skipped and counted, a failed file
// is recorded in the Report, and the run continues. Re-ingestion is a full
// rebuild: Initialize resets the collection first.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/policyrag/internal/access"
	"github.com/fyrsmithlabs/policyrag/internal/document"
	"github.com/fyrsmithlabs/policyrag/internal/embeddings"
	"github.com/fyrsmithlabs/policyrag/internal/ignore"
	"github.com/fyrsmithlabs/policyrag/internal/logging"
	"github.com/fyrsmithlabs/policyrag/internal/segment"
	"github.com/fyrsmithlabs/policyrag/internal/vectorstore"
)

const (
	// DefaultBatchSize is the number of chunks embedded per request.
	DefaultBatchSize = 10

	// DefaultPattern matches plain-text documents in the data directory root.
	DefaultPattern = "*.txt"

	// DefaultMaxFileSize bounds a single document.
	DefaultMaxFileSize = 10 * 1024 * 1024
)

var (
	// ErrInvalidDataDir indicates a missing or non-directory data path.
	ErrInvalidDataDir = errors.New("invalid data directory")

	// ErrInvalidPattern indicates a malformed glob pattern.
	ErrInvalidPattern = errors.New("invalid glob pattern")

	errNotUTF8      = errors.New("document is not valid UTF-8")
	errFileTooLarge = errors.New("document exceeds size limit")
)

// Config tunes an Ingester.
type Config struct {
	BatchSize   int
	MaxFileSize int64
}

// Ingester segments, embeds and stores documents. Runs are serialized.
type Ingester struct {
	segmenter *segment.Segmenter
	embedder  embeddings.Provider
	store     vectorstore.Store
	config    Config
	logger    *logging.Logger

	// run serializes ingestion; mu guards the last run's results.
	run     sync.Mutex
	mu      sync.RWMutex
	last    *Report
	lastRun time.Time
}

// NewIngester creates an Ingester.
func NewIngester(seg *segment.Segmenter, embedder embeddings.Provider, store vectorstore.Store, cfg Config, logger *logging.Logger) (*Ingester, error) {
	if seg == nil {
		return nil, fmt.Errorf("segmenter is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	return &Ingester{
		segmenter: seg,
		embedder:  embedder,
		store:     store,
		config:    cfg,
		logger:    logger.Named("ingest"),
	}, nil
}

// Initialize drops and recreates the collection.
func (i *Ingester) Initialize(ctx context.Context) error {
	i.run.Lock()
	defer i.run.Unlock()
	return i.initialize(ctx)
}

func (i *Ingester) initialize(ctx context.Context) error {
	if err := i.store.Reset(ctx); err != nil {
		return fmt.Errorf("resetting collection: %w", err)
	}
	i.mu.Lock()
	i.last = nil
	i.mu.Unlock()
	i.logger.Info(ctx, "collection initialized", zap.String("store", i.store.Name()))
	return nil
}

// Reindex resets the collection and ingests dir.
func (i *Ingester) Reindex(ctx context.Context, dir, pattern string) (*Report, error) {
	i.run.Lock()
	defer i.run.Unlock()
	if err := i.initialize(ctx); err != nil {
		return nil, err
	}
	return i.ingestDir(ctx, dir, pattern)
}

// IngestDir ingests every file in dir matching pattern (doublestar syntax,
// relative to dir; empty means DefaultPattern). It fails only when dir or
// pattern is unusable or ctx is cancelled; per-file problems are in the
// Report. Each file read replaces all of its previously stored chunks;
// chunks of files no longer present are kept until the next Reindex.
func (i *Ingester) IngestDir(ctx context.Context, dir, pattern string) (*Report, error) {
	i.run.Lock()
	defer i.run.Unlock()
	return i.ingestDir(ctx, dir, pattern)
}

func (i *Ingester) ingestDir(ctx context.Context, dir, pattern string) (*Report, error) {
	start := time.Now()
	files, err := Discover(dir, pattern)
	if err != nil {
		return nil, err
	}

	report := newReport()
	if len(files) == 0 {
		i.logger.Warn(ctx, "no documents found",
			zap.String("dir", dir),
			zap.String("pattern", pattern),
		)
	} else {
		i.logger.Info(ctx, "ingesting documents",
			zap.String("dir", dir),
			zap.Int("files", len(files)),
		)
	}

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, filepath.FromSlash(rel))
		raw, err := readDocument(path, i.config.MaxFileSize)
		if err != nil {
			o := FileOutcome{Filename: rel, Error: err.Error()}
			report.add(o, nil, err)
			FilesTotal.WithLabelValues("failed").Inc()
			i.logger.Warn(ctx, "skipping document", zap.String("filename", rel), zap.Error(err))
			continue
		}
		o, stored, err := i.ingest(ctx, rel, raw)
		report.add(o, stored, err)
	}

	report.Elapsed = time.Since(start)
	RunDuration.Observe(report.Elapsed.Seconds())
	if n, err := i.store.Count(ctx); err == nil {
		CollectionChunks.Set(float64(n))
	}
	i.mu.Lock()
	i.last = report
	i.lastRun = time.Now()
	i.mu.Unlock()

	i.logger.Info(ctx, "ingestion complete",
		zap.Int("files", len(report.Files)),
		zap.Int("chunks", report.Chunks),
		zap.Int("stored", report.Stored),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", report.Elapsed),
		zap.Float64("chunks_per_second", report.Throughput()),
	)
	return report, nil
}

// ingest replaces every stored chunk of filename with the chunks of raw. It
// returns the outcome, stored counts per level and the aggregated failure,
// if any. When the old chunks cannot be removed nothing new is stored, so a
// paragraph that moved to a stricter section never survives at its old level.
func (i *Ingester) ingest(ctx context.Context, filename, raw string) (FileOutcome, map[access.Level]int, error) {
	o := FileOutcome{Filename: filename}
	if markers := segment.UnrecognizedMarkers(raw); len(markers) > 0 {
		o.UnrecognizedMarkers = markers
		i.logger.Debug(ctx, "unrecognized access markers kept as content",
			zap.String("filename", filename),
			zap.Strings("unrecognized_markers", markers),
		)
	}

	chunks := i.segmenter.Segment(raw, filename)
	o.Chunks = len(chunks)
	stored := map[access.Level]int{}

	if err := i.store.DeleteByFilename(ctx, filename); err != nil {
		err = fmt.Errorf("removing previous chunks: %w", err)
		o.Failed = len(chunks)
		o.Error = err.Error()
		countChunks(chunks, "failed")
		FilesTotal.WithLabelValues("failed").Inc()
		i.logger.Warn(ctx, "skipping document", zap.String("filename", filename), zap.Error(err))
		return o, stored, err
	}

	var failures *multierror.Error
	var records []vectorstore.Record
	for start := 0; start < len(chunks); start += i.config.BatchSize {
		end := min(start+i.config.BatchSize, len(chunks))
		batch := chunks[start:end]

		vectors, err := i.embedBatch(ctx, batch)
		if err != nil {
			o.Failed += len(batch)
			countChunks(batch, "failed")
			failures = multierror.Append(failures, fmt.Errorf("chunks %d-%d: %w", start, end-1, err))
			i.logger.Warn(ctx, "skipping batch",
				zap.String("filename", filename),
				zap.Int("from", start),
				zap.Int("to", end-1),
				zap.Error(err),
			)
			continue
		}
		for j, c := range batch {
			records = append(records, vectorstore.Record{Chunk: c, Vector: vectors[j]})
		}
		i.logger.Trace(ctx, "batch embedded",
			zap.String("filename", filename),
			zap.Int("processed", end),
			zap.Int("total", len(chunks)),
		)
	}

	if len(records) > 0 {
		if err := i.store.Upsert(ctx, records); err != nil {
			o.Failed += len(records)
			failed := make([]document.Chunk, len(records))
			for j, r := range records {
				failed[j] = r.Chunk
			}
			countChunks(failed, "failed")
			failures = multierror.Append(failures, fmt.Errorf("upsert: %w", err))
		} else {
			o.Stored = len(records)
			for _, r := range records {
				stored[r.Chunk.AccessLevel]++
				ChunksTotal.WithLabelValues(r.Chunk.AccessLevel.String(), "stored").Inc()
			}
		}
	}

	err := failures.ErrorOrNil()
	switch {
	case err == nil:
		FilesTotal.WithLabelValues("ok").Inc()
	case o.Stored > 0:
		FilesTotal.WithLabelValues("partial").Inc()
	default:
		FilesTotal.WithLabelValues("failed").Inc()
	}
	if err != nil {
		o.Error = err.Error()
	}

	i.logger.Info(ctx, "document ingested",
		zap.String("filename", filename),
		zap.Int("chunks", o.Chunks),
		zap.Int("stored", o.Stored),
		zap.Int("failed", o.Failed),
	)
	return o, stored, err
}

func (i *Ingester) embedBatch(ctx context.Context, batch []document.Chunk) ([][]float32, error) {
	texts := make([]string, len(batch))
	for j, c := range batch {
		texts[j] = c.Content
	}
	vectors, err := i.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", embeddings.ErrEmbeddingFailed, len(vectors), len(batch))
	}
	return vectors, nil
}

func countChunks(chunks []document.Chunk, result string) {
	for _, c := range chunks {
		ChunksTotal.WithLabelValues(c.AccessLevel.String(), result).Inc()
	}
}

// Discover returns the files under dir matching pattern, as slash-separated
// paths relative to dir, sorted. Paths excluded by dir/.policyignore are
// skipped.
func Discover(dir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidDataDir, dir)
	}

	excluded, err := ignore.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}

	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	files := matches[:0]
	for _, m := range matches {
		if m == ignore.FileName || excluded.Match(m) {
			continue
		}
		if fi, err := fs.Stat(fsys, m); err == nil && fi.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

// readDocument reads a UTF-8 document of at most maxSize bytes.
func readDocument(path string, maxSize int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return "", err
	}
	if int64(len(content)) > maxSize {
		return "", fmt.Errorf("%w (%d bytes)", errFileTooLarge, maxSize)
	}
	if !utf8.Valid(content) {
		return "", errNotUTF8
	}
	return string(content), nil
}
