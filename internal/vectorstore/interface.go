// Package vectorstore defines the interface for chunk vector storage.
package vectorstore

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/policyrag/internal/access"
	"github.com/fyrsmithlabs/policyrag/internal/document"
)

// Sentinel errors for vector store operations.
var (
	// ErrConnectionFailed indicates the store could not be reached.
	ErrConnectionFailed = errors.New("vector store connection failed")

	// ErrSchemaConflict indicates the collection exists with an incompatible
	// vector configuration. Reset resolves it.
	ErrSchemaConflict = errors.New("collection schema conflict")

	// ErrFilterUnsupported is returned when a level filter is passed to a
	// store that cannot evaluate filters in the index.
	ErrFilterUnsupported = errors.New("index-side filter not supported")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// collection's configured size.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Record is a chunk together with its embedding, ready to be stored.
type Record struct {
	Chunk  document.Chunk
	Vector []float32
}

// Candidate is a stored chunk returned by a similarity query.
type Candidate struct {
	Chunk document.Chunk

	// Score is the cosine similarity to the query vector (higher = closer).
	Score float32
}

// LevelFilter restricts a query to chunks whose access level is one of Levels.
type LevelFilter struct {
	Levels []access.Level
}

// Matches reports whether level is admitted by the filter. A nil filter
// admits everything.
func (f *LevelFilter) Matches(level access.Level) bool {
	if f == nil {
		return true
	}
	for _, l := range f.Levels {
		if l == level {
			return true
		}
	}
	return false
}

// Store persists chunk records and answers nearest-neighbour queries.
//
// Implementations:
//   - QdrantStore: external Qdrant over gRPC, evaluates LevelFilter in the index
//   - ChromemStore: embedded chromem-go, no index-side filter
type Store interface {
	// Reset drops the collection, if any, and recreates it empty.
	Reset(ctx context.Context) error

	// Upsert stores records keyed by document.Chunk.ID. Re-upserting a record
	// with the same id replaces it.
	Upsert(ctx context.Context, records []Record) error

	// Query returns up to fetch candidates ordered by descending score. A
	// non-nil filter is applied inside the index; stores that cannot do that
	// return ErrFilterUnsupported.
	Query(ctx context.Context, vector []float32, filter *LevelFilter, fetch int) ([]Candidate, error)

	// DeleteByFilename removes every record whose chunk came from filename,
	// whatever its access level. Deleting an unknown filename is not an error.
	DeleteByFilename(ctx context.Context, filename string) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// NativeFilter reports whether Query accepts a LevelFilter.
	NativeFilter() bool

	// Name identifies the implementation in logs and responses.
	Name() string

	// Close releases the store's resources.
	Close() error
}
