package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/policyrag/internal/access"
)

// Stats describes the collection.
type Stats struct {
	// TotalChunks is read from the store.
	TotalChunks int `json:"total_chunks"`
	// UserChunks and AdminChunks come from the last ingestion run in this
	// process and are zero when none happened.
	UserChunks  int       `json:"user_chunks"`
	AdminChunks int       `json:"admin_chunks"`
	Store       string    `json:"store"`
	Dimension   int       `json:"vector_dimension"`
	LastIngest  time.Time `json:"last_ingest,omitempty"`
}

// Stats reports collection statistics.
func (i *Ingester) Stats(ctx context.Context) (*Stats, error) {
	n, err := i.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	s := &Stats{
		TotalChunks: n,
		Store:       i.store.Name(),
		Dimension:   i.embedder.Dimension(),
		LastIngest:  i.lastRun,
	}
	if i.last != nil {
		s.UserChunks = i.last.ByLevel[access.LevelUser]
		s.AdminChunks = i.last.ByLevel[access.LevelAdmin]
	}
	return s, nil
}

// LastReport returns the report of the most recent run, or nil.
func (i *Ingester) LastReport() *Report {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.last
}
