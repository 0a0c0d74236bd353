package retrieval

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/policyrag/internal/access"
	"github.com/fyrsmithlabs/policyrag/internal/document"
	"github.com/fyrsmithlabs/policyrag/internal/vectorstore"
)

// DefaultOverFetch is the PostFilter candidate multiplier.
const DefaultOverFetch = 3

// Strategy names reported in metrics and responses.
const (
	StrategyExact = "exact_filter"
	StrategyPost  = "post_filter"
)

// Result is one admitted chunk with its similarity score.
type Result struct {
	Content      string        `json:"content"`
	Filename     string        `json:"filename"`
	AccessLevel  access.Level  `json:"access_level"`
	SequenceID   int           `json:"sequence_id"`
	DocumentType document.Type `json:"document_type"`
	Score        float32       `json:"score"`
}

func newResult(c vectorstore.Candidate) Result {
	return Result{
		Content:      c.Chunk.Content,
		Filename:     c.Chunk.Filename,
		AccessLevel:  c.Chunk.AccessLevel,
		SequenceID:   c.Chunk.SequenceID,
		DocumentType: c.Chunk.DocumentType,
		Score:        c.Score,
	}
}

// Backend runs a role-filtered similarity search against one store.
type Backend interface {
	// Name identifies store and strategy, e.g. "qdrant/exact_filter".
	Name() string
	// Search returns at most limit admitted results in index rank order.
	Search(ctx context.Context, vector []float32, role access.Role, limit int) ([]Result, error)
}

// NewBackend picks the strategy for store once. overFetch below 1 uses
// DefaultOverFetch.
func NewBackend(store vectorstore.Store, overFetch int) Backend {
	if store.NativeFilter() {
		return NewExactFilter(store)
	}
	return NewPostFilter(store, overFetch)
}

// ExactFilter evaluates the access predicate inside the index.
type ExactFilter struct {
	store vectorstore.Store
}

// NewExactFilter wraps a store whose Query accepts a LevelFilter.
func NewExactFilter(store vectorstore.Store) *ExactFilter {
	return &ExactFilter{store: store}
}

// Name implements Backend.
func (b *ExactFilter) Name() string {
	return b.store.Name() + "/" + StrategyExact
}

// Search implements Backend. Rows are re-checked with access.Decide so a
// misconfigured index cannot widen visibility.
func (b *ExactFilter) Search(ctx context.Context, vector []float32, role access.Role, limit int) ([]Result, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	filter := &vectorstore.LevelFilter{Levels: access.AdmissibleLevels(role)}
	candidates, err := b.store.Query(ctx, vector, filter, limit)
	if err != nil {
		return nil, err
	}
	return admit(StrategyExact, candidates, role, limit), nil
}

// PostFilter retrieves unfiltered candidates and admits them afterwards.
type PostFilter struct {
	store     vectorstore.Store
	overFetch int
}

// NewPostFilter wraps store. overFetch below 1 uses DefaultOverFetch.
func NewPostFilter(store vectorstore.Store, overFetch int) *PostFilter {
	if overFetch < 1 {
		overFetch = DefaultOverFetch
	}
	return &PostFilter{store: store, overFetch: overFetch}
}

// Name implements Backend.
func (b *PostFilter) Name() string {
	return b.store.Name() + "/" + StrategyPost
}

// Search implements Backend. If fewer than limit of the limit x overFetch
// candidates are admissible, fewer results are returned.
func (b *PostFilter) Search(ctx context.Context, vector []float32, role access.Role, limit int) ([]Result, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	candidates, err := b.store.Query(ctx, vector, nil, limit*b.overFetch)
	if err != nil {
		return nil, err
	}
	return admit(StrategyPost, candidates, role, limit), nil
}

// admit keeps candidates access.Decide admits, in order, up to limit.
func admit(strategy string, candidates []vectorstore.Candidate, role access.Role, limit int) []Result {
	results := make([]Result, 0, min(limit, len(candidates)))
	for _, c := range candidates {
		if len(results) == limit {
			break
		}
		decision := access.Decide(c.Chunk.AccessLevel, role)
		AdmissionsTotal.WithLabelValues(strategy, decision.String()).Inc()
		if decision == access.Admit {
			results = append(results, newResult(c))
		}
	}
	return results
}
