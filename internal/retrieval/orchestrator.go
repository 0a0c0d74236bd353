package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/policyrag/internal/access"
	"github.com/fyrsmithlabs/policyrag/internal/embeddings"
	"github.com/fyrsmithlabs/policyrag/internal/logging"
)

// Limits applied to Request.Limit.
const (
	DefaultLimit = 3
	MaxLimit     = 100
)

var (
	// ErrEmptyQuery is reported for blank query text.
	ErrEmptyQuery = errors.New("empty query")

	// ErrQueryEmbedding wraps query embedding failures.
	ErrQueryEmbedding = errors.New("query embedding failed")

	// ErrBackend wraps vector store failures during search.
	ErrBackend = errors.New("backend search failed")
)

// Request is a role-scoped search.
type Request struct {
	Query string      `json:"query"`
	Role  access.Role `json:"role"`
	// Limit of 0 uses the orchestrator's default; values above MaxLimit are capped.
	Limit int `json:"limit,omitempty"`
}

// Response carries the admitted results. Diagnostic is set when the search
// failed closed; Results is then empty.
type Response struct {
	Results    []Result
	Diagnostic error
	Backend    string
	Elapsed    time.Duration
}

// Orchestrator runs searches against one backend.
type Orchestrator struct {
	embedder     embeddings.Provider
	backend      Backend
	defaultLimit int
	logger       *logging.Logger
}

// NewOrchestrator creates an orchestrator. defaultLimit below 1 uses
// DefaultLimit.
func NewOrchestrator(embedder embeddings.Provider, backend Backend, defaultLimit int, logger *logging.Logger) (*Orchestrator, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if defaultLimit < 1 {
		defaultLimit = DefaultLimit
	}
	if defaultLimit > MaxLimit {
		defaultLimit = MaxLimit
	}
	return &Orchestrator{
		embedder:     embedder,
		backend:      backend,
		defaultLimit: defaultLimit,
		logger:       logger.Named("retrieval"),
	}, nil
}

// Backend returns the name of the active backend.
func (o *Orchestrator) Backend() string {
	return o.backend.Name()
}

// Search embeds the query and returns admitted results by descending score.
// It never returns an error: failures produce an empty result set and a
// Diagnostic.
func (o *Orchestrator) Search(ctx context.Context, req Request) *Response {
	start := time.Now()
	role := access.ParseRole(string(req.Role))
	ctx = logging.WithRole(ctx, role)
	limit := o.limit(req.Limit)

	resp := &Response{Results: []Result{}, Backend: o.backend.Name()}
	outcome := "ok"
	defer func() {
		resp.Elapsed = time.Since(start)
		SearchesTotal.WithLabelValues(resp.Backend, outcome).Inc()
		SearchDuration.WithLabelValues(resp.Backend).Observe(resp.Elapsed.Seconds())
		ResultsReturned.WithLabelValues(resp.Backend).Observe(float64(len(resp.Results)))
	}()

	if strings.TrimSpace(req.Query) == "" {
		outcome = "embedding_error"
		resp.Diagnostic = ErrEmptyQuery
		return resp
	}

	vector, err := o.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		outcome = "embedding_error"
		resp.Diagnostic = fmt.Errorf("%w: %w", ErrQueryEmbedding, err)
		o.logger.Warn(ctx, "search failed closed", zap.Error(resp.Diagnostic))
		return resp
	}

	results, err := o.backend.Search(ctx, vector, role, limit)
	if err != nil {
		outcome = "store_error"
		resp.Diagnostic = fmt.Errorf("%w: %s: %w", ErrBackend, o.backend.Name(), err)
		o.logger.Warn(ctx, "search failed closed", zap.Error(resp.Diagnostic))
		return resp
	}

	admitted := results[:0]
	for _, r := range results {
		if !access.Admits(r.AccessLevel, role) {
			o.logger.Error(ctx, "backend returned inadmissible result",
				zap.String("backend", o.backend.Name()),
				zap.String("filename", r.Filename),
				zap.String("access_level", r.AccessLevel.String()),
			)
			continue
		}
		admitted = append(admitted, r)
	}
	sort.SliceStable(admitted, func(i, j int) bool {
		return admitted[i].Score > admitted[j].Score
	})
	if len(admitted) > limit {
		admitted = admitted[:limit]
	}
	resp.Results = admitted
	if len(admitted) == 0 {
		outcome = "empty"
	}

	o.logger.Debug(ctx, "search completed",
		zap.String("backend", resp.Backend),
		zap.Int("limit", limit),
		zap.Int("results", len(admitted)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp
}

func (o *Orchestrator) limit(requested int) int {
	switch {
	case requested <= 0:
		return o.defaultLimit
	case requested > MaxLimit:
		return MaxLimit
	default:
		return requested
	}
}
