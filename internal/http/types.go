package http

import (
	"github.com/fyrsmithlabs/policyrag/internal/access"
	"github.com/fyrsmithlabs/policyrag/internal/ingest"
	"github.com/fyrsmithlabs/policyrag/internal/retrieval"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
}

// SearchRequest is the request body for POST /api/v1/search.
type SearchRequest struct {
	Query string `json:"query"`
	// Role defaults to "user"; unknown roles are treated as "user".
	Role  string `json:"role"`
	Limit int    `json:"limit"`
}

// SearchResponse is the response body for POST /api/v1/search.
type SearchResponse struct {
	Query        string             `json:"query"`
	Role         access.Role        `json:"role"`
	Backend      string             `json:"backend"`
	Results      []retrieval.Result `json:"results"`
	Count        int                `json:"count"`
	SearchTimeMs float64            `json:"search_time_ms"`
	Error        string             `json:"error,omitempty"`
}

// NewSearchResponse builds the wire form of resp. Results is never null.
func NewSearchResponse(query string, role access.Role, resp *retrieval.Response) SearchResponse {
	out := SearchResponse{
		Query:        query,
		Role:         role,
		Backend:      resp.Backend,
		Results:      resp.Results,
		Count:        len(resp.Results),
		SearchTimeMs: float64(resp.Elapsed.Microseconds()) / 1000,
	}
	if out.Results == nil {
		out.Results = []retrieval.Result{}
	}
	if resp.Diagnostic != nil {
		out.Error = resp.Diagnostic.Error()
	}
	return out
}

// IngestResponse is the response body for POST /api/v1/ingest.
type IngestResponse struct {
	*ingest.Report
	ChunksPerSecond float64 `json:"chunks_per_second"`
}
