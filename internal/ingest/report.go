package ingest

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/fyrsmithlabs/policyrag/internal/access"
)

// FileOutcome describes the ingestion of one document.
type FileOutcome struct {
	Filename string `json:"filename"`
	// Chunks is the number of chunks the segmenter produced.
	Chunks int `json:"chunks"`
	// Stored chunks were embedded and upserted.
	Stored int `json:"stored"`
	// Failed chunks were skipped because embedding or storage failed.
	Failed int `json:"failed"`
	// UnrecognizedMarkers lists marker-shaped lines kept as literal content.
	UnrecognizedMarkers []string `json:"unrecognized_markers,omitempty"`
	Error               string   `json:"error,omitempty"`
}

// OK reports whether every chunk of the file was stored.
func (o FileOutcome) OK() bool {
	return o.Error == "" && o.Failed == 0
}

// Report summarizes an ingestion run.
type Report struct {
	Files   []FileOutcome        `json:"files"`
	Chunks  int                  `json:"chunks"`
	Stored  int                  `json:"stored"`
	Failed  int                  `json:"failed"`
	ByLevel map[access.Level]int `json:"by_level"`
	Elapsed time.Duration        `json:"elapsed_ns"`

	errs *multierror.Error
}

func newReport() *Report {
	return &Report{Files: []FileOutcome{}, ByLevel: map[access.Level]int{}}
}

// add folds a file outcome into the totals.
func (r *Report) add(o FileOutcome, stored map[access.Level]int, err error) {
	r.Files = append(r.Files, o)
	r.Chunks += o.Chunks
	r.Stored += o.Stored
	r.Failed += o.Failed
	for level, n := range stored {
		r.ByLevel[level] += n
	}
	if err != nil {
		r.errs = multierror.Append(r.errs, fmt.Errorf("%s: %w", o.Filename, err))
	}
}

// Err aggregates every per-file failure, or returns nil.
func (r *Report) Err() error {
	return r.errs.ErrorOrNil()
}

// Throughput returns stored chunks per second.
func (r *Report) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Stored) / r.Elapsed.Seconds()
}
