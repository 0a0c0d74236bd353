package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchesTotal counts searches.
	// Labels: backend (qdrant/exact_filter, chromem/post_filter), outcome
	// (ok, empty, embedding_error, store_error)
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "policyrag",
			Subsystem: "retrieval",
			Name:      "searches_total",
			Help:      "Total number of searches by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	// SearchDuration tracks end-to-end search latency including query embedding.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "policyrag",
			Subsystem: "retrieval",
			Name:      "search_duration_seconds",
			Help:      "Search latency in seconds, including query embedding",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"backend"},
	)

	// AdmissionsTotal counts access decisions on retrieved candidates.
	// Labels: strategy (exact_filter, post_filter), decision (admit, reject)
	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "policyrag",
			Subsystem: "retrieval",
			Name:      "admissions_total",
			Help:      "Access decisions on retrieved candidates",
		},
		[]string{"strategy", "decision"},
	)

	// ResultsReturned tracks how many results a search returns. Post-filter
	// undershoot shows up as mass below the requested limit.
	ResultsReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "policyrag",
			Subsystem: "retrieval",
			Name:      "results_returned",
			Help:      "Number of results returned per search",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 25, 50, 100},
		},
		[]string{"backend"},
	)
)
