package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FilesTotal counts processed documents.
	// Labels: outcome (ok, partial, failed)
	FilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "policyrag",
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Documents processed by outcome",
		},
		[]string{"outcome"},
	)

	// ChunksTotal counts chunks by level and result (stored, failed).
	ChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "policyrag",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Chunks processed by access level and result",
		},
		[]string{"access_level", "result"},
	)

	// RunDuration tracks full ingestion runs.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "policyrag",
			Subsystem: "ingest",
			Name:      "run_duration_seconds",
			Help:      "Duration of directory ingestion runs",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	// CollectionChunks is the chunk count after the last run.
	CollectionChunks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "policyrag",
			Subsystem: "ingest",
			Name:      "collection_chunks",
			Help:      "Chunks stored in the collection after the last ingestion",
		},
	)
)
