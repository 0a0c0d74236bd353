package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationDuration tracks store operation latency.
	// Labels: store (qdrant, chromem), operation (reset, upsert, delete, query, count)
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "policyrag",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"store", "operation"},
	)

	// OperationsTotal counts store operations.
	// Labels: store, operation, result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "policyrag",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"store", "operation", "result"},
	)
)

// observe records one operation. Call it deferred with a pointer to the
// named error result.
func observe(store, operation string, start time.Time, err *error) {
	OperationDuration.WithLabelValues(store, operation).Observe(time.Since(start).Seconds())
	result := "success"
	if err != nil && *err != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(store, operation, result).Inc()
}
