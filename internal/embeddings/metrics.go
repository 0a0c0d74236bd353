package embeddings

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/policyrag/internal/embeddings"

// generationMetrics counts embedding calls per model and call kind.
type generationMetrics struct {
	latency metric.Float64Histogram
	texts   metric.Int64Histogram
	failed  metric.Int64Counter
}

func newGenerationMetrics(logger *zap.Logger) *generationMetrics {
	m, err := buildGenerationMetrics(otel.Meter(instrumentationName))
	if err != nil {
		logger.Warn("embedding metrics unavailable", zap.Error(err))
		m, _ = buildGenerationMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	}
	return m
}

func buildGenerationMetrics(meter metric.Meter) (*generationMetrics, error) {
	latency, err1 := meter.Float64Histogram("policyrag.embedding.duration",
		metric.WithDescription("Time spent in one embedding call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	texts, err2 := meter.Int64Histogram("policyrag.embedding.texts",
		metric.WithDescription("Texts sent in one embedding call."),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100),
	)
	failed, err3 := meter.Int64Counter("policyrag.embedding.failures",
		metric.WithDescription("Embedding calls that failed after retries."),
		metric.WithUnit("{call}"),
	)
	if err := errors.Join(err1, err2, err3); err != nil {
		return nil, err
	}
	return &generationMetrics{latency: latency, texts: texts, failed: failed}, nil
}

// observe records one call that began at start. kind is "documents" or "query".
func (m *generationMetrics) observe(ctx context.Context, model, kind string, start time.Time, n int, err error) {
	set := metric.WithAttributeSet(attribute.NewSet(
		attribute.String("model", model),
		attribute.String("kind", kind),
	))
	m.latency.Record(ctx, time.Since(start).Seconds(), set)
	if n > 0 {
		m.texts.Record(ctx, int64(n), set)
	}
	if err != nil {
		m.failed.Add(ctx, 1, set)
	}
}
