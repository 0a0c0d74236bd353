package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fyrsmithlabs/policyrag/internal/config"
	"github.com/fyrsmithlabs/policyrag/internal/logging"
)

// TestTelemetry installs SDK providers backed by in-memory recorders.
type TestTelemetry struct {
	*Telemetry

	Spans  *tracetest.SpanRecorder
	Reader *sdkmetric.ManualReader
}

// NewTestTelemetry installs recording providers as the otel globals and
// shuts them down when tb finishes.
func NewTestTelemetry(tb testing.TB) *TestTelemetry {
	tb.Helper()

	cfg := config.Default().Telemetry
	cfg.Enabled = true

	tt := &TestTelemetry{
		Telemetry: &Telemetry{cfg: cfg, logger: logging.Nop()},
		Spans:     tracetest.NewSpanRecorder(),
		Reader:    sdkmetric.NewManualReader(),
	}
	tt.install("test", sdktrace.WithSpanProcessor(tt.Spans), tt.Reader)
	tb.Cleanup(func() { _ = tt.Shutdown(context.Background()) })
	return tt
}

// SpanByName returns the first ended span called name, or nil.
func (t *TestTelemetry) SpanByName(name string) sdktrace.ReadOnlySpan {
	for _, s := range t.Spans.Ended() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// SpanNames lists ended spans in end order.
func (t *TestTelemetry) SpanNames() []string {
	var names []string
	for _, s := range t.Spans.Ended() {
		names = append(names, s.Name())
	}
	return names
}

// SpanAttribute returns the value of key on span, and whether it was set.
func SpanAttribute(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

// Metric collects once and returns the named metric, or false.
func (t *TestTelemetry) Metric(ctx context.Context, name string) (metricdata.Metrics, bool, error) {
	var rm metricdata.ResourceMetrics
	if err := t.Reader.Collect(ctx, &rm); err != nil {
		return metricdata.Metrics{}, false, err
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true, nil
			}
		}
	}
	return metricdata.Metrics{}, false, nil
}
