package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/policyrag/internal/config"
	"github.com/fyrsmithlabs/policyrag/internal/logging"
)

// Telemetry owns the SDK tracer and meter providers.
type Telemetry struct {
	cfg    config.TelemetryConfig
	logger *logging.Logger

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	degraded atomic.Bool
}

// New builds OTLP exporters for cfg and installs the SDK providers as the
// otel globals. A disabled config yields a no-op instance.
func New(ctx context.Context, cfg config.TelemetryConfig, version string, logger *logging.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	t := &Telemetry{cfg: cfg, logger: logger}
	if !cfg.Enabled {
		return t, nil
	}

	spans, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	metrics, err := newMetricExporter(ctx, cfg)
	if err != nil {
		_ = spans.Shutdown(ctx)
		return nil, err
	}

	t.install(version,
		sdktrace.WithBatcher(spans),
		sdkmetric.NewPeriodicReader(metrics, sdkmetric.WithInterval(cfg.MetricsInterval.Duration())),
	)
	logger.Info(ctx, "telemetry enabled",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("protocol", cfg.Protocol),
		zap.Float64("sample_rate", cfg.SampleRate),
	)
	return t, nil
}

func (t *Telemetry) install(version string, spans sdktrace.TracerProviderOption, reader sdkmetric.Reader) {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(t.cfg.ServiceName),
		semconv.ServiceVersion(version),
	)

	t.tracerProvider = sdktrace.NewTracerProvider(
		spans,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(t.cfg.SampleRate)),
	)
	t.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)

	otel.SetTracerProvider(t.tracerProvider)
	otel.SetMeterProvider(t.meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(t.handleError))
}

// sampler keeps rate of root traces and follows the parent otherwise.
func sampler(rate float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case rate >= 1:
		root = sdktrace.AlwaysSample()
	case rate <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root)
}

func (t *Telemetry) handleError(err error) {
	if !t.degraded.Swap(true) {
		t.logger.Warn(context.Background(), "telemetry export failing, continuing without it", zap.Error(err))
		return
	}
	t.logger.Debug(context.Background(), "telemetry export error", zap.Error(err))
}

// Enabled reports whether SDK providers are installed.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.tracerProvider != nil
}

// Degraded reports whether an export has failed since startup.
func (t *Telemetry) Degraded() bool {
	return t != nil && t.degraded.Load()
}

// Tracer returns a tracer from the installed provider, or the global one.
func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if !t.Enabled() {
		return otel.Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

// Meter returns a meter from the installed provider, or the global one.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// ForceFlush exports everything buffered so far.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	var errs *multierror.Error
	if err := t.tracerProvider.ForceFlush(ctx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("flushing spans: %w", err))
	}
	if err := t.meterProvider.ForceFlush(ctx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("flushing metrics: %w", err))
	}
	return errs.ErrorOrNil()
}

// Shutdown flushes and stops both providers, bounded by the configured
// shutdown timeout when ctx has no deadline.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok && t.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.ShutdownTimeout.Duration())
		defer cancel()
	}

	var errs *multierror.Error
	if err := t.tracerProvider.Shutdown(ctx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
	}
	if err := t.meterProvider.Shutdown(ctx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("meter provider shutdown: %w", err))
	}
	return errs.ErrorOrNil()
}
