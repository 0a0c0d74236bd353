package http

import (
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/fyrsmithlabs/policyrag/internal/http"

var (
	latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	sizeBuckets    = []float64{256, 1024, 4096, 16384, 65536, 262144}
)

// requestMetrics records OTel request metrics labelled by method, route and
// final status.
type requestMetrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	size     metric.Int64Histogram
	inFlight metric.Int64UpDownCounter
}

func newRequestMetrics(meter metric.Meter) (*requestMetrics, error) {
	var (
		m    requestMetrics
		err  error
		errs *multierror.Error
	)
	m.requests, err = meter.Int64Counter("policyrag.http.requests",
		metric.WithDescription("HTTP requests served"),
		metric.WithUnit("{request}"))
	errs = multierror.Append(errs, err)

	m.latency, err = meter.Float64Histogram("policyrag.http.request.duration",
		metric.WithDescription("Time from routing to the final response byte"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...))
	errs = multierror.Append(errs, err)

	m.size, err = meter.Int64Histogram("policyrag.http.response.size",
		metric.WithDescription("Response body size"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...))
	errs = multierror.Append(errs, err)

	m.inFlight, err = meter.Int64UpDownCounter("policyrag.http.requests.in_flight",
		metric.WithDescription("Requests currently being served"),
		metric.WithUnit("{request}"))
	errs = multierror.Append(errs, err)

	if err := errs.ErrorOrNil(); err != nil {
		fallback, _ := newRequestMetrics(noop.NewMeterProvider().Meter(instrumentationName))
		return fallback, err
	}
	return &m, nil
}

func (m *requestMetrics) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		start := time.Now()
		m.inFlight.Add(ctx, 1)
		defer m.inFlight.Add(ctx, -1)

		if err := next(c); err != nil {
			// Writes the error response, so the status below is final.
			c.Error(err)
		}

		attrs := metric.WithAttributes(
			attribute.String("method", c.Request().Method),
			attribute.String("route", routeLabel(c.Path())),
			attribute.Int("status", c.Response().Status),
		)
		m.requests.Add(ctx, 1, attrs)
		m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
		m.size.Record(ctx, c.Response().Size, attrs)
		return nil
	}
}

// routeLabel keeps label cardinality bounded: unmatched requests have no
// route and share "/".
func routeLabel(route string) string {
	if route == "" {
		return "/"
	}
	return route
}
