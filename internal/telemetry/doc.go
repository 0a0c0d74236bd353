// Package telemetry installs the OpenTelemetry SDK for policyrag.
//
// Instrumented packages obtain tracers and meters from the otel globals at
// init time. Those are no-ops until New installs real providers, after which
// spans from the vector stores and the HTTP middleware, and the embedding and
// request metrics, are exported over OTLP to a collector.
//
//	tel, err := telemetry.New(ctx, cfg.Telemetry, version, logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// When telemetry is disabled New returns an instance whose methods are no-ops.
// Exporter failures after startup are logged and mark the instance degraded;
// they never fail a request.
package telemetry
