// Package tracing wires up an OpenTelemetry TracerProvider for the
// kernel's spans (the matching engine's submit_order is the one traced
// call). Grounded on
// repo/services/marketfeeds/common/otel/otel.go's Setup/newTracerProvider
// pair, trimmed to tracing only — the kernel exports metrics via
// Prometheus (internal/metrics), not an OTel metric pipeline, so the
// meter provider half is dropped rather than carried unused.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans emitted by the kernel (the matching
// engine's Submit span).
const TracerName = "github.com/rindex/perpkernel"

// Setup installs a global TracerProvider that exports spans to stdout (as
// pretty-printed JSON), returning a shutdown func for graceful exit.
// Passing enabled=false installs no provider and leaves the global no-op
// one in place, for tests and
// for deployments that don't want tracing overhead.
func Setup(ctx context.Context, enabled bool) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !enabled {
		// The global TracerProvider defaults to a no-op implementation
		// until SetTracerProvider is called, so disabling tracing is
		// simply a matter of not installing a real one.
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter, trace.WithBatchTimeout(0)),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

// Tracer returns the kernel's named tracer.
func Tracer() oteltrace.Tracer {
	return otel.Tracer(TracerName)
}
