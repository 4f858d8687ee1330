// Package otelsetup installs the process-wide OpenTelemetry TracerProvider
// the conductor's otel.Tracer() calls bind to. Grounded on the shape of the
// pack's fuller OTLP-exporting tracer setups, trimmed to span creation only
// (no exporter wiring) since the orchestrator itself has no Non-goal-scoped
// network telemetry sink to ship spans to; a no-op/default tracer is used
// until Install is called.
package otelsetup

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Install registers a process-wide SDK TracerProvider tagged with
// serviceName, returning a shutdown func to call before exit. Spans are
// created and sampled but not exported anywhere by default; callers who
// need an exporter can build their own sdktrace.TracerProvider instead of
// calling Install.
func Install(serviceName string) (shutdown func(context.Context) error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}
