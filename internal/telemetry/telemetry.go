// Package telemetry wraps the stage boundaries of C1-C10 in OpenTelemetry
// spans. Grounded on manifold's internal/telemetry/otel.go Setup function —
// the TracerProvider/resource construction and deferred-shutdown shape are
// kept; the OTLP gRPC exporter is dropped (nothing in this pack's go.mod
// vendors an OTLP exporter package, and spec.md's Non-goals explicitly
// exclude a dedicated metrics/observability backend) in favour of the SDK's
// default no-op span processor, which still lets StartSpan/End run for free
// and accepts a real exporter being wired in later without an API change.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/sentinelrag/sentinel"

// Setup installs a process-wide TracerProvider and returns a shutdown func
// for ordered termination (spec §9's AppState lifecycle: tracer provider
// flushes alongside the audit buffer and store clients on shutdown).
// serviceName is accepted but not recorded on the provider or on spans.
func Setup(serviceName string) (shutdown func(context.Context) error) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	_ = serviceName
	return tp.Shutdown
}

// StartSpan starts a span named "<component>.<stage>" — the unit every C1-C10
// boundary uses to mark entry (spec §9: "wrap each stage boundary").
func StartSpan(ctx context.Context, component, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tr := otel.Tracer(tracerName)
	all := append([]attribute.KeyValue{attribute.String("component", component)}, attrs...)
	return tr.Start(ctx, component+"."+stage, trace.WithAttributes(all...))
}

// RecordError marks span as failed and attaches err, then ends it — the one
// call site every coordinator's failure path uses instead of duplicating
// span.RecordError/SetStatus/End everywhere.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
