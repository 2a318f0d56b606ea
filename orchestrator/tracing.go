package orchestrator

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps a single tracer.Start call per orchestrator stage
// (SPEC_FULL.md DOMAIN STACK: go.opentelemetry.io/otel). Orchestrator.New
// always builds it with NewTracer.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer builds a Tracer backed by an SDK TracerProvider whose
// stdouttrace exporter writes to io.Discard, so spans are produced but not
// kept anywhere.
func NewTracer() *Tracer {
	return NewTracerWithExporter(io.Discard)
}

// NewTracerWithExporter builds a Tracer whose spans are written as JSON to
// w, letting a caller point the stdouttrace exporter somewhere other than
// io.Discard.
func NewTracerWithExporter(w io.Writer) *Tracer {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		// stdouttrace.New only fails on option misuse; Tracer degrades to a
		// no-op provider rather than letting a tracing misconfiguration
		// abort the pipeline.
		return &Tracer{tracer: otel.Tracer("sofa/orchestrator")}
	}
	res := resource.NewSchemaless(semconv.ServiceName("sofa-pipeline"))
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return &Tracer{tracer: provider.Tracer("sofa/orchestrator")}
}

// StartStage starts one span for a named orchestrator stage. Callers must
// call End() on the returned span.
func (t *Tracer) StartStage(ctx context.Context, stage string) (trace.Span, context.Context) {
	ctx, span := t.tracer.Start(ctx, "orchestrator."+stage)
	return span, ctx
}
