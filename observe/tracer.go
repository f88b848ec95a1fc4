package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// CallMeta describes one gateway call for telemetry. Tenant and Principal
// are filled in by the pipeline as they become known.
type CallMeta struct {
	Tool      string // Tool name (required)
	Tenant    string // Target tenant id (optional)
	Principal string // Authenticated principal id (optional)
	Code      string // Stable error code of a failed call (optional)
}

// SpanName returns the deterministic span name: tool.call.<tool>.
func (m CallMeta) SpanName() string {
	return "tool.call." + m.Tool
}

func (m CallMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("tool.name", m.Tool)}
	if m.Tenant != "" {
		attrs = append(attrs, attribute.String("tenant.id", m.Tenant))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with call span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a tool call.
	StartSpan(ctx context.Context, meta *CallMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording the final call metadata and error.
	EndSpan(span trace.Span, meta *CallMeta, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// NopTracer returns a tracer that records nothing.
func NopTracer() Tracer {
	return &tracerImpl{tracer: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta *CallMeta) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(append(meta.attributes(), attribute.Bool("tool.error", false))...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, meta *CallMeta, err error) {
	// Principal is only known after authentication; tenant may be resolved late too.
	span.SetAttributes(meta.attributes()...)
	if meta.Principal != "" {
		span.SetAttributes(attribute.String("principal.id", meta.Principal))
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("tool.error", true))
		if meta.Code != "" {
			span.SetAttributes(attribute.String("error.code", meta.Code))
		}
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
