// Package tracing holds the process-wide tracer. When no tracer is set every
// helper degrades to a no-op so packages can instrument unconditionally.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer sets the tracer used by StartSpan. Called once at startup.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan starts a span with the given name. Callers always get a usable
// span back; with no tracer configured it is the ambient (possibly no-op) span.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

// activeSpan returns the span recording on the context, nil when tracing is
// off or the span is a no-op.
func activeSpan(ctx context.Context) trace.Span {
	if tracer == nil {
		return nil
	}
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}
	return span
}

// GetTraceID returns the active trace ID, or "" when not tracing. Surfaced on
// error responses so clients can quote it back to support.
func GetTraceID(ctx context.Context) string {
	span := activeSpan(ctx)
	if span == nil {
		return ""
	}
	return span.SpanContext().TraceID().String()
}
