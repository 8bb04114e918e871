package exporters

import (
	"context"

	"go.opentelemetry.io/otel/sdk/trace"
)

// NoopExporter discards spans. Used when tracing is enabled for span context
// propagation (trace IDs on error responses) without an OTLP collector.
type NoopExporter struct{}

func NewNoopExporter() *NoopExporter {
	return &NoopExporter{}
}

func (c *NoopExporter) ExportSpans(_ context.Context, _ []trace.ReadOnlySpan) error {
	return nil
}

func (c *NoopExporter) Shutdown(_ context.Context) error {
	return nil
}
