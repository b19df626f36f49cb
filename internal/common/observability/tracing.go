package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"mortgage-underwriting/internal/common/logger"
)

func newTracerProvider(serviceName string, log logger.Logger) *sdktrace.TracerProvider {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
		sdktrace.WithBatcher(&logExporter{logger: log}),
	)
}

// logExporter writes finished spans to the structured log.
type logExporter struct {
	logger logger.Logger
}

func (e *logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		fields := map[string]interface{}{
			"span":       s.Name(),
			"traceId":    s.SpanContext().TraceID().String(),
			"spanId":     s.SpanContext().SpanID().String(),
			"durationMs": s.EndTime().Sub(s.StartTime()).Milliseconds(),
			"status":     s.Status().Code.String(),
		}
		for _, kv := range s.Attributes() {
			fields[string(kv.Key)] = kv.Value.Emit()
		}
		e.logger.Debug("span finished", fields)
	}
	return nil
}

func (e *logExporter) Shutdown(context.Context) error { return nil }
