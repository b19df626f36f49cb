package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mortgage-underwriting/internal/common/logger"
)

type capturingLogger struct {
	logger.Logger
	debug []map[string]interface{}
}

func (c *capturingLogger) Debug(msg string, fields map[string]interface{}) {
	c.debug = append(c.debug, fields)
}

func TestLogExporter_ExportSpans(t *testing.T) {
	log := &capturingLogger{Logger: logger.NewNoOpLogger()}
	exp := &logExporter{logger: log}

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	stub := tracetest.SpanStub{
		Name:       "underwriting.stage.credit",
		StartTime:  start,
		EndTime:    start.Add(1500 * time.Millisecond),
		Attributes: []attribute.KeyValue{attribute.String("case.id", "MTG-1")},
	}

	err := exp.ExportSpans(context.Background(), tracetest.SpanStubs{stub}.Snapshots())
	require.NoError(t, err)

	require.Len(t, log.debug, 1)
	assert.Equal(t, "underwriting.stage.credit", log.debug[0]["span"])
	assert.Equal(t, int64(1500), log.debug[0]["durationMs"])
	assert.Equal(t, "MTG-1", log.debug[0]["case.id"])
	assert.NoError(t, exp.Shutdown(context.Background()))
}

func TestNew_RecordsWithoutPanicking(t *testing.T) {
	o := New(Options{ServiceName: "underwriting-test", TracingEnabled: true, Logger: logger.NewTestLogger(t)})
	defer o.Shutdown()

	ctx, span := o.StartSpan(context.Background(), "test.span")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	o.RecordJobProcessed(ctx, "success")
	o.RecordJobDuration(ctx, 10*time.Millisecond, "success")
	o.RecordCaseDuration(ctx, 20*time.Millisecond, "APPROVED")
}

func TestObservability_ZeroValueIsSafe(t *testing.T) {
	var o Observability
	o.RecordJobProcessed(context.Background(), "success")
	o.RecordCaseDuration(context.Background(), time.Millisecond, "failed")
	o.Shutdown()
}
