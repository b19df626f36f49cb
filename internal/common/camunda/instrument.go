// internal/common/camunda/instrument.go
package camunda

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Job outcomes, as seen from the commands a handler issued.
const (
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobBPMNError = "bpmn_error"
	JobUnhandled = "unhandled"
)

// JobObserver receives one span and one measurement per handled job.
type JobObserver interface {
	StartSpan(ctx context.Context, name string) (context.Context, trace.Span)
	RecordJobProcessed(ctx context.Context, status string)
	RecordJobDuration(ctx context.Context, duration time.Duration, status string)
}

// JobMetrics tracks in-flight and finished jobs per task type.
type JobMetrics interface {
	JobStarted(taskType string)
	JobFinished(taskType, outcome string, duration time.Duration)
}

// Instrumentation bundles the optional job hooks. Either field may be nil.
type Instrumentation struct {
	Observer JobObserver
	Metrics  JobMetrics
}

// Instrument wraps handle so every job is traced and counted under its
// outcome.
func Instrument(taskType string, handle worker.JobHandler, in Instrumentation) worker.JobHandler {
	if in.Observer == nil && in.Metrics == nil {
		return handle
	}
	return func(client worker.JobClient, job entities.Job) {
		ctx := context.Background()
		var span trace.Span
		if in.Observer != nil {
			ctx, span = in.Observer.StartSpan(ctx, "job "+taskType)
			defer span.End()
			span.SetAttributes(
				attribute.String("job.type", taskType),
				attribute.Int64("job.key", job.Key),
			)
		}
		if in.Metrics != nil {
			in.Metrics.JobStarted(taskType)
		}

		tracked := &trackingClient{JobClient: client, status: JobUnhandled}
		start := time.Now()
		handle(tracked, job)
		elapsed := time.Since(start)

		if in.Metrics != nil {
			in.Metrics.JobFinished(taskType, tracked.status, elapsed)
		}
		if in.Observer != nil {
			span.SetAttributes(attribute.String("job.status", tracked.status))
			in.Observer.RecordJobProcessed(ctx, tracked.status)
			in.Observer.RecordJobDuration(ctx, elapsed, tracked.status)
		}
	}
}

// trackingClient remembers the last command a handler started.
type trackingClient struct {
	worker.JobClient
	status string
}

func (c *trackingClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	c.status = JobCompleted
	return c.JobClient.NewCompleteJobCommand()
}

func (c *trackingClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	c.status = JobFailed
	return c.JobClient.NewFailJobCommand()
}

func (c *trackingClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	c.status = JobBPMNError
	return c.JobClient.NewThrowErrorCommand()
}
