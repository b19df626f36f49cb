// internal/underwriting/workflow/engine.go
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mortgage-underwriting/internal/common/logger"
	"mortgage-underwriting/internal/underwriting/applicant"
	"mortgage-underwriting/internal/underwriting/casestate"
	"mortgage-underwriting/internal/underwriting/checkpoint"
	"mortgage-underwriting/internal/underwriting/compliance"
	"mortgage-underwriting/internal/underwriting/router"
)

const tracerName = "mortgage-underwriting/workflow"

var (
	ErrStageFailed     = errors.New("STAGE_EXECUTION_FAILED")
	ErrStageIncomplete = errors.New("stage returned without recording its output")
	ErrDuplicateStage  = errors.New("stage already completed")
	ErrUnknownStage    = errors.New("no handler registered for stage")
	ErrMissingHandlers = errors.New("workflow handlers incomplete")
)

// StageFunc runs one stage against a snapshot of the case and returns the
// changes to merge. It must not modify s.
type StageFunc func(ctx context.Context, s casestate.State) (casestate.Update, error)

// Handlers is the dispatch table of the engine.
type Handlers map[casestate.Stage]StageFunc

// Sanitizer produces the PII-free copy of an application.
type Sanitizer func(applicant.Record) applicant.Record

// Observer receives engine events. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveStage(stage casestate.Stage, duration time.Duration, err error)
	ObserveCheckpoint(err error)
	ObserveDecision(s casestate.State)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(casestate.Stage, time.Duration, error) {}
func (nopObserver) ObserveCheckpoint(error)                            {}
func (nopObserver) ObserveDecision(casestate.State)                    {}

// Engine drives a case from initialization to a final decision, writing a
// checkpoint after every transition. A single case runs synchronously;
// separate cases may run concurrently on the same Engine.
type Engine struct {
	handlers Handlers
	store    checkpoint.Store
	sanitize Sanitizer
	observer Observer
	tracer   trace.Tracer
	logger   logger.Logger
	now      func() time.Time
}

type Option func(*Engine)

func WithStore(s checkpoint.Store) Option   { return func(e *Engine) { e.store = s } }
func WithSanitizer(fn Sanitizer) Option     { return func(e *Engine) { e.sanitize = fn } }
func WithObserver(o Observer) Option        { return func(e *Engine) { e.observer = o } }
func WithTracer(t trace.Tracer) Option      { return func(e *Engine) { e.tracer = t } }
func WithLogger(l logger.Logger) Option     { return func(e *Engine) { e.logger = l } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// New builds an engine. handlers must cover every analysis stage and the
// decision stage.
func New(handlers Handlers, opts ...Option) (*Engine, error) {
	required := append(append([]casestate.Stage{}, casestate.AnalysisStages...), casestate.StageDecision)
	for _, st := range required {
		if handlers[st] == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingHandlers, st)
		}
	}

	e := &Engine{
		handlers: handlers,
		store:    checkpoint.NewMemoryStore(),
		sanitize: compliance.Sanitize,
		observer: nopObserver{},
		tracer:   otel.Tracer(tracerName),
		logger:   logger.NewNoOpLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Store exposes the checkpoint store the engine writes to.
func (e *Engine) Store() checkpoint.Store {
	return e.store
}

// Run evaluates a new application. caseID may be empty, in which case the
// record's case_id (or the default id) is used. The returned state is the
// last checkpoint written and always carries a final decision.
func (e *Engine) Run(ctx context.Context, caseID string, data applicant.Record) (casestate.State, error) {
	ctx, span := e.tracer.Start(ctx, "underwriting.run")
	defer span.End()

	now := e.now()
	s := casestate.New(caseID, data, e.sanitize(data), now)
	runID := uuid.NewString()
	span.SetAttributes(attribute.String("case.id", s.CaseID), attribute.String("run.id", runID))

	log := e.logger.With(map[string]interface{}{"caseId": s.CaseID, "runId": runID})
	log.Info("case initialized", nil)

	if err := e.checkpoint(ctx, runID, s); err != nil {
		return e.fail(span, err)
	}

	final, err := e.drive(ctx, runID, s, log)
	if err != nil {
		return e.fail(span, err)
	}
	return final, nil
}

// Resume continues a case from its latest checkpoint. Stages that already
// completed are never run again; a terminal case is returned as is.
func (e *Engine) Resume(ctx context.Context, caseID string) (casestate.State, error) {
	ctx, span := e.tracer.Start(ctx, "underwriting.resume", trace.WithAttributes(attribute.String("case.id", caseID)))
	defer span.End()

	cp, err := e.store.Latest(ctx, caseID)
	if err != nil {
		return e.fail(span, fmt.Errorf("resume %s: %w", caseID, err))
	}

	log := e.logger.With(map[string]interface{}{"caseId": caseID, "runId": cp.RunID})
	if cp.State.IsTerminal() {
		log.Info("case already decided", map[string]interface{}{"decision": string(cp.State.FinalDecision)})
		return cp.State, nil
	}

	log.Info("resuming case", map[string]interface{}{"stage": cp.Stage.String(), "sequence": cp.Sequence})
	final, err := e.drive(ctx, cp.RunID, cp.State, log)
	if err != nil {
		return e.fail(span, err)
	}
	return final, nil
}

// History returns the checkpoint log of a case, oldest first.
func (e *Engine) History(ctx context.Context, caseID string) ([]checkpoint.Checkpoint, error) {
	return e.store.History(ctx, caseID)
}

func (e *Engine) drive(ctx context.Context, runID string, s casestate.State, log logger.Logger) (casestate.State, error) {
	for !s.IsTerminal() {
		if err := ctx.Err(); err != nil {
			return casestate.State{}, fmt.Errorf("%w: %w", ErrStageFailed, err)
		}

		s = router.Supervise(s, e.now())
		if err := e.checkpoint(ctx, runID, s); err != nil {
			return casestate.State{}, err
		}

		next := s.NextAgent
		if s.IsCompleted(next) {
			return casestate.State{}, fmt.Errorf("%w: %s", ErrDuplicateStage, next)
		}
		handler, ok := e.handlers[next]
		if !ok {
			return casestate.State{}, fmt.Errorf("%w: %s", ErrUnknownStage, next)
		}

		update, err := e.runStage(ctx, next, s, handler)
		if err != nil {
			log.Error("stage failed", map[string]interface{}{"stage": next.String(), "error": err.Error()})
			return casestate.State{}, fmt.Errorf("%w: %s: %w", ErrStageFailed, next, err)
		}

		update.Stage = next
		s = s.Apply(update, e.now())
		if !s.IsCompleted(next) {
			return casestate.State{}, fmt.Errorf("%w: %w: %s", ErrStageFailed, ErrStageIncomplete, next)
		}

		if err := e.checkpoint(ctx, runID, s); err != nil {
			return casestate.State{}, err
		}
		log.Debug("stage completed", map[string]interface{}{"stage": next.String()})
	}

	riskScore := 0
	if s.RiskScore != nil {
		riskScore = *s.RiskScore
	}
	log.Info("case decided", map[string]interface{}{
		"decision":            string(s.FinalDecision),
		"riskScore":           riskScore,
		"humanReviewRequired": s.HumanReviewRequired,
	})
	e.observer.ObserveDecision(s)
	return s, nil
}

func (e *Engine) runStage(ctx context.Context, stage casestate.Stage, s casestate.State, fn StageFunc) (casestate.Update, error) {
	ctx, span := e.tracer.Start(ctx, "underwriting.stage."+stage.String(),
		trace.WithAttributes(attribute.String("case.id", s.CaseID), attribute.String("stage", stage.String())))
	defer span.End()

	start := time.Now()
	update, err := fn(ctx, s.Clone())
	e.observer.ObserveStage(stage, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return update, err
}

func (e *Engine) checkpoint(ctx context.Context, runID string, s casestate.State) error {
	_, err := e.store.Put(ctx, checkpoint.New(runID, s, e.now()))
	e.observer.ObserveCheckpoint(err)
	if err != nil {
		if errors.Is(err, checkpoint.ErrCheckpointFailed) {
			return err
		}
		return fmt.Errorf("%w: %v", checkpoint.ErrCheckpointFailed, err)
	}
	return nil
}

func (e *Engine) fail(span trace.Span, err error) (casestate.State, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return casestate.State{}, err
}
