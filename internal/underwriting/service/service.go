// internal/underwriting/service/service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "mortgage-underwriting/internal/common/errors"
	"mortgage-underwriting/internal/common/logger"
	"mortgage-underwriting/internal/common/validation"
	"mortgage-underwriting/internal/underwriting/applicant"
	"mortgage-underwriting/internal/underwriting/casestate"
	"mortgage-underwriting/internal/underwriting/checkpoint"
	"mortgage-underwriting/internal/underwriting/notify"
	"mortgage-underwriting/internal/underwriting/scoring"
	"mortgage-underwriting/internal/underwriting/store"
)

// Runner is the part of the workflow engine the service drives.
type Runner interface {
	Run(ctx context.Context, caseID string, data applicant.Record) (casestate.State, error)
	Resume(ctx context.Context, caseID string) (casestate.State, error)
	History(ctx context.Context, caseID string) ([]checkpoint.Checkpoint, error)
}

// CaseRecorder receives the end to end duration of each run.
type CaseRecorder interface {
	RecordCaseDuration(ctx context.Context, duration time.Duration, outcome string)
}

// Summary is the decision view returned to callers.
type Summary struct {
	CaseID              string           `json:"case_id"`
	FinalDecision       scoring.Decision `json:"final_decision"`
	RiskScore           *int             `json:"risk_score"`
	Conditions          []string         `json:"conditions"`
	Reasons             []string         `json:"reasons"`
	HumanReviewRequired bool             `json:"human_review_required"`
	DecisionMemo        *string          `json:"decision_memo"`
}

func Summarize(s casestate.State) Summary {
	conditions := s.Conditions
	if conditions == nil {
		conditions = []string{}
	}
	reasons := s.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return Summary{
		CaseID:              s.CaseID,
		FinalDecision:       s.FinalDecision,
		RiskScore:           s.RiskScore,
		Conditions:          conditions,
		Reasons:             reasons,
		HumanReviewRequired: s.HumanReviewRequired,
		DecisionMemo:        s.DecisionMemo,
	}
}

type Service struct {
	runner   Runner
	store    store.Store
	notifier notify.Notifier
	recorder CaseRecorder
	logger   logger.Logger
	timeout  time.Duration
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n notify.Notifier) Option  { return func(s *Service) { s.notifier = n } }
func WithCaseRecorder(r CaseRecorder) Option { return func(s *Service) { s.recorder = r } }
func WithLogger(l logger.Logger) Option      { return func(s *Service) { s.logger = l } }
func WithTimeout(d time.Duration) Option     { return func(s *Service) { s.timeout = d } }
func WithClock(now func() time.Time) Option  { return func(s *Service) { s.now = now } }

func New(runner Runner, results store.Store, opts ...Option) *Service {
	s := &Service{
		runner: runner,
		store:  results,
		logger: logger.NewNoOpLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks the applicant record shape. An invalid record yields an
// APPLICATION_VALIDATION_FAILED error carrying every violation.
func Validate(data applicant.Record) error {
	result := validation.ValidateApplicant(map[string]interface{}(data))
	if result.Valid {
		return nil
	}
	stdErr := apperrors.NewApplicationValidationFailedError(strings.Join(result.GetErrorMessages(), "; "))
	stdErr.Metadata = map[string]interface{}{"validationErrors": result.Errors}
	return stdErr
}

// Evaluate validates, runs and stores a new case, then notifies reviewers
// when the decision needs a human. Notification failures are logged only.
func (s *Service) Evaluate(ctx context.Context, caseID string, data applicant.Record) (casestate.State, error) {
	if err := Validate(data); err != nil {
		return casestate.State{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := s.now()
	final, err := s.runner.Run(ctx, caseID, data)
	s.record(ctx, start, final, err)
	if err != nil {
		return casestate.State{}, err
	}

	if err := s.finish(ctx, final); err != nil {
		return casestate.State{}, err
	}
	return final, nil
}

// Submit is Evaluate reduced to the decision summary.
func (s *Service) Submit(ctx context.Context, caseID string, data applicant.Record) (Summary, error) {
	final, err := s.Evaluate(ctx, caseID, data)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(final), nil
}

// Resume continues an interrupted case from its latest checkpoint. A case
// that was already stored as decided is returned without side effects.
func (s *Service) Resume(ctx context.Context, caseID string) (Summary, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := s.now()
	final, err := s.runner.Resume(ctx, caseID)
	s.record(ctx, start, final, err)
	if err != nil {
		return Summary{}, err
	}

	if stored, err := s.store.Get(ctx, final.CaseID); err == nil && stored.IsTerminal() {
		return Summarize(stored), nil
	}
	if err := s.finish(ctx, final); err != nil {
		return Summary{}, err
	}
	return Summarize(final), nil
}

func (s *Service) Get(ctx context.Context, caseID string) (casestate.State, error) {
	return s.store.Get(ctx, caseID)
}

func (s *Service) Checkpoints(ctx context.Context, caseID string) ([]checkpoint.Checkpoint, error) {
	return s.runner.History(ctx, caseID)
}

// NotifyReview sends the review notification for a stored case.
func (s *Service) NotifyReview(ctx context.Context, caseID string) (notify.Result, error) {
	c, err := s.store.Get(ctx, caseID)
	if err != nil {
		return notify.Result{}, err
	}
	if s.notifier == nil {
		return notify.Result{Status: notify.StatusDisabled, Channels: []string{}}, nil
	}
	return s.notifier.NotifyReview(ctx, c)
}

func (s *Service) finish(ctx context.Context, final casestate.State) error {
	if err := s.store.Save(ctx, final); err != nil {
		return fmt.Errorf("save case %s: %w", final.CaseID, err)
	}

	if !final.HumanReviewRequired || s.notifier == nil {
		return nil
	}
	result, err := s.notifier.NotifyReview(ctx, final)
	if err != nil {
		s.logger.Warn("review notification failed", map[string]interface{}{
			"caseId": final.CaseID,
			"error":  err.Error(),
		})
		return nil
	}
	s.logger.Info("review notification sent", map[string]interface{}{
		"caseId":         final.CaseID,
		"notificationId": result.NotificationID,
		"status":         result.Status,
	})
	return nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) record(ctx context.Context, start time.Time, final casestate.State, err error) {
	if s.recorder == nil {
		return
	}
	outcome := string(final.FinalDecision)
	if err != nil {
		outcome = "failed"
	}
	s.recorder.RecordCaseDuration(ctx, s.now().Sub(start), outcome)
}

// IsNotFound reports whether err means the case or its checkpoints do not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrCaseNotFound) || errors.Is(err, checkpoint.ErrNotFound)
}
