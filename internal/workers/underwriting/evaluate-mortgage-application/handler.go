// internal/workers/underwriting/evaluate-mortgage-application/handler.go
package evaluatemortgageapplication

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"mortgage-underwriting/internal/common/camunda"
	apperrors "mortgage-underwriting/internal/common/errors"
	"mortgage-underwriting/internal/common/logger"
	"mortgage-underwriting/internal/underwriting/applicant"
	"mortgage-underwriting/internal/underwriting/service"
)

const (
	TaskType = "evaluate-mortgage-application"
)

// Evaluator runs, stores and notifies a full underwriting case.
type Evaluator interface {
	Submit(ctx context.Context, caseID string, data applicant.Record) (service.Summary, error)
}

type Handler struct {
	config       *Config
	evaluator    Evaluator
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, evaluator Evaluator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		evaluator:    evaluator,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := camunda.DecodeVariables(job, &input); err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	if err := camunda.CompleteJob(ctx, client, job, output); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{"jobKey": job.Key, "error": err.Error()})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.Application == nil {
		return nil, apperrors.NewInvalidInputError("application is required")
	}

	caseID := input.CaseID
	if caseID == "" {
		caseID = applicant.AsString(input.Application["case_id"])
	}

	summary, err := h.evaluator.Submit(ctx, caseID, applicant.Record(input.Application))
	if err != nil {
		return nil, err
	}

	h.logger.Info("case evaluated", map[string]interface{}{
		"caseId":      summary.CaseID,
		"decision":    summary.FinalDecision,
		"humanReview": summary.HumanReviewRequired,
	})

	output := &Output{
		CaseID:              summary.CaseID,
		FinalDecision:       string(summary.FinalDecision),
		RiskScore:           summary.RiskScore,
		Conditions:          summary.Conditions,
		Reasons:             summary.Reasons,
		HumanReviewRequired: summary.HumanReviewRequired,
	}
	if h.config.IncludeMemo && summary.DecisionMemo != nil {
		output.DecisionMemo = *summary.DecisionMemo
	}
	return output, nil
}
