// internal/workers/underwriting/calculate-risk-score/handler.go
package calculateriskscore

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"mortgage-underwriting/internal/common/camunda"
	apperrors "mortgage-underwriting/internal/common/errors"
	"mortgage-underwriting/internal/common/logger"
	"mortgage-underwriting/internal/underwriting/applicant"
	"mortgage-underwriting/internal/underwriting/calculators"
	"mortgage-underwriting/internal/underwriting/scoring"
	"mortgage-underwriting/internal/underwriting/service"
)

const (
	TaskType = "calculate-risk-score"
)

// Handler scores an application deterministically, without any generated
// analysis. Processes use it for pre-screening before the full evaluation.
type Handler struct {
	config       *Config
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
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

func (h *Handler) Execute(_ context.Context, input *Input) (*Output, error) {
	if input.Application == nil {
		return nil, apperrors.NewInvalidInputError("application is required")
	}
	record := applicant.Record(input.Application)
	if err := service.Validate(record); err != nil {
		return nil, err
	}

	metrics := applicant.Extract(record)
	result := scoring.Score(metrics)
	deposits := calculators.LargeDeposits(applicant.Deposits(record), applicant.MonthlyIncome(record))

	h.logger.Info("risk score calculated", map[string]interface{}{
		"caseId":    input.CaseID,
		"riskScore": result.RiskScore,
		"decision":  result.Decision,
	})

	return &Output{
		CaseID:              input.CaseID,
		RiskScore:           result.RiskScore,
		Decision:            string(result.Decision),
		Conditions:          result.Conditions,
		Reasons:             result.Reasons,
		HumanReviewRequired: scoring.RequiresHumanReview(result, nil),
		CreditTier:          calculators.CreditTier(metrics.CreditScore).Tier,
		LargeDepositCount:   deposits.Count,
		Metrics:             metrics,
	}, nil
}
