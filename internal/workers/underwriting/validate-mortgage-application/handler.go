// internal/workers/underwriting/validate-mortgage-application/handler.go
package validatemortgageapplication

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"mortgage-underwriting/internal/common/camunda"
	apperrors "mortgage-underwriting/internal/common/errors"
	"mortgage-underwriting/internal/common/logger"
	"mortgage-underwriting/internal/common/validation"
)

const (
	TaskType = "validate-mortgage-application"
)

// Handler checks the shape of an applicant record. An invalid record is a
// normal outcome reported through isValid, so the process can route it to a
// correction task instead of an incident.
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

	result := validation.ValidateApplicant(input.Application)
	errs := result.Errors
	if errs == nil {
		errs = []validation.ValidationError{}
	}

	if !result.Valid {
		h.logger.Warn("application failed validation", map[string]interface{}{
			"caseId": input.CaseID,
			"errors": result.GetErrorMessages(),
		})
	}

	return &Output{
		CaseID:           input.CaseID,
		IsValid:          result.Valid,
		ValidationErrors: errs,
	}, nil
}
