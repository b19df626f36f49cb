// internal/workers/underwriting/notify-underwriter/handler.go
package notifyunderwriter

import (
	"context"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"mortgage-underwriting/internal/common/camunda"
	apperrors "mortgage-underwriting/internal/common/errors"
	"mortgage-underwriting/internal/common/logger"
	"mortgage-underwriting/internal/underwriting/notify"
)

const (
	TaskType = "notify-underwriter"
)

// Notifier sends the review notification for a stored case.
type Notifier interface {
	NotifyReview(ctx context.Context, caseID string) (notify.Result, error)
}

type Handler struct {
	config       *Config
	notifier     Notifier
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, notifier Notifier, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		notifier:     notifier,
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
	caseID := strings.TrimSpace(input.CaseID)
	if caseID == "" {
		return nil, apperrors.NewInvalidInputError("caseId is required")
	}

	result, err := h.notifier.NotifyReview(ctx, caseID)
	if err != nil {
		return nil, err
	}

	channels := result.Channels
	if channels == nil {
		channels = []string{}
	}

	h.logger.Info("underwriter notified", map[string]interface{}{
		"caseId":         caseID,
		"notificationId": result.NotificationID,
		"status":         result.Status,
	})

	return &Output{
		NotificationID: result.NotificationID,
		Status:         result.Status,
		Channels:       channels,
		SentAt:         result.SentAt,
	}, nil
}
