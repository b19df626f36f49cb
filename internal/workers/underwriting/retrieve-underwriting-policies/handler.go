// internal/workers/underwriting/retrieve-underwriting-policies/handler.go
package retrieveunderwritingpolicies

import (
	"context"
	"fmt"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"mortgage-underwriting/internal/common/camunda"
	apperrors "mortgage-underwriting/internal/common/errors"
	"mortgage-underwriting/internal/common/logger"
	"mortgage-underwriting/internal/underwriting/casestate"
	"mortgage-underwriting/internal/underwriting/policies"
)

const (
	TaskType = "retrieve-underwriting-policies"
)

var stageQueries = map[casestate.Stage]string{
	casestate.StageCredit:     policies.CreditQuery,
	casestate.StageIncome:     policies.IncomeQuery,
	casestate.StageAsset:      policies.AssetQuery,
	casestate.StageCollateral: policies.CollateralQuery,
	casestate.StageDecision:   policies.DecisionQuery,
}

type Handler struct {
	config       *Config
	retriever    policies.Retriever
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, retriever policies.Retriever, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		retriever:    retriever,
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
	query, err := resolveQuery(input)
	if err != nil {
		return nil, err
	}

	excerpts, err := h.retriever.Retrieve(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", policies.ErrRetrievalFailed, err)
	}

	h.logger.Debug("policies retrieved", map[string]interface{}{
		"query": query,
		"chars": len(excerpts),
	})

	return &Output{Query: query, Excerpts: excerpts}, nil
}

func resolveQuery(input *Input) (string, error) {
	if q := strings.TrimSpace(input.Query); q != "" {
		return q, nil
	}
	stage := casestate.Stage(strings.ToLower(strings.TrimSpace(input.Stage)))
	if stage == "" {
		return "", apperrors.NewInvalidInputError("query or stage is required")
	}
	q, ok := stageQueries[stage]
	if !ok {
		return "", apperrors.NewInvalidInputError(fmt.Sprintf("no policy query for stage %q", input.Stage))
	}
	return q, nil
}
