// internal/workers/underwriting/retrieve-underwriting-policies/handler_test.go
package retrieveunderwritingpolicies

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "mortgage-underwriting/internal/common/errors"
	"mortgage-underwriting/internal/common/logger"
	"mortgage-underwriting/internal/underwriting/policies"
)

// ==========================
// Mock Implementations
// ==========================

type mockRetriever struct {
	queries []string
	err     error
}

func (m *mockRetriever) Retrieve(ctx context.Context, query string) (string, error) {
	m.queries = append(m.queries, query)
	if m.err != nil {
		return "", m.err
	}
	return "excerpts for " + query, nil
}

// ==========================
// Execute
// ==========================

func TestHandler_Execute_QueryResolution(t *testing.T) {
	tests := []struct {
		name      string
		input     *Input
		wantQuery string
	}{
		{name: "explicit query", input: &Input{Query: " gift funds ", Stage: "credit"}, wantQuery: "gift funds"},
		{name: "credit stage", input: &Input{Stage: "credit"}, wantQuery: policies.CreditQuery},
		{name: "income stage", input: &Input{Stage: "income"}, wantQuery: policies.IncomeQuery},
		{name: "asset stage", input: &Input{Stage: "ASSET"}, wantQuery: policies.AssetQuery},
		{name: "collateral stage", input: &Input{Stage: "collateral"}, wantQuery: policies.CollateralQuery},
		{name: "decision stage", input: &Input{Stage: "decision"}, wantQuery: policies.DecisionQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retriever := &mockRetriever{}
			h := NewHandler(LoadConfig(), retriever, logger.NewTestLogger(t))

			out, err := h.Execute(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, out.Query)
			assert.Equal(t, "excerpts for "+tt.wantQuery, out.Excerpts)
			assert.Equal(t, []string{tt.wantQuery}, retriever.queries)
		})
	}
}

func TestHandler_Execute_KeywordRetriever(t *testing.T) {
	retriever := policies.NewKeywordRetriever([]string{
		"SECTION 2: CREDIT\nMinimum credit score is 620.",
		"SECTION 5: COLLATERAL\nAppraisal must support value.",
	}, 3)
	h := NewHandler(LoadConfig(), retriever, logger.NewNoOpLogger())

	out, err := h.Execute(context.Background(), &Input{Query: "appraisal"})
	require.NoError(t, err)
	assert.Contains(t, out.Excerpts, "Appraisal must support value.")
	assert.NotContains(t, out.Excerpts, "Minimum credit score")
}

func TestHandler_Execute_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input *Input
	}{
		{name: "empty", input: &Input{}},
		{name: "unknown stage", input: &Input{Stage: "supervisor"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retriever := &mockRetriever{}
			h := NewHandler(LoadConfig(), retriever, logger.NewNoOpLogger())

			_, err := h.Execute(context.Background(), tt.input)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.FromError(err).Code)
			assert.Empty(t, retriever.queries)
		})
	}
}

func TestHandler_Execute_RetrievalFailure(t *testing.T) {
	h := NewHandler(LoadConfig(), &mockRetriever{err: errors.New("connection refused")}, logger.NewNoOpLogger())

	_, err := h.Execute(context.Background(), &Input{Stage: "credit"})
	require.Error(t, err)
	assert.ErrorIs(t, err, policies.ErrRetrievalFailed)

	stdErr := apperrors.FromError(err)
	assert.Equal(t, apperrors.ErrCodePolicyRetrievalFailed, stdErr.Code)
	assert.True(t, stdErr.Retryable)
}
