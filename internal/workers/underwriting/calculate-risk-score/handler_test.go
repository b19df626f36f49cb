// internal/workers/underwriting/calculate-risk-score/handler_test.go
package calculateriskscore

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "mortgage-underwriting/internal/common/errors"
	"mortgage-underwriting/internal/common/logger"
)

// ==========================
// Test Helper Functions
// ==========================

func strongApplication() map[string]interface{} {
	return map[string]interface{}{
		"case_id":      "MTG-STRONG",
		"credit_score": 780.0,
		"employment":   map[string]interface{}{"monthly_income": 10000.0, "years": 8.0, "type": "W2"},
		"loan":         map[string]interface{}{"amount": 300000.0, "monthly_piti": 2000.0},
		"property":     map[string]interface{}{"appraised_value": 400000.0, "type": "single_family"},
		"debts":        map[string]interface{}{"auto_loan": 500.0},
		"assets": map[string]interface{}{
			"liquid_assets_total": 40000.0,
			"recent_deposits": []interface{}{
				map[string]interface{}{"amount": 3000.0, "date": "2024-05-01"},
				map[string]interface{}{"amount": 2000.0, "date": "2024-05-15"},
			},
		},
	}
}

func weakApplication() map[string]interface{} {
	return map[string]interface{}{
		"credit_score": 600.0,
		"employment":   map[string]interface{}{"monthly_income": 6000.0},
		"loan":         map[string]interface{}{"amount": 300000.0, "monthly_piti": 2500.0},
		"property":     map[string]interface{}{"appraised_value": 400000.0},
		"debts":        map[string]interface{}{"credit_cards": 2000.0},
		"assets":       map[string]interface{}{"liquid_assets_total": 30000.0},
	}
}

// ==========================
// Execute
// ==========================

func TestHandler_Execute(t *testing.T) {
	tests := []struct {
		name         string
		application  map[string]interface{}
		wantDecision string
		wantScore    int
		wantReasons  int
		wantReview   bool
		wantTier     string
		wantDeposits int
	}{
		{
			name:         "strong applicant",
			application:  strongApplication(),
			wantDecision: "APPROVED",
			wantScore:    0,
			wantReasons:  0,
			wantReview:   false,
			wantTier:     "Excellent",
			wantDeposits: 1,
		},
		{
			name:         "hard fails",
			application:  weakApplication(),
			wantDecision: "DENIED",
			wantScore:    80,
			wantReasons:  2,
			wantReview:   true,
			wantTier:     "Below Minimum",
			wantDeposits: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(LoadConfig(), logger.NewTestLogger(t))

			out, err := h.Execute(context.Background(), &Input{CaseID: "MTG-1", Application: tt.application})
			require.NoError(t, err)

			assert.Equal(t, "MTG-1", out.CaseID)
			assert.Equal(t, tt.wantDecision, out.Decision)
			assert.Equal(t, tt.wantScore, out.RiskScore)
			assert.Len(t, out.Reasons, tt.wantReasons)
			assert.Equal(t, tt.wantReview, out.HumanReviewRequired)
			assert.Equal(t, tt.wantTier, out.CreditTier)
			assert.Equal(t, tt.wantDeposits, out.LargeDepositCount)
			assert.NotNil(t, out.Conditions)
		})
	}
}

func TestHandler_Execute_IsDeterministic(t *testing.T) {
	h := NewHandler(LoadConfig(), logger.NewNoOpLogger())

	first, err := h.Execute(context.Background(), &Input{Application: weakApplication()})
	require.NoError(t, err)
	second, err := h.Execute(context.Background(), &Input{Application: weakApplication()})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestHandler_Execute_EmptyApplicationSerializes(t *testing.T) {
	h := NewHandler(LoadConfig(), logger.NewNoOpLogger())

	out, err := h.Execute(context.Background(), &Input{Application: map[string]interface{}{}})
	require.NoError(t, err)
	assert.True(t, math.IsInf(out.Metrics.DTI, 1))
	assert.Equal(t, "DENIED", out.Decision)

	// Process variables must stay valid JSON even with infinite ratios.
	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"dti":null`)
}

func TestHandler_Execute_InvalidInput(t *testing.T) {
	h := NewHandler(LoadConfig(), logger.NewNoOpLogger())

	_, err := h.Execute(context.Background(), &Input{})
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.FromError(err).Code)

	_, err = h.Execute(context.Background(), &Input{Application: map[string]interface{}{"loan": "big"}})
	assert.Equal(t, apperrors.ErrCodeApplicationValidationFailed, apperrors.FromError(err).Code)
}
