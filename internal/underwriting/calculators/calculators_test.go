// internal/underwriting/calculators/calculators_test.go
package calculators

import (
	"encoding/json"
	"errors"
	"testing"

	"mortgage-underwriting/internal/underwriting/applicant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Ratio Calculators
// ==========================

func TestDTI(t *testing.T) {
	tests := []struct {
		name     string
		debt     float64
		income   float64
		ratio    float64
		status   string
		hasError bool
	}{
		{name: "acceptable", debt: 3000, income: 10000, ratio: 0.3, status: "Acceptable"},
		{name: "boundary acceptable", debt: 4300, income: 10000, ratio: 0.43, status: "Acceptable"},
		{name: "high", debt: 4700, income: 10000, ratio: 0.47, status: "High"},
		{name: "boundary high", debt: 5000, income: 10000, ratio: 0.5, status: "High"},
		{name: "excessive", debt: 5500, income: 10000, ratio: 0.55, status: "Excessive"},
		{name: "zero income", debt: 100, income: 0, hasError: true},
		{name: "negative income", debt: 100, income: -5, hasError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := DTI(tt.debt, tt.income)
			if tt.hasError {
				require.Error(t, err)
				var de *DomainError
				assert.True(t, errors.As(err, &de))
				assert.Equal(t, "Monthly income must be > 0", de.Message)
				assert.Nil(t, res)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ratio, res.DTIRatio)
			assert.Equal(t, tt.status, res.Status)
		})
	}
}

func TestLTV(t *testing.T) {
	tests := []struct {
		name   string
		loan   float64
		value  float64
		status string
	}{
		{"excellent", 300000, 400000, "Excellent"},
		{"boundary excellent", 320000, 400000, "Excellent"},
		{"good", 360000, 400000, "Good"},
		{"high", 380000, 400000, "High"},
		{"boundary high", 388000, 400000, "High"},
		{"excessive", 396000, 400000, "Excessive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := LTV(tt.loan, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
		})
	}

	_, err := LTV(100, 0)
	assert.EqualError(t, err, "Property value must be > 0")
}

func TestHousingRatio(t *testing.T) {
	tests := []struct {
		payment float64
		status  string
	}{
		{2800, "Acceptable"},
		{3000, "Elevated"},
		{3500, "Elevated"},
		{3600, "High"},
	}

	for _, tt := range tests {
		res, err := HousingRatio(tt.payment, 10000)
		require.NoError(t, err)
		assert.Equal(t, tt.status, res.Status, "payment %v", tt.payment)
	}

	_, err := HousingRatio(1000, 0)
	assert.Error(t, err)
}

func TestReserves(t *testing.T) {
	t.Run("adequate", func(t *testing.T) {
		res, err := Reserves(10000, 2500, 2)
		require.NoError(t, err)
		assert.Equal(t, 4.0, res.MonthsCoverage)
		assert.Equal(t, 5000.0, res.RequiredAmount)
		assert.Equal(t, 5000.0, res.SurplusDeficit)
		assert.Equal(t, "Adequate", res.Status)
	})

	t.Run("insufficient with deficit", func(t *testing.T) {
		res, err := Reserves(3000, 2000, 2)
		require.NoError(t, err)
		assert.Equal(t, 1.5, res.MonthsCoverage)
		assert.Equal(t, -1000.0, res.SurplusDeficit)
		assert.Equal(t, "Insufficient", res.Status)
	})

	t.Run("exact coverage is adequate", func(t *testing.T) {
		res, err := Reserves(4000, 2000, 2)
		require.NoError(t, err)
		assert.Equal(t, "Adequate", res.Status)
	})

	t.Run("default required months", func(t *testing.T) {
		res, err := Reserves(4000, 2000, 0)
		require.NoError(t, err)
		assert.Equal(t, DefaultReserveMonths, res.RequiredMonths)
	})

	t.Run("zero payment", func(t *testing.T) {
		_, err := Reserves(4000, 0, 2)
		assert.EqualError(t, err, "Monthly payment must be > 0")
	})
}

// ==========================
// Credit Tier
// ==========================

func TestCreditTier(t *testing.T) {
	tests := []struct {
		score int
		tier  string
		note  string
	}{
		{800, "Excellent", "Best rates available"},
		{740, "Excellent", "Best rates available"},
		{739, "Very Good", "Favorable rates"},
		{700, "Very Good", "Favorable rates"},
		{660, "Good", "Standard rates"},
		{620, "Fair", "Higher rates, may require compensating factors"},
		{619, "Below Minimum", "Does not meet conventional loan minimum"},
		{0, "Below Minimum", "Does not meet conventional loan minimum"},
	}

	for _, tt := range tests {
		res := CreditTier(tt.score)
		assert.Equal(t, tt.score, res.CreditScore)
		assert.Equal(t, tt.tier, res.Tier, "score %d", tt.score)
		assert.Equal(t, tt.note, res.Note, "score %d", tt.score)
	}
}

// ==========================
// Large Deposits
// ==========================

func TestLargeDeposits(t *testing.T) {
	deposits := []applicant.Record{
		{"amount": 1200, "date": "2024-03-01", "description": "transfer"},
		{"amount": 900},
		{"amount": "1000"},
	}

	res := LargeDeposits(deposits, 4000)

	assert.Equal(t, 1000.0, res.Threshold)
	require.Equal(t, 2, res.Count)
	assert.Equal(t, 1200.0, res.LargeDeposits[0].Amount)
	assert.Equal(t, "2024-03-01", res.LargeDeposits[0].Date)
	assert.Equal(t, "transfer", res.LargeDeposits[0].Description)
	assert.True(t, res.LargeDeposits[0].SourcingRequired)
	assert.Equal(t, 1000.0, res.LargeDeposits[1].Amount)
	assert.Equal(t, "Unknown", res.LargeDeposits[1].Date)
}

func TestLargeDeposits_NoIncomeFlagsNothing(t *testing.T) {
	res := LargeDeposits([]applicant.Record{{"amount": 50000}}, 0)

	assert.Equal(t, 0.0, res.Threshold)
	assert.Equal(t, 0, res.Count)
	assert.NotNil(t, res.LargeDeposits)
}

// ==========================
// Describe
// ==========================

func TestDescribe(t *testing.T) {
	res, err := LTV(0, 0)
	out := Describe(res, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "Property value must be > 0", decoded["error"])

	res, err = LTV(80, 100)
	out = Describe(res, err)
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, 0.8, decoded["ltv_ratio"])
	assert.Equal(t, "Excellent", decoded["status"])
}
