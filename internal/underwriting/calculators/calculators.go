// internal/underwriting/calculators/calculators.go
package calculators

import (
	"encoding/json"
	"math"

	"mortgage-underwriting/internal/underwriting/applicant"
)

// DefaultReserveMonths is the reserve coverage required when callers do not
// ask for something else.
const DefaultReserveMonths = 2

// DomainError is returned when a calculator cannot produce a ratio because a
// denominator is not positive. It is meant to be embedded into prompts as-is.
type DomainError struct {
	Message string `json:"error"`
}

func (e *DomainError) Error() string {
	return e.Message
}

func newDomainError(msg string) *DomainError {
	return &DomainError{Message: msg}
}

type DTIResult struct {
	DTIRatio      float64 `json:"dti_ratio"`
	MonthlyDebt   float64 `json:"monthly_debt"`
	MonthlyIncome float64 `json:"monthly_income"`
	Status        string  `json:"status"`
}

type LTVResult struct {
	LTVRatio      float64 `json:"ltv_ratio"`
	LoanAmount    float64 `json:"loan_amount"`
	PropertyValue float64 `json:"property_value"`
	Status        string  `json:"status"`
}

type HousingResult struct {
	HousingRatio   float64 `json:"housing_ratio"`
	MonthlyPayment float64 `json:"monthly_payment"`
	MonthlyIncome  float64 `json:"monthly_income"`
	Status         string  `json:"status"`
}

type ReservesResult struct {
	MonthsCoverage float64 `json:"months_coverage"`
	LiquidAssets   float64 `json:"liquid_assets"`
	MonthlyPayment float64 `json:"monthly_payment"`
	RequiredMonths int     `json:"required_months"`
	RequiredAmount float64 `json:"required_amount"`
	SurplusDeficit float64 `json:"surplus_deficit"`
	Status         string  `json:"status"`
}

type CreditTierResult struct {
	CreditScore int    `json:"credit_score"`
	Tier        string `json:"tier"`
	Note        string `json:"note"`
}

type LargeDeposit struct {
	Amount           float64 `json:"amount"`
	Date             string  `json:"date"`
	Description      string  `json:"description"`
	SourcingRequired bool    `json:"sourcing_required"`
}

type LargeDepositsResult struct {
	Threshold     float64        `json:"threshold"`
	LargeDeposits []LargeDeposit `json:"large_deposits"`
	Count         int            `json:"count"`
}

// DTI computes the debt-to-income ratio for a total monthly debt figure.
func DTI(monthlyDebt, monthlyIncome float64) (*DTIResult, error) {
	if monthlyIncome <= 0 {
		return nil, newDomainError("Monthly income must be > 0")
	}
	ratio := monthlyDebt / monthlyIncome
	status := "Excessive"
	switch {
	case ratio <= 0.43:
		status = "Acceptable"
	case ratio <= 0.50:
		status = "High"
	}
	return &DTIResult{
		DTIRatio:      round(ratio, 4),
		MonthlyDebt:   round(monthlyDebt, 2),
		MonthlyIncome: round(monthlyIncome, 2),
		Status:        status,
	}, nil
}

// LTV computes the loan-to-value ratio.
func LTV(loanAmount, propertyValue float64) (*LTVResult, error) {
	if propertyValue <= 0 {
		return nil, newDomainError("Property value must be > 0")
	}
	ratio := loanAmount / propertyValue
	status := "Excessive"
	switch {
	case ratio <= 0.80:
		status = "Excellent"
	case ratio <= 0.90:
		status = "Good"
	case ratio <= 0.97:
		status = "High"
	}
	return &LTVResult{
		LTVRatio:      round(ratio, 4),
		LoanAmount:    round(loanAmount, 2),
		PropertyValue: round(propertyValue, 2),
		Status:        status,
	}, nil
}

// HousingRatio computes the front-end housing expense ratio.
func HousingRatio(monthlyPayment, monthlyIncome float64) (*HousingResult, error) {
	if monthlyIncome <= 0 {
		return nil, newDomainError("Monthly income must be > 0")
	}
	ratio := monthlyPayment / monthlyIncome
	status := "High"
	switch {
	case ratio <= 0.28:
		status = "Acceptable"
	case ratio <= 0.35:
		status = "Elevated"
	}
	return &HousingResult{
		HousingRatio:   round(ratio, 4),
		MonthlyPayment: round(monthlyPayment, 2),
		MonthlyIncome:  round(monthlyIncome, 2),
		Status:         status,
	}, nil
}

// Reserves measures liquid assets in months of payment coverage.
// requiredMonths <= 0 means DefaultReserveMonths.
func Reserves(liquidAssets, monthlyPayment float64, requiredMonths int) (*ReservesResult, error) {
	if monthlyPayment <= 0 {
		return nil, newDomainError("Monthly payment must be > 0")
	}
	if requiredMonths <= 0 {
		requiredMonths = DefaultReserveMonths
	}
	coverage := liquidAssets / monthlyPayment
	required := monthlyPayment * float64(requiredMonths)
	status := "Insufficient"
	if coverage >= float64(requiredMonths) {
		status = "Adequate"
	}
	return &ReservesResult{
		MonthsCoverage: round(coverage, 2),
		LiquidAssets:   round(liquidAssets, 2),
		MonthlyPayment: round(monthlyPayment, 2),
		RequiredMonths: requiredMonths,
		RequiredAmount: round(required, 2),
		SurplusDeficit: round(liquidAssets-required, 2),
		Status:         status,
	}, nil
}

// CreditTier places a score into a pricing tier.
func CreditTier(creditScore int) CreditTierResult {
	res := CreditTierResult{CreditScore: creditScore}
	switch {
	case creditScore >= 740:
		res.Tier, res.Note = "Excellent", "Best rates available"
	case creditScore >= 700:
		res.Tier, res.Note = "Very Good", "Favorable rates"
	case creditScore >= 660:
		res.Tier, res.Note = "Good", "Standard rates"
	case creditScore >= 620:
		res.Tier, res.Note = "Fair", "Higher rates, may require compensating factors"
	default:
		res.Tier, res.Note = "Below Minimum", "Does not meet conventional loan minimum"
	}
	return res
}

// LargeDeposits flags deposits at or above a quarter of monthly income.
// Nothing is flagged when the threshold is zero.
func LargeDeposits(deposits []applicant.Record, monthlyIncome float64) LargeDepositsResult {
	threshold := math.Max(0, monthlyIncome*0.25)
	large := make([]LargeDeposit, 0)
	for _, d := range deposits {
		amount := applicant.AsFloat(d.Get("amount"), 0)
		if threshold <= 0 || amount < threshold {
			continue
		}
		date := applicant.AsString(d.First("date"))
		if date == "" {
			date = "Unknown"
		}
		large = append(large, LargeDeposit{
			Amount:           round(amount, 2),
			Date:             date,
			Description:      applicant.AsString(d.First("description")),
			SourcingRequired: true,
		})
	}
	return LargeDepositsResult{
		Threshold:     round(threshold, 2),
		LargeDeposits: large,
		Count:         len(large),
	}
}

// Describe renders a calculator outcome (result or domain error) as indented
// JSON for embedding in a prompt.
func Describe(result interface{}, err error) string {
	var v interface{} = result
	if err != nil {
		if de, ok := err.(*DomainError); ok {
			v = de
		} else {
			v = &DomainError{Message: err.Error()}
		}
	}
	data, mErr := json.MarshalIndent(v, "", "  ")
	if mErr != nil {
		return "{}"
	}
	return string(data)
}

func round(v float64, places int) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
