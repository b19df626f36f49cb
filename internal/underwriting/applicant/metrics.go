// internal/underwriting/applicant/metrics.go
package applicant

import (
	"encoding/json"
	"math"
	"strings"
)

// Metrics is the normalized risk snapshot derived from one applicant record.
// Ratios hold +Inf when their denominator is not positive.
type Metrics struct {
	CreditScore      int     `json:"credit_score"`
	DTI              float64 `json:"dti"`
	HousingRatio     float64 `json:"housing_ratio"`
	LTV              float64 `json:"ltv"`
	ReservesMonths   float64 `json:"reserves_months"`
	LatePayments12Mo int     `json:"late_payments_12mo"`
	Bankruptcies     int     `json:"bankruptcies"`
	Foreclosures     int     `json:"foreclosures"`
	EmploymentYears  float64 `json:"employment_years"`
	EmploymentType   string  `json:"employment_type"`
	PropertyType     string  `json:"property_type"`
	RequiredRepairs  float64 `json:"required_repairs"`
}

// MarshalJSON encodes infinite ratios as null so snapshots stay valid JSON.
func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"credit_score":       m.CreditScore,
		"dti":                finiteOrNil(m.DTI),
		"housing_ratio":      finiteOrNil(m.HousingRatio),
		"ltv":                finiteOrNil(m.LTV),
		"reserves_months":    finiteOrNil(m.ReservesMonths),
		"late_payments_12mo": m.LatePayments12Mo,
		"bankruptcies":       m.Bankruptcies,
		"foreclosures":       m.Foreclosures,
		"employment_years":   m.EmploymentYears,
		"employment_type":    m.EmploymentType,
		"property_type":      m.PropertyType,
		"required_repairs":   m.RequiredRepairs,
	})
}

func finiteOrNil(f float64) interface{} {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	return f
}

// Extract computes Metrics from a (sanitized) applicant record. It never
// fails: missing or malformed values degrade to zero or to the +Inf sentinel.
func Extract(r Record) Metrics {
	monthlyIncome := MonthlyIncome(r)
	monthlyPITI := MonthlyPITI(r)

	employment := r.Section(SectionEmployment)
	prop := r.Section(SectionProperty)
	credit := r.Section(SectionCreditHistory)

	housing := math.Inf(1)
	if monthlyIncome > 0 {
		housing = monthlyPITI / monthlyIncome
	}

	ltv := math.Inf(1)
	if value := AppraisedValue(r); value > 0 {
		ltv = LoanAmount(r) / value
	}

	reserves := math.Inf(1)
	if monthlyPITI > 0 {
		reserves = LiquidAssets(r) / monthlyPITI
	}

	return Metrics{
		CreditScore:      CreditScore(r),
		DTI:              DTI(r),
		HousingRatio:     housing,
		LTV:              ltv,
		ReservesMonths:   reserves,
		LatePayments12Mo: AsInt(credit.Get("late_payments_12mo")),
		Bankruptcies:     AsInt(credit.Get("bankruptcies")),
		Foreclosures:     AsInt(credit.Get("foreclosures")),
		EmploymentYears:  AsFloat(employment.First("years", "years_employed"), 0),
		EmploymentType:   AsString(employment.First("type")),
		PropertyType:     PropertyType(r),
		RequiredRepairs:  AsFloat(prop.Get("required_repairs"), 0),
	}
}

// CreditScore reads the top-level credit_score.
func CreditScore(r Record) int {
	return AsInt(r.Get("credit_score"))
}

// MonthlyIncome reads employment.monthly_income.
func MonthlyIncome(r Record) float64 {
	return AsFloat(r.Section(SectionEmployment).Get("monthly_income"), 0)
}

// MonthlyPITI reads loan.monthly_piti, falling back to loan.estimated_payment.
func MonthlyPITI(r Record) float64 {
	return AsFloat(r.Section(SectionLoan).First("monthly_piti", "estimated_payment"), 0)
}

// LoanAmount reads loan.amount.
func LoanAmount(r Record) float64 {
	return AsFloat(r.Section(SectionLoan).Get("amount"), 0)
}

// AppraisedValue reads property.appraised_value.
func AppraisedValue(r Record) float64 {
	return AsFloat(r.Section(SectionProperty).Get("appraised_value"), 0)
}

// PropertyType reads property.type, falling back to loan.property_type.
func PropertyType(r Record) string {
	if v := r.Section(SectionProperty).First("type"); v != nil {
		return AsString(v)
	}
	return AsString(r.Section(SectionLoan).First("property_type"))
}

// LiquidAssets reads assets.liquid_assets_total; when it is absent or not a
// number, checking plus savings is used instead.
func LiquidAssets(r Record) float64 {
	assets := r.Section(SectionAssets)
	fallback := AsFloat(assets.Get("checking"), 0) + AsFloat(assets.Get("savings"), 0)
	return AsFloat(assets.Get("liquid_assets_total"), fallback)
}

// ExistingDebt is SumDebts over the record's debts section.
func ExistingDebt(r Record) float64 {
	return SumDebts(r.Section(SectionDebts))
}

// SumDebts adds every debt entry except pre-aggregated "total_*" keys.
func SumDebts(debts Record) float64 {
	total := 0.0
	for k, v := range debts {
		if strings.HasPrefix(strings.ToLower(k), "total_") {
			continue
		}
		total += AsFloat(v, 0)
	}
	return total
}

// DTI returns the record's dti_ratio when it is positive, otherwise
// (existing debt + PITI) / monthly income, or +Inf without income.
func DTI(r Record) float64 {
	if provided := AsFloat(r.Get("dti_ratio"), -1); provided > 0 {
		return provided
	}
	income := MonthlyIncome(r)
	if income <= 0 {
		return math.Inf(1)
	}
	return (ExistingDebt(r) + MonthlyPITI(r)) / income
}

// Deposits returns assets.recent_deposits as a list of mappings. Entries that
// are not objects are skipped.
func Deposits(r Record) []Record {
	raw, ok := r.Section(SectionAssets).Get("recent_deposits").([]interface{})
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, Record(m))
		}
	}
	return out
}

// DepositsExplained reports whether assets.deposit_explanations holds any
// non-blank text.
func DepositsExplained(r Record) bool {
	return strings.TrimSpace(r.Section(SectionAssets).String("deposit_explanations")) != ""
}
