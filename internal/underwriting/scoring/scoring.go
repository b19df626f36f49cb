// internal/underwriting/scoring/scoring.go
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"mortgage-underwriting/internal/underwriting/applicant"
)

// Decision is the final underwriting outcome category.
type Decision string

const (
	DecisionApproved    Decision = "APPROVED"
	DecisionConditional Decision = "CONDITIONAL_APPROVAL"
	DecisionDenied      Decision = "DENIED"
)

// Policy thresholds.
const (
	MinCreditScore      = 620
	MaxDTI              = 0.50
	MaxLatePayments12Mo = 2

	DenyScore           = 75
	ConditionalScore    = 40
	HumanReviewScore    = 65
	MinReserveMonths    = 2
	StrongReserveMonths = 6
)

// Result is the outcome of scoring one set of metrics.
type Result struct {
	RiskScore  int      `json:"risk_score"`
	Decision   Decision `json:"decision"`
	Conditions []string `json:"conditions"`
	Reasons    []string `json:"reasons"`
}

// Score applies the hard-fail rules and the additive risk points to m.
// Higher scores are worse. The result depends on m alone.
func Score(m applicant.Metrics) Result {
	conditions := make([]string, 0)
	reasons := make([]string, 0)

	if m.CreditScore < MinCreditScore {
		reasons = append(reasons, fmt.Sprintf("Credit score %d is below minimum %d.", m.CreditScore, MinCreditScore))
	}
	switch {
	case math.IsInf(m.DTI, 1):
		reasons = append(reasons, "DTI undefined (no income) exceeds 50% maximum.")
	case m.DTI > MaxDTI:
		reasons = append(reasons, fmt.Sprintf("DTI %.1f%% exceeds 50%% maximum.", m.DTI*100))
	}
	if m.LatePayments12Mo > MaxLatePayments12Mo {
		reasons = append(reasons, fmt.Sprintf("Late payments in last 12 months (%d) exceed maximum of %d.", m.LatePayments12Mo, MaxLatePayments12Mo))
	}

	score := 0.0
	score += creditPoints(m.CreditScore)
	score += dtiPoints(m.DTI)
	score += ltvPoints(m.LTV)

	switch {
	case m.ReservesMonths < MinReserveMonths:
		score += 15
		conditions = append(conditions, fmt.Sprintf("Increase reserves to at least 2 months of PITI (currently %.1f).", m.ReservesMonths))
	case m.ReservesMonths < StrongReserveMonths:
		score += 5
	}

	if m.LatePayments12Mo > 0 {
		score += 10
		conditions = append(conditions, fmt.Sprintf("Provide letter of explanation for %d late payment(s) in last 12 months.", m.LatePayments12Mo))
	}
	if m.Bankruptcies > 0 {
		score += 30
		conditions = append(conditions, "Provide bankruptcy documentation and confirm seasoning meets program requirements.")
	}
	if m.Foreclosures > 0 {
		score += 30
		conditions = append(conditions, "Provide foreclosure documentation and confirm seasoning meets program requirements.")
	}
	if m.EmploymentYears > 0 && m.EmploymentYears < 2 {
		score += 5
		conditions = append(conditions, fmt.Sprintf("Employment tenure is %.1f years; provide full 2-year employment history and verification.", m.EmploymentYears))
	}
	if strings.Contains(strings.ToLower(m.EmploymentType), "self") {
		score += 5
		conditions = append(conditions, "Self-employed: provide 2 years personal/business tax returns and YTD P&L per policy.")
	}
	if m.RequiredRepairs > 0 {
		score += 5
		conditions = append(conditions, fmt.Sprintf("Property repairs required ($%s): complete prior to closing or escrow holdback per policy.", humanize.Commaf(math.Round(m.RequiredRepairs))))
	}
	if strings.Contains(strings.ToLower(m.PropertyType), "condo") {
		score += 3
		conditions = append(conditions, "Condominium: require project approval/review documentation (HOA budget, insurance, questionnaire, etc.).")
	}

	riskScore := clamp(int(math.Round(score)), 0, 100)

	return Result{
		RiskScore:  riskScore,
		Decision:   decide(riskScore, conditions, reasons),
		Conditions: conditions,
		Reasons:    reasons,
	}
}

// decide keeps a score-only denial without reasons: only the hard-fail rules
// produce reasons.
func decide(score int, conditions, reasons []string) Decision {
	switch {
	case len(reasons) > 0:
		return DecisionDenied
	case score >= DenyScore:
		return DecisionDenied
	case score >= ConditionalScore || len(conditions) > 0:
		return DecisionConditional
	default:
		return DecisionApproved
	}
}

// RequiresHumanReview reports whether a scored case must be routed to a human
// underwriter.
func RequiresHumanReview(r Result, biasFlags []string) bool {
	return r.Decision == DecisionDenied || r.RiskScore >= HumanReviewScore || len(biasFlags) > 0
}

func creditPoints(cs int) float64 {
	switch {
	case cs < 620:
		return 45
	case cs < 660:
		return 25
	case cs < 700:
		return 15
	case cs < 740:
		return 8
	default:
		return 0
	}
}

func dtiPoints(dti float64) float64 {
	switch {
	case dti > 0.50:
		return 35
	case dti > 0.43:
		return 20
	case dti > 0.36:
		return 10
	default:
		return 0
	}
}

func ltvPoints(ltv float64) float64 {
	switch {
	case ltv > 0.97:
		return 25
	case ltv > 0.90:
		return 10
	default:
		return 0
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NormalizeDecision maps loose labels (CONDITIONAL, REJECTED, ...) onto a
// Decision. Anything unrecognized counts as an approval.
func NormalizeDecision(label string) Decision {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "CONDITIONAL", "CONDITIONAL_APPROVAL":
		return DecisionConditional
	case "REJECTED", "DENIED":
		return DecisionDenied
	default:
		return DecisionApproved
	}
}
