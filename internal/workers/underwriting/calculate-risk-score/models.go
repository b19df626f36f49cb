// internal/workers/underwriting/calculate-risk-score/models.go
package calculateriskscore

import "mortgage-underwriting/internal/underwriting/applicant"

type Input struct {
	CaseID      string                 `json:"caseId"`
	Application map[string]interface{} `json:"application"`
}

type Output struct {
	CaseID              string            `json:"caseId,omitempty"`
	RiskScore           int               `json:"riskScore"`
	Decision            string            `json:"decision"`
	Conditions          []string          `json:"conditions"`
	Reasons             []string          `json:"reasons"`
	HumanReviewRequired bool              `json:"humanReviewRequired"`
	CreditTier          string            `json:"creditTier"`
	LargeDepositCount   int               `json:"largeDepositCount"`
	Metrics             applicant.Metrics `json:"metrics"`
}
