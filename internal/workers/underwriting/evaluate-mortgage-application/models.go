// internal/workers/underwriting/evaluate-mortgage-application/models.go
package evaluatemortgageapplication

type Input struct {
	CaseID      string                 `json:"caseId"`
	Application map[string]interface{} `json:"application"`
}

type Output struct {
	CaseID              string   `json:"caseId"`
	FinalDecision       string   `json:"finalDecision"`
	RiskScore           *int     `json:"riskScore"`
	Conditions          []string `json:"conditions"`
	Reasons             []string `json:"reasons"`
	HumanReviewRequired bool     `json:"humanReviewRequired"`
	DecisionMemo        string   `json:"decisionMemo,omitempty"`
}
