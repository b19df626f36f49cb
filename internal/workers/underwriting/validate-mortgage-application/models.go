// internal/workers/underwriting/validate-mortgage-application/models.go
package validatemortgageapplication

import "mortgage-underwriting/internal/common/validation"

type Input struct {
	CaseID      string                 `json:"caseId"`
	Application map[string]interface{} `json:"application"`
}

type Output struct {
	CaseID           string                       `json:"caseId,omitempty"`
	IsValid          bool                         `json:"isValid"`
	ValidationErrors []validation.ValidationError `json:"validationErrors"`
}
