// internal/underwriting/stages/decision.go
package stages

import (
	"context"
	"fmt"
	"strings"

	"mortgage-underwriting/internal/underwriting/applicant"
	"mortgage-underwriting/internal/underwriting/casestate"
	"mortgage-underwriting/internal/underwriting/policies"
	"mortgage-underwriting/internal/underwriting/scoring"
)

// decide scores the case and asks the generator for the credit memo. The
// score and decision come from the scoring engine; the memo only explains
// them.
func (d Deps) decide(ctx context.Context, s casestate.State) (casestate.Update, error) {
	policyText, err := d.Policies.Retrieve(ctx, policies.DecisionQuery)
	if err != nil {
		return casestate.Update{}, fmt.Errorf("decision policies: %w", err)
	}

	result := scoring.Score(applicant.Extract(s.SanitizedData))

	system, user := decisionPrompts(s, policyText, result)
	memo, err := d.Generator.Generate(ctx, system, user)
	if err != nil {
		return casestate.Update{}, fmt.Errorf("decision memo: %w", err)
	}

	score := result.RiskScore
	review := scoring.RequiresHumanReview(result, s.BiasFlags)

	return casestate.Update{
		Stage:               casestate.StageDecision,
		DecisionMemo:        &memo,
		RiskScore:           &score,
		FinalDecision:       result.Decision,
		Conditions:          result.Conditions,
		Reasons:             result.Reasons,
		HumanReviewRequired: &review,
		Reasoning: []string{
			fmt.Sprintf("%s: Final decision %s (risk %d)", casestate.StageDecision.Role(), result.Decision, score),
		},
	}, nil
}

func decisionPrompts(s casestate.State, policyText string, result scoring.Result) (string, string) {
	system := fmt.Sprintf(`You are the Senior Underwriter (Decision Agent). Produce an audit-ready credit memo.

RELEVANT POLICIES (excerpts):
%s

You MUST:
- Use the provided baseline decision + risk score as the final outcome.
- Explain the decision with clear, policy-aligned rationale.
- List conditions (if conditional approval) and reasons (if denied) consistent with the provided outcome.
- Do not include any protected-class reasoning.

Output ONLY markdown with these headings:

### RISK_SCORE: %d
### DECISION: %s
### CONDITIONS
### REASONS
### CREDIT_MEMO`, policyText, result.RiskScore, result.Decision)

	user := fmt.Sprintf(`CASE (sanitized):
%s

SPECIALIST ANALYSES (verbatim):
--- CREDIT ---
%s

--- INCOME ---
%s

--- ASSET ---
%s

--- COLLATERAL ---
%s

BASELINE OUTCOME (final, do not change):
- risk_score: %d
- decision: %s
- conditions: %s
- reasons: %s

Write the memo and include the conditions/reasons sections.`,
		dump(s.SanitizedData),
		orNA(s.CreditAnalysis),
		orNA(s.IncomeAnalysis),
		orNA(s.AssetAnalysis),
		orNA(s.CollateralAnalysis),
		result.RiskScore,
		result.Decision,
		list(result.Conditions),
		list(result.Reasons))

	return system, user
}

// list renders items as a bracketed, quoted list.
func list(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = fmt.Sprintf("%q", it)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
