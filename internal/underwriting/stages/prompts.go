// internal/underwriting/stages/prompts.go
package stages

import (
	"fmt"

	"mortgage-underwriting/internal/underwriting/applicant"
	"mortgage-underwriting/internal/underwriting/calculators"
)

// requiredReserveMonths is the reserve coverage the asset stage checks.
const requiredReserveMonths = 2

func creditPrompts(caseID, policyText string, app applicant.Record) (string, string) {
	assessment := calculators.CreditTier(applicant.CreditScore(app))

	system := fmt.Sprintf(`You are a Senior Credit Analyst with 15+ years of mortgage underwriting experience.

Use the relevant policy excerpts to ensure your analysis is compliant and auditable.
Do not mention or rely on protected characteristics (race, religion, sex, etc.).

RELEVANT POLICIES (excerpts):
%s

ANALYSIS FRAMEWORK:
1) Credit score assessment (use the provided assessment; do NOT recalculate)
2) Payment history (late payments, patterns)
3) Derogatory items (bankruptcies/foreclosures/collections)
4) Policy compliance notes
5) Risk rating (Low/Medium/High)
6) Recommendations / conditions

Output ONLY a markdown report with these headings:

### Credit Analysis for Case %s
#### Credit Score
#### Payment History
#### Derogatory / Public Records
#### Policy Compliance
#### Risk Rating
#### Recommendations`, policyText, caseID)

	user := fmt.Sprintf(`CASE (sanitized):
%s

EXACT CREDIT SCORE ASSESSMENT (do not recalculate):
%s

CREDIT HISTORY (sanitized):
%s`,
		dump(app),
		dump(assessment),
		dump(app.Section(applicant.SectionCreditHistory)))

	return system, user
}

func incomePrompts(caseID, policyText string, app applicant.Record) (string, string) {
	income := applicant.MonthlyIncome(app)
	piti := applicant.MonthlyPITI(app)
	existing := applicant.ExistingDebt(app)
	dti := applicant.DTI(app)
	housing, err := calculators.HousingRatio(piti, income)

	system := fmt.Sprintf(`You are a Senior Income Analyst specializing in mortgage underwriting (employment/income/DTI).

RELEVANT POLICIES (excerpts):
%s

ANALYSIS FRAMEWORK:
1) Employment Stability - Review job history and tenure
2) Income Verification - Validate income sources
3) DTI Calculation - Use the provided DTI (DO NOT recalculate it)
4) Payment Capacity - Assess affordability
5) Risk Assessment - Identify income risks
6) Recommendations - Provide conditions if needed

Output ONLY a markdown report with these headings:

### Income Analysis for Case %s
#### Employment Stability
#### Income Verification
#### DTI / Payment Capacity
#### Risk Assessment
#### Recommendations`, policyText, caseID)

	user := fmt.Sprintf(`CASE (sanitized):
%s

EMPLOYMENT (sanitized):
%s

DEBTS (sanitized):
%s

PRE-CALCULATED METRICS (use these exact values; do NOT recompute DTI):
- Monthly income: %s
- Existing monthly debt (excluding proposed mortgage): %s
- Proposed monthly PITI: %s
- DTI ratio (authoritative if present in file): %.4f (%.1f%%)
- Housing ratio: %s`,
		dump(app),
		dump(app.Section(applicant.SectionEmployment)),
		dump(app.Section(applicant.SectionDebts)),
		money(income),
		money(existing),
		money(piti),
		dti, dti*100,
		calculators.Describe(housing, err))

	return system, user
}

func assetPrompts(caseID, policyText string, app applicant.Record) (string, string) {
	income := applicant.MonthlyIncome(app)
	piti := applicant.MonthlyPITI(app)
	liquid := applicant.LiquidAssets(app)

	reserves, err := calculators.Reserves(liquid, piti, requiredReserveMonths)
	deposits := calculators.LargeDeposits(applicant.Deposits(app), income)

	system := fmt.Sprintf(`You are a Senior Asset Analyst in mortgage underwriting (down payment, reserves, source of funds).

RELEVANT POLICIES (excerpts):
%s

ANALYSIS FRAMEWORK:
1) Down Payment Adequacy
2) Reserve Requirements - Use the provided reserves calculation (do NOT recalculate)
3) Large Deposits - Use the provided deposit analysis (do NOT recalculate)
4) Source of Funds - Ensure acceptable sourcing
5) Risk Assessment
6) Documentation Needs

Output ONLY a markdown report with these headings:

### Asset Analysis for Case %s
#### Down Payment Adequacy
#### Reserves
#### Large Deposits
#### Source of Funds
#### Risk Assessment
#### Documentation Needs`, policyText, caseID)

	user := fmt.Sprintf(`CASE (sanitized):
%s

ASSETS (sanitized):
%s

LOAN REQUIREMENTS (sanitized):
%s

PRE-CALCULATED METRICS (use these exact values; do NOT recompute):
- Liquid assets total: %s
- Monthly PITI: %s
- Reserves calculation: %s
- Large deposits analysis: %s
- Deposit explanations provided: %t`,
		dump(app),
		dump(app.Section(applicant.SectionAssets)),
		dump(app.Section(applicant.SectionLoan)),
		money(liquid),
		money(piti),
		calculators.Describe(reserves, err),
		calculators.Describe(deposits, nil),
		applicant.DepositsExplained(app))

	return system, user
}

func collateralPrompts(caseID, policyText string, app applicant.Record) (string, string) {
	ltv, err := calculators.LTV(applicant.LoanAmount(app), applicant.AppraisedValue(app))

	system := fmt.Sprintf(`You are a Senior Collateral Analyst specializing in property valuation and collateral risk.

RELEVANT POLICIES (excerpts):
%s

ANALYSIS FRAMEWORK:
1) Appraisal Review
2) LTV Calculation - Use the provided LTV (do NOT recalculate)
3) Property Condition / Repairs
4) Marketability
5) Risk Assessment
6) Recommendations / conditions

Output ONLY a markdown report with these headings:

### Collateral Analysis for Case %s
#### Appraisal / Value
#### LTV
#### Condition / Repairs
#### Marketability
#### Risk Assessment
#### Recommendations`, policyText, caseID)

	user := fmt.Sprintf(`CASE (sanitized):
%s

PROPERTY (sanitized):
%s

LOAN (sanitized):
%s

PRE-CALCULATED LTV (use these exact values; do NOT recompute):
%s`,
		dump(app),
		dump(app.Section(applicant.SectionProperty)),
		dump(app.Section(applicant.SectionLoan)),
		calculators.Describe(ltv, err))

	return system, user
}
