// internal/underwriting/casestate/stage.go
package casestate

// Stage identifies a step of the underwriting workflow.
type Stage string

const (
	StageInitialize Stage = "initialize"
	StageSupervisor Stage = "supervisor"
	StageCredit     Stage = "credit"
	StageIncome     Stage = "income"
	StageAsset      Stage = "asset"
	StageCollateral Stage = "collateral"
	StageDecision   Stage = "decision"
	StageDone       Stage = "done"
)

// AnalysisStages lists the specialist analyses in dispatch priority order.
var AnalysisStages = []Stage{StageCredit, StageIncome, StageAsset, StageCollateral}

var roles = map[Stage]string{
	StageCredit:     "Credit Analyst",
	StageIncome:     "Income Analyst",
	StageAsset:      "Asset Analyst",
	StageCollateral: "Collateral Analyst",
	StageDecision:   "Decision Agent",
}

// IsAnalysis reports whether s is one of the four specialist analyses.
func (s Stage) IsAnalysis() bool {
	switch s {
	case StageCredit, StageIncome, StageAsset, StageCollateral:
		return true
	}
	return false
}

// Role is the audit-log name of the agent that runs s.
func (s Stage) Role() string {
	if r, ok := roles[s]; ok {
		return r
	}
	return string(s)
}

func (s Stage) String() string {
	return string(s)
}
