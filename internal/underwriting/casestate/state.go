// internal/underwriting/casestate/state.go
package casestate

import (
	"fmt"
	"time"

	"mortgage-underwriting/internal/underwriting/applicant"
	"mortgage-underwriting/internal/underwriting/scoring"
)

// DefaultCaseID is used when neither the caller nor the record names the case.
const DefaultCaseID = "demo"

// State is one immutable snapshot of an underwriting case. Transitions go
// through Apply, which returns a new value and leaves the receiver untouched.
type State struct {
	CaseID        string           `json:"case_id"`
	ApplicantData applicant.Record `json:"applicant_data"`
	SanitizedData applicant.Record `json:"sanitized_data"`

	CreditAnalysis     *string `json:"credit_analysis"`
	IncomeAnalysis     *string `json:"income_analysis"`
	AssetAnalysis      *string `json:"asset_analysis"`
	CollateralAnalysis *string `json:"collateral_analysis"`
	DecisionMemo       *string `json:"decision_memo"`

	RiskScore     *int             `json:"risk_score"`
	FinalDecision scoring.Decision `json:"final_decision,omitempty"`
	Conditions    []string         `json:"conditions"`
	Reasons       []string         `json:"reasons"`

	BiasFlags        []string `json:"bias_flags"`
	PolicyViolations []string `json:"policy_violations"`
	ReasoningChain   []string `json:"reasoning_chain"`

	Stage                Stage          `json:"stage"`
	Completed            map[Stage]bool `json:"completed"`
	NextAgent            Stage          `json:"next_agent,omitempty"`
	AnalysisComplete     bool           `json:"analysis_complete"`
	HumanReviewRequired  bool           `json:"human_review_required"`
	HumanReviewCompleted bool           `json:"human_review_completed"`
	HumanNotes           *string        `json:"human_notes,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Update carries what a single step adds to a case. Nil pointers and nil
// slices leave the corresponding field alone; the append-only logs are
// extended, never replaced.
type Update struct {
	Stage Stage

	// Analysis is stored in the slot of Stage when Stage is an analysis stage.
	Analysis *string

	DecisionMemo  *string
	RiskScore     *int
	FinalDecision scoring.Decision
	Conditions    []string
	Reasons       []string

	BiasFlags        []string
	PolicyViolations []string
	Reasoning        []string

	NextAgent           *Stage
	AnalysisComplete    *bool
	HumanReviewRequired *bool
}

// New builds the initial state of a case. An empty caseID falls back to the
// record's case_id and then to DefaultCaseID.
func New(caseID string, data, sanitized applicant.Record, now time.Time) State {
	if caseID == "" {
		caseID = applicant.AsString(data.Get("case_id"))
	}
	if caseID == "" {
		caseID = DefaultCaseID
	}
	if data == nil {
		data = applicant.Record{}
	}
	if sanitized == nil {
		sanitized = applicant.Record{}
	}

	return State{
		CaseID:           caseID,
		ApplicantData:    data.Clone(),
		SanitizedData:    sanitized.Clone(),
		Conditions:       []string{},
		Reasons:          []string{},
		BiasFlags:        []string{},
		PolicyViolations: []string{},
		ReasoningChain:   []string{fmt.Sprintf("Application %s initialized", caseID)},
		Stage:            StageInitialize,
		Completed:        map[Stage]bool{},
		Timestamp:        now,
		UpdatedAt:        now,
	}
}

// Apply merges u into a copy of s.
func (s State) Apply(u Update, now time.Time) State {
	next := s.Clone()
	next.Stage = u.Stage
	next.UpdatedAt = now

	if u.Analysis != nil && u.Stage.IsAnalysis() {
		text := *u.Analysis
		*next.slot(u.Stage) = &text
		next.Completed[u.Stage] = true
	}

	if u.DecisionMemo != nil {
		memo := *u.DecisionMemo
		next.DecisionMemo = &memo
	}
	if u.RiskScore != nil {
		score := *u.RiskScore
		next.RiskScore = &score
	}
	if u.FinalDecision != "" {
		next.FinalDecision = u.FinalDecision
		next.Completed[StageDecision] = true
	}
	if u.Conditions != nil {
		next.Conditions = copyStrings(u.Conditions)
	}
	if u.Reasons != nil {
		next.Reasons = copyStrings(u.Reasons)
	}

	next.BiasFlags = append(next.BiasFlags, u.BiasFlags...)
	next.PolicyViolations = append(next.PolicyViolations, u.PolicyViolations...)
	next.ReasoningChain = append(next.ReasoningChain, u.Reasoning...)

	if u.NextAgent != nil {
		next.NextAgent = *u.NextAgent
	}
	if u.AnalysisComplete != nil {
		next.AnalysisComplete = *u.AnalysisComplete
	}
	if u.HumanReviewRequired != nil {
		next.HumanReviewRequired = *u.HumanReviewRequired
	}

	return next
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	c := s
	c.ApplicantData = s.ApplicantData.Clone()
	c.SanitizedData = s.SanitizedData.Clone()
	c.CreditAnalysis = copyString(s.CreditAnalysis)
	c.IncomeAnalysis = copyString(s.IncomeAnalysis)
	c.AssetAnalysis = copyString(s.AssetAnalysis)
	c.CollateralAnalysis = copyString(s.CollateralAnalysis)
	c.DecisionMemo = copyString(s.DecisionMemo)
	c.HumanNotes = copyString(s.HumanNotes)
	if s.RiskScore != nil {
		score := *s.RiskScore
		c.RiskScore = &score
	}
	c.Conditions = copyStrings(s.Conditions)
	c.Reasons = copyStrings(s.Reasons)
	c.BiasFlags = copyStrings(s.BiasFlags)
	c.PolicyViolations = copyStrings(s.PolicyViolations)
	c.ReasoningChain = copyStrings(s.ReasoningChain)
	c.Completed = make(map[Stage]bool, len(s.Completed))
	for k, v := range s.Completed {
		c.Completed[k] = v
	}
	return c
}

// Analysis returns the output recorded for an analysis stage, or nil.
func (s State) Analysis(stage Stage) *string {
	switch stage {
	case StageCredit:
		return s.CreditAnalysis
	case StageIncome:
		return s.IncomeAnalysis
	case StageAsset:
		return s.AssetAnalysis
	case StageCollateral:
		return s.CollateralAnalysis
	}
	return nil
}

// AllAnalysesPresent reports whether every analysis slot is populated.
func (s State) AllAnalysesPresent() bool {
	for _, st := range AnalysisStages {
		if s.Analysis(st) == nil {
			return false
		}
	}
	return true
}

// IsCompleted reports whether stage has already recorded its output.
func (s State) IsCompleted(stage Stage) bool {
	return s.Completed[stage]
}

// IsTerminal reports whether a final decision has been recorded.
func (s State) IsTerminal() bool {
	return s.FinalDecision != ""
}

func (s *State) slot(stage Stage) **string {
	switch stage {
	case StageCredit:
		return &s.CreditAnalysis
	case StageIncome:
		return &s.IncomeAnalysis
	case StageAsset:
		return &s.AssetAnalysis
	default:
		return &s.CollateralAnalysis
	}
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
