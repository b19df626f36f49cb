// internal/underwriting/stages/stages.go
package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"mortgage-underwriting/internal/underwriting/applicant"
	"mortgage-underwriting/internal/underwriting/casestate"
	"mortgage-underwriting/internal/underwriting/compliance"
	"mortgage-underwriting/internal/underwriting/llm"
	"mortgage-underwriting/internal/underwriting/policies"
	"mortgage-underwriting/internal/underwriting/workflow"
)

var ErrMissingDependency = errors.New("stage dependency missing")

// BiasDetector inspects generated text for protected-class signals.
type BiasDetector func(text string, data applicant.Record) []string

// Deps are the capabilities every stage is built with.
type Deps struct {
	Generator  llm.Generator
	Policies   policies.Retriever
	DetectBias BiasDetector
}

func (d Deps) validate() error {
	if d.Generator == nil {
		return fmt.Errorf("%w: generator", ErrMissingDependency)
	}
	if d.Policies == nil {
		return fmt.Errorf("%w: policy retriever", ErrMissingDependency)
	}
	return nil
}

// Handlers returns the dispatch table for the five underwriting stages.
func Handlers(d Deps) (workflow.Handlers, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	if d.DetectBias == nil {
		d.DetectBias = compliance.DetectBiasSignals
	}

	return workflow.Handlers{
		casestate.StageCredit:     d.analyst(casestate.StageCredit, policies.CreditQuery, creditPrompts),
		casestate.StageIncome:     d.analyst(casestate.StageIncome, policies.IncomeQuery, incomePrompts),
		casestate.StageAsset:      d.analyst(casestate.StageAsset, policies.AssetQuery, assetPrompts),
		casestate.StageCollateral: d.analyst(casestate.StageCollateral, policies.CollateralQuery, collateralPrompts),
		casestate.StageDecision:   d.decide,
	}, nil
}

// promptBuilder renders the system and user prompts of an analysis stage.
type promptBuilder func(caseID, policyText string, app applicant.Record) (system, user string)

// analyst wires a prompt builder into the common analysis flow: retrieve
// policies, generate, scan for bias, record the output.
func (d Deps) analyst(stage casestate.Stage, query string, build promptBuilder) workflow.StageFunc {
	return func(ctx context.Context, s casestate.State) (casestate.Update, error) {
		policyText, err := d.Policies.Retrieve(ctx, query)
		if err != nil {
			return casestate.Update{}, fmt.Errorf("%s policies: %w", stage, err)
		}

		system, user := build(s.CaseID, policyText, s.SanitizedData)
		analysis, err := d.Generator.Generate(ctx, system, user)
		if err != nil {
			return casestate.Update{}, fmt.Errorf("%s analysis: %w", stage, err)
		}

		return casestate.Update{
			Stage:     stage,
			Analysis:  &analysis,
			BiasFlags: d.DetectBias(analysis, s.SanitizedData),
			Reasoning: []string{
				fmt.Sprintf("%s: Completed %s analysis for %s", stage.Role(), stage, s.CaseID),
			},
		}, nil
	}
}

// dump renders v as two-space indented JSON without HTML escaping.
func dump(v interface{}) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "{}"
	}
	return strings.TrimRight(buf.String(), "\n")
}

// money renders a dollar amount with thousands separators and two decimals.
func money(v float64) string {
	return "$" + humanize.FormatFloat("#,###.##", v)
}

func orNA(s *string) string {
	if s == nil || *s == "" {
		return "N/A"
	}
	return *s
}
