// cmd/tools/run-cases/cases.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v2"

	"mortgage-underwriting/internal/underwriting/applicant"
	"mortgage-underwriting/internal/underwriting/casestate"
	"mortgage-underwriting/internal/underwriting/scoring"
	"mortgage-underwriting/internal/underwriting/service"
)

const maxMemoChars = 2000

var errBadCaseFile = errors.New("test cases must be a list or an object with a test_cases list")

// Evaluator runs one case to a decision summary.
type Evaluator interface {
	Submit(ctx context.Context, caseID string, data applicant.Record) (service.Summary, error)
}

type Result struct {
	CaseID    string
	Expected  scoring.Decision
	Actual    scoring.Decision
	RiskScore *int
	Memo      string
	Err       error
}

func (r Result) Match() bool {
	return r.Err == nil && r.Actual == r.Expected
}

// LoadCases reads a JSON or YAML case file. Both a bare list and
// {"test_cases": [...]} are accepted.
func LoadCases(path string) ([]applicant.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc interface{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		doc = normalizeYAML(doc)
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return casesFrom(doc)
}

func casesFrom(doc interface{}) ([]applicant.Record, error) {
	if obj, ok := doc.(map[string]interface{}); ok {
		doc = obj["test_cases"]
	}
	list, ok := doc.([]interface{})
	if !ok {
		return nil, errBadCaseFile
	}

	cases := make([]applicant.Record, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("test case %d is not an object", i)
		}
		cases = append(cases, applicant.Record(m))
	}
	return cases, nil
}

// normalizeYAML turns the map[interface{}]interface{} values yaml.v2
// produces into JSON-shaped maps so records look the same from either format.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []interface{}:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	case int:
		return float64(t)
	default:
		return v
	}
}

// RunCases evaluates every case with at most concurrency in flight and
// returns results in input order. A failing case is recorded, not fatal.
func RunCases(ctx context.Context, eval Evaluator, cases []applicant.Record, concurrency int) []Result {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]Result, len(cases))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, c := range cases {
		g.Go(func() error {
			results[i] = runOne(ctx, eval, c)
			return nil
		})
	}
	g.Wait()
	return results
}

func runOne(ctx context.Context, eval Evaluator, c applicant.Record) Result {
	caseID := applicant.AsString(c.Get("case_id"))
	if caseID == "" {
		caseID = casestate.DefaultCaseID
	}
	r := Result{
		CaseID:   caseID,
		Expected: scoring.NormalizeDecision(applicant.AsString(c.Get("expected_decision"))),
	}

	summary, err := eval.Submit(ctx, caseID, c)
	if err != nil {
		r.Err = err
		return r
	}
	r.Actual = summary.FinalDecision
	r.RiskScore = summary.RiskScore
	if summary.DecisionMemo != nil {
		r.Memo = strings.TrimSpace(*summary.DecisionMemo)
	}
	return r
}

// PrintTable writes the results table and reports whether every case matched.
func PrintTable(w io.Writer, results []Result) bool {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CASE_ID\tEXPECTED\tACTUAL\tRISK_SCORE\tMATCH")

	allOK := true
	for _, r := range results {
		actual := string(r.Actual)
		if r.Err != nil {
			actual = "ERROR: " + r.Err.Error()
		}
		score := "-"
		if r.RiskScore != nil {
			score = fmt.Sprint(*r.RiskScore)
		}
		match := "yes"
		if !r.Match() {
			match = "NO"
			allOK = false
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.CaseID, r.Expected, actual, score, match)
	}
	tw.Flush()
	return allOK
}

// PrintMemos writes each decision memo, truncated to maxMemoChars.
func PrintMemos(w io.Writer, results []Result) {
	for _, r := range results {
		if r.Memo == "" {
			continue
		}
		fmt.Fprintf(w, "\n===== Decision memo: %s =====\n", r.CaseID)
		fmt.Fprintln(w, truncate(r.Memo, maxMemoChars))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n...(truncated)"
}
