// internal/underwriting/router/router.go
package router

import (
	"time"

	"mortgage-underwriting/internal/underwriting/casestate"
)

// Next selects the stage to run after s. Analyses are dispatched in the
// priority order of casestate.AnalysisStages; once all four have recorded
// output the decision stage runs, and a terminal case yields StageDone.
func Next(s casestate.State) casestate.Stage {
	if s.IsTerminal() {
		return casestate.StageDone
	}
	for _, stage := range casestate.AnalysisStages {
		if !s.IsCompleted(stage) {
			return stage
		}
	}
	return casestate.StageDecision
}

// Supervise records the routing decision on a new state. Nothing else changes.
func Supervise(s casestate.State, now time.Time) casestate.State {
	next := Next(s)
	complete := s.AllAnalysesPresent()
	return s.Apply(casestate.Update{
		Stage:            casestate.StageSupervisor,
		NextAgent:        &next,
		AnalysisComplete: &complete,
	}, now)
}
