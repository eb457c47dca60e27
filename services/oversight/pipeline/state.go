// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import "fmt"

// Stage is the position of a scenario in the oversight pipeline.
//
// Stages advance strictly forward; the only transitions are to the
// immediate successor or to StageFailed. A scenario never skips a
// stage and never re-enters an earlier one.
type Stage string

const (
	StagePending           Stage = "PENDING"
	StageRetrieved         Stage = "RETRIEVED"
	StageHardCritiqued     Stage = "HARD_CRITIQUED"
	StageSoftCritiqued     Stage = "SOFT_CRITIQUED"
	StageEscalationDecided Stage = "ESCALATION_DECIDED"
	StageAudited           Stage = "AUDITED"
	StageFailed            Stage = "FAILED"
)

// successor maps each stage to the next stage in the pipeline.
var successor = map[Stage]Stage{
	StagePending:           StageRetrieved,
	StageRetrieved:         StageHardCritiqued,
	StageHardCritiqued:     StageSoftCritiqued,
	StageSoftCritiqued:     StageEscalationDecided,
	StageEscalationDecided: StageAudited,
}

// scenarioState tracks one scenario's progress through the pipeline.
// Owned by a single worker goroutine; not shared.
type scenarioState struct {
	stage Stage
}

func newScenarioState() *scenarioState {
	return &scenarioState{stage: StagePending}
}

// advance moves to the next stage, enforcing the transition rules.
// An invalid transition is a pipeline bug and panics rather than
// producing a silently inconsistent audit trail.
func (s *scenarioState) advance(to Stage) {
	if s.stage == StageFailed || s.stage == StageAudited {
		panic(fmt.Sprintf("pipeline: transition out of terminal stage %s", s.stage))
	}
	if to == StageFailed {
		s.stage = StageFailed
		return
	}
	next, ok := successor[s.stage]
	if !ok || next != to {
		panic(fmt.Sprintf("pipeline: invalid transition %s -> %s", s.stage, to))
	}
	s.stage = to
}

// terminal reports whether the scenario has reached a final stage.
func (s *scenarioState) terminal() bool {
	return s.stage == StageAudited || s.stage == StageFailed
}
