// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// TaskType classifies what kind of evaluation a scenario expects.
//
// Dialogue scenarios are judged against retrieved obligations.
// Canonical-answer scenarios (definition lookups, regulatory Q&A,
// XBRL/CDM/MOF tagging) additionally carry a gold answer that the
// assistant response is compared against verbatim.
type TaskType string

const (
	TaskDialogue   TaskType = "dialogue"
	TaskDefinition TaskType = "definition"
	TaskRegQA      TaskType = "reg_qa"
	TaskXBRL       TaskType = "xbrl"
	TaskCDM        TaskType = "cdm"
	TaskMOF        TaskType = "mof"
)

// IsCanonical reports whether the task type is judged against a gold
// answer rather than dialogue obligations.
func (t TaskType) IsCanonical() bool {
	switch t {
	case TaskDefinition, TaskRegQA, TaskXBRL, TaskCDM, TaskMOF:
		return true
	default:
		return false
	}
}

// ErrMalformedScenario is returned when a scenario is missing required
// fields. Malformed scenarios are fatal for that scenario only.
var ErrMalformedScenario = errors.New("malformed scenario")

// Scenario is one user/assistant interaction under oversight.
//
// Scenarios are produced by an external dataset-preparation step and
// are read-only to the pipeline. Ground-truth fields (ComplianceLabel,
// EscalationRequired, LinkedClauses) may be absent in benchmark mode.
type Scenario struct {
	// ScenarioID uniquely identifies the scenario.
	ScenarioID string `json:"scenario_id"`

	// UserMessage is the user's message to the assistant.
	UserMessage string `json:"user_message"`

	// AssistantResponse is the assistant's reply under review.
	AssistantResponse string `json:"assistant_response"`

	// ComplianceLabel is the ground-truth compliance annotation
	// (e.g. COMPLIANT, BREACH, HIGH_RISK). Empty when unlabeled.
	ComplianceLabel string `json:"compliance_label,omitempty"`

	// EscalationRequired is the ground-truth escalation annotation.
	// Nil when unlabeled.
	EscalationRequired *bool `json:"escalation_required,omitempty"`

	// LinkedClauses are the clause IDs annotated as relevant. May be
	// empty.
	LinkedClauses []string `json:"linked_clauses,omitempty"`

	// TaskType classifies the scenario. Defaults to dialogue.
	TaskType TaskType `json:"task_type,omitempty"`

	// GoldAnswer is the canonical answer for non-dialogue tasks.
	GoldAnswer string `json:"gold_answer,omitempty"`

	// Notes carries free-form annotator notes.
	Notes string `json:"notes,omitempty"`
}

// CombinedText returns the text the retrieval engine embeds: the user
// message concatenated with the assistant response.
func (s *Scenario) CombinedText() string {
	return s.UserMessage + " " + s.AssistantResponse
}

// Validate checks required fields.
//
// Outputs:
//
//	error - Wraps ErrMalformedScenario if a required field is missing.
func (s *Scenario) Validate() error {
	if s.ScenarioID == "" {
		return fmt.Errorf("%w: scenario_id is empty", ErrMalformedScenario)
	}
	if strings.TrimSpace(s.UserMessage) == "" {
		return fmt.Errorf("%w: scenario %s has empty user_message", ErrMalformedScenario, s.ScenarioID)
	}
	if strings.TrimSpace(s.AssistantResponse) == "" {
		return fmt.Errorf("%w: scenario %s has empty assistant_response", ErrMalformedScenario, s.ScenarioID)
	}
	return nil
}

// LoadScenariosJSONL reads scenarios from a JSONL file, one JSON
// object per line. Blank lines are skipped. Records missing optional
// ground-truth fields are accepted (benchmark mode); records that fail
// to parse produce an error naming the line.
//
// Inputs:
//
//	path - Path to the JSONL file.
//
// Outputs:
//
//	[]Scenario - The parsed scenarios, in file order.
//	error - Non-nil if the file cannot be read or a line is invalid JSON.
func LoadScenariosJSONL(path string) ([]Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenarios file: %w", err)
	}
	defer f.Close()
	return ReadScenarios(f)
}

// ReadScenarios parses JSONL scenario records from a reader.
func ReadScenarios(r io.Reader) ([]Scenario, error) {
	var scenarios []Scenario
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var s Scenario
		if err := json.Unmarshal([]byte(line), &s); err != nil {
			return nil, fmt.Errorf("parse scenario at line %d: %w", lineNo, err)
		}
		if s.TaskType == "" {
			s.TaskType = TaskDialogue
		}
		scenarios = append(scenarios, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	return scenarios, nil
}
