// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"strings"
	"testing"
)

func TestScenarioValidate(t *testing.T) {
	tests := []struct {
		name     string
		scenario Scenario
		wantErr  bool
	}{
		{
			name: "valid dialogue scenario",
			scenario: Scenario{
				ScenarioID:        "s-001",
				UserMessage:       "Should I invest in this fund?",
				AssistantResponse: "Capital is at risk; consider speaking to an adviser.",
			},
			wantErr: false,
		},
		{
			name: "missing scenario id",
			scenario: Scenario{
				UserMessage:       "hello",
				AssistantResponse: "hi",
			},
			wantErr: true,
		},
		{
			name: "blank user message",
			scenario: Scenario{
				ScenarioID:        "s-002",
				UserMessage:       "   ",
				AssistantResponse: "hi",
			},
			wantErr: true,
		},
		{
			name: "blank assistant response",
			scenario: Scenario{
				ScenarioID:  "s-003",
				UserMessage: "hello",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scenario.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformedScenario) {
				t.Errorf("error should wrap ErrMalformedScenario, got %v", err)
			}
		})
	}
}

func TestReadScenarios(t *testing.T) {
	input := `{"scenario_id":"s-1","user_message":"u1","assistant_response":"a1"}

{"scenario_id":"s-2","user_message":"u2","assistant_response":"a2","task_type":"reg_qa","gold_answer":"42"}
`
	scenarios, err := ReadScenarios(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadScenarios() error = %v", err)
	}
	if len(scenarios) != 2 {
		t.Fatalf("expected 2 scenarios, got %d", len(scenarios))
	}
	if scenarios[0].TaskType != TaskDialogue {
		t.Errorf("missing task_type should default to dialogue, got %q", scenarios[0].TaskType)
	}
	if scenarios[1].TaskType != TaskRegQA || scenarios[1].GoldAnswer != "42" {
		t.Errorf("unexpected second scenario: %+v", scenarios[1])
	}
}

func TestReadScenariosBadJSON(t *testing.T) {
	_, err := ReadScenarios(strings.NewReader("{not json}\n"))
	if err == nil {
		t.Fatal("expected parse error for invalid JSON line")
	}
}

func TestCombinedText(t *testing.T) {
	s := Scenario{UserMessage: "question", AssistantResponse: "answer"}
	if got := s.CombinedText(); got != "question answer" {
		t.Errorf("CombinedText() = %q", got)
	}
}

func TestTaskTypeIsCanonical(t *testing.T) {
	canonical := []TaskType{TaskDefinition, TaskRegQA, TaskXBRL, TaskCDM, TaskMOF}
	for _, tt := range canonical {
		if !tt.IsCanonical() {
			t.Errorf("%s should be canonical", tt)
		}
	}
	if TaskDialogue.IsCanonical() {
		t.Error("dialogue should not be canonical")
	}
}
