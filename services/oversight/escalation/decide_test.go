// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package escalation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/aurora/services/oversight/datatypes"
)

func assessment(score float64) *datatypes.RiskAssessment {
	return &datatypes.RiskAssessment{
		RiskScore: score,
		RiskLevel: datatypes.RiskLevelFor(score),
	}
}

func TestDecideLevels(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name      string
		hard      datatypes.HardFinding
		risk      float64
		wantLevel datatypes.EscalationLevel
	}{
		{
			name:      "clean scenario",
			hard:      datatypes.HardFinding{},
			risk:      0.1,
			wantLevel: datatypes.EscalationNone,
		},
		{
			name:      "advisory risk only",
			hard:      datatypes.HardFinding{},
			risk:      0.55,
			wantLevel: datatypes.EscalationAdvisory,
		},
		{
			name:      "mandatory risk only",
			hard:      datatypes.HardFinding{},
			risk:      0.85,
			wantLevel: datatypes.EscalationMandatory,
		},
		{
			name: "minor violation low risk",
			hard: datatypes.HardFinding{Violated: true, Violations: []datatypes.RuleViolation{
				{ClauseID: "FCA-1", RuleID: "pressure-selling", Severity: datatypes.SeverityMinor},
			}},
			risk:      0.1,
			wantLevel: datatypes.EscalationAdvisory,
		},
		{
			name: "critical violation low risk",
			hard: datatypes.HardFinding{Violated: true, Violations: []datatypes.RuleViolation{
				{ClauseID: "FCA-1", RuleID: "guaranteed-returns", Severity: datatypes.SeverityCritical},
			}},
			risk:      0.1,
			wantLevel: datatypes.EscalationMandatory,
		},
		{
			name:      "exactly advisory threshold",
			hard:      datatypes.HardFinding{},
			risk:      0.5,
			wantLevel: datatypes.EscalationAdvisory,
		},
		{
			name:      "exactly mandatory threshold",
			hard:      datatypes.HardFinding{},
			risk:      0.8,
			wantLevel: datatypes.EscalationMandatory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(&tt.hard, assessment(tt.risk), policy)
			if d.Level != tt.wantLevel {
				t.Errorf("Decide() level = %s, want %s (reasons %v)", d.Level, tt.wantLevel, d.TriggerReasons)
			}
			if d.Escalate != (tt.wantLevel != datatypes.EscalationNone) {
				t.Errorf("Escalate = %v inconsistent with level %s", d.Escalate, d.Level)
			}
			if tt.wantLevel == datatypes.EscalationNone && len(d.TriggerReasons) != 0 {
				t.Errorf("no-escalation decision should carry no reasons, got %v", d.TriggerReasons)
			}
		})
	}
}

func TestDecideReasonOrder(t *testing.T) {
	hard := &datatypes.HardFinding{Violated: true, Violations: []datatypes.RuleViolation{
		{ClauseID: "FCA-1", RuleID: "guaranteed-returns", Severity: datatypes.SeverityCritical},
		{ClauseID: "FCA-2", RuleID: "pressure-selling", Severity: datatypes.SeverityMinor},
	}}
	d := Decide(hard, assessment(0.9), DefaultPolicy())

	wantCodes := []string{
		TriggerHardCritical,
		TriggerRiskMandatory,
		TriggerHardViolation,
		TriggerHardViolation,
		TriggerRiskAdvisory,
	}
	if len(d.TriggerReasons) != len(wantCodes) {
		t.Fatalf("expected %d reasons, got %v", len(wantCodes), d.TriggerReasons)
	}
	for i, code := range wantCodes {
		if d.TriggerReasons[i].Code != code {
			t.Errorf("reason %d code = %s, want %s", i, d.TriggerReasons[i].Code, code)
		}
	}
	if d.TriggerReasons[0].ClauseID != "FCA-1" {
		t.Errorf("critical reason must name its clause, got %q", d.TriggerReasons[0].ClauseID)
	}
	if d.TriggerReasons[2].ClauseID != "FCA-1" || d.TriggerReasons[3].ClauseID != "FCA-2" {
		t.Errorf("violation reasons must cover every violation, got %v", d.TriggerReasons)
	}
}

func TestDecideListsEveryFiredCondition(t *testing.T) {
	d := Decide(&datatypes.HardFinding{}, assessment(0.9), DefaultPolicy())

	if d.Level != datatypes.EscalationMandatory {
		t.Fatalf("level = %s, want mandatory", d.Level)
	}
	wantCodes := []string{TriggerRiskMandatory, TriggerRiskAdvisory}
	if len(d.TriggerReasons) != len(wantCodes) {
		t.Fatalf("a score above both thresholds fires both risk conditions, got %v", d.TriggerReasons)
	}
	for i, code := range wantCodes {
		if d.TriggerReasons[i].Code != code {
			t.Errorf("reason %d code = %s, want %s", i, d.TriggerReasons[i].Code, code)
		}
	}
}

func TestDecideMonotonicInRisk(t *testing.T) {
	hard := &datatypes.HardFinding{Violated: true, Violations: []datatypes.RuleViolation{
		{ClauseID: "FCA-1", RuleID: "missing-risk-warning", Severity: datatypes.SeverityMajor},
	}}
	policy := DefaultPolicy()

	prev := -1
	for _, score := range []float64{0.0, 0.2, 0.4, 0.5, 0.6, 0.8, 0.9, 1.0} {
		d := Decide(hard, assessment(score), policy)
		if d.Level.Rank() < prev {
			t.Fatalf("escalation level decreased when risk rose to %v", score)
		}
		prev = d.Level.Rank()
	}
}

func TestDecideDeterministic(t *testing.T) {
	hard := &datatypes.HardFinding{Violated: true, Violations: []datatypes.RuleViolation{
		{ClauseID: "FCA-1", RuleID: "pressure-selling", Severity: datatypes.SeverityMinor},
	}}
	first := Decide(hard, assessment(0.6), DefaultPolicy())
	second := Decide(hard, assessment(0.6), DefaultPolicy())

	if first.Level != second.Level || len(first.TriggerReasons) != len(second.TriggerReasons) {
		t.Fatal("identical inputs must produce identical decisions")
	}
	for i := range first.TriggerReasons {
		if first.TriggerReasons[i] != second.TriggerReasons[i] {
			t.Errorf("reason %d differs between runs", i)
		}
	}
}

func TestPolicyValidate(t *testing.T) {
	bad := Policy{MandatoryRisk: 0.4, AdvisoryRisk: 0.6}
	if err := bad.Validate(); err == nil {
		t.Error("advisory above mandatory should be invalid")
	}
	outOfRange := Policy{MandatoryRisk: 1.5, AdvisoryRisk: 0.5}
	if err := outOfRange.Validate(); err == nil {
		t.Error("threshold above 1 should be invalid")
	}
	if err := DefaultPolicy().Validate(); err != nil {
		t.Errorf("default policy invalid: %v", err)
	}
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yml")
	if err := os.WriteFile(path, []byte("mandatory_risk: 0.9\nadvisory_risk: 0.6\n"), 0644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy() error = %v", err)
	}
	if policy.MandatoryRisk != 0.9 || policy.AdvisoryRisk != 0.6 {
		t.Errorf("unexpected policy %+v", policy)
	}
}

func TestLoadPolicyDefaultsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yml")
	if err := os.WriteFile(path, []byte("advisory_risk: 0.3\n"), 0644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy() error = %v", err)
	}
	if policy.MandatoryRisk != DefaultPolicy().MandatoryRisk {
		t.Errorf("missing mandatory_risk should default, got %v", policy.MandatoryRisk)
	}
}
