// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "testing"

func TestRiskLevelFor(t *testing.T) {
	tests := []struct {
		score float64
		want  RiskLevel
	}{
		{0.0, RiskLow},
		{0.39, RiskLow},
		{0.4, RiskMedium},
		{0.69, RiskMedium},
		{0.7, RiskHigh},
		{1.0, RiskHigh},
	}
	for _, tt := range tests {
		if got := RiskLevelFor(tt.score); got != tt.want {
			t.Errorf("RiskLevelFor(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestHardFindingMaxSeverity(t *testing.T) {
	tests := []struct {
		name    string
		finding HardFinding
		want    Severity
	}{
		{
			name: "critical dominates",
			finding: HardFinding{Violations: []RuleViolation{
				{Severity: SeverityMinor},
				{Severity: SeverityCritical},
				{Severity: SeverityMajor},
			}},
			want: SeverityCritical,
		},
		{
			name: "major over minor",
			finding: HardFinding{Violations: []RuleViolation{
				{Severity: SeverityMinor},
				{Severity: SeverityMajor},
			}},
			want: SeverityMajor,
		},
		{
			name:    "empty finding",
			finding: HardFinding{},
			want:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.finding.MaxSeverity(); got != tt.want {
				t.Errorf("MaxSeverity() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscalationLevelRank(t *testing.T) {
	if !(EscalationNone.Rank() < EscalationAdvisory.Rank() &&
		EscalationAdvisory.Rank() < EscalationMandatory.Rank()) {
		t.Error("escalation levels must order none < advisory < mandatory")
	}
}

func TestRetrievalResultContains(t *testing.T) {
	r := RetrievalResult{RankedClauses: []RankedClause{
		{ClauseID: "FCA-1", Similarity: 0.9},
		{ClauseID: "PRA-2", Similarity: 0.5},
	}}
	if !r.Contains("FCA-1") || !r.Contains("PRA-2") {
		t.Error("Contains() should find ranked clauses")
	}
	if r.Contains("EU-9") {
		t.Error("Contains() should not find unranked clauses")
	}
	ids := r.ClauseIDs()
	if len(ids) != 2 || ids[0] != "FCA-1" || ids[1] != "PRA-2" {
		t.Errorf("ClauseIDs() = %v", ids)
	}
}

func TestClauseValidate(t *testing.T) {
	valid := Clause{ClauseID: "FCA-1", Authority: AuthorityFCA, Text: "Communications must be fair."}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid clause rejected: %v", err)
	}

	unknown := Clause{ClauseID: "X-1", Authority: "SEC", Text: "text"}
	if err := unknown.Validate(); err == nil {
		t.Error("unknown authority should be rejected")
	}

	empty := Clause{ClauseID: "FCA-2", Authority: AuthorityFCA}
	if err := empty.Validate(); err == nil {
		t.Error("empty text should be rejected")
	}
}
