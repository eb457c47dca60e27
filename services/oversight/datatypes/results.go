// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "fmt"

// RetrievalSource describes which retrieval paths contributed ranked
// clauses for a scenario.
type RetrievalSource string

const (
	// SourceLocal means only the local KB contributed.
	SourceLocal RetrievalSource = "local"

	// SourceFallback means only the fallback source contributed.
	SourceFallback RetrievalSource = "fallback"

	// SourceHybrid means both local KB and fallback contributed.
	SourceHybrid RetrievalSource = "hybrid"
)

// RankedClause is one entry in a retrieval ranking.
type RankedClause struct {
	// ClauseID identifies the retrieved clause.
	ClauseID string `json:"clause_id"`

	// Similarity is the cosine similarity against the scenario text.
	Similarity float64 `json:"similarity_score"`
}

// RetrievalResult is the output of the hybrid retrieval engine for one
// scenario. Produced once, then immutable.
type RetrievalResult struct {
	// ScenarioID ties the result back to its scenario.
	ScenarioID string `json:"scenario_id"`

	// RankedClauses is ordered by descending similarity, ties broken
	// by ascending clause ID.
	RankedClauses []RankedClause `json:"ranked_clauses"`

	// Source records which retrieval paths contributed.
	Source RetrievalSource `json:"source"`

	// Confidence is the top-1 similarity score, 0 for an empty KB.
	Confidence float64 `json:"confidence"`
}

// Contains reports whether the ranking includes the given clause ID.
func (r *RetrievalResult) Contains(clauseID string) bool {
	for _, rc := range r.RankedClauses {
		if rc.ClauseID == clauseID {
			return true
		}
	}
	return false
}

// ClauseIDs returns the ranked clause IDs in order.
func (r *RetrievalResult) ClauseIDs() []string {
	ids := make([]string, len(r.RankedClauses))
	for i, rc := range r.RankedClauses {
		ids[i] = rc.ClauseID
	}
	return ids
}

// Severity grades a hard-rule violation.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// Valid reports whether the severity is one of the defined grades.
func (s Severity) Valid() bool {
	switch s {
	case SeverityMinor, SeverityMajor, SeverityCritical:
		return true
	default:
		return false
	}
}

// RuleViolation is one deterministic rule hit against one clause.
type RuleViolation struct {
	// ClauseID is the retrieved clause the rule fired against.
	ClauseID string `json:"clause_id"`

	// RuleID identifies the rule that fired.
	RuleID string `json:"rule_id"`

	// Severity grades the violation.
	Severity Severity `json:"severity"`
}

// HardFinding is the output of the hard compliance critique: a pure
// function of (scenario, retrieval result, rule set).
type HardFinding struct {
	// Violated is true iff at least one violation exists.
	Violated bool `json:"violated"`

	// Violations are the individual rule hits.
	Violations []RuleViolation `json:"violations"`

	// Coverage is the fraction of annotated linked clauses that were
	// retrieved. 1.0 when the scenario has no linked clauses.
	Coverage float64 `json:"coverage"`
}

// MaxSeverity returns the highest severity among the violations, or
// empty when there are none. Ordering: critical > major > minor.
func (h *HardFinding) MaxSeverity() Severity {
	var max Severity
	rank := func(s Severity) int {
		switch s {
		case SeverityCritical:
			return 3
		case SeverityMajor:
			return 2
		case SeverityMinor:
			return 1
		default:
			return 0
		}
	}
	for _, v := range h.Violations {
		if rank(v.Severity) > rank(max) {
			max = v.Severity
		}
	}
	return max
}

// RiskLevel is the qualitative banding of a risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// RiskLevelFor bands a risk score: >= 0.7 HIGH, >= 0.4 MEDIUM, else LOW.
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score >= 0.7:
		return RiskHigh
	case score >= 0.4:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RiskAssessment is the output of the soft risk critique. It is
// non-deterministic across repeated calls unless the judgment source
// is seeded; RequestID makes individual judgments auditable.
type RiskAssessment struct {
	// RiskScore is the judged risk in [0,1].
	RiskScore float64 `json:"risk_score"`

	// RiskLevel is the qualitative band of RiskScore.
	RiskLevel RiskLevel `json:"risk_level"`

	// Rationale is the judge's free-text explanation.
	Rationale string `json:"rationale"`

	// Uncertainty is the judge's self-reported uncertainty, if any.
	Uncertainty *float64 `json:"uncertainty,omitempty"`

	// RequestID identifies the judgment request for audit.
	RequestID string `json:"request_id,omitempty"`

	// Fallback is true when the judgment source failed and the
	// conservative fallback assessment was substituted.
	Fallback bool `json:"fallback"`
}

// EscalationLevel orders escalation outcomes: none < advisory < mandatory.
type EscalationLevel string

const (
	EscalationNone      EscalationLevel = "none"
	EscalationAdvisory  EscalationLevel = "advisory"
	EscalationMandatory EscalationLevel = "mandatory"
)

// Rank returns the ordinal of the level for monotonicity comparisons.
func (l EscalationLevel) Rank() int {
	switch l {
	case EscalationMandatory:
		return 2
	case EscalationAdvisory:
		return 1
	default:
		return 0
	}
}

// TriggerReason records one escalation condition that fired.
//
// Reasons are structured so the audit builder can verify grounding
// without string parsing: a reason either names a clause (hard
// violation) or names a threshold the risk score exceeded.
type TriggerReason struct {
	// Code is the machine-readable trigger code
	// (e.g. hard_violation_critical, risk_above_mandatory).
	Code string `json:"code"`

	// ClauseID is set for reasons grounded in a hard violation.
	ClauseID string `json:"clause_id,omitempty"`

	// Threshold is the named policy threshold for risk-based reasons.
	Threshold string `json:"threshold,omitempty"`

	// Detail is the human-readable explanation.
	Detail string `json:"detail"`
}

// String renders the reason for logs and reports.
func (t TriggerReason) String() string {
	if t.ClauseID != "" {
		return fmt.Sprintf("%s (clause %s): %s", t.Code, t.ClauseID, t.Detail)
	}
	return fmt.Sprintf("%s: %s", t.Code, t.Detail)
}

// EscalationDecision is the output of the escalation agent:
// deterministic given a hard finding, a risk assessment, and policy
// thresholds.
type EscalationDecision struct {
	// Escalate is true when the scenario requires human review.
	Escalate bool `json:"escalate"`

	// Level grades the escalation.
	Level EscalationLevel `json:"level"`

	// TriggerReasons lists every condition that fired, in policy
	// evaluation order. The ordering is a contract: consumers rank
	// reasons by severity-first precedence.
	TriggerReasons []TriggerReason `json:"trigger_reasons"`
}
