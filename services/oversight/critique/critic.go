// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package critique

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/aurora/services/oversight/datatypes"
	"github.com/AleutianAI/aurora/services/oversight/kb"
)

// Critic is the hard compliance critique agent.
//
// Critique is a pure function of (scenario, retrieval result, rule
// set, KB snapshot): no external calls, fully reproducible. Violations
// are emitted in deterministic order (clause ID, then rule ID).
//
// Thread Safety: safe for concurrent use after construction.
type Critic struct {
	rules    []Rule
	snapshot *kb.Snapshot
}

// NewCritic creates a hard critic over a rule set and KB snapshot.
//
// Inputs:
//
//	snapshot - The KB snapshot used to resolve clause text. Must not be nil.
//	rules - The rule set. Nil falls back to DefaultRules().
//
// Outputs:
//
//	*Critic - The configured critic.
//	error - Non-nil if the snapshot is nil or a rule is invalid.
func NewCritic(snapshot *kb.Snapshot, rules []Rule) (*Critic, error) {
	if snapshot == nil {
		return nil, errors.New("snapshot must not be nil")
	}
	if rules == nil {
		rules = DefaultRules()
	}
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("critic rules: %w", err)
		}
	}
	return &Critic{rules: rules, snapshot: snapshot}, nil
}

// Rules returns a copy of the active rule set.
func (c *Critic) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Critique evaluates the rule set against the retrieved clauses.
//
// Description:
//
//	For each retrieved clause, every enabled rule whose clause
//	selector matches is evaluated against the scenario text; each hit
//	yields a (clause_id, rule_id, severity) violation. Clause text is
//	resolved from the snapshot, or from supplement for fallback-fetched
//	clauses the snapshot does not carry. Canonical-answer scenarios are
//	additionally judged against their gold answer. Coverage reports the
//	fraction of annotated linked clauses present in the retrieval
//	result.
//
// Edge cases:
//
//	An empty retrieval result produces no violations; "no obligations
//	found" is a valid outcome. A true violation against a clause the
//	retrieval missed is undetectable by design.
func (c *Critic) Critique(scenario *datatypes.Scenario, retrieval *datatypes.RetrievalResult, supplement []datatypes.Clause) datatypes.HardFinding {
	finding := datatypes.HardFinding{
		Coverage: coverage(scenario.LinkedClauses, retrieval),
	}

	extra := make(map[string]datatypes.Clause, len(supplement))
	for _, sc := range supplement {
		extra[sc.ClauseID] = sc
	}

	for _, ranked := range retrieval.RankedClauses {
		clause, ok := c.snapshot.Clause(ranked.ClauseID)
		if !ok {
			clause, ok = extra[ranked.ClauseID]
		}
		if !ok {
			// No text available for this clause ID; rules cannot bind.
			continue
		}
		for i := range c.rules {
			rule := &c.rules[i]
			if !rule.Enabled {
				continue
			}
			if !rule.appliesTo(&clause) {
				continue
			}
			if !rule.firesOn(scenario) {
				continue
			}
			finding.Violations = append(finding.Violations, datatypes.RuleViolation{
				ClauseID: clause.ClauseID,
				RuleID:   rule.ID,
				Severity: rule.Severity,
			})
		}
	}

	if v, ok := c.canonicalAnswerViolation(scenario, retrieval); ok {
		finding.Violations = append(finding.Violations, v)
	}

	sort.Slice(finding.Violations, func(i, j int) bool {
		a, b := finding.Violations[i], finding.Violations[j]
		if a.ClauseID != b.ClauseID {
			return a.ClauseID < b.ClauseID
		}
		return a.RuleID < b.RuleID
	})

	finding.Violated = len(finding.Violations) > 0
	return finding
}

// CanonicalMismatchRuleID is reported for canonical-answer scenarios
// whose assistant response does not match the gold answer.
const CanonicalMismatchRuleID = "canonical-answer-mismatch"

// canonicalAnswerViolation compares canonical tasks against the gold
// answer. The violation binds to the top retrieved clause; without any
// retrieved clause the mismatch is unreportable under the grounding
// invariant and is dropped.
func (c *Critic) canonicalAnswerViolation(scenario *datatypes.Scenario, retrieval *datatypes.RetrievalResult) (datatypes.RuleViolation, bool) {
	if !scenario.TaskType.IsCanonical() || scenario.GoldAnswer == "" {
		return datatypes.RuleViolation{}, false
	}
	if normalizeAnswer(scenario.AssistantResponse) == normalizeAnswer(scenario.GoldAnswer) {
		return datatypes.RuleViolation{}, false
	}
	if len(retrieval.RankedClauses) == 0 {
		return datatypes.RuleViolation{}, false
	}
	return datatypes.RuleViolation{
		ClauseID: retrieval.RankedClauses[0].ClauseID,
		RuleID:   CanonicalMismatchRuleID,
		Severity: datatypes.SeverityMajor,
	}, true
}

// normalizeAnswer lowercases and trims for gold-answer comparison.
func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// coverage is the fraction of linked gold clauses that were retrieved.
// Scenarios without linked clauses are fully covered by definition.
func coverage(linked []string, retrieval *datatypes.RetrievalResult) float64 {
	if len(linked) == 0 {
		return 1.0
	}
	hit := 0
	for _, id := range linked {
		if retrieval.Contains(id) {
			hit++
		}
	}
	return float64(hit) / float64(len(linked))
}
