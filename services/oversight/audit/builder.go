// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit assembles the terminal audit chain for a scenario.
//
// The builder enforces the grounding invariant before constructing a
// chain: every clause ID referenced by a violation or a trigger reason
// must appear in the retrieval ranking. A grounding failure is a fatal
// pipeline bug, not a degradable condition, so it surfaces as an error
// instead of a weakened chain.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/aurora/services/oversight/datatypes"
)

// ErrGroundingViolation is returned when a violation or trigger reason
// references a clause that is not in the retrieval ranking.
var ErrGroundingViolation = errors.New("audit grounding violation")

// CorrectiveResponder proposes a compliant replacement response for an
// escalated scenario.
//
// Implementations may call an external model; the builder treats
// failures as non-fatal and leaves the suggestion absent.
type CorrectiveResponder interface {
	SuggestResponse(ctx context.Context, scenario *datatypes.Scenario, chain *datatypes.AuditChain) (string, error)
}

// Builder assembles audit chains.
//
// Apart from the optional corrective responder, assembly is pure:
// facts extraction and the meta reflection are deterministic functions
// of the stage outputs.
//
// Thread Safety: safe for concurrent use.
type Builder struct {
	responder CorrectiveResponder
	logger    *slog.Logger
}

// NewBuilder creates an audit chain builder.
//
// Inputs:
//
//	responder - Optional corrective-response collaborator. May be nil;
//	            chains then never carry a suggested response.
//	logger - Logger for builder events. Nil uses slog.Default().
func NewBuilder(responder CorrectiveResponder, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{responder: responder, logger: logger}
}

// Build assembles the audit chain for one scenario.
//
// Description:
//
//	Verifies grounding of the hard finding and the escalation decision
//	against the retrieval ranking, extracts the statement of facts,
//	and assembles the SORC chain. When the decision escalates and a
//	corrective responder is configured, a suggested response is
//	requested; responder failures are logged and leave the suggestion
//	absent rather than failing the chain.
//
// Outputs:
//
//	*datatypes.AuditChain - The assembled chain.
//	error - ErrGroundingViolation if any referenced clause is not in
//	        the ranking.
func (b *Builder) Build(
	ctx context.Context,
	scenario *datatypes.Scenario,
	retrieval *datatypes.RetrievalResult,
	hard *datatypes.HardFinding,
	risk *datatypes.RiskAssessment,
	decision *datatypes.EscalationDecision,
) (*datatypes.AuditChain, error) {
	if err := verifyGrounding(retrieval, hard, decision); err != nil {
		return nil, err
	}

	chain := &datatypes.AuditChain{
		ScenarioID:  scenario.ScenarioID,
		Facts:       extractFacts(scenario, retrieval),
		Obligations: *retrieval,
		Critique:    *hard,
		Risk:        *risk,
		Escalation:  *decision,
	}
	chain.MetaReflection = reflect(chain)

	if decision.Escalate && b.responder != nil {
		suggestion, err := b.responder.SuggestResponse(ctx, scenario, chain)
		if err != nil {
			b.logger.Warn("corrective response unavailable",
				"scenario_id", scenario.ScenarioID,
				"error", err)
		} else {
			chain.SuggestedResponse = suggestion
		}
	}

	return chain, nil
}

// verifyGrounding checks that every clause reference in the finding and
// the decision resolves into the retrieval ranking.
func verifyGrounding(retrieval *datatypes.RetrievalResult, hard *datatypes.HardFinding, decision *datatypes.EscalationDecision) error {
	for _, v := range hard.Violations {
		if !retrieval.Contains(v.ClauseID) {
			return fmt.Errorf("%w: violation by rule %s references clause %s outside the ranking",
				ErrGroundingViolation, v.RuleID, v.ClauseID)
		}
	}
	for _, r := range decision.TriggerReasons {
		if r.ClauseID != "" && !retrieval.Contains(r.ClauseID) {
			return fmt.Errorf("%w: trigger %s references clause %s outside the ranking",
				ErrGroundingViolation, r.Code, r.ClauseID)
		}
	}
	return nil
}

// extractFacts builds the deterministic statement of facts.
func extractFacts(scenario *datatypes.Scenario, retrieval *datatypes.RetrievalResult) []string {
	facts := []string{
		fmt.Sprintf("User message: %s", scenario.UserMessage),
		fmt.Sprintf("Assistant response: %s", scenario.AssistantResponse),
		fmt.Sprintf("Task type: %s", scenario.TaskType),
	}
	if len(retrieval.RankedClauses) == 0 {
		facts = append(facts, "No regulatory clauses retrieved.")
		return facts
	}
	facts = append(facts, fmt.Sprintf("Retrieved %d clause(s) via %s source: %s",
		len(retrieval.RankedClauses), retrieval.Source,
		strings.Join(retrieval.ClauseIDs(), ", ")))
	return facts
}

// reflect renders the deterministic meta reflection summarizing the
// chain's reasoning and conclusion.
func reflect(chain *datatypes.AuditChain) string {
	var sb strings.Builder

	if chain.Critique.Violated {
		fmt.Fprintf(&sb, "Hard critique found %d violation(s) with maximum severity %s. ",
			len(chain.Critique.Violations), chain.Critique.MaxSeverity())
	} else {
		sb.WriteString("Hard critique found no rule violations. ")
	}

	if chain.Risk.Fallback {
		fmt.Fprintf(&sb, "Risk judgment was unavailable; conservative fallback score %.2f (%s) applied. ",
			chain.Risk.RiskScore, chain.Risk.RiskLevel)
	} else {
		fmt.Fprintf(&sb, "Judged risk %.2f (%s). ", chain.Risk.RiskScore, chain.Risk.RiskLevel)
	}

	switch chain.Escalation.Level {
	case datatypes.EscalationMandatory:
		fmt.Fprintf(&sb, "Conclusion: mandatory escalation to human review (%d trigger(s)).",
			len(chain.Escalation.TriggerReasons))
	case datatypes.EscalationAdvisory:
		fmt.Fprintf(&sb, "Conclusion: advisory escalation recommended (%d trigger(s)).",
			len(chain.Escalation.TriggerReasons))
	default:
		sb.WriteString("Conclusion: no escalation required.")
	}

	return sb.String()
}
