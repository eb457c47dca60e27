// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// AuditChain is the terminal artifact of the pipeline for one
// scenario: a SORC-structured record (Statement of facts, Obligations,
// Reasoning, Conclusion). Write-once; the unit persisted and evaluated
// downstream.
//
// Every claim in an audit chain is grounded: violation clause IDs and
// clause-referencing trigger reasons must appear in
// Obligations.RankedClauses. The audit builder enforces this before
// construction.
type AuditChain struct {
	// ScenarioID ties the chain back to its source scenario.
	ScenarioID string `json:"scenario_id"`

	// Facts is the statement of extracted facts from the scenario.
	Facts []string `json:"facts"`

	// Obligations is the retrieval result the reasoning was grounded on.
	Obligations RetrievalResult `json:"obligations"`

	// Critique is the deterministic hard finding.
	Critique HardFinding `json:"critique"`

	// Risk is the probabilistic risk assessment.
	Risk RiskAssessment `json:"risk"`

	// Escalation is the final escalation decision.
	Escalation EscalationDecision `json:"escalation"`

	// SuggestedResponse is a compliant replacement response. Populated
	// only when Escalation.Escalate is true and a corrective-response
	// collaborator is configured.
	SuggestedResponse string `json:"suggested_response,omitempty"`

	// MetaReflection summarizes the chain in natural language.
	MetaReflection string `json:"meta_reflection"`
}
