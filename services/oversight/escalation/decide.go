// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package escalation

import (
	"fmt"

	"github.com/AleutianAI/aurora/services/oversight/datatypes"
)

// Trigger codes emitted by Decide, in evaluation order.
const (
	TriggerHardCritical  = "hard_violation_critical"
	TriggerRiskMandatory = "risk_above_mandatory"
	TriggerHardViolation = "hard_violation"
	TriggerRiskAdvisory  = "risk_above_advisory"
)

// Decide evaluates the escalation policy.
//
// Description:
//
//	Conditions are evaluated in fixed precedence order, and every
//	condition that fired contributes a trigger reason in that order:
//
//	  1. any critical hard violation     -> mandatory
//	  2. risk score >= MandatoryRisk     -> mandatory
//	  3. any hard violation              -> advisory
//	  4. risk score >= AdvisoryRisk      -> advisory
//
//	Conditions are independent: a risk score clearing the mandatory
//	threshold also fires the advisory condition, and a critical
//	violation fires both violation conditions. The decision takes the
//	highest level among fired conditions.
//	Raising the risk score with everything else fixed never lowers the
//	escalation level.
//
// Edge cases:
//
//	A fallback risk assessment scores 1.0 and therefore always clears
//	the mandatory threshold: an unavailable judge escalates rather than
//	passes. No violations and a risk score below AdvisoryRisk yield
//	level none with no reasons.
func Decide(hard *datatypes.HardFinding, risk *datatypes.RiskAssessment, policy Policy) datatypes.EscalationDecision {
	var reasons []datatypes.TriggerReason
	level := datatypes.EscalationNone

	raise := func(to datatypes.EscalationLevel) {
		if to.Rank() > level.Rank() {
			level = to
		}
	}

	for _, v := range hard.Violations {
		if v.Severity == datatypes.SeverityCritical {
			reasons = append(reasons, datatypes.TriggerReason{
				Code:     TriggerHardCritical,
				ClauseID: v.ClauseID,
				Detail:   fmt.Sprintf("critical violation of clause %s by rule %s", v.ClauseID, v.RuleID),
			})
			raise(datatypes.EscalationMandatory)
		}
	}

	if risk.RiskScore >= policy.MandatoryRisk {
		reasons = append(reasons, datatypes.TriggerReason{
			Code:      TriggerRiskMandatory,
			Threshold: fmt.Sprintf("mandatory_risk=%.2f", policy.MandatoryRisk),
			Detail:    fmt.Sprintf("risk score %.2f at or above mandatory threshold %.2f", risk.RiskScore, policy.MandatoryRisk),
		})
		raise(datatypes.EscalationMandatory)
	}

	for _, v := range hard.Violations {
		reasons = append(reasons, datatypes.TriggerReason{
			Code:     TriggerHardViolation,
			ClauseID: v.ClauseID,
			Detail:   fmt.Sprintf("%s violation of clause %s by rule %s", v.Severity, v.ClauseID, v.RuleID),
		})
		raise(datatypes.EscalationAdvisory)
	}

	if risk.RiskScore >= policy.AdvisoryRisk {
		reasons = append(reasons, datatypes.TriggerReason{
			Code:      TriggerRiskAdvisory,
			Threshold: fmt.Sprintf("advisory_risk=%.2f", policy.AdvisoryRisk),
			Detail:    fmt.Sprintf("risk score %.2f at or above advisory threshold %.2f", risk.RiskScore, policy.AdvisoryRisk),
		})
		raise(datatypes.EscalationAdvisory)
	}

	return datatypes.EscalationDecision{
		Escalate:       level != datatypes.EscalationNone,
		Level:          level,
		TriggerReasons: reasons,
	}
}
