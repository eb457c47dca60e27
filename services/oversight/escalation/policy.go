// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package escalation implements the deterministic escalation decision.
//
// The decision is a pure function of a hard finding, a risk assessment,
// and policy thresholds. No model calls, no I/O, no randomness: the
// same inputs always yield the same decision and the same ordered
// trigger reasons.
package escalation

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy holds the escalation thresholds.
type Policy struct {
	// MandatoryRisk is the risk score at or above which escalation is
	// mandatory. Default: 0.8.
	MandatoryRisk float64 `yaml:"mandatory_risk"`

	// AdvisoryRisk is the risk score at or above which escalation is
	// advisory. Default: 0.5.
	AdvisoryRisk float64 `yaml:"advisory_risk"`
}

// DefaultPolicy returns the default escalation thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MandatoryRisk: 0.8,
		AdvisoryRisk:  0.5,
	}
}

// Validate checks the policy thresholds.
func (p Policy) Validate() error {
	if p.MandatoryRisk < 0 || p.MandatoryRisk > 1 {
		return errors.New("mandatory_risk must be between 0 and 1")
	}
	if p.AdvisoryRisk < 0 || p.AdvisoryRisk > 1 {
		return errors.New("advisory_risk must be between 0 and 1")
	}
	if p.AdvisoryRisk > p.MandatoryRisk {
		return errors.New("advisory_risk must not exceed mandatory_risk")
	}
	return nil
}

// LoadPolicy reads a policy file in YAML format. Missing thresholds
// take their defaults.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if err := policy.Validate(); err != nil {
		return policy, fmt.Errorf("policy file %s: %w", path, err)
	}
	return policy, nil
}
