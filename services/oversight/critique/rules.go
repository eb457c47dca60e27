// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package critique implements the hard compliance critique: a
// deterministic, reproducible rule evaluation of a scenario against
// its retrieved clauses.
//
// The rule language is keyword/pattern matching. A rule binds to a
// retrieved clause through a clause selector (authority and clause
// keywords) and fires when the scenario text satisfies its response
// conditions. Rules operate only on clauses present in the retrieval
// result; a violation against an unretrieved clause is undetectable by
// design.
package critique

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/aurora/services/oversight/datatypes"
)

// Rule defines one deterministic compliance rule.
//
// All text matching is case-insensitive substring matching. Condition
// groups combine with AND; terms within a group combine as documented
// per field.
type Rule struct {
	// ID is the stable rule identifier reported in violations.
	ID string `yaml:"id" json:"id"`

	// Description explains what the rule checks.
	Description string `yaml:"description" json:"description,omitempty"`

	// Enabled indicates if the rule is active.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Severity is the violation severity when the rule fires.
	Severity datatypes.Severity `yaml:"severity" json:"severity"`

	// AppliesToAuthority restricts the rule to clauses from these
	// authorities. Empty means any authority.
	AppliesToAuthority []datatypes.SourceAuthority `yaml:"applies_to_authority" json:"applies_to_authority,omitempty"`

	// ClauseKeywordsAny binds the rule to clauses whose text contains
	// any of these keywords. Empty means any clause.
	ClauseKeywordsAny []string `yaml:"clause_keywords_any" json:"clause_keywords_any,omitempty"`

	// ResponseContainsAny fires when the assistant response contains
	// any of these terms.
	ResponseContainsAny []string `yaml:"response_contains_any" json:"response_contains_any,omitempty"`

	// ResponseLacksAll fires when the assistant response contains none
	// of these terms (a required disclosure is missing).
	ResponseLacksAll []string `yaml:"response_lacks_all" json:"response_lacks_all,omitempty"`

	// UserContainsAny restricts the rule to scenarios whose user
	// message contains any of these terms. Empty means any message.
	UserContainsAny []string `yaml:"user_contains_any" json:"user_contains_any,omitempty"`
}

// Validate checks the rule definition.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return errors.New("rule id must not be empty")
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("rule %s: invalid severity %q", r.ID, r.Severity)
	}
	if len(r.ResponseContainsAny) == 0 && len(r.ResponseLacksAll) == 0 {
		return fmt.Errorf("rule %s: needs response_contains_any or response_lacks_all", r.ID)
	}
	for _, a := range r.AppliesToAuthority {
		if !a.Valid() {
			return fmt.Errorf("rule %s: %w: %q", r.ID, datatypes.ErrUnknownAuthority, a)
		}
	}
	return nil
}

// appliesTo reports whether the rule binds to the given clause.
func (r *Rule) appliesTo(clause *datatypes.Clause) bool {
	if len(r.AppliesToAuthority) > 0 {
		found := false
		for _, a := range r.AppliesToAuthority {
			if clause.Authority == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(r.ClauseKeywordsAny) > 0 {
		return containsAny(clause.Text, r.ClauseKeywordsAny)
	}
	return true
}

// firesOn reports whether the scenario text satisfies the rule's
// conditions. All specified condition groups must hold.
func (r *Rule) firesOn(scenario *datatypes.Scenario) bool {
	if len(r.UserContainsAny) > 0 && !containsAny(scenario.UserMessage, r.UserContainsAny) {
		return false
	}
	if len(r.ResponseContainsAny) > 0 && !containsAny(scenario.AssistantResponse, r.ResponseContainsAny) {
		return false
	}
	if len(r.ResponseLacksAll) > 0 && containsAny(scenario.AssistantResponse, r.ResponseLacksAll) {
		return false
	}
	return true
}

// containsAny reports case-insensitive substring containment of any term.
func containsAny(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// ruleFile is the on-disk rules format.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules loads rules from a YAML file.
//
// Inputs:
//
//	path - Path to the rules file (e.g. .aurora/rules.yml).
//
// Outputs:
//
//	[]Rule - The parsed, validated rules.
//	error - Non-nil if reading, parsing, or validation fails.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}

	for i := range file.Rules {
		if err := file.Rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("rules file %s: %w", path, err)
		}
	}
	return file.Rules, nil
}
