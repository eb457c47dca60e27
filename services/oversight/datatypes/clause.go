// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the core data model shared by the AURORA
// oversight pipeline: regulatory clauses, scenarios, per-stage results,
// and the terminal audit chain.
//
// All types in this package are plain data. Once a value enters the
// pipeline it is treated as immutable; stages communicate by producing
// new values, never by mutating their inputs.
package datatypes

import (
	"errors"
	"fmt"
)

// SourceAuthority identifies the regulatory regime a clause belongs to.
type SourceAuthority string

const (
	// AuthorityFCA is the UK Financial Conduct Authority.
	AuthorityFCA SourceAuthority = "FCA"

	// AuthorityPRA is the UK Prudential Regulation Authority.
	AuthorityPRA SourceAuthority = "PRA"

	// AuthorityEUAIAct is the EU Artificial Intelligence Act.
	AuthorityEUAIAct SourceAuthority = "EU_AI_Act"

	// AuthorityInternal is firm-internal policy.
	AuthorityInternal SourceAuthority = "Internal"
)

// ErrUnknownAuthority is returned when a clause names an authority
// outside the supported set.
var ErrUnknownAuthority = errors.New("unknown source authority")

// Valid reports whether the authority is one of the supported regimes.
func (a SourceAuthority) Valid() bool {
	switch a {
	case AuthorityFCA, AuthorityPRA, AuthorityEUAIAct, AuthorityInternal:
		return true
	default:
		return false
	}
}

// String returns the authority as a string.
func (a SourceAuthority) String() string {
	return string(a)
}

// Clause is a single regulatory obligation.
//
// Clauses are immutable once loaded into a knowledge base snapshot and
// are identified uniquely by ClauseID within a KB version.
type Clause struct {
	// ClauseID uniquely identifies the clause within a KB version.
	ClauseID string `json:"clause_id"`

	// Authority is the regulatory regime that issued the clause.
	Authority SourceAuthority `json:"source_authority"`

	// Text is the full obligation text.
	Text string `json:"text"`

	// Embedding is the precomputed semantic embedding of Text.
	// May be empty in a raw KB file; the snapshot loader fills it in.
	Embedding []float32 `json:"embedding_vector,omitempty"`

	// Version is the KB version this clause was loaded from.
	Version string `json:"version"`
}

// Validate checks the clause for required fields.
//
// Outputs:
//
//	error - Non-nil if the clause is unusable.
func (c *Clause) Validate() error {
	if c.ClauseID == "" {
		return errors.New("clause_id must not be empty")
	}
	if !c.Authority.Valid() {
		return fmt.Errorf("%w: %q (clause %s)", ErrUnknownAuthority, c.Authority, c.ClauseID)
	}
	if c.Text == "" {
		return fmt.Errorf("clause %s has empty text", c.ClauseID)
	}
	return nil
}
