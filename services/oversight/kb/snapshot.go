// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package kb loads and holds the regulatory knowledge base.
//
// A Snapshot is constructed once at batch start and shared read-only
// across all concurrent scenario pipelines. Nothing mutates a snapshot
// after Load returns; an empty snapshot is legal and downstream stages
// treat "no obligations found" as a first-class outcome.
package kb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/aurora/services/oversight/datatypes"
	"github.com/AleutianAI/aurora/services/oversight/embed"
)

// DefaultEmbedConcurrency bounds parallel embedding calls at load time.
const DefaultEmbedConcurrency = 8

// ErrDuplicateClause is returned when a KB file repeats a clause ID.
var ErrDuplicateClause = errors.New("duplicate clause id")

// clauseRecord is the on-disk attribute set for one clause. The KB
// file is a mapping keyed by clause_id, so the ID lives outside the
// record.
type clauseRecord struct {
	Authority datatypes.SourceAuthority `json:"source_authority"`
	Text      string                    `json:"text"`
	Embedding []float32                 `json:"embedding_vector,omitempty"`
}

// kbFile is the on-disk KB snapshot format.
type kbFile struct {
	Version string                  `json:"version"`
	Clauses map[string]clauseRecord `json:"clauses"`
}

// Snapshot is an immutable, versioned collection of clauses with
// embeddings.
//
// Thread Safety: safe for concurrent use; all state is fixed at load.
type Snapshot struct {
	version string
	clauses []datatypes.Clause
	byID    map[string]int
}

// LoadOptions configures snapshot loading.
type LoadOptions struct {
	// Embedder fills in embeddings for clauses whose record lacks a
	// precomputed vector. Required unless every clause carries one.
	Embedder embed.Embedder

	// EmbedConcurrency bounds parallel embedding calls.
	// Default: DefaultEmbedConcurrency.
	EmbedConcurrency int

	// Logger for load progress. Default: slog.Default().
	Logger *slog.Logger
}

// Load reads a KB snapshot file and returns an immutable Snapshot.
//
// Description:
//
//	Parses the JSON mapping of clause_id to clause attributes,
//	validates every clause, and computes embeddings for clauses that
//	lack a precomputed vector. Clauses are stored sorted by clause ID
//	so iteration order is deterministic.
//
// Inputs:
//
//	ctx - Context for cancellation of embedding calls.
//	path - Path to the KB snapshot file.
//	opts - Load options. May be zero-valued when all embeddings are
//	       precomputed.
//
// Outputs:
//
//	*Snapshot - The loaded snapshot.
//	error - Non-nil if the file is unreadable, a clause is invalid, a
//	        clause ID repeats, or embedding fails.
func Load(ctx context.Context, path string, opts LoadOptions) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read kb file: %w", err)
	}

	var file kbFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse kb file: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	snap := &Snapshot{
		version: file.Version,
		clauses: make([]datatypes.Clause, 0, len(file.Clauses)),
		byID:    make(map[string]int, len(file.Clauses)),
	}

	for id, rec := range file.Clauses {
		c := datatypes.Clause{
			ClauseID:  id,
			Authority: rec.Authority,
			Text:      rec.Text,
			Embedding: rec.Embedding,
			Version:   file.Version,
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("kb version %s: %w", file.Version, err)
		}
		snap.clauses = append(snap.clauses, c)
	}

	// Deterministic ordering regardless of map iteration.
	sort.Slice(snap.clauses, func(i, j int) bool {
		return snap.clauses[i].ClauseID < snap.clauses[j].ClauseID
	})
	for i, c := range snap.clauses {
		if _, dup := snap.byID[c.ClauseID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateClause, c.ClauseID)
		}
		snap.byID[c.ClauseID] = i
	}

	if err := snap.fillEmbeddings(ctx, opts); err != nil {
		return nil, err
	}

	logger.Info("loaded kb snapshot",
		"version", snap.version,
		"clauses", len(snap.clauses))
	return snap, nil
}

// fillEmbeddings computes embeddings for clauses that lack one.
func (s *Snapshot) fillEmbeddings(ctx context.Context, opts LoadOptions) error {
	var missing []int
	for i, c := range s.clauses {
		if len(c.Embedding) == 0 {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if opts.Embedder == nil {
		return fmt.Errorf("kb has %d clauses without embeddings and no embedder configured", len(missing))
	}

	concurrency := opts.EmbedConcurrency
	if concurrency <= 0 {
		concurrency = DefaultEmbedConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, idx := range missing {
		idx := idx
		g.Go(func() error {
			vec, err := opts.Embedder.Embed(gctx, s.clauses[idx].Text)
			if err != nil {
				return fmt.Errorf("embed clause %s: %w", s.clauses[idx].ClauseID, err)
			}
			s.clauses[idx].Embedding = vec
			return nil
		})
	}
	return g.Wait()
}

// Version returns the KB version string.
func (s *Snapshot) Version() string {
	return s.version
}

// Len returns the number of clauses in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.clauses)
}

// Clauses returns the clauses ordered by ascending clause ID.
//
// The returned slice is a copy; callers cannot mutate snapshot state.
func (s *Snapshot) Clauses() []datatypes.Clause {
	out := make([]datatypes.Clause, len(s.clauses))
	copy(out, s.clauses)
	return out
}

// Clause returns the clause with the given ID.
func (s *Snapshot) Clause(clauseID string) (datatypes.Clause, bool) {
	idx, ok := s.byID[clauseID]
	if !ok {
		return datatypes.Clause{}, false
	}
	return s.clauses[idx], true
}

// FileReport summarizes a KB file for validation tooling.
type FileReport struct {
	// Version is the KB version string.
	Version string

	// Clauses is the number of clauses in the file.
	Clauses int

	// MissingEmbeddings is the number of clauses without a precomputed
	// embedding vector. These require an embedder at load time.
	MissingEmbeddings int
}

// ValidateFile parses and validates a KB file without computing
// embeddings. Used by offline tooling to check a snapshot before a
// batch run.
func ValidateFile(path string) (FileReport, error) {
	var report FileReport

	data, err := os.ReadFile(path)
	if err != nil {
		return report, fmt.Errorf("read kb file: %w", err)
	}
	var file kbFile
	if err := json.Unmarshal(data, &file); err != nil {
		return report, fmt.Errorf("parse kb file: %w", err)
	}

	report.Version = file.Version
	report.Clauses = len(file.Clauses)
	for id, rec := range file.Clauses {
		c := datatypes.Clause{
			ClauseID:  id,
			Authority: rec.Authority,
			Text:      rec.Text,
			Embedding: rec.Embedding,
			Version:   file.Version,
		}
		if err := c.Validate(); err != nil {
			return report, fmt.Errorf("kb version %s: %w", file.Version, err)
		}
		if len(rec.Embedding) == 0 {
			report.MissingEmbeddings++
		}
	}
	return report, nil
}

// NewSnapshot builds a snapshot directly from clauses. Intended for
// tests and programmatic KB construction; clauses must already carry
// embeddings and unique IDs.
func NewSnapshot(version string, clauses []datatypes.Clause) (*Snapshot, error) {
	snap := &Snapshot{
		version: version,
		clauses: make([]datatypes.Clause, len(clauses)),
		byID:    make(map[string]int, len(clauses)),
	}
	copy(snap.clauses, clauses)
	sort.Slice(snap.clauses, func(i, j int) bool {
		return snap.clauses[i].ClauseID < snap.clauses[j].ClauseID
	})
	for i, c := range snap.clauses {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := snap.byID[c.ClauseID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateClause, c.ClauseID)
		}
		snap.byID[c.ClauseID] = i
	}
	return snap, nil
}
