// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval implements the hybrid clause retrieval engine.
//
// Retrieval ranks the knowledge base against a scenario by cosine
// similarity of embeddings. When local confidence falls below the
// configured threshold, a secondary fallback source is consulted and
// the candidate sets are merged and re-ranked. Retrieval never fails a
// scenario: if the fallback is unavailable the engine degrades to the
// local ranking and flags the low confidence.
//
// For a fixed KB snapshot and a fixed embedder, Retrieve is
// deterministic: ranking ties are broken by ascending clause ID.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/aurora/services/oversight/datatypes"
	"github.com/AleutianAI/aurora/services/oversight/embed"
	"github.com/AleutianAI/aurora/services/oversight/kb"
)

var tracer = otel.Tracer("aurora.retrieval")

// ErrFallbackUnavailable is returned by fallback sources that are
// unreachable or degraded. The engine recovers by degrading to the
// local ranking; this error is never fatal to a scenario.
var ErrFallbackUnavailable = errors.New("fallback source unavailable")

// FallbackSource supplies additional candidate clauses when local
// retrieval confidence is insufficient.
//
// Implementations must be safe for concurrent use and must respect
// context cancellation; the engine wraps every call in a timeout.
type FallbackSource interface {
	// FetchCandidates returns up to limit candidate clauses for the
	// query text. Returned clauses may lack embeddings; the engine
	// embeds them before ranking.
	FetchCandidates(ctx context.Context, query string, limit int) ([]datatypes.Clause, error)
}

// Config configures the retrieval engine.
type Config struct {
	// TopK is the number of clauses to return. Default: 5.
	TopK int

	// ConfidenceThreshold is the minimum top-1 similarity below which
	// the fallback source is consulted. Default: 0.35. The zero value
	// takes the default; to never consult a fallback, pass a nil
	// fallback source to NewEngine instead of a zero threshold.
	ConfidenceThreshold float64

	// FallbackTimeout bounds a single fallback call. Default: 10s.
	FallbackTimeout time.Duration

	// FallbackLimit is the maximum candidates requested from the
	// fallback source. Default: 5.
	FallbackLimit int

	// Logger for retrieval events. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the default retrieval configuration.
func DefaultConfig() Config {
	return Config{
		TopK:                5,
		ConfidenceThreshold: 0.35,
		FallbackTimeout:     10 * time.Second,
		FallbackLimit:       5,
		Logger:              slog.Default(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.TopK < 1 {
		return errors.New("top_k must be at least 1")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return errors.New("confidence_threshold must be between 0 and 1")
	}
	if c.FallbackTimeout <= 0 {
		return errors.New("fallback_timeout must be positive")
	}
	return nil
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.TopK == 0 {
		c.TopK = defaults.TopK
	}
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = defaults.ConfidenceThreshold
	}
	if c.FallbackTimeout == 0 {
		c.FallbackTimeout = defaults.FallbackTimeout
	}
	if c.FallbackLimit == 0 {
		c.FallbackLimit = defaults.FallbackLimit
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine ranks KB clauses against scenarios.
//
// Thread Safety: safe for concurrent use; the snapshot is read-only
// and per-call state is not shared.
type Engine struct {
	snapshot *kb.Snapshot
	embedder embed.Embedder
	fallback FallbackSource
	config   Config
}

// NewEngine creates a retrieval engine over a KB snapshot.
//
// Inputs:
//
//	snapshot - The loaded KB snapshot. Must not be nil.
//	embedder - The embedding source. Must not be nil.
//	fallback - Optional secondary source. May be nil; the engine then
//	           always returns local results.
//	config - Engine configuration; zero values take defaults.
//
// Outputs:
//
//	*Engine - The configured engine.
//	error - Non-nil if snapshot or embedder is nil, or config invalid.
func NewEngine(snapshot *kb.Snapshot, embedder embed.Embedder, fallback FallbackSource, config Config) (*Engine, error) {
	if snapshot == nil {
		return nil, errors.New("snapshot must not be nil")
	}
	if embedder == nil {
		return nil, errors.New("embedder must not be nil")
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("retrieval config: %w", err)
	}
	return &Engine{
		snapshot: snapshot,
		embedder: embedder,
		fallback: fallback,
		config:   config,
	}, nil
}

// Snapshot returns the KB snapshot the engine ranks against.
func (e *Engine) Snapshot() *kb.Snapshot {
	return e.snapshot
}

// scored pairs a clause ID with its similarity and origin.
type scored struct {
	clauseID   string
	similarity float64
	fromLocal  bool
	fromRemote bool
}

// Retrieve ranks the KB against the scenario.
//
// Description:
//
//	Embeds the scenario's combined text, scores every clause in the
//	snapshot by cosine similarity, and returns the top-K ranking with
//	confidence set to the top-1 similarity. Below the confidence
//	threshold the fallback source is consulted; its candidates are
//	embedded, merged with the local pool, and the merged set is
//	re-ranked. Source is marked hybrid when both pools contributed to
//	the final ranking, fallback when only remote candidates made it.
//
//	The second return value holds fallback-fetched clauses that made
//	the final ranking but are absent from the local snapshot, so
//	downstream critique can bind rules against their text. It is nil
//	on the pure-local path.
//
// Edge cases:
//
//	An empty KB yields an empty ranking with confidence 0; that is a
//	valid result, not an error. A failing fallback degrades to the
//	local ranking.
func (e *Engine) Retrieve(ctx context.Context, scenario *datatypes.Scenario) (datatypes.RetrievalResult, []datatypes.Clause, error) {
	ctx, span := tracer.Start(ctx, "retrieval.retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("scenario_id", scenario.ScenarioID))

	result := datatypes.RetrievalResult{
		ScenarioID: scenario.ScenarioID,
		Source:     datatypes.SourceLocal,
	}

	queryVec, err := e.embedder.Embed(ctx, scenario.CombinedText())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed query")
		return result, nil, fmt.Errorf("embed scenario %s: %w", scenario.ScenarioID, err)
	}

	pool := e.scoreLocal(queryVec)

	confidence := 0.0
	if len(pool) > 0 {
		sortScored(pool)
		confidence = pool[0].similarity
	}

	var supplement map[string]datatypes.Clause
	if confidence < e.config.ConfidenceThreshold && e.fallback != nil {
		pool, supplement = e.mergeFallback(ctx, scenario, queryVec, pool)
		sortScored(pool)
	}

	topK := e.config.TopK
	if topK > len(pool) {
		topK = len(pool)
	}

	var localHit, remoteHit bool
	var extraClauses []datatypes.Clause
	for _, s := range pool[:topK] {
		result.RankedClauses = append(result.RankedClauses, datatypes.RankedClause{
			ClauseID:   s.clauseID,
			Similarity: s.similarity,
		})
		localHit = localHit || s.fromLocal
		remoteHit = remoteHit || s.fromRemote
		if !s.fromLocal {
			if c, ok := supplement[s.clauseID]; ok {
				extraClauses = append(extraClauses, c)
			}
		}
	}

	switch {
	case localHit && remoteHit:
		result.Source = datatypes.SourceHybrid
	case remoteHit:
		result.Source = datatypes.SourceFallback
	default:
		result.Source = datatypes.SourceLocal
	}

	if len(result.RankedClauses) > 0 {
		result.Confidence = result.RankedClauses[0].Similarity
	}

	span.SetAttributes(
		attribute.Float64("confidence", result.Confidence),
		attribute.String("source", string(result.Source)),
		attribute.Int("ranked", len(result.RankedClauses)),
	)

	if result.Confidence < e.config.ConfidenceThreshold {
		e.config.Logger.Warn("retrieval confidence below threshold",
			"scenario_id", scenario.ScenarioID,
			"confidence", result.Confidence,
			"threshold", e.config.ConfidenceThreshold,
			"source", result.Source)
	}

	return result, extraClauses, nil
}

// scoreLocal scores every snapshot clause against the query vector.
func (e *Engine) scoreLocal(queryVec []float32) []scored {
	clauses := e.snapshot.Clauses()
	pool := make([]scored, 0, len(clauses))
	for _, c := range clauses {
		pool = append(pool, scored{
			clauseID:   c.ClauseID,
			similarity: embed.CosineSimilarity(queryVec, c.Embedding),
			fromLocal:  true,
		})
	}
	return pool
}

// mergeFallback fetches fallback candidates and merges them into the
// local pool. Failures degrade to the unmodified pool. The returned
// map holds fetched clauses (with embeddings) keyed by clause ID for
// clauses the local snapshot does not carry.
func (e *Engine) mergeFallback(ctx context.Context, scenario *datatypes.Scenario, queryVec []float32, pool []scored) ([]scored, map[string]datatypes.Clause) {
	ctx, span := tracer.Start(ctx, "retrieval.fallback")
	defer span.End()

	fctx, cancel := context.WithTimeout(ctx, e.config.FallbackTimeout)
	defer cancel()

	candidates, err := e.fallback.FetchCandidates(fctx, scenario.CombinedText(), e.config.FallbackLimit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fallback fetch")
		e.config.Logger.Warn("fallback source unavailable, using local ranking",
			"scenario_id", scenario.ScenarioID,
			"error", err)
		return pool, nil
	}

	byID := make(map[string]int, len(pool))
	for i, s := range pool {
		byID[s.clauseID] = i
	}
	supplement := make(map[string]datatypes.Clause)

	for _, c := range candidates {
		vec := c.Embedding
		if len(vec) == 0 {
			var embErr error
			vec, embErr = e.embedder.Embed(fctx, c.Text)
			if embErr != nil {
				e.config.Logger.Warn("skipping fallback candidate, embedding failed",
					"clause_id", c.ClauseID,
					"error", embErr)
				continue
			}
		}
		sim := embed.CosineSimilarity(queryVec, vec)

		if idx, exists := byID[c.ClauseID]; exists {
			// A clause known locally and returned by the fallback keeps
			// its best score and counts for both origins.
			if sim > pool[idx].similarity {
				pool[idx].similarity = sim
			}
			pool[idx].fromRemote = true
			continue
		}
		pool = append(pool, scored{
			clauseID:   c.ClauseID,
			similarity: sim,
			fromRemote: true,
		})
		byID[c.ClauseID] = len(pool) - 1

		c.Embedding = vec
		supplement[c.ClauseID] = c
	}

	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	return pool, supplement
}

// sortScored orders by descending similarity, ties by ascending
// clause ID. The tie-break keeps retrieval byte-identical across runs.
func sortScored(pool []scored) {
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].similarity != pool[j].similarity {
			return pool[i].similarity > pool[j].similarity
		}
		return pool[i].clauseID < pool[j].clauseID
	})
}
