// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/aurora/services/oversight/datatypes"
	"github.com/AleutianAI/aurora/services/oversight/kb"
)

// mapEmbedder returns a fixed vector per text, defaulting to defVec.
type mapEmbedder struct {
	vectors map[string][]float32
	defVec  []float32
}

func (m *mapEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return m.defVec, nil
}

func (m *mapEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// stubFallback returns canned candidates or an error.
type stubFallback struct {
	candidates []datatypes.Clause
	err        error
	calls      int
}

func (s *stubFallback) FetchCandidates(ctx context.Context, query string, limit int) ([]datatypes.Clause, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.candidates, nil
}

func testSnapshot(t *testing.T) *kb.Snapshot {
	t.Helper()
	snap, err := kb.NewSnapshot("v1", []datatypes.Clause{
		{ClauseID: "FCA-1", Authority: datatypes.AuthorityFCA, Text: "fair communication", Embedding: []float32{1, 0, 0}},
		{ClauseID: "FCA-2", Authority: datatypes.AuthorityFCA, Text: "risk warnings", Embedding: []float32{0.9, 0.1, 0}},
		{ClauseID: "PRA-1", Authority: datatypes.AuthorityPRA, Text: "capital resources", Embedding: []float32{0, 1, 0}},
	})
	require.NoError(t, err)
	return snap
}

func scenario(id string) *datatypes.Scenario {
	return &datatypes.Scenario{
		ScenarioID:        id,
		UserMessage:       "should I invest",
		AssistantResponse: "returns are great",
	}
}

func TestRetrieveLocalRanking(t *testing.T) {
	snap := testSnapshot(t)
	embedder := &mapEmbedder{defVec: []float32{1, 0, 0}}

	engine, err := NewEngine(snap, embedder, nil, Config{TopK: 2})
	require.NoError(t, err)

	result, supplement, err := engine.Retrieve(context.Background(), scenario("s-1"))
	require.NoError(t, err)

	assert.Equal(t, datatypes.SourceLocal, result.Source)
	assert.Nil(t, supplement)
	require.Len(t, result.RankedClauses, 2)
	assert.Equal(t, "FCA-1", result.RankedClauses[0].ClauseID)
	assert.Equal(t, "FCA-2", result.RankedClauses[1].ClauseID)
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)
}

func TestRetrieveDeterministic(t *testing.T) {
	snap := testSnapshot(t)
	embedder := &mapEmbedder{defVec: []float32{0.5, 0.5, 0}}
	engine, err := NewEngine(snap, embedder, nil, Config{})
	require.NoError(t, err)

	first, _, err := engine.Retrieve(context.Background(), scenario("s-1"))
	require.NoError(t, err)
	second, _, err := engine.Retrieve(context.Background(), scenario("s-1"))
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical inputs must produce identical rankings")
}

func TestRetrieveTieBreakByClauseID(t *testing.T) {
	snap, err := kb.NewSnapshot("v1", []datatypes.Clause{
		{ClauseID: "B-2", Authority: datatypes.AuthorityFCA, Text: "b", Embedding: []float32{1, 0}},
		{ClauseID: "A-1", Authority: datatypes.AuthorityFCA, Text: "a", Embedding: []float32{1, 0}},
	})
	require.NoError(t, err)

	engine, err := NewEngine(snap, &mapEmbedder{defVec: []float32{1, 0}}, nil, Config{})
	require.NoError(t, err)

	result, _, err := engine.Retrieve(context.Background(), scenario("s-1"))
	require.NoError(t, err)
	require.Len(t, result.RankedClauses, 2)
	assert.Equal(t, "A-1", result.RankedClauses[0].ClauseID, "equal scores break ties by ascending clause ID")
}

func TestRetrieveSkipsFallbackWhenConfident(t *testing.T) {
	snap := testSnapshot(t)
	fallback := &stubFallback{}
	engine, err := NewEngine(snap, &mapEmbedder{defVec: []float32{1, 0, 0}}, fallback, Config{ConfidenceThreshold: 0.35})
	require.NoError(t, err)

	_, _, err = engine.Retrieve(context.Background(), scenario("s-1"))
	require.NoError(t, err)
	assert.Zero(t, fallback.calls, "confident local retrieval must not consult the fallback")
}

func TestRetrieveMergesFallbackCandidates(t *testing.T) {
	snap := testSnapshot(t)
	// Query nearly orthogonal to every local clause: low confidence.
	embedder := &mapEmbedder{
		defVec: []float32{0.1, 0.1, 1},
		vectors: map[string][]float32{
			"EU AI transparency obligations": {0.1, 0.1, 1},
		},
	}
	fallback := &stubFallback{candidates: []datatypes.Clause{
		{ClauseID: "EU-ART-13", Authority: datatypes.AuthorityEUAIAct, Text: "EU AI transparency obligations"},
	}}

	engine, err := NewEngine(snap, embedder, fallback, Config{TopK: 3, ConfidenceThreshold: 0.35})
	require.NoError(t, err)

	result, supplement, err := engine.Retrieve(context.Background(), scenario("s-1"))
	require.NoError(t, err)

	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, datatypes.SourceHybrid, result.Source)
	assert.Equal(t, "EU-ART-13", result.RankedClauses[0].ClauseID, "fallback candidate should rank first")

	require.Len(t, supplement, 1)
	assert.Equal(t, "EU-ART-13", supplement[0].ClauseID)
	assert.NotEmpty(t, supplement[0].Embedding, "supplement clauses must carry embeddings")
}

func TestRetrieveDegradesOnFallbackError(t *testing.T) {
	snap := testSnapshot(t)
	embedder := &mapEmbedder{defVec: []float32{0.1, 0.1, 1}}
	fallback := &stubFallback{err: errors.New("connection refused")}

	engine, err := NewEngine(snap, embedder, fallback, Config{ConfidenceThreshold: 0.35})
	require.NoError(t, err)

	result, supplement, err := engine.Retrieve(context.Background(), scenario("s-1"))
	require.NoError(t, err, "fallback failure must not fail the scenario")
	assert.Equal(t, datatypes.SourceLocal, result.Source)
	assert.Nil(t, supplement)
	assert.NotEmpty(t, result.RankedClauses, "local ranking survives fallback failure")
}

func TestRetrieveEmptyKB(t *testing.T) {
	snap, err := kb.NewSnapshot("v1", nil)
	require.NoError(t, err)

	engine, err := NewEngine(snap, &mapEmbedder{defVec: []float32{1}}, nil, Config{})
	require.NoError(t, err)

	result, _, err := engine.Retrieve(context.Background(), scenario("s-1"))
	require.NoError(t, err)
	assert.Empty(t, result.RankedClauses)
	assert.Zero(t, result.Confidence)
	assert.Equal(t, datatypes.SourceLocal, result.Source)
}

func TestConfigValidate(t *testing.T) {
	bad := Config{TopK: -1}
	bad.applyDefaults()
	// applyDefaults leaves explicit negatives alone; Validate catches them.
	assert.Error(t, bad.Validate())

	good := DefaultConfig()
	assert.NoError(t, good.Validate())
}
