// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package risk

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/aurora/services/oversight/datatypes"
)

// stubJudge returns canned judgments, optionally failing the first N
// calls.
type stubJudge struct {
	judgment  Judgment
	err       error
	failFirst int
	calls     int
	lastReq   JudgmentRequest
}

func (s *stubJudge) Judge(ctx context.Context, req JudgmentRequest) (Judgment, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil && (s.failFirst == 0 || s.calls <= s.failFirst) {
		return Judgment{}, s.err
	}
	return s.judgment, nil
}

func testScenario() *datatypes.Scenario {
	return &datatypes.Scenario{
		ScenarioID:        "s-1",
		UserMessage:       "Should I put my savings in crypto?",
		AssistantResponse: "Crypto always goes up.",
	}
}

func TestAssessSuccess(t *testing.T) {
	uncertainty := 0.2
	judge := &stubJudge{judgment: Judgment{Score: 0.65, Rationale: "overstated certainty", Uncertainty: &uncertainty}}
	critic, err := NewCritic(judge, Config{})
	require.NoError(t, err)

	a := critic.Assess(context.Background(), testScenario(), nil, &datatypes.HardFinding{})

	assert.False(t, a.Fallback)
	assert.InDelta(t, 0.65, a.RiskScore, 1e-9)
	assert.Equal(t, datatypes.RiskMedium, a.RiskLevel)
	assert.Equal(t, "overstated certainty", a.Rationale)
	require.NotNil(t, a.Uncertainty)
	assert.InDelta(t, 0.2, *a.Uncertainty, 1e-9)
	assert.NotEmpty(t, a.RequestID)
}

func TestAssessClampsScore(t *testing.T) {
	tests := []struct {
		raw  float64
		want float64
	}{
		{1.7, 1.0},
		{-0.3, 0.0},
		{0.5, 0.5},
	}
	for _, tt := range tests {
		judge := &stubJudge{judgment: Judgment{Score: tt.raw, Rationale: "r"}}
		critic, err := NewCritic(judge, Config{})
		require.NoError(t, err)

		a := critic.Assess(context.Background(), testScenario(), nil, &datatypes.HardFinding{})
		assert.InDelta(t, tt.want, a.RiskScore, 1e-9, "raw score %v", tt.raw)
	}
}

func TestAssessFallbackOnPersistentFailure(t *testing.T) {
	judge := &stubJudge{err: errors.New("model overloaded")}
	critic, err := NewCritic(judge, Config{RetryAttempts: 2, RetryBackoff: time.Millisecond})
	require.NoError(t, err)

	a := critic.Assess(context.Background(), testScenario(), nil, &datatypes.HardFinding{})

	assert.Equal(t, 2, judge.calls, "should retry before falling back")
	assert.True(t, a.Fallback)
	assert.InDelta(t, 1.0, a.RiskScore, 1e-9, "fallback assumes maximum risk")
	assert.Equal(t, datatypes.RiskHigh, a.RiskLevel)
	assert.Contains(t, a.Rationale, "FALLBACK")
	assert.NotEmpty(t, a.RequestID)
}

func TestAssessRecoversAfterTransientFailure(t *testing.T) {
	judge := &stubJudge{
		judgment:  Judgment{Score: 0.3, Rationale: "mild"},
		err:       errors.New("flaky"),
		failFirst: 1,
	}
	critic, err := NewCritic(judge, Config{RetryAttempts: 3, RetryBackoff: time.Millisecond})
	require.NoError(t, err)

	a := critic.Assess(context.Background(), testScenario(), nil, &datatypes.HardFinding{})

	assert.Equal(t, 2, judge.calls)
	assert.False(t, a.Fallback)
	assert.InDelta(t, 0.3, a.RiskScore, 1e-9)
}

func TestAssessTruncatesTopClauses(t *testing.T) {
	judge := &stubJudge{judgment: Judgment{Score: 0.1, Rationale: "r"}}
	critic, err := NewCritic(judge, Config{TopClauses: 2})
	require.NoError(t, err)

	clauses := []datatypes.Clause{
		{ClauseID: "A", Authority: datatypes.AuthorityFCA, Text: "a"},
		{ClauseID: "B", Authority: datatypes.AuthorityFCA, Text: "b"},
		{ClauseID: "C", Authority: datatypes.AuthorityFCA, Text: "c"},
	}
	critic.Assess(context.Background(), testScenario(), clauses, &datatypes.HardFinding{})

	assert.Len(t, judge.lastReq.TopClauses, 2)
}

func TestAssessHardSummaryInRequest(t *testing.T) {
	judge := &stubJudge{judgment: Judgment{Score: 0.9, Rationale: "r"}}
	critic, err := NewCritic(judge, Config{})
	require.NoError(t, err)

	hard := &datatypes.HardFinding{
		Violated: true,
		Violations: []datatypes.RuleViolation{
			{ClauseID: "FCA-1", RuleID: "guaranteed-returns", Severity: datatypes.SeverityCritical},
		},
	}
	critic.Assess(context.Background(), testScenario(), nil, hard)

	assert.Contains(t, judge.lastReq.HardSummary, "guaranteed-returns")
	assert.Contains(t, judge.lastReq.HardSummary, "FCA-1")
}

func TestParseJudgment(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    Judgment
		wantErr bool
	}{
		{
			name:  "plain json",
			reply: `{"risk_score": 0.8, "rationale": "high pressure language"}`,
			want:  Judgment{Score: 0.8, Rationale: "high pressure language"},
		},
		{
			name: "fenced json",
			reply: "```json\n" + `{"risk_score": 0.4, "rationale": "ok"}` + "\n```",
			want: Judgment{Score: 0.4, Rationale: "ok"},
		},
		{
			name:  "surrounding prose",
			reply: `Here is my assessment: {"risk_score": 0.2, "rationale": "benign"} Hope that helps.`,
			want:  Judgment{Score: 0.2, Rationale: "benign"},
		},
		{
			name:    "no json",
			reply:   "the risk seems moderate",
			wantErr: true,
		},
		{
			name:    "missing rationale",
			reply:   `{"risk_score": 0.5}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseJudgment(tt.reply)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedJudgment))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Score, got.Score)
			assert.Equal(t, tt.want.Rationale, got.Rationale)
		})
	}
}

func TestBuildPromptIncludesClauses(t *testing.T) {
	judge := &LLMJudge{temperature: 0.2, maxTokens: 100}
	req := JudgmentRequest{
		RequestID: "req-1",
		Scenario:  testScenario(),
		TopClauses: []datatypes.Clause{
			{ClauseID: "FCA-COBS-4.2.1", Authority: datatypes.AuthorityFCA, Text: "fair, clear and not misleading"},
		},
		HardSummary: "Hard critique found no rule violations.",
	}
	prompt := judge.buildPrompt(req)

	assert.True(t, strings.Contains(prompt, "FCA-COBS-4.2.1"))
	assert.True(t, strings.Contains(prompt, "fair, clear and not misleading"))
	assert.True(t, strings.Contains(prompt, req.Scenario.UserMessage))
	assert.True(t, strings.Contains(prompt, "risk_score"))
}
