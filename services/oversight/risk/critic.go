// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package risk implements the soft risk critique: a probabilistic,
// model-judged risk assessment of a scenario.
//
// Unlike the hard critique, this stage calls an external judgment
// source and tolerates its latency and non-determinism. Failures never
// propagate: the critic substitutes a conservative fallback assessment
// with risk_score = 1.0 and a rationale marking the fallback, so the
// system fails safe toward caution. Every judgment request carries a
// request ID so non-deterministic scores remain auditable.
package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/aurora/services/oversight/datatypes"
)

var (
	// ErrJudgmentTimeout is returned internally when the judgment call
	// exceeds its deadline. Recovered by the fallback assessment.
	ErrJudgmentTimeout = errors.New("judgment call timed out")

	// ErrJudgmentUnavailable is returned internally when the judgment
	// source fails. Recovered by the fallback assessment.
	ErrJudgmentUnavailable = errors.New("judgment source unavailable")
)

// JudgmentRequest is the context given to the external judge.
type JudgmentRequest struct {
	// RequestID identifies this judgment for audit.
	RequestID string `json:"request_id"`

	// Scenario under review.
	Scenario *datatypes.Scenario `json:"scenario"`

	// TopClauses are the highest-ranked retrieved clauses.
	TopClauses []datatypes.Clause `json:"top_clauses"`

	// HardSummary summarizes the hard finding for the judge.
	HardSummary string `json:"hard_summary"`
}

// Judgment is the judge's verdict.
type Judgment struct {
	// Score is the raw risk score; the critic clamps it into [0,1].
	Score float64 `json:"risk_score"`

	// Rationale is the judge's free-text explanation.
	Rationale string `json:"rationale"`

	// Uncertainty is the judge's self-reported uncertainty, if any.
	Uncertainty *float64 `json:"uncertainty,omitempty"`
}

// Judge is the external judgment source.
//
// Implementations may be non-deterministic and slow; the critic wraps
// every call in a timeout and bounded retry. Must be safe for
// concurrent use.
type Judge interface {
	Judge(ctx context.Context, req JudgmentRequest) (Judgment, error)
}

// Config configures the soft risk critic.
type Config struct {
	// Timeout bounds a single judgment call. Default: 30s.
	Timeout time.Duration

	// RetryAttempts is the number of judgment attempts. Default: 2.
	RetryAttempts int

	// RetryBackoff is the pause between attempts. Default: 500ms.
	RetryBackoff time.Duration

	// TopClauses is how many ranked clauses are sent to the judge.
	// Default: 3.
	TopClauses int

	// Logger for critic events. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the default critic configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		RetryAttempts: 2,
		RetryBackoff:  500 * time.Millisecond,
		TopClauses:    3,
		Logger:        slog.Default(),
	}
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = defaults.RetryAttempts
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = defaults.RetryBackoff
	}
	if c.TopClauses == 0 {
		c.TopClauses = defaults.TopClauses
	}
	if c.Logger == nil {
		c.Logger = defaults.Logger
	}
}

// Critic is the soft risk critique agent.
//
// Thread Safety: safe for concurrent use.
type Critic struct {
	judge  Judge
	config Config
}

// NewCritic creates a soft risk critic over a judgment source.
//
// The judge is an explicit, injectable dependency so tests can
// substitute a deterministic stub without touching pipeline logic.
func NewCritic(judge Judge, config Config) (*Critic, error) {
	if judge == nil {
		return nil, errors.New("judge must not be nil")
	}
	config.applyDefaults()
	return &Critic{judge: judge, config: config}, nil
}

// Assess produces a risk assessment for the scenario.
//
// Description:
//
//	Builds a judgment request from the scenario, the top retrieved
//	clauses, and the hard-finding summary, then calls the judge with
//	timeout and bounded retry. The returned score is clamped into
//	[0,1]. On exhaustion the conservative fallback assessment
//	(risk_score = 1.0, Fallback = true) is returned instead of an
//	error, so the assessment is never silently omitted.
func (c *Critic) Assess(ctx context.Context, scenario *datatypes.Scenario, topClauses []datatypes.Clause, hard *datatypes.HardFinding) datatypes.RiskAssessment {
	requestID := uuid.NewString()

	if len(topClauses) > c.config.TopClauses {
		topClauses = topClauses[:c.config.TopClauses]
	}

	req := JudgmentRequest{
		RequestID:   requestID,
		Scenario:    scenario,
		TopClauses:  topClauses,
		HardSummary: summarizeHardFinding(hard),
	}

	var lastErr error
	for attempt := 0; attempt < c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				lastErr = fmt.Errorf("%w: %w", ErrJudgmentUnavailable, ctx.Err())
				return c.fallbackAssessment(scenario, requestID, lastErr)
			case <-time.After(c.config.RetryBackoff):
			}
		}

		jctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		judgment, err := c.judge.Judge(jctx, req)
		cancel()

		if err == nil {
			return c.acceptJudgment(judgment, requestID)
		}

		if errors.Is(err, context.DeadlineExceeded) {
			lastErr = fmt.Errorf("%w: %w", ErrJudgmentTimeout, err)
		} else {
			lastErr = fmt.Errorf("%w: %w", ErrJudgmentUnavailable, err)
		}
		c.config.Logger.Warn("judgment attempt failed",
			"scenario_id", scenario.ScenarioID,
			"request_id", requestID,
			"attempt", attempt+1,
			"error", err)
	}

	return c.fallbackAssessment(scenario, requestID, lastErr)
}

// acceptJudgment clamps and bands a successful judgment.
func (c *Critic) acceptJudgment(j Judgment, requestID string) datatypes.RiskAssessment {
	score := clamp01(j.Score)
	return datatypes.RiskAssessment{
		RiskScore:   score,
		RiskLevel:   datatypes.RiskLevelFor(score),
		Rationale:   j.Rationale,
		Uncertainty: j.Uncertainty,
		RequestID:   requestID,
		Fallback:    false,
	}
}

// fallbackAssessment is the maximally cautious substitute when the
// judgment source is unavailable.
func (c *Critic) fallbackAssessment(scenario *datatypes.Scenario, requestID string, cause error) datatypes.RiskAssessment {
	c.config.Logger.Warn("substituting conservative fallback risk assessment",
		"scenario_id", scenario.ScenarioID,
		"request_id", requestID,
		"error", cause)
	return datatypes.RiskAssessment{
		RiskScore: 1.0,
		RiskLevel: datatypes.RiskHigh,
		Rationale: fmt.Sprintf("FALLBACK: judgment source unavailable (%v); assuming maximum risk pending human review", cause),
		RequestID: requestID,
		Fallback:  true,
	}
}

// summarizeHardFinding renders a compact hard-finding summary for the
// judge prompt.
func summarizeHardFinding(hard *datatypes.HardFinding) string {
	if hard == nil || !hard.Violated {
		return "Hard critique found no rule violations."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hard critique found %d violation(s):", len(hard.Violations))
	for _, v := range hard.Violations {
		fmt.Fprintf(&sb, " [clause %s, rule %s, severity %s]", v.ClauseID, v.RuleID, v.Severity)
	}
	return sb.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
