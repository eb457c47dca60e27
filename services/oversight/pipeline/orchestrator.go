// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline orchestrates the oversight stages for batches of
// scenarios.
//
// Each scenario advances through a strict stage sequence (retrieval,
// hard critique, soft critique, escalation decision, audit assembly)
// tracked by a per-scenario state machine. Scenarios are independent:
// a batch runs them concurrently under a bounded worker pool, one
// failure never affects another scenario, and the batch always yields
// exactly one outcome per input scenario, in input order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/aurora/services/oversight/audit"
	"github.com/AleutianAI/aurora/services/oversight/critique"
	"github.com/AleutianAI/aurora/services/oversight/datatypes"
	"github.com/AleutianAI/aurora/services/oversight/escalation"
	"github.com/AleutianAI/aurora/services/oversight/retrieval"
	"github.com/AleutianAI/aurora/services/oversight/risk"
)

var (
	tracer = otel.Tracer("aurora.pipeline")
	meter  = otel.Meter("aurora.pipeline")
)

// FailureRecord describes why a scenario failed and where.
type FailureRecord struct {
	// Stage is the pipeline stage the scenario was in when it failed.
	Stage Stage `json:"stage"`

	// Reason is the failure description.
	Reason string `json:"reason"`
}

// Outcome is the terminal result for one scenario: either a completed
// audit chain or a failure record, never both.
type Outcome struct {
	// ScenarioID ties the outcome back to its scenario.
	ScenarioID string `json:"scenario_id"`

	// Chain is the completed audit chain. Nil on failure.
	Chain *datatypes.AuditChain `json:"chain,omitempty"`

	// Failure records why the scenario failed. Nil on success.
	Failure *FailureRecord `json:"failure,omitempty"`
}

// Config configures the orchestrator.
type Config struct {
	// Concurrency is the maximum scenarios processed in parallel.
	// Default: 4.
	Concurrency int

	// ScenarioTimeout bounds one scenario end to end. Default: 2m.
	ScenarioTimeout time.Duration

	// Policy holds the escalation thresholds. Zero value takes
	// DefaultPolicy().
	Policy escalation.Policy

	// Logger for orchestration events. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:     4,
		ScenarioTimeout: 2 * time.Minute,
		Policy:          escalation.DefaultPolicy(),
		Logger:          slog.Default(),
	}
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Concurrency == 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.ScenarioTimeout == 0 {
		c.ScenarioTimeout = defaults.ScenarioTimeout
	}
	if (c.Policy == escalation.Policy{}) {
		c.Policy = defaults.Policy
	}
	if c.Logger == nil {
		c.Logger = defaults.Logger
	}
}

// Orchestrator drives scenarios through the oversight stages.
//
// Thread Safety: safe for concurrent use; per-scenario state is never
// shared between workers and the KB snapshot is read-only.
type Orchestrator struct {
	engine     *retrieval.Engine
	hardCritic *critique.Critic
	softCritic *risk.Critic
	builder    *audit.Builder
	config     Config

	scenarioCounter   metric.Int64Counter
	escalationCounter metric.Int64Counter
	scenarioLatency   metric.Float64Histogram
}

// NewOrchestrator wires the oversight stages into a pipeline.
//
// Inputs:
//
//	engine - The retrieval engine. Must not be nil.
//	hardCritic - The deterministic rule critic. Must not be nil.
//	softCritic - The risk critic. Must not be nil.
//	builder - The audit chain builder. Must not be nil.
//	config - Orchestrator configuration; zero values take defaults.
func NewOrchestrator(
	engine *retrieval.Engine,
	hardCritic *critique.Critic,
	softCritic *risk.Critic,
	builder *audit.Builder,
	config Config,
) (*Orchestrator, error) {
	if engine == nil || hardCritic == nil || softCritic == nil || builder == nil {
		return nil, errors.New("all pipeline stages must be non-nil")
	}
	config.applyDefaults()
	if err := config.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator policy: %w", err)
	}

	scenarioCounter, err := meter.Int64Counter("aurora.scenarios.processed",
		metric.WithDescription("Scenarios processed, by terminal stage"))
	if err != nil {
		return nil, fmt.Errorf("create scenario counter: %w", err)
	}
	escalationCounter, err := meter.Int64Counter("aurora.escalations",
		metric.WithDescription("Escalation decisions, by level"))
	if err != nil {
		return nil, fmt.Errorf("create escalation counter: %w", err)
	}
	scenarioLatency, err := meter.Float64Histogram("aurora.scenario.duration",
		metric.WithDescription("End-to-end scenario processing time"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create latency histogram: %w", err)
	}

	return &Orchestrator{
		engine:            engine,
		hardCritic:        hardCritic,
		softCritic:        softCritic,
		builder:           builder,
		config:            config,
		scenarioCounter:   scenarioCounter,
		escalationCounter: escalationCounter,
		scenarioLatency:   scenarioLatency,
	}, nil
}

// Run processes a batch of scenarios.
//
// Description:
//
//	Scenarios run concurrently under a bounded worker pool. Each
//	scenario gets its own timeout and its own state machine; a failed
//	scenario yields a failure outcome recording the stage it failed
//	in, and never disturbs the rest of the batch. Cancelling the
//	context stops dispatching new scenarios; already-dispatched ones
//	run to completion, undispatched ones fail with a cancellation
//	record.
//
// Outputs:
//
//	[]Outcome - Exactly one outcome per input scenario, in input order.
func (o *Orchestrator) Run(ctx context.Context, scenarios []*datatypes.Scenario) []Outcome {
	batchID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch_id", batchID),
		attribute.Int("scenarios", len(scenarios)),
	)

	o.config.Logger.Info("starting oversight batch",
		"batch_id", batchID,
		"scenarios", len(scenarios),
		"concurrency", o.config.Concurrency)

	outcomes := make([]Outcome, len(scenarios))
	sem := NewSemaphore(o.config.Concurrency)
	var wg sync.WaitGroup

	for i, scenario := range scenarios {
		if err := sem.Acquire(ctx); err != nil {
			outcomes[i] = cancelledOutcome(scenario, err)
			o.scenarioCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("terminal_stage", string(StageFailed))))
			continue
		}

		wg.Add(1)
		go func(i int, scenario *datatypes.Scenario) {
			defer wg.Done()
			defer sem.Release()

			sctx, cancel := context.WithTimeout(ctx, o.config.ScenarioTimeout)
			defer cancel()

			start := time.Now()
			outcome := o.runScenario(sctx, scenario)
			o.scenarioLatency.Record(ctx, time.Since(start).Seconds())
			outcomes[i] = outcome

			stage := StageAudited
			if outcome.Failure != nil {
				stage = StageFailed
			}
			o.scenarioCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("terminal_stage", string(stage))))
			if outcome.Chain != nil {
				o.escalationCounter.Add(ctx, 1, metric.WithAttributes(
					attribute.String("level", string(outcome.Chain.Escalation.Level))))
			}
		}(i, scenario)
	}

	wg.Wait()

	failures := 0
	for i := range outcomes {
		if outcomes[i].Failure != nil {
			failures++
		}
	}
	if failures > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d scenario(s) failed", failures))
	}
	o.config.Logger.Info("oversight batch complete",
		"batch_id", batchID,
		"succeeded", len(outcomes)-failures,
		"failed", failures)

	return outcomes
}

// runScenario drives one scenario through every stage.
func (o *Orchestrator) runScenario(ctx context.Context, scenario *datatypes.Scenario) Outcome {
	ctx, span := tracer.Start(ctx, "pipeline.scenario")
	defer span.End()

	state := newScenarioState()

	fail := func(reason error) Outcome {
		failedAt := state.stage
		state.advance(StageFailed)
		span.RecordError(reason)
		span.SetStatus(codes.Error, string(failedAt))
		o.config.Logger.Error("scenario failed",
			"scenario_id", scenario.ScenarioID,
			"stage", failedAt,
			"error", reason)
		return Outcome{
			ScenarioID: scenario.ScenarioID,
			Failure: &FailureRecord{
				Stage:  failedAt,
				Reason: reason.Error(),
			},
		}
	}

	if err := scenario.Validate(); err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.String("scenario_id", scenario.ScenarioID))

	result, supplement, err := o.engine.Retrieve(ctx, scenario)
	if err != nil {
		return fail(fmt.Errorf("retrieval: %w", err))
	}
	state.advance(StageRetrieved)

	hard := o.hardCritic.Critique(scenario, &result, supplement)
	state.advance(StageHardCritiqued)

	riskAssessment := o.softCritic.Assess(ctx, scenario, o.topClauses(&result, supplement), &hard)
	state.advance(StageSoftCritiqued)

	decision := escalation.Decide(&hard, &riskAssessment, o.config.Policy)
	state.advance(StageEscalationDecided)

	chain, err := o.builder.Build(ctx, scenario, &result, &hard, &riskAssessment, &decision)
	if err != nil {
		return fail(fmt.Errorf("audit: %w", err))
	}
	state.advance(StageAudited)

	return Outcome{ScenarioID: scenario.ScenarioID, Chain: chain}
}

// topClauses resolves ranked clause IDs to full clauses for the risk
// judge, drawing from the snapshot via the hard critic's KB and from
// the fallback supplement.
func (o *Orchestrator) topClauses(result *datatypes.RetrievalResult, supplement []datatypes.Clause) []datatypes.Clause {
	extra := make(map[string]datatypes.Clause, len(supplement))
	for _, c := range supplement {
		extra[c.ClauseID] = c
	}

	clauses := make([]datatypes.Clause, 0, len(result.RankedClauses))
	for _, ranked := range result.RankedClauses {
		if c, ok := o.engine.Snapshot().Clause(ranked.ClauseID); ok {
			clauses = append(clauses, c)
			continue
		}
		if c, ok := extra[ranked.ClauseID]; ok {
			clauses = append(clauses, c)
		}
	}
	return clauses
}

// cancelledOutcome records a scenario that was never dispatched.
func cancelledOutcome(scenario *datatypes.Scenario, cause error) Outcome {
	return Outcome{
		ScenarioID: scenario.ScenarioID,
		Failure: &FailureRecord{
			Stage:  StagePending,
			Reason: fmt.Sprintf("batch cancelled before dispatch: %v", cause),
		},
	}
}
