// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/aurora/pkg/logging"
	"github.com/AleutianAI/aurora/services/llm"
	"github.com/AleutianAI/aurora/services/oversight/audit"
	"github.com/AleutianAI/aurora/services/oversight/critique"
	"github.com/AleutianAI/aurora/services/oversight/datatypes"
	"github.com/AleutianAI/aurora/services/oversight/embed"
	"github.com/AleutianAI/aurora/services/oversight/escalation"
	"github.com/AleutianAI/aurora/services/oversight/kb"
	"github.com/AleutianAI/aurora/services/oversight/pipeline"
	"github.com/AleutianAI/aurora/services/oversight/retrieval"
	"github.com/AleutianAI/aurora/services/oversight/risk"
)

// runBatch is the entry point for `aurora run`.
func runBatch(cmd *cobra.Command, args []string) {
	logger := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, err := buildPipeline(ctx, logger)
	if err != nil {
		logger.Error("pipeline setup failed", "error", err)
		os.Exit(1)
	}

	loaded, err := datatypes.LoadScenariosJSONL(scenariosPath)
	if err != nil {
		logger.Error("loading scenarios failed", "path", scenariosPath, "error", err)
		os.Exit(1)
	}
	scenarios := make([]*datatypes.Scenario, len(loaded))
	for i := range loaded {
		scenarios[i] = &loaded[i]
	}

	outcomes := orch.Run(ctx, scenarios)

	if err := writeOutcomes(outcomes); err != nil {
		logger.Error("writing outcome report failed", "error", err)
		os.Exit(1)
	}

	failures := 0
	for i := range outcomes {
		if outcomes[i].Failure != nil {
			failures++
		}
	}
	if failures > 0 {
		logger.Warn("batch finished with failures", "failed", failures, "total", len(outcomes))
		os.Exit(2)
	}
}

// buildPipeline wires the oversight stages from CLI flags.
func buildPipeline(ctx context.Context, logger *slog.Logger) (*pipeline.Orchestrator, error) {
	embedder := embed.NewClient(embedderURL)

	snapshot, err := kb.Load(ctx, kbPath, kb.LoadOptions{
		Embedder: embedder,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("load kb: %w", err)
	}

	var fallback retrieval.FallbackSource
	if weaviateURL != "" {
		parsed, err := url.Parse(weaviateURL)
		if err != nil {
			return nil, fmt.Errorf("parse weaviate url: %w", err)
		}
		source, err := retrieval.NewWeaviateSource(retrieval.WeaviateSourceConfig{
			Host:   parsed.Host,
			Scheme: parsed.Scheme,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("weaviate fallback: %w", err)
		}
		fallback = source
	}

	engine, err := retrieval.NewEngine(snapshot, embedder, fallback, retrieval.Config{
		TopK:                topK,
		ConfidenceThreshold: retrievalThreshold,
		Logger:              logger,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval engine: %w", err)
	}

	rules := critique.DefaultRules()
	if rulesPath != "" {
		rules, err = critique.LoadRules(rulesPath)
		if err != nil {
			return nil, fmt.Errorf("load rules: %w", err)
		}
	}
	hardCritic, err := critique.NewCritic(snapshot, rules)
	if err != nil {
		return nil, fmt.Errorf("hard critic: %w", err)
	}

	llmClient, err := llm.NewOpenAIClient()
	if err != nil {
		return nil, fmt.Errorf("llm backend: %w", err)
	}
	judge, err := risk.NewLLMJudge(llmClient)
	if err != nil {
		return nil, fmt.Errorf("risk judge: %w", err)
	}
	softCritic, err := risk.NewCritic(judge, risk.Config{
		Timeout: time.Duration(judgeTimeout) * time.Second,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("risk critic: %w", err)
	}

	policy := escalation.Policy{
		MandatoryRisk: mandatoryRisk,
		AdvisoryRisk:  advisoryRisk,
	}
	if policyPath != "" {
		policy, err = escalation.LoadPolicy(policyPath)
		if err != nil {
			return nil, fmt.Errorf("load policy: %w", err)
		}
	}

	var responder audit.CorrectiveResponder
	if suggestResponses {
		responder, err = audit.NewLLMResponder(llmClient)
		if err != nil {
			return nil, fmt.Errorf("corrective responder: %w", err)
		}
	}
	builder := audit.NewBuilder(responder, logger)

	return pipeline.NewOrchestrator(engine, hardCritic, softCritic, builder, pipeline.Config{
		Concurrency: concurrency,
		Policy:      policy,
		Logger:      logger,
	})
}

// writeOutcomes emits one JSON outcome per line, in input order. A
// failed close on the report file is an error: the report is the
// batch's product and must be known durable.
func writeOutcomes(outcomes []pipeline.Outcome) error {
	if outPath == "" {
		return encodeOutcomes(os.Stdout, outcomes)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create outcome file: %w", err)
	}
	if err := encodeOutcomes(f, outcomes); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close outcome file: %w", err)
	}
	return nil
}

func encodeOutcomes(w io.Writer, outcomes []pipeline.Outcome) error {
	enc := json.NewEncoder(w)
	for i := range outcomes {
		if err := enc.Encode(&outcomes[i]); err != nil {
			return fmt.Errorf("encode outcome %s: %w", outcomes[i].ScenarioID, err)
		}
	}
	return nil
}

// newLogger builds the process logger from the persistent flags.
func newLogger() *slog.Logger {
	level := logging.LevelInfo
	switch logLevel {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	logger := logging.New(logging.Config{
		Level:   level,
		Service: "aurora",
		JSON:    logJSON,
	})
	slog.SetDefault(logger)
	return logger
}
