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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	kbPath             string
	scenariosPath      string
	outPath            string
	rulesPath          string
	policyPath         string
	topK               int
	retrievalThreshold float64
	advisoryRisk       float64
	mandatoryRisk      float64
	concurrency        int
	judgeTimeout       int
	embedderURL        string
	weaviateURL        string
	suggestResponses   bool
	logJSON            bool
	logLevel           string

	rootCmd = &cobra.Command{
		Use:   "aurora",
		Short: "A cli to run regulatory compliance oversight over AI conversations",
		Long: `Aurora evaluates AI assistant responses against a regulatory
knowledge base: it retrieves relevant clauses, runs deterministic
compliance rules and a model-judged risk assessment, decides
escalation, and emits a grounded audit chain per scenario.`,
	}

	// --- Batch Run ---
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the oversight pipeline over a JSONL scenario batch",
		Run:   runBatch, // Defined in cmd_run.go
	}

	// --- Knowledge Base ---
	kbCmd = &cobra.Command{
		Use:   "kb",
		Short: "Inspect and validate regulatory knowledge base snapshots",
	}
	kbValidateCmd = &cobra.Command{
		Use:   "validate [kb_file]",
		Short: "Validate a KB snapshot file without running a batch",
		Args:  cobra.ExactArgs(1),
		Run:   runKBValidate, // Defined in cmd_kb.go
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	runCmd.Flags().StringVar(&kbPath, "kb", "kb.json", "Path to the KB snapshot file")
	runCmd.Flags().StringVar(&scenariosPath, "scenarios", "", "Path to the JSONL scenario batch (required)")
	runCmd.Flags().StringVar(&outPath, "out", "", "Path for the JSONL outcome report (default stdout)")
	runCmd.Flags().StringVar(&rulesPath, "rules", "", "Path to a YAML rule set (default built-in rules)")
	runCmd.Flags().StringVar(&policyPath, "policy", "", "Path to a YAML escalation policy (default built-in thresholds)")
	runCmd.Flags().IntVar(&topK, "top-k", 5, "Number of clauses to retrieve per scenario")
	runCmd.Flags().Float64Var(&retrievalThreshold, "retrieval-threshold", 0.35, "Similarity below which the fallback source is consulted")
	runCmd.Flags().Float64Var(&advisoryRisk, "advisory-risk", 0.5, "Risk score at or above which escalation is advisory")
	runCmd.Flags().Float64Var(&mandatoryRisk, "mandatory-risk", 0.8, "Risk score at or above which escalation is mandatory")
	runCmd.Flags().IntVar(&concurrency, "concurrency", 4, "Maximum scenarios processed in parallel")
	runCmd.Flags().IntVar(&judgeTimeout, "judge-timeout", 30, "Per-call risk judgment timeout in seconds")
	runCmd.Flags().StringVar(&embedderURL, "embedder-url", "http://localhost:8001", "Base URL of the embedding service")
	runCmd.Flags().StringVar(&weaviateURL, "weaviate-url", "", "Weaviate fallback source URL (empty disables fallback)")
	runCmd.Flags().BoolVar(&suggestResponses, "suggest", false, "Draft corrective responses for escalated scenarios")
	_ = runCmd.MarkFlagRequired("scenarios")

	kbCmd.AddCommand(kbValidateCmd)
	rootCmd.AddCommand(runCmd, kbCmd)
}
