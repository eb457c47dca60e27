// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/aurora/services/llm"
	"github.com/AleutianAI/aurora/services/oversight/datatypes"
)

// LLMResponder drafts a compliant replacement response for escalated
// scenarios via an LLM backend.
type LLMResponder struct {
	client      llm.LLMClient
	timeout     time.Duration
	temperature float32
	maxTokens   int
}

// NewLLMResponder creates a corrective responder over an LLM backend.
func NewLLMResponder(client llm.LLMClient) (*LLMResponder, error) {
	if client == nil {
		return nil, errors.New("llm client must not be nil")
	}
	return &LLMResponder{
		client:      client,
		timeout:     30 * time.Second,
		temperature: 0.3,
		maxTokens:   1024,
	}, nil
}

// SuggestResponse implements the CorrectiveResponder interface.
func (r *LLMResponder) SuggestResponse(ctx context.Context, scenario *datatypes.Scenario, chain *datatypes.AuditChain) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prompt := buildCorrectivePrompt(scenario, chain)
	params := llm.GenerationParams{
		Temperature: &r.temperature,
		MaxTokens:   &r.maxTokens,
	}
	reply, err := r.client.Generate(ctx, prompt, params)
	if err != nil {
		return "", fmt.Errorf("corrective response generation: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", errors.New("corrective response generation: empty reply")
	}
	return reply, nil
}

// buildCorrectivePrompt renders the redraft prompt. The chain's
// violations and reasons are included so the model repairs the specific
// failures rather than rewriting from scratch.
func buildCorrectivePrompt(scenario *datatypes.Scenario, chain *datatypes.AuditChain) string {
	var sb strings.Builder

	sb.WriteString("The following AI assistant response was flagged for regulatory compliance issues. ")
	sb.WriteString("Write a corrected response that answers the user while resolving every issue listed. ")
	sb.WriteString("Reply with the corrected response text only.\n\n")

	fmt.Fprintf(&sb, "## User Message\n%s\n\n", scenario.UserMessage)
	fmt.Fprintf(&sb, "## Flagged Response\n%s\n\n", scenario.AssistantResponse)

	sb.WriteString("## Issues\n")
	for _, v := range chain.Critique.Violations {
		fmt.Fprintf(&sb, "- %s violation of clause %s (rule %s)\n", v.Severity, v.ClauseID, v.RuleID)
	}
	for _, t := range chain.Escalation.TriggerReasons {
		fmt.Fprintf(&sb, "- %s\n", t.String())
	}

	return sb.String()
}
