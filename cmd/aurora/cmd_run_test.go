// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/aurora/services/oversight/pipeline"
)

func sampleOutcomes() []pipeline.Outcome {
	return []pipeline.Outcome{
		{ScenarioID: "s-1"},
		{ScenarioID: "s-2", Failure: &pipeline.FailureRecord{
			Stage:  pipeline.StagePending,
			Reason: "retrieval: embed failed",
		}},
	}
}

func TestEncodeOutcomes(t *testing.T) {
	var buf bytes.Buffer
	if err := encodeOutcomes(&buf, sampleOutcomes()); err != nil {
		t.Fatalf("encodeOutcomes() error = %v", err)
	}

	scanner := bufio.NewScanner(&buf)
	var ids []string
	for scanner.Scan() {
		var record map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("each line must be a JSON object: %v", err)
		}
		ids = append(ids, record["scenario_id"].(string))
	}
	if len(ids) != 2 || ids[0] != "s-1" || ids[1] != "s-2" {
		t.Errorf("outcomes must be emitted one per line in input order, got %v", ids)
	}
}

func TestWriteOutcomesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outcomes.jsonl")
	prev := outPath
	outPath = path
	defer func() { outPath = prev }()

	if err := writeOutcomes(sampleOutcomes()); err != nil {
		t.Fatalf("writeOutcomes() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 report lines, got %d", len(lines))
	}
	if !strings.Contains(lines[1], "retrieval: embed failed") {
		t.Errorf("failure record missing from report line %q", lines[1])
	}
}

func TestWriteOutcomesCreateError(t *testing.T) {
	prev := outPath
	outPath = filepath.Join(t.TempDir(), "missing", "outcomes.jsonl")
	defer func() { outPath = prev }()

	if err := writeOutcomes(sampleOutcomes()); err == nil {
		t.Error("an unwritable report path must surface an error")
	}
}
