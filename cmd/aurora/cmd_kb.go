// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/aurora/services/oversight/kb"
)

// runKBValidate is the entry point for `aurora kb validate`.
func runKBValidate(cmd *cobra.Command, args []string) {
	report, err := kb.ValidateFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "KB validation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("KB version:          %s\n", report.Version)
	fmt.Printf("Clauses:             %d\n", report.Clauses)
	fmt.Printf("Missing embeddings:  %d\n", report.MissingEmbeddings)
	if report.MissingEmbeddings > 0 {
		fmt.Println("Note: clauses without embeddings require --embedder-url at run time.")
	}
}
