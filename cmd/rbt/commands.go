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
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var invocationConfigPath string

var rootCmd = &cobra.Command{
	Use:   "rbt",
	Short: "A reproducible build tool: runs a job graph, reusing unchanged outputs",
	Long: `rbt executes a user-authored build graph of jobs (a command plus
declared inputs and outputs), running only the jobs whose inputs actually
changed and reusing previously computed outputs otherwise.`,
	RunE: runBuild,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build every job in the graph, the default job included",
	RunE:  runBuild,
}

var outputsCmd = &cobra.Command{
	Use:   "outputs <job-name>",
	Short: "Build the graph, then print the CAS path of the named job",
	Args:  cobra.ExactArgs(1),
	RunE:  runOutputs,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&invocationConfigPath, "config", "rbt.yaml", "path to the invocation config")
	rootCmd.AddCommand(buildCmd, outputsCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	result, code, err := run(ctx, invocationConfigPath)
	if result != nil {
		printSummary(result)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "rbt:", err)
	}
	if code != exitSuccess {
		os.Exit(code)
	}
	return nil
}

func runOutputs(cmd *cobra.Command, args []string) error {
	jobName := args[0]
	ctx := cmd.Context()
	result, code, err := run(ctx, invocationConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rbt:", err)
		os.Exit(code)
	}
	outcome, ok := result.Jobs[jobName]
	if !ok {
		fmt.Fprintf(os.Stderr, "rbt: no such job %q\n", jobName)
		os.Exit(exitConfigError)
	}
	if outcome.CASPath == "" {
		fmt.Fprintf(os.Stderr, "rbt: job %q did not complete (%s)\n", jobName, outcome.Status)
		os.Exit(exitJobFailed)
	}
	fmt.Println(outcome.CASPath)
	if code != exitSuccess {
		os.Exit(code)
	}
	return nil
}
