// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package isolator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rbtbuild/rbt/internal/model"
	"github.com/rbtbuild/rbt/internal/rbterr"
)

// Isolator runs one job in a disposable workspace and returns the directory
// holding its verified outputs, ready for store.Materialize.
type Isolator struct {
	runner   ProcessRunner
	resolver Resolver
	logsDir  string
}

// New builds an Isolator. runner executes the job's command; resolver
// supplies the project root and upstream CAS directories; logsDir is where
// captured stdout/stderr are written — unlike the rest of the per-job
// workspace it is NOT torn down after Execute returns, since
// InvocationResult reports log paths for every attempted job (§3, §4.E).
func New(runner ProcessRunner, resolver Resolver, logsDir string) (*Isolator, error) {
	if err := os.MkdirAll(logsDir, 0o750); err != nil {
		return nil, fmt.Errorf("isolator: creating logs dir: %w", err)
	}
	return &Isolator{runner: runner, resolver: resolver, logsDir: logsDir}, nil
}

// Result carries a completed job run's captured streams alongside its
// staged outputs directory, for diagnostics on failure and for any caller
// that wants to surface logs on success too.
type Result struct {
	OutputsDir string
	StdoutPath string
	StderrPath string
	ExitCode   int
}

// Execute runs job to completion: materializes inputs, resolves the tool,
// builds the scrubbed environment, spawns the command with output captured
// to files, verifies declared outputs, and unconditionally tears down the
// throwaway workspace (inputs and home included) regardless of how it
// returns. The stdout/stderr logs, written under the isolator's logs
// directory, and the staged outputs directory outlive the call.
func (iso *Isolator) Execute(ctx context.Context, job *model.Job) (Result, error) {
	ws, err := newWorkspace()
	if err != nil {
		return Result{}, err
	}
	defer ws.cleanup()

	if err := materializeInputs(ws, job, iso.resolver); err != nil {
		return Result{}, err
	}

	toolPath, err := resolveTool(job.Command.Tool, iso.resolver)
	if err != nil {
		return Result{}, err
	}

	env := buildEnv(ws.home, mergeEnv(job.Env, job.Command.Env))

	attempt := filepath.Base(ws.root)
	stdoutPath := filepath.Join(iso.logsDir, fmt.Sprintf("%s-%s.stdout.log", job.Name, attempt))
	stderrPath := filepath.Join(iso.logsDir, fmt.Sprintf("%s-%s.stderr.log", job.Name, attempt))

	exitCode, err := iso.runner.Run(ctx, ws.workspace, env, stdoutPath, stderrPath, toolPath, job.Command.Args...)
	if err != nil {
		if ctx.Err() != nil {
			return Result{StdoutPath: stdoutPath, StderrPath: stderrPath}, ctx.Err()
		}
		return Result{StdoutPath: stdoutPath, StderrPath: stderrPath}, &rbterr.ExecFailedError{Job: job.Name, ExitCode: -1}
	}
	if exitCode != 0 {
		return Result{StdoutPath: stdoutPath, StderrPath: stderrPath, ExitCode: exitCode}, &rbterr.ExecFailedError{Job: job.Name, ExitCode: exitCode}
	}

	outputsDir, err := collectOutputs(job.Name, ws.workspace, job.Outputs)
	if err != nil {
		return Result{StdoutPath: stdoutPath, StderrPath: stderrPath}, err
	}

	return Result{OutputsDir: outputsDir, StdoutPath: stdoutPath, StderrPath: stderrPath, ExitCode: exitCode}, nil
}

// mergeEnv overlays cmdEnv atop jobEnv, with cmdEnv winning on conflict —
// Command.Env exists for tool-specific overrides layered atop a job's
// ambient declared environment.
func mergeEnv(jobEnv, cmdEnv map[string]string) map[string]string {
	out := make(map[string]string, len(jobEnv)+len(cmdEnv))
	for k, v := range jobEnv {
		out[k] = v
	}
	for k, v := range cmdEnv {
		out[k] = v
	}
	return out
}
