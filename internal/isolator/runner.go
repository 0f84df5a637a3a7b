// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package isolator implements the job isolator (§4.E): it builds a throwaway
// workspace per job, symlinks inputs into it, resolves the job's tool,
// scrubs and rebuilds the child environment, spawns the command with output
// captured to files, verifies declared outputs exist, and tears the
// workspace down on every exit path.
package isolator

import (
	"context"
	"os"
	"os/exec"
	"sync"
)

// ProcessRunner abstracts external process execution so the isolator is
// testable without spawning real processes, adapted from this codebase's
// own process-manager abstraction (cmd/aleutian/process_manager.go).
type ProcessRunner interface {
	// Run executes name with args, cwd=dir, environment exactly env (no
	// implicit inheritance — the isolator has already built the full child
	// environment), with stdout/stderr each written to their own file.
	// Returns the process's exit code; err is non-nil only for failures to
	// launch the process at all (missing binary, permission denied), never
	// for a non-zero exit.
	Run(ctx context.Context, dir string, env []string, stdoutPath, stderrPath, name string, args ...string) (exitCode int, err error)
}

// DefaultProcessRunner runs real processes via os/exec.
type DefaultProcessRunner struct{}

// NewDefaultProcessRunner returns the production ProcessRunner.
func NewDefaultProcessRunner() *DefaultProcessRunner { return &DefaultProcessRunner{} }

func (r *DefaultProcessRunner) Run(ctx context.Context, dir string, env []string, stdoutPath, stderrPath, name string, args ...string) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = env

	outFile, err := os.Create(stdoutPath)
	if err != nil {
		return -1, err
	}
	defer outFile.Close()
	errFile, err := os.Create(stderrPath)
	if err != nil {
		return -1, err
	}
	defer errFile.Close()

	cmd.Stdout = outFile
	cmd.Stderr = errFile

	runErr := cmd.Run()
	if runErr == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if ok := asExitError(runErr, &exitErr); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, runErr
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// MockProcessRunner is a test double for ProcessRunner. Configure RunFunc
// before use; calls are recorded for assertion, mirroring the teacher's
// MockProcessManager shape.
type MockProcessRunner struct {
	RunFunc func(ctx context.Context, dir string, env []string, stdoutPath, stderrPath, name string, args ...string) (int, error)

	mu    sync.Mutex
	Calls []RunCall
}

// RunCall records one invocation of MockProcessRunner.Run.
type RunCall struct {
	Dir  string
	Env  []string
	Name string
	Args []string
}

func (m *MockProcessRunner) Run(ctx context.Context, dir string, env []string, stdoutPath, stderrPath, name string, args ...string) (int, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, RunCall{Dir: dir, Env: env, Name: name, Args: args})
	m.mu.Unlock()
	if m.RunFunc == nil {
		panic("MockProcessRunner.RunFunc not set")
	}
	return m.RunFunc(ctx, dir, env, stdoutPath, stderrPath, name, args...)
}

var _ ProcessRunner = (*DefaultProcessRunner)(nil)
var _ ProcessRunner = (*MockProcessRunner)(nil)
