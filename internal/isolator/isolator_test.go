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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbtbuild/rbt/internal/model"
	"github.com/rbtbuild/rbt/internal/rbterr"
)

type fakeResolver struct {
	projectRoot string
	jobOutputs  map[int]string
}

func (f *fakeResolver) ProjectRoot() string { return f.projectRoot }

func (f *fakeResolver) JobOutputDir(jobRef int) (string, error) {
	dir, ok := f.jobOutputs[jobRef]
	if !ok {
		return "", fmt.Errorf("no such job ref: %d", jobRef)
	}
	return dir, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIsolator_Execute_WritesDeclaredOutputs(t *testing.T) {
	projectRoot := t.TempDir()
	writeFile(t, filepath.Join(projectRoot, "greeting.txt"), "hello")

	resolver := &fakeResolver{projectRoot: projectRoot, jobOutputs: map[int]string{}}

	mock := &MockProcessRunner{
		RunFunc: func(ctx context.Context, dir string, env []string, stdoutPath, stderrPath, name string, args ...string) (int, error) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "result.txt"), []byte("out"), 0o644))
			return 0, nil
		},
	}

	logsDir := t.TempDir()
	iso, err := New(mock, resolver, logsDir)
	require.NoError(t, err)

	job := &model.Job{
		Name: "build",
		Command: model.Command{
			Tool: model.SystemTool("echo"),
			Args: []string{"hi"},
		},
		Inputs: []model.Input{
			model.ProjectFiles(model.FileMapping{Source: "greeting.txt"}),
		},
		Outputs: []string{"result.txt"},
	}

	result, err := iso.Execute(context.Background(), job)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(result.OutputsDir, "result.txt"))
	assert.Len(t, mock.Calls, 1)
}

func TestIsolator_Execute_MissingInputErrors(t *testing.T) {
	projectRoot := t.TempDir()
	resolver := &fakeResolver{projectRoot: projectRoot}
	mock := &MockProcessRunner{RunFunc: func(ctx context.Context, dir string, env []string, stdoutPath, stderrPath, name string, args ...string) (int, error) {
		return 0, nil
	}}
	iso, err := New(mock, resolver, t.TempDir())
	require.NoError(t, err)

	job := &model.Job{
		Name:    "build",
		Command: model.Command{Tool: model.SystemTool("echo")},
		Inputs: []model.Input{
			model.ProjectFiles(model.FileMapping{Source: "missing.txt"}),
		},
	}

	_, err = iso.Execute(context.Background(), job)
	require.Error(t, err)
	var missing *rbterr.InputMissingError
	assert.ErrorAs(t, err, &missing)
}

func TestIsolator_Execute_NonZeroExitIsExecFailed(t *testing.T) {
	resolver := &fakeResolver{projectRoot: t.TempDir()}
	mock := &MockProcessRunner{RunFunc: func(ctx context.Context, dir string, env []string, stdoutPath, stderrPath, name string, args ...string) (int, error) {
		return 1, nil
	}}
	iso, err := New(mock, resolver, t.TempDir())
	require.NoError(t, err)

	job := &model.Job{Name: "build", Command: model.Command{Tool: model.SystemTool("false")}}

	_, err = iso.Execute(context.Background(), job)
	require.Error(t, err)
	var execErr *rbterr.ExecFailedError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 1, execErr.ExitCode)
}

func TestIsolator_Execute_MissingOutputErrors(t *testing.T) {
	resolver := &fakeResolver{projectRoot: t.TempDir()}
	mock := &MockProcessRunner{RunFunc: func(ctx context.Context, dir string, env []string, stdoutPath, stderrPath, name string, args ...string) (int, error) {
		return 0, nil
	}}
	iso, err := New(mock, resolver, t.TempDir())
	require.NoError(t, err)

	job := &model.Job{
		Name:    "build",
		Command: model.Command{Tool: model.SystemTool("true")},
		Outputs: []string{"never-written.txt"},
	}

	_, err = iso.Execute(context.Background(), job)
	require.Error(t, err)
	var missing *rbterr.OutputMissingError
	assert.ErrorAs(t, err, &missing)
}

func TestIsolator_Execute_SymlinkOutputIsInvalid(t *testing.T) {
	resolver := &fakeResolver{projectRoot: t.TempDir()}
	mock := &MockProcessRunner{RunFunc: func(ctx context.Context, dir string, env []string, stdoutPath, stderrPath, name string, args ...string) (int, error) {
		target := filepath.Join(dir, "real.txt")
		require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
		require.NoError(t, os.Symlink(target, filepath.Join(dir, "link.txt")))
		return 0, nil
	}}
	iso, err := New(mock, resolver, t.TempDir())
	require.NoError(t, err)

	job := &model.Job{
		Name:    "build",
		Command: model.Command{Tool: model.SystemTool("true")},
		Outputs: []string{"link.txt"},
	}

	_, err = iso.Execute(context.Background(), job)
	require.Error(t, err)
	var invalid *rbterr.OutputInvalidError
	assert.ErrorAs(t, err, &invalid)
}

func TestIsolator_Execute_ToolFromJobResolvesViaUpstreamCAS(t *testing.T) {
	upstreamDir := t.TempDir()
	writeFile(t, filepath.Join(upstreamDir, "bin", "mytool"), "#!/bin/sh\n")

	resolver := &fakeResolver{
		projectRoot: t.TempDir(),
		jobOutputs:  map[int]string{0: upstreamDir},
	}

	var calledName string
	mock := &MockProcessRunner{RunFunc: func(ctx context.Context, dir string, env []string, stdoutPath, stderrPath, name string, args ...string) (int, error) {
		calledName = name
		return 0, nil
	}}
	iso, err := New(mock, resolver, t.TempDir())
	require.NoError(t, err)

	job := &model.Job{
		Name: "build",
		Command: model.Command{
			Tool: model.JobTool(0, "bin/mytool"),
		},
	}

	_, err = iso.Execute(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(upstreamDir, "bin/mytool"), calledName)
}

func TestIsolator_Execute_ToolNotFoundOnPath(t *testing.T) {
	resolver := &fakeResolver{projectRoot: t.TempDir()}
	mock := &MockProcessRunner{RunFunc: func(ctx context.Context, dir string, env []string, stdoutPath, stderrPath, name string, args ...string) (int, error) {
		t.Fatal("should not run when tool is not found")
		return 0, nil
	}}
	iso, err := New(mock, resolver, t.TempDir())
	require.NoError(t, err)

	job := &model.Job{Name: "build", Command: model.Command{Tool: model.SystemTool("definitely-not-a-real-binary-xyz")}}

	_, err = iso.Execute(context.Background(), job)
	require.Error(t, err)
	var notFound *rbterr.ToolNotFoundError
	assert.ErrorAs(t, err, &notFound)
}
