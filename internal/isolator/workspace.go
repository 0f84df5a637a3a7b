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
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rbtbuild/rbt/internal/model"
	"github.com/rbtbuild/rbt/internal/rbterr"
)

// Resolver supplies the absolute paths an Isolator needs but does not own:
// the project root for ProjectFiles inputs, and the materialized CAS
// directory of an upstream job referenced by JobOutputs or a tool-from-job
// Tool. Satisfied by the coordinator, which alone knows each job's result.
type Resolver interface {
	ProjectRoot() string
	JobOutputDir(jobRef int) (string, error)
}

// workspacePaths is the on-disk layout described in §4.E.
type workspacePaths struct {
	root      string
	workspace string
	home      string
}

func newWorkspace() (workspacePaths, error) {
	root, err := os.MkdirTemp("", "rbt-job-")
	if err != nil {
		return workspacePaths{}, fmt.Errorf("isolator: creating workspace root: %w", err)
	}
	ws := workspacePaths{
		root:      root,
		workspace: filepath.Join(root, "rbt-workspace"),
		home:      filepath.Join(root, "rbt-home"),
	}
	if err := os.MkdirAll(ws.workspace, 0o750); err != nil {
		os.RemoveAll(root)
		return workspacePaths{}, fmt.Errorf("isolator: creating workspace dir: %w", err)
	}
	if err := os.MkdirAll(ws.home, 0o750); err != nil {
		os.RemoveAll(root)
		return workspacePaths{}, fmt.Errorf("isolator: creating home dir: %w", err)
	}
	return ws, nil
}

func (ws workspacePaths) cleanup() {
	_ = os.RemoveAll(ws.root)
}

// materializeInputs symlinks every declared input mapping into the
// workspace, per §4.E step 2. ProjectFiles mappings resolve against the
// project root; JobOutputs mappings resolve against the upstream job's CAS
// directory, obtained from resolver.
func materializeInputs(ws workspacePaths, job *model.Job, resolver Resolver) error {
	seenDest := map[string]struct{}{}

	for _, in := range job.Inputs {
		var sourceRoot string
		switch in.Kind {
		case model.InputProjectFiles:
			sourceRoot = resolver.ProjectRoot()
		case model.InputJobOutputs:
			dir, err := resolver.JobOutputDir(in.JobRef)
			if err != nil {
				return err
			}
			sourceRoot = dir
		}

		for _, m := range in.Mappings {
			dest := m.Dest()
			if _, dup := seenDest[dest]; dup {
				return fmt.Errorf("isolator: duplicate input destination %q in job %q", dest, job.Name)
			}
			seenDest[dest] = struct{}{}

			srcAbs := filepath.Join(sourceRoot, m.Source)
			if !withinRoot(sourceRoot, srcAbs) {
				return fmt.Errorf("isolator: input source %q escapes its root", m.Source)
			}
			if _, err := os.Lstat(srcAbs); err != nil {
				if os.IsNotExist(err) {
					return &rbterr.InputMissingError{Path: m.Source}
				}
				return fmt.Errorf("isolator: stat input %q: %w", m.Source, err)
			}

			destAbs := filepath.Join(ws.workspace, dest)
			if err := os.MkdirAll(filepath.Dir(destAbs), 0o750); err != nil {
				return fmt.Errorf("isolator: creating parent dir for %q: %w", dest, err)
			}
			if err := os.Symlink(srcAbs, destAbs); err != nil {
				return fmt.Errorf("isolator: symlinking %q -> %q: %w", dest, srcAbs, err)
			}
		}
	}
	return nil
}

func withinRoot(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return !strings.HasPrefix(rel, "..")
}

// resolveTool locates the executable path for job's Tool, per §4.E step 3:
// a system tool is searched for on PATH, a tool-from-job resolves to the
// path inside the upstream job's CAS directory.
func resolveTool(tool model.Tool, resolver Resolver) (string, error) {
	switch tool.Kind {
	case model.ToolSystem:
		path, err := exec.LookPath(tool.Name)
		if err != nil {
			return "", &rbterr.ToolNotFoundError{Name: tool.Name}
		}
		return path, nil
	case model.ToolFromJob:
		dir, err := resolver.JobOutputDir(tool.JobRef)
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, tool.Path), nil
	default:
		return "", fmt.Errorf("isolator: unknown tool kind %v", tool.Kind)
	}
}
