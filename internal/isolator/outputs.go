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
	"path/filepath"

	"github.com/rbtbuild/rbt/internal/rbterr"
)

// collectOutputs verifies every path in outputs exists under workspace and
// is a regular file or directory (never a symlink — §9 Open Question,
// resolved: a declared output that is itself a symlink is OutputInvalid,
// since the store would otherwise hash a dangling reference to something
// outside its content-addressed world), then moves each into a fresh
// staging directory that mirrors the declared relative paths, ready for
// store.Materialize.
func collectOutputs(jobName, workspace string, outputs []string) (string, error) {
	staging, err := os.MkdirTemp("", "rbt-outputs-")
	if err != nil {
		return "", fmt.Errorf("isolator: creating outputs staging dir: %w", err)
	}

	for _, rel := range outputs {
		srcAbs := filepath.Join(workspace, rel)
		info, err := os.Lstat(srcAbs)
		if err != nil {
			if os.IsNotExist(err) {
				os.RemoveAll(staging)
				return "", &rbterr.OutputMissingError{Job: jobName, Path: rel}
			}
			os.RemoveAll(staging)
			return "", fmt.Errorf("isolator: stat output %q: %w", rel, err)
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			os.RemoveAll(staging)
			return "", &rbterr.OutputInvalidError{Job: jobName, Path: rel}
		}

		destAbs := filepath.Join(staging, rel)
		if err := os.MkdirAll(filepath.Dir(destAbs), 0o750); err != nil {
			os.RemoveAll(staging)
			return "", fmt.Errorf("isolator: preparing staging dir for %q: %w", rel, err)
		}
		if err := os.Rename(srcAbs, destAbs); err != nil {
			os.RemoveAll(staging)
			return "", fmt.Errorf("isolator: staging output %q: %w", rel, err)
		}
	}

	return staging, nil
}
