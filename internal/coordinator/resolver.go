// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package coordinator

import "fmt"

// graphResolver implements isolator.Resolver atop the coordinator's own
// state: ProjectFiles inputs resolve against the project root, JobOutputs
// inputs resolve against a dependency's already-completed CAS path.
type graphResolver struct {
	projectRoot string
	state       *state
}

func (r *graphResolver) ProjectRoot() string { return r.projectRoot }

func (r *graphResolver) JobOutputDir(jobRef int) (string, error) {
	path, ok := r.state.casPathOf(jobRef)
	if !ok {
		return "", fmt.Errorf("coordinator: job %d has no completed CAS path yet", jobRef)
	}
	return path, nil
}
