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
	"sort"
)

// InheritPATH controls whether the scrubbed child environment carries the
// host's PATH (§9 Open Question, resolved: configurable, default true — a
// host-installed toolchain like `go` or `node` is a system tool the isolator
// resolves via PATH, so PATH must be present for that resolution to work in
// the child process too).
var InheritPATH = true

// buildEnv constructs the child process environment per §4.E step 4: every
// inherited variable is scrubbed, HOME is rebound to the job's throwaway
// home directory, PATH is the host's PATH (or /usr/bin:/bin when the host
// has none, or empty if InheritPATH is false), and the job's declared env is
// overlaid last so it always wins.
func buildEnv(homeDir string, jobEnv map[string]string) []string {
	base := map[string]string{
		"HOME": homeDir,
	}
	if InheritPATH {
		if path, ok := os.LookupEnv("PATH"); ok {
			base["PATH"] = path
		} else {
			base["PATH"] = "/usr/bin:/bin"
		}
	} else {
		base["PATH"] = ""
	}

	for k, v := range jobEnv {
		base[k] = v
	}

	keys := make([]string, 0, len(base))
	for k := range base {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, base[k]))
	}
	return out
}
