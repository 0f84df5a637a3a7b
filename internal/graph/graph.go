// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph implements intake (§4.A): it takes the evaluator bridge's
// raw job list, validates it, and builds the canonical in-memory JobGraph —
// an arena of jobs keyed by stable index, with JobOutputs resolved to
// indices rather than pointers so cycle detection and topological iteration
// are plain graph-coloring DFS over integers.
package graph

import (
	"sort"

	"github.com/rbtbuild/rbt/internal/model"
	"github.com/rbtbuild/rbt/internal/rbterr"
)

// JobGraph is the validated build graph. Jobs keep the order they were
// given to Build, which is not a topological order. It is immutable after
// Build returns.
type JobGraph struct {
	jobs       []*model.Job
	nameIndex  map[string]int
	deps       [][]int // deps[i] = indices job i reads JobOutputs or its tool from
	defaultJob int
}

// JobCount returns the number of jobs in the graph.
func (g *JobGraph) JobCount() int { return len(g.jobs) }

// Job returns the job at the given stable index.
func (g *JobGraph) Job(index int) *model.Job { return g.jobs[index] }

// IndexOf returns a job's stable index by name.
func (g *JobGraph) IndexOf(name string) (int, bool) {
	idx, ok := g.nameIndex[name]
	return idx, ok
}

// Name resolves an index back to its job's name; satisfies
// fingerprint.JobNamer.
func (g *JobGraph) Name(index int) string { return g.jobs[index].Name }

// Dependencies returns the stable indices of jobs that index's job reads
// JobOutputs or a tool-from-job tool from, deduplicated and sorted.
func (g *JobGraph) Dependencies(index int) []int { return g.deps[index] }

// DefaultJob returns the stable index of the build root (§3 JobGraph).
func (g *JobGraph) DefaultJob() int { return g.defaultJob }

// Leaves returns the indices of every job with no dependencies — the seed
// set for the coordinator's ready queue (§4.F step 1).
func (g *JobGraph) Leaves() []int {
	var leaves []int
	for i := range g.jobs {
		if len(g.deps[i]) == 0 {
			leaves = append(leaves, i)
		}
	}
	sort.Ints(leaves)
	return leaves
}

// Build validates jobs and constructs a JobGraph. jobs must already have
// their JobOutputs/tool-from-job JobRef fields populated with the *target*
// job's stable index — the bridge (§4.G) is responsible for resolving names
// to indices before calling Build, since index assignment here follows
// declaration order.
func Build(jobs []*model.Job, defaultName string) (*JobGraph, error) {
	g := &JobGraph{
		jobs:      jobs,
		nameIndex: make(map[string]int, len(jobs)),
		deps:      make([][]int, len(jobs)),
	}
	for i, j := range jobs {
		g.nameIndex[j.Name] = i
	}

	var violations []rbterr.GraphViolation
	violations = append(violations, validateOutputsAndDestinations(jobs)...)

	for i, j := range jobs {
		depSet := map[int]struct{}{}
		for _, in := range j.Inputs {
			if in.Kind == model.InputJobOutputs && in.JobRef >= 0 && in.JobRef < len(jobs) {
				depSet[in.JobRef] = struct{}{}
			}
		}
		if j.Command.Tool.Kind == model.ToolFromJob {
			ref := j.Command.Tool.JobRef
			if ref >= 0 && ref < len(jobs) {
				depSet[ref] = struct{}{}
			}
		}
		deps := make([]int, 0, len(depSet))
		for d := range depSet {
			deps = append(deps, d)
		}
		sort.Ints(deps)
		g.deps[i] = deps
	}

	if cyclePath := findCycle(g.deps); cyclePath != nil {
		names := make([]string, len(cyclePath))
		for i, idx := range cyclePath {
			names[i] = jobs[idx].Name
		}
		violations = append(violations, rbterr.GraphViolation{
			Kind:   rbterr.KindCycle,
			Job:    jobs[cyclePath[0]].Name,
			Detail: "cycle: " + joinNames(names),
		})
	}

	if len(violations) > 0 {
		return nil, &rbterr.GraphInvalidError{Violations: violations}
	}

	defIdx, ok := g.nameIndex[defaultName]
	if !ok {
		return nil, &rbterr.GraphInvalidError{Violations: []rbterr.GraphViolation{{
			Kind:   rbterr.KindJobOutputNotDeclared,
			Job:    defaultName,
			Detail: "default job not present in graph",
		}}}
	}
	g.defaultJob = defIdx

	return g, nil
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += " -> "
		}
		out += n
	}
	return out
}

// validateOutputsAndDestinations checks invariants 2-4 of §3: every
// JobOutputs mapping's source lies within the referenced job's declared
// outputs, no two inputs of a job resolve to the same destination, and a
// referenced job must declare at least one output.
func validateOutputsAndDestinations(jobs []*model.Job) []rbterr.GraphViolation {
	var violations []rbterr.GraphViolation

	for _, j := range jobs {
		seenDest := map[string]struct{}{}
		for _, in := range j.Inputs {
			for _, m := range in.Mappings {
				dest := m.Dest()
				if _, dup := seenDest[dest]; dup {
					violations = append(violations, rbterr.GraphViolation{
						Kind:   rbterr.KindDuplicateInputDestination,
						Job:    j.Name,
						Detail: "destination used more than once: " + dest,
					})
					continue
				}
				seenDest[dest] = struct{}{}
			}

			if in.Kind == model.InputJobOutputs {
				if in.JobRef < 0 || in.JobRef >= len(jobs) {
					continue
				}
				upstream := jobs[in.JobRef]
				if len(upstream.Outputs) == 0 {
					violations = append(violations, rbterr.GraphViolation{
						Kind:   rbterr.KindEmptyOutputsForReferenced,
						Job:    j.Name,
						Detail: "references job with no declared outputs: " + upstream.Name,
					})
					continue
				}
				outputSet := make(map[string]struct{}, len(upstream.Outputs))
				for _, o := range upstream.Outputs {
					outputSet[o] = struct{}{}
				}
				for _, m := range in.Mappings {
					if !withinDeclaredOutputs(m.Source, outputSet) {
						violations = append(violations, rbterr.GraphViolation{
							Kind:   rbterr.KindJobOutputNotDeclared,
							Job:    j.Name,
							Detail: "source not among " + upstream.Name + "'s declared outputs: " + m.Source,
						})
					}
				}
			}
		}
	}
	return violations
}

// withinDeclaredOutputs reports whether path is exactly one of, or nested
// under, a declared output path.
func withinDeclaredOutputs(path string, declared map[string]struct{}) bool {
	if _, ok := declared[path]; ok {
		return true
	}
	for d := range declared {
		if len(path) > len(d) && path[:len(d)] == d && path[len(d)] == '/' {
			return true
		}
	}
	return false
}

// findCycle runs a standard three-color DFS over the dependency adjacency
// list and returns one offending path, or nil if the graph is acyclic.
func findCycle(deps [][]int) []int {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(deps))
	var path []int
	var visit func(n int) []int
	visit = func(n int) []int {
		color[n] = gray
		path = append(path, n)
		for _, d := range deps[n] {
			switch color[d] {
			case gray:
				// found the back-edge; trim path to the cycle itself
				start := 0
				for i, p := range path {
					if p == d {
						start = i
						break
					}
				}
				return append(append([]int(nil), path[start:]...), d)
			case white:
				if cyc := visit(d); cyc != nil {
					return cyc
				}
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		return nil
	}

	for n := range deps {
		if color[n] == white {
			if cyc := visit(n); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}
