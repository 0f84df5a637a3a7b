// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model defines the build graph's data model: tools, commands, file
// mappings, inputs, jobs, and the job graph they form. Everything here is an
// immutable value constructed once by graph intake; nothing in this package
// mutates a Job after construction.
package model

// ToolKind discriminates the two ways a Command's executable can be resolved.
type ToolKind uint8

const (
	// ToolSystem resolves Name against the host's executable search path at
	// isolation time.
	ToolSystem ToolKind = iota
	// ToolFromJob resolves to a specific file produced by JobRef, found at
	// Path relative to that job's output tree.
	ToolFromJob
)

// Tool is a tagged union: either a system-resolved executable or a file
// produced by an upstream job. It never owns the job it references; graph
// intake records a ToolFromJob JobRef as a dependency edge alongside the
// edges induced by the owning Job's JobOutputs inputs.
type Tool struct {
	Kind ToolKind

	// Name is the executable name searched on PATH. Only meaningful when
	// Kind == ToolSystem.
	Name string

	// JobRef is the stable index (see JobGraph) of the job that produces
	// this tool. Only meaningful when Kind == ToolFromJob.
	JobRef int

	// Path is the tool's path relative to JobRef's output tree. Only
	// meaningful when Kind == ToolFromJob.
	Path string
}

// SystemTool builds a Tool resolved against PATH.
func SystemTool(name string) Tool {
	return Tool{Kind: ToolSystem, Name: name}
}

// JobTool builds a Tool resolved to a file produced by an upstream job.
func JobTool(jobRef int, path string) Tool {
	return Tool{Kind: ToolFromJob, JobRef: jobRef, Path: path}
}

// Command is a Tool plus an ordered argument list plus an environment
// mapping. Argument order is semantically significant; Env is unordered.
type Command struct {
	Tool Tool
	Args []string
	Env  map[string]string
}

// FileMapping pairs a workspace-relative destination with the path the
// mapping resolves to within its origin (project root, or an upstream job's
// output tree). Destination defaults to Source when left empty.
type FileMapping struct {
	Source      string
	Destination string
}

// Dest returns the effective destination, defaulting to Source.
func (m FileMapping) Dest() string {
	if m.Destination == "" {
		return m.Source
	}
	return m.Destination
}

// InputKind discriminates the two Input variants.
type InputKind uint8

const (
	// InputProjectFiles reads files from the user's project.
	InputProjectFiles InputKind = iota
	// InputJobOutputs reads files from another job's output tree.
	InputJobOutputs
)

// Input is a tagged union over where a job's mapped files originate.
type Input struct {
	Kind InputKind

	// Mappings is always populated: the list of (source, destination) pairs
	// this input contributes to the job's workspace.
	Mappings []FileMapping

	// JobRef is the stable index of the referenced job. Only meaningful
	// when Kind == InputJobOutputs.
	JobRef int
}

// ProjectFiles builds an Input reading from the user's project.
func ProjectFiles(mappings ...FileMapping) Input {
	return Input{Kind: InputProjectFiles, Mappings: mappings}
}

// JobOutputs builds an Input reading from another job's output tree.
func JobOutputs(jobRef int, mappings ...FileMapping) Input {
	return Input{Kind: InputJobOutputs, JobRef: jobRef, Mappings: mappings}
}

// Saturation tags whether a job reserves the entire worker pool while it
// runs. The isolator only carries the tag; the coordinator enforces it.
type Saturation uint8

const (
	// SingleCPU is the default: the job occupies one worker slot.
	SingleCPU Saturation = iota
	// Saturating jobs block acquisition of new workers until they complete.
	Saturating
)

// Job is an immutable unit of work: a command, its inputs, its declared
// outputs, and an environment overlay. Two structurally identical jobs
// produce the same fingerprint and collapse in the store; identity within a
// JobGraph is by index, not by pointer or by value equality.
type Job struct {
	Name       string
	Command    Command
	Inputs     []Input
	Outputs    []string
	Env        map[string]string
	Saturation Saturation
}
