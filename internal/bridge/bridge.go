// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bridge implements the evaluator bridge (§4.G): it turns the
// generic map[string]any value tree an external configuration evaluator
// hands back into the internal/model job graph. Its only job is shape
// validation and JobOutputs/tool-from-job name resolution to stable
// indices — it never touches the filesystem and never depends on any
// specific evaluator library, the same way this codebase's resource loaders
// accept a bare map[string]interface{} per resource
// (other_examples: dnephin-buildpipe config/job.go's jobFromConfig) and
// leave parsing concerns to small typed accessors.
package bridge

import (
	"fmt"
	"sort"

	"github.com/rbtbuild/rbt/internal/model"
	"github.com/rbtbuild/rbt/internal/rbterr"
)

// Translate validates root and converts it into an ordered job list plus the
// default job's name, ready for graph.Build. root must have the shape:
//
//	{
//	  "default": "<job name>",
//	  "jobs": {
//	    "<job name>": {
//	      "tool": {"kind": "system", "name": "<exe>"} |
//	              {"kind": "job", "jobRef": "<job name>", "path": "<rel path>"},
//	      "args": ["..."],
//	      "env": {"KEY": "value"},
//	      "inputs": [
//	        {"kind": "project", "mappings": [{"source": "...", "destination": "..."}]} |
//	        {"kind": "job", "jobRef": "<job name>", "mappings": [...]}
//	      ],
//	      "outputs": ["..."],
//	      "saturating": false
//	    }
//	  }
//	}
//
// Every job reference (tool-from-job, JobOutputs) is by name; Translate
// resolves names to the stable indices graph.Build expects, assigning
// indices in lexicographic job-name order so the mapping is reproducible
// across runs of the same config.
func Translate(root map[string]any) ([]*model.Job, string, error) {
	defaultName, err := getString(root, "default")
	if err != nil {
		return nil, "", err
	}

	rawJobs, err := getMap(root, "jobs")
	if err != nil {
		return nil, "", err
	}
	if len(rawJobs) == 0 {
		return nil, "", configErr("jobs: must declare at least one job")
	}

	names := make([]string, 0, len(rawJobs))
	for name := range rawJobs {
		names = append(names, name)
	}
	sort.Strings(names)

	indexOf := make(map[string]int, len(names))
	for i, name := range names {
		indexOf[name] = i
	}

	jobs := make([]*model.Job, len(names))
	for i, name := range names {
		spec, ok := rawJobs[name].(map[string]any)
		if !ok {
			return nil, "", configErr(fmt.Sprintf("jobs.%s: must be an object", name))
		}
		job, err := translateJob(name, spec, indexOf)
		if err != nil {
			return nil, "", err
		}
		jobs[i] = job
	}

	if _, ok := indexOf[defaultName]; !ok {
		return nil, "", configErr(fmt.Sprintf("default: job %q not declared in jobs", defaultName))
	}

	return jobs, defaultName, nil
}

func translateJob(name string, spec map[string]any, indexOf map[string]int) (*model.Job, error) {
	tool, err := translateTool(name, spec, indexOf)
	if err != nil {
		return nil, err
	}
	args, err := getOptionalStringSlice(spec, "args")
	if err != nil {
		return nil, wrapField(name, "args", err)
	}
	cmdEnv, err := getOptionalStringMap(spec, "env")
	if err != nil {
		return nil, wrapField(name, "env", err)
	}

	rawInputs, err := getOptionalSlice(spec, "inputs")
	if err != nil {
		return nil, wrapField(name, "inputs", err)
	}
	inputs := make([]model.Input, 0, len(rawInputs))
	for i, raw := range rawInputs {
		in, ok := raw.(map[string]any)
		if !ok {
			return nil, configErr(fmt.Sprintf("jobs.%s.inputs[%d]: must be an object", name, i))
		}
		input, err := translateInput(name, i, in, indexOf)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, input)
	}

	outputs, err := getOptionalStringSlice(spec, "outputs")
	if err != nil {
		return nil, wrapField(name, "outputs", err)
	}
	for _, o := range outputs {
		if len(o) > 0 && o[0] == '/' {
			return nil, configErr(fmt.Sprintf("jobs.%s.outputs: absolute path not allowed: %s", name, o))
		}
	}

	saturating, err := getOptionalBool(spec, "saturating")
	if err != nil {
		return nil, wrapField(name, "saturating", err)
	}
	saturation := model.SingleCPU
	if saturating {
		saturation = model.Saturating
	}

	return &model.Job{
		Name:       name,
		Command:    model.Command{Tool: tool, Args: args, Env: cmdEnv},
		Inputs:     inputs,
		Outputs:    outputs,
		Saturation: saturation,
	}, nil
}

func translateTool(jobName string, spec map[string]any, indexOf map[string]int) (model.Tool, error) {
	raw, err := getMap(spec, "tool")
	if err != nil {
		return model.Tool{}, wrapField(jobName, "tool", err)
	}
	kind, err := getString(raw, "kind")
	if err != nil {
		return model.Tool{}, wrapField(jobName, "tool.kind", err)
	}
	switch kind {
	case "system":
		toolName, err := getString(raw, "name")
		if err != nil {
			return model.Tool{}, wrapField(jobName, "tool.name", err)
		}
		return model.SystemTool(toolName), nil
	case "job":
		ref, err := getString(raw, "jobRef")
		if err != nil {
			return model.Tool{}, wrapField(jobName, "tool.jobRef", err)
		}
		idx, ok := indexOf[ref]
		if !ok {
			return model.Tool{}, configErr(fmt.Sprintf("jobs.%s.tool.jobRef: job %q not declared", jobName, ref))
		}
		path, err := getString(raw, "path")
		if err != nil {
			return model.Tool{}, wrapField(jobName, "tool.path", err)
		}
		return model.JobTool(idx, path), nil
	default:
		return model.Tool{}, configErr(fmt.Sprintf("jobs.%s.tool.kind: unknown kind %q (want \"system\" or \"job\")", jobName, kind))
	}
}

func translateInput(jobName string, idx int, spec map[string]any, indexOf map[string]int) (model.Input, error) {
	kind, err := getString(spec, "kind")
	if err != nil {
		return model.Input{}, wrapField(jobName, fmt.Sprintf("inputs[%d].kind", idx), err)
	}
	mappings, err := translateMappings(jobName, idx, spec)
	if err != nil {
		return model.Input{}, err
	}
	switch kind {
	case "project":
		return model.ProjectFiles(mappings...), nil
	case "job":
		ref, err := getString(spec, "jobRef")
		if err != nil {
			return model.Input{}, wrapField(jobName, fmt.Sprintf("inputs[%d].jobRef", idx), err)
		}
		refIdx, ok := indexOf[ref]
		if !ok {
			return model.Input{}, configErr(fmt.Sprintf("jobs.%s.inputs[%d].jobRef: job %q not declared", jobName, idx, ref))
		}
		return model.JobOutputs(refIdx, mappings...), nil
	default:
		return model.Input{}, configErr(fmt.Sprintf("jobs.%s.inputs[%d].kind: unknown kind %q (want \"project\" or \"job\")", jobName, idx, kind))
	}
}

func translateMappings(jobName string, inputIdx int, spec map[string]any) ([]model.FileMapping, error) {
	raw, err := getSlice(spec, "mappings")
	if err != nil {
		return nil, wrapField(jobName, fmt.Sprintf("inputs[%d].mappings", inputIdx), err)
	}
	if len(raw) == 0 {
		return nil, configErr(fmt.Sprintf("jobs.%s.inputs[%d].mappings: must declare at least one mapping", jobName, inputIdx))
	}
	out := make([]model.FileMapping, 0, len(raw))
	for i, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			return nil, configErr(fmt.Sprintf("jobs.%s.inputs[%d].mappings[%d]: must be an object", jobName, inputIdx, i))
		}
		source, err := getString(m, "source")
		if err != nil {
			return nil, wrapField(jobName, fmt.Sprintf("inputs[%d].mappings[%d].source", inputIdx, i), err)
		}
		dest, err := getOptionalString(m, "destination")
		if err != nil {
			return nil, wrapField(jobName, fmt.Sprintf("inputs[%d].mappings[%d].destination", inputIdx, i), err)
		}
		out = append(out, model.FileMapping{Source: source, Destination: dest})
	}
	return out, nil
}

func configErr(msg string) error {
	return &rbterr.ConfigErrorWrap{Message: msg}
}

func wrapField(jobName, field string, err error) error {
	if ce, ok := err.(*rbterr.ConfigErrorWrap); ok {
		return &rbterr.ConfigErrorWrap{Message: fmt.Sprintf("jobs.%s.%s: %s", jobName, field, ce.Message)}
	}
	return err
}
