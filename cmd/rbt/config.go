// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rbtbuild/rbt/internal/rbtlog"
)

// InvocationConfig is the YAML-decoded host configuration loaded before the
// core is constructed (§4.H, §10.1). Unlike the teacher's config.yaml, this
// is never stashed in a package-level singleton: run loads it once and
// threads it explicitly through the command that needs it, per the "no
// ambient singletons" design note (§9).
type InvocationConfig struct {
	// StateRoot is the directory holding cas/, results/, meta-hash-cache/
	// and tmp/ (§6 filesystem layout). Defaults to ".rbt", relative to the
	// current working directory, if empty.
	StateRoot string `yaml:"stateRoot"`

	// ProjectRoot is the directory ProjectFiles input sources are resolved
	// against. Defaults to the current working directory.
	ProjectRoot string `yaml:"projectRoot"`

	// MaxParallel overrides the coordinator's worker-pool size. <= 0 means
	// GOMAXPROCS.
	MaxParallel int `yaml:"maxParallel"`

	// InheritPATH controls whether the scrubbed job environment inherits
	// the host's PATH (§6, §9 Open Questions). A nil value defaults to true.
	InheritPATH *bool `yaml:"inheritPath"`

	// Logging configures internal/rbtlog's Logger.
	Logging LoggingConfig `yaml:"logging"`

	// Graph points at the YAML file holding the evaluator bridge's raw
	// value tree (§4.G). Defaults to "graph.yaml", relative to the current
	// working directory.
	Graph string `yaml:"graph"`
}

// LoggingConfig mirrors internal/rbtlog.Config in YAML-friendly form.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	LogDir string `yaml:"logDir"`
	JSON   bool   `yaml:"json"`
	Quiet  bool   `yaml:"quiet"`
}

func (c LoggingConfig) toRbtlog(service string) rbtlog.Config {
	level := rbtlog.LevelInfo
	switch c.Level {
	case "debug":
		level = rbtlog.LevelDebug
	case "warn":
		level = rbtlog.LevelWarn
	case "error":
		level = rbtlog.LevelError
	}
	return rbtlog.Config{
		Level:   level,
		LogDir:  c.LogDir,
		Service: service,
		JSON:    c.JSON,
		Quiet:   c.Quiet,
	}
}

// inheritPATH returns the effective PATH-inheritance setting, defaulting to
// true when unset (§6).
func (c InvocationConfig) inheritPATH() bool {
	if c.InheritPATH == nil {
		return true
	}
	return *c.InheritPATH
}

// loadInvocationConfig reads and decodes the invocation config at path.
func loadInvocationConfig(path string) (*InvocationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading invocation config %s: %w", path, err)
	}
	var cfg InvocationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing invocation config %s: %w", path, err)
	}
	if cfg.StateRoot == "" {
		cfg.StateRoot = ".rbt"
	}
	if cfg.ProjectRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.ProjectRoot = wd
		}
	}
	if cfg.Graph == "" {
		cfg.Graph = "graph.yaml"
	}
	return &cfg, nil
}

// loadGraphValue reads the evaluator bridge's raw value tree from a YAML
// file. gopkg.in/yaml.v3 decodes mappings directly into map[string]any,
// standing in for whatever embedded evaluator a real deployment would use
// (§4.G: the bridge only ever sees this generic shape).
func loadGraphValue(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph file %s: %w", path, err)
	}
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing graph file %s: %w", path, err)
	}
	return root, nil
}
