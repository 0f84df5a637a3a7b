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
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/rbtbuild/rbt/internal/bridge"
	"github.com/rbtbuild/rbt/internal/coordinator"
	"github.com/rbtbuild/rbt/internal/graph"
	"github.com/rbtbuild/rbt/internal/inputhash"
	"github.com/rbtbuild/rbt/internal/isolator"
	"github.com/rbtbuild/rbt/internal/kvstore"
	"github.com/rbtbuild/rbt/internal/rbtlog"
	"github.com/rbtbuild/rbt/internal/rbttrace"
	"github.com/rbtbuild/rbt/internal/store"
)

// invocation bundles the handles one CLI call opens, so build and outputs
// share the exact same G→A→F→(B,C,D,E) wiring (§4.H) and close everything on
// the way out regardless of which command ran.
type invocation struct {
	id     string
	cfg    *InvocationConfig
	logger *rbtlog.Logger
	metaDB *kvstore.DB
	store  *store.Store
	hasher *inputhash.Hasher
	graph  *graph.JobGraph
	coord  *coordinator.Coordinator
}

// newInvocation loads cfg's graph file, builds the validated JobGraph, and
// opens every process-wide handle (§5 "Process-wide state": opened once,
// closed once, no ambient singletons in between).
func newInvocation(ctx context.Context, cfg *InvocationConfig) (*invocation, error) {
	id := uuid.New().String()

	logger := rbtlog.New(cfg.Logging.toRbtlog("rbt"))
	slogger := rbtlog.WithInvocation(ctx, logger.Slog(), id)

	root, err := loadGraphValue(cfg.Graph)
	if err != nil {
		logger.Close()
		return nil, err
	}
	jobs, defaultName, err := bridge.Translate(root)
	if err != nil {
		logger.Close()
		return nil, err
	}
	jobGraph, err := graph.Build(jobs, defaultName)
	if err != nil {
		logger.Close()
		return nil, err
	}

	st, err := store.Open(cfg.StateRoot)
	if err != nil {
		logger.Close()
		return nil, err
	}

	metaDB, err := kvstore.Open(metaHashCacheConfig(cfg.StateRoot))
	if err != nil {
		st.Close()
		logger.Close()
		return nil, err
	}
	cache := inputhash.NewCache(metaDB)
	hasher := inputhash.NewHasher(cache, cfg.MaxParallel)

	isolator.InheritPATH = cfg.inheritPATH()

	var runner isolator.ProcessRunner = isolator.NewDefaultProcessRunner()
	logsDir := filepath.Join(cfg.StateRoot, "tmp", id, "logs")

	coord := coordinator.New(coordinator.Config{
		Graph:       jobGraph,
		Hasher:      hasher,
		Store:       st,
		Runner:      runner,
		LogsDir:     logsDir,
		Logger:      slogger,
		MaxParallel: cfg.MaxParallel,
		ProjectRoot: cfg.ProjectRoot,
	})

	return &invocation{
		id:     id,
		cfg:    cfg,
		logger: logger,
		metaDB: metaDB,
		store:  st,
		hasher: hasher,
		graph:  jobGraph,
		coord:  coord,
	}, nil
}

// metaHashCacheConfig opens the content-hash cache's own kvstore directory,
// distinct from the Store's result-map database (§6 filesystem layout:
// results/ and meta-hash-cache/ are separate persistent maps).
func metaHashCacheConfig(stateRoot string) kvstore.Config {
	cfg := kvstore.DefaultConfig()
	cfg.Path = filepath.Join(stateRoot, "meta-hash-cache")
	return cfg
}

// close releases every process-wide handle this invocation opened.
func (inv *invocation) close() {
	if inv.metaDB != nil {
		inv.metaDB.Close()
	}
	if inv.store != nil {
		inv.store.Close()
	}
	if inv.logger != nil {
		inv.logger.Close()
	}
}

// run bootstraps tracing, executes the graph, and returns the result
// alongside the exit code the documented error taxonomy (§6) maps to.
func run(ctx context.Context, invCfgPath string) (*coordinator.InvocationResult, int, error) {
	cfg, err := loadInvocationConfig(invCfgPath)
	if err != nil {
		return nil, classifyError(err), err
	}

	provider, err := rbttrace.NewProvider(ctx, rbttrace.Config{ServiceName: "rbt"})
	if err != nil {
		return nil, exitGenericError, err
	}
	defer provider.Shutdown(ctx) //nolint:errcheck

	inv, err := newInvocation(ctx, cfg)
	if err != nil {
		return nil, classifyError(err), err
	}
	defer inv.close()

	result, err := inv.coord.Run(ctx)
	if err != nil {
		return result, classifyError(err), err
	}
	return result, classifyResult(result), nil
}

// printSummary writes a human-readable report of result to stdout (§4.H).
func printSummary(result *coordinator.InvocationResult) {
	names := make([]string, 0, len(result.Jobs))
	for name := range result.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		outcome := result.Jobs[name]
		switch outcome.Status {
		case coordinator.Completed:
			fmt.Printf("  %-24s %s  %s\n", name, outcome.Status, outcome.CASPath)
		case coordinator.Failed:
			fmt.Printf("  %-24s %s  %v\n", name, outcome.Status, outcome.Err)
		default:
			fmt.Printf("  %-24s %s\n", name, outcome.Status)
		}
	}
}
