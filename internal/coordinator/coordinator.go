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

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rbtbuild/rbt/internal/fingerprint"
	"github.com/rbtbuild/rbt/internal/graph"
	"github.com/rbtbuild/rbt/internal/inputhash"
	"github.com/rbtbuild/rbt/internal/isolator"
	"github.com/rbtbuild/rbt/internal/model"
	"github.com/rbtbuild/rbt/internal/rbterr"
	"github.com/rbtbuild/rbt/internal/store"
)

var tracer = otel.Tracer("rbt.coordinator")

// Coordinator drives one invocation's job graph to completion (§4.F).
type Coordinator struct {
	graph    *graph.JobGraph
	hasher   *inputhash.Hasher
	store    *store.Store
	runner   isolator.ProcessRunner
	logsDir  string
	logger   *slog.Logger
	maxJobs  int
	projRoot string
}

// Config configures a Coordinator.
type Config struct {
	Graph       *graph.JobGraph
	Hasher      *inputhash.Hasher
	Store       *store.Store
	Runner      isolator.ProcessRunner
	LogsDir     string
	Logger      *slog.Logger
	MaxParallel int // <= 0 means GOMAXPROCS
	ProjectRoot string
}

// New builds a Coordinator from cfg.
func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxJobs := cfg.MaxParallel
	if maxJobs <= 0 {
		maxJobs = runtime.GOMAXPROCS(0)
	}
	return &Coordinator{
		graph:    cfg.Graph,
		hasher:   cfg.Hasher,
		store:    cfg.Store,
		runner:   cfg.Runner,
		logsDir:  cfg.LogsDir,
		logger:   logger,
		maxJobs:  maxJobs,
		projRoot: cfg.ProjectRoot,
	}
}

// InvocationResult is the per-job outcome map returned by Run, keyed by job
// name (§3 InvocationResult).
type InvocationResult struct {
	Jobs map[string]JobOutcome
}

// Run walks the graph to completion: leaves start immediately, a job starts
// as soon as every dependency is terminal, a dependency that failed or was
// skipped marks its dependents Skipped without running them, and the whole
// run stops making progress only once every job is terminal.
func (c *Coordinator) Run(ctx context.Context) (*InvocationResult, error) {
	n := c.graph.JobCount()
	st := newState(n)
	memo := fingerprint.NewMemo()
	sem := make(chan struct{}, c.maxJobs)

	ctx, span := tracer.Start(ctx, "coordinator.Run",
		trace.WithAttributes(attribute.Int("rbt.job_count", n)),
	)
	defer span.End()

	var storeConflict error

	st.mu.Lock()
	for !st.allTerminal() {
		if ctx.Err() != nil {
			for st.running > 0 {
				st.cond.Wait()
			}
			break
		}
		toRun, toSkip := st.readyToDispatch(c.graph.Dependencies)
		for _, i := range toSkip {
			st.markSkipped(i)
			c.logger.Info("job skipped", "job", c.graph.Name(i), "reason", "dependency failed or skipped")
		}

		var normalRun, saturatingRun []int
		for _, i := range toRun {
			if c.graph.Job(i).Saturation == model.Saturating {
				saturatingRun = append(saturatingRun, i)
			} else {
				normalRun = append(normalRun, i)
			}
		}

		// A saturating job runs alone: it is only dispatched once every
		// in-flight job has finished, and nothing else is dispatched
		// alongside it or while it's running (§4.F, §5 "wait for
		// quiescence, run exclusively"). Ready saturating jobs beyond the
		// first wait for a later, equally quiescent round rather than
		// racing each other for the same worker-pool slots.
		var dispatch []int
		switch {
		case st.saturatingInFlight:
			dispatch = nil
		case len(saturatingRun) > 0 && st.running == 0:
			dispatch = saturatingRun[:1]
		default:
			dispatch = normalRun
		}

		if len(dispatch) == 0 && len(toSkip) == 0 {
			if st.running == 0 {
				break
			}
			st.cond.Wait()
			continue
		}
		for _, i := range dispatch {
			saturating := c.graph.Job(i).Saturation == model.Saturating
			st.markRunning(i, saturating)
			idx := i
			go func() {
				outcome := c.runJob(ctx, idx, st, memo, sem)
				if outcome.Status == Failed {
					if ce, ok := outcome.Err.(*rbterr.StoreConflictError); ok {
						st.mu.Lock()
						if storeConflict == nil {
							storeConflict = ce
						}
						st.mu.Unlock()
					}
				}
				st.finish(idx, outcome, saturating)
			}()
		}
	}
	st.mu.Unlock()

	if ctx.Err() != nil {
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, "cancelled")
		return c.buildResult(st), ctx.Err()
	}
	if storeConflict != nil {
		span.RecordError(storeConflict)
		span.SetStatus(codes.Error, storeConflict.Error())
		return c.buildResult(st), storeConflict
	}

	span.SetStatus(codes.Ok, "")
	return c.buildResult(st), nil
}

func (c *Coordinator) buildResult(st *state) *InvocationResult {
	out := &InvocationResult{Jobs: make(map[string]JobOutcome, c.graph.JobCount())}
	for i := 0; i < c.graph.JobCount(); i++ {
		out.Jobs[c.graph.Name(i)] = st.outcomes[i]
	}
	return out
}

// runJob computes idx's full fingerprint, consults the store, and either
// reuses a cached CAS path or runs the job through the isolator and
// materializes its outputs — all under a single worker-pool slot. A
// Saturating job's exclusivity is enforced entirely by Run's dispatch loop,
// which only starts it once every other job has finished and holds back
// everything else until it does.
func (c *Coordinator) runJob(ctx context.Context, idx int, st *state, memo *fingerprint.Memo, sem chan struct{}) JobOutcome {
	job := c.graph.Job(idx)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return JobOutcome{Status: Failed, Err: ctx.Err()}
	}
	defer func() { <-sem }()

	ctx, span := tracer.Start(ctx, job.Name, trace.WithAttributes(attribute.String("rbt.job", job.Name)))
	defer span.End()

	base := memo.BaseFingerprintOf(idx, job, c.graph.Name)

	sourceToAbs := projectFilePaths(job, c.projRoot)
	absPaths := make([]string, 0, len(sourceToAbs))
	for _, abs := range sourceToAbs {
		absPaths = append(absPaths, abs)
	}
	byAbs, err := c.hasher.HashAll(ctx, absPaths)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("job failed", "job", job.Name, "error", err)
		return JobOutcome{Status: Failed, Err: err}
	}
	contentHashes := make(map[string]fingerprint.Digest, len(sourceToAbs))
	for source, abs := range sourceToAbs {
		contentHashes[source] = byAbs[abs]
	}

	casPaths := make(map[int]string)
	for _, d := range c.graph.Dependencies(idx) {
		path, ok := st.casPathOf(d)
		if !ok {
			err := fmt.Errorf("coordinator: dependency %s not completed", c.graph.Name(d))
			return JobOutcome{Status: Failed, Err: err}
		}
		casPaths[d] = path
	}

	full := fingerprint.FullFingerprint(base, job, fingerprint.InputResolution{
		ContentHashes: contentHashes,
		CASPaths:      casPaths,
	})

	if casPath, found, err := c.store.Lookup(ctx, full); err != nil {
		span.RecordError(err)
		return JobOutcome{Status: Failed, Err: err}
	} else if found {
		c.logger.Info("job cache hit", "job", job.Name, "cas_path", casPath)
		span.SetAttributes(attribute.Bool("rbt.cache_hit", true))
		span.SetStatus(codes.Ok, "")
		return JobOutcome{Status: Completed, CASPath: casPath}
	}

	resolver := &graphResolver{projectRoot: c.projRoot, state: st}
	iso, err := isolator.New(c.runner, resolver, c.logsDir)
	if err != nil {
		return JobOutcome{Status: Failed, Err: err}
	}

	result, err := iso.Execute(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("job failed", "job", job.Name, "error", err)
		return JobOutcome{Status: Failed, StdoutPath: result.StdoutPath, StderrPath: result.StderrPath, Err: err}
	}

	digest, casPath, err := c.store.Materialize(result.OutputsDir)
	if err != nil {
		span.RecordError(err)
		return JobOutcome{Status: Failed, StdoutPath: result.StdoutPath, StderrPath: result.StderrPath, Err: err}
	}
	_ = digest

	if err := c.store.Insert(ctx, job.Name, full, casPath); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return JobOutcome{Status: Failed, StdoutPath: result.StdoutPath, StderrPath: result.StderrPath, Err: err}
	}

	span.SetStatus(codes.Ok, "")
	c.logger.Info("job completed", "job", job.Name, "cas_path", casPath)
	return JobOutcome{Status: Completed, CASPath: casPath, StdoutPath: result.StdoutPath, StderrPath: result.StderrPath}
}

// projectFilePaths maps every ProjectFiles mapping's declared Source (the
// key FullFingerprint looks content hashes up by) to its absolute path on
// disk (what the hasher actually needs to stat and stream).
func projectFilePaths(job *model.Job, projectRoot string) map[string]string {
	out := make(map[string]string)
	for _, in := range job.Inputs {
		if in.Kind != model.InputProjectFiles {
			continue
		}
		for _, m := range in.Mappings {
			out[m.Source] = filepath.Join(projectRoot, m.Source)
		}
	}
	return out
}
