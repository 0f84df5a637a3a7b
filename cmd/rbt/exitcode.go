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
	"errors"

	"github.com/rbtbuild/rbt/internal/coordinator"
	"github.com/rbtbuild/rbt/internal/rbterr"
)

// Exit codes (§6): a config error, an invalid graph, a store conflict and a
// cancellation each get their own nonzero code, any per-job failure
// recorded in the result maps to exitJobFailed, and every other error maps
// to exitGenericError, so scripting callers can tell a config mistake from a
// failed build from store corruption without parsing stderr.
const (
	exitSuccess       = 0
	exitGenericError  = 1
	exitConfigError   = 2
	exitGraphInvalid  = 3
	exitJobFailed     = 4
	exitStoreConflict = 5
	exitCancelled     = 6
)

// classifyError maps a fatal error (one that prevented Run from ever
// returning an InvocationResult) to an exit code.
func classifyError(err error) int {
	var configErr *rbterr.ConfigErrorWrap
	if errors.As(err, &configErr) {
		return exitConfigError
	}
	var graphErr *rbterr.GraphInvalidError
	if errors.As(err, &graphErr) {
		return exitGraphInvalid
	}
	var storeConflictErr *rbterr.StoreConflictError
	if errors.As(err, &storeConflictErr) {
		return exitStoreConflict
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return exitCancelled
	}
	return exitGenericError
}

// classifyResult inspects a completed InvocationResult for per-job failures
// that Run reports without itself returning an error (§4.F: a failed job
// fails only its descendants, not the whole Run call).
func classifyResult(result *coordinator.InvocationResult) int {
	for _, outcome := range result.Jobs {
		if outcome.Status == coordinator.Failed {
			return exitJobFailed
		}
	}
	return exitSuccess
}
