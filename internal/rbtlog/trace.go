// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rbtlog

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// WithTrace returns a slog.Logger with trace_id/span_id injected from ctx's
// active span, so log lines correlate with the coordinator's OpenTelemetry
// spans (§4.F). Adapted from this codebase's
// services/code_buddy/telemetry/logging.go LoggerWithTrace.
func WithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if ctx == nil {
		return logger
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}

// WithJob adds trace correlation plus a job name field, for logging inside
// one job's isolator/coordinator lifecycle.
func WithJob(ctx context.Context, logger *slog.Logger, jobName string) *slog.Logger {
	return WithTrace(ctx, logger).With(slog.String("job", jobName))
}

// WithInvocation adds trace correlation plus an invocation ID field, for
// logging that spans an entire Coordinator.Run call.
func WithInvocation(ctx context.Context, logger *slog.Logger, invocationID string) *slog.Logger {
	return WithTrace(ctx, logger).With(slog.String("invocation_id", invocationID))
}
