// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rbttrace wires up the OpenTelemetry tracer provider every job
// span in internal/coordinator is recorded against
// (§4.F, §10). Adapted from this codebase's OTel bootstrap
// (cmd/aleutian/internal/diagnostics/tracer.go: resource-tagged
// sdktrace.TracerProvider, always-sample, global registration, graceful
// Shutdown) with the OTLP/gRPC exporter swapped for stdouttrace, since a
// local build tool has no collector to dial and §10 of the spec calls for
// a trace stream the invoking terminal or CI log can capture directly.
package rbttrace

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Config configures the tracer provider built by NewProvider.
type Config struct {
	// ServiceName tags every span's resource (default "rbt").
	ServiceName string
	// Writer receives the exported span JSON. Defaults to os.Stderr when
	// nil, so span output never interleaves with a command's own stdout
	// contract (e.g. "outputs <job>" prints only a CAS path to stdout).
	Writer io.Writer
	// PrettyPrint indents the exported JSON for human reading.
	PrettyPrint bool
	// Disabled builds a provider that samples nothing, for invocations
	// that don't want tracing overhead (e.g. most test runs).
	Disabled bool
}

// NewProvider builds and globally registers an SDK TracerProvider exporting
// through stdouttrace to cfg.Writer (stderr by default). Callers must
// Shutdown the returned provider to flush pending
// spans before process exit.
func NewProvider(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "rbt"
	}

	writer := cfg.Writer
	if writer == nil {
		writer = os.Stderr
	}
	opts := []stdouttrace.Option{stdouttrace.WithWriter(writer)}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("rbttrace: creating stdout exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			attribute.String("rbt.component", "core"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("rbttrace: building resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.Disabled {
		sampler = sdktrace.NeverSample()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return provider, nil
}
