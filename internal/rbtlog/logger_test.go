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
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesToLogFile(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Level: LevelInfo, LogDir: dir, Service: "test", Quiet: true})
	logger.Info("hello", "key", "value")
	require.NoError(t, logger.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "test_")

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "value")
}

func TestLogger_With_AddsAttributesToChild(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{slog: slog.New(slog.NewTextHandler(&buf, nil))}
	child := logger.With("request_id", "abc")
	assert.NotNil(t, child.Slog())
	child.Info("hello")
	assert.Contains(t, buf.String(), "request_id=abc")
}

func TestWithTrace_NoActiveSpanReturnsSameLogger(t *testing.T) {
	base := Default().Slog()
	got := WithTrace(context.Background(), base)
	assert.Equal(t, base, got)
}

func TestWithJob_AddsJobField(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	got := WithJob(context.Background(), base, "build")
	assert.NotNil(t, got)
	got.Info("hello")
	assert.Contains(t, buf.String(), "job=build")
}
