// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rbttrace

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_ExportsSpanToWriter(t *testing.T) {
	var buf bytes.Buffer
	provider, err := NewProvider(context.Background(), Config{ServiceName: "test", Writer: &buf})
	require.NoError(t, err)
	require.NotNil(t, provider)

	tracer := provider.Tracer("test")
	_, span := tracer.Start(context.Background(), "op")
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "\"Name\":\"op\"")
}

func TestNewProvider_DisabledSamplesNothing(t *testing.T) {
	var buf bytes.Buffer
	provider, err := NewProvider(context.Background(), Config{ServiceName: "test", Writer: &buf, Disabled: true})
	require.NoError(t, err)

	tracer := provider.Tracer("test")
	_, span := tracer.Start(context.Background(), "op")
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
	assert.Empty(t, buf.String())
}
