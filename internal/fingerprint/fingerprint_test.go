// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbtbuild/rbt/internal/model"
)

func noNamer(int) string { return "" }

func sampleJob() *model.Job {
	return &model.Job{
		Name: "hello",
		Command: model.Command{
			Tool: model.SystemTool("bash"),
			Args: []string{"-c", "echo hi"},
			Env:  map[string]string{"A": "1", "B": "2"},
		},
		Inputs: []model.Input{
			model.ProjectFiles(
				model.FileMapping{Source: "a.txt", Destination: "a"},
				model.FileMapping{Source: "b.txt", Destination: "b"},
			),
		},
		Outputs: []string{"out"},
	}
}

func TestBaseFingerprint_OrderIndependentEnv(t *testing.T) {
	j1 := sampleJob()
	j2 := sampleJob()
	j2.Command.Env = map[string]string{"B": "2", "A": "1"}

	require.Equal(t, BaseFingerprint(j1, noNamer), BaseFingerprint(j2, noNamer))
}

func TestBaseFingerprint_OrderIndependentMappings(t *testing.T) {
	j1 := sampleJob()
	j2 := sampleJob()
	j2.Inputs = []model.Input{
		model.ProjectFiles(
			model.FileMapping{Source: "b.txt", Destination: "b"},
			model.FileMapping{Source: "a.txt", Destination: "a"},
		),
	}

	require.Equal(t, BaseFingerprint(j1, noNamer), BaseFingerprint(j2, noNamer))
}

func TestBaseFingerprint_RenameChangesDigest(t *testing.T) {
	j1 := sampleJob()
	j2 := sampleJob()
	j2.Inputs = []model.Input{
		model.ProjectFiles(
			model.FileMapping{Source: "a.txt", Destination: "renamed-a"},
			model.FileMapping{Source: "b.txt", Destination: "b"},
		),
	}

	assert.NotEqual(t, BaseFingerprint(j1, noNamer), BaseFingerprint(j2, noNamer))
}

func TestBaseFingerprint_ArgOrderMatters(t *testing.T) {
	j1 := sampleJob()
	j2 := sampleJob()
	j2.Command.Args = []string{"echo hi", "-c"} // same arguments, different order

	assert.NotEqual(t, BaseFingerprint(j1, noNamer), BaseFingerprint(j2, noNamer))
}

func TestFullFingerprint_DependsOnContentHash(t *testing.T) {
	j := sampleJob()
	base := BaseFingerprint(j, noNamer)

	res1 := InputResolution{ContentHashes: map[string]Digest{
		"a.txt": sum([]byte("hello")),
		"b.txt": sum([]byte("world")),
	}}
	res2 := InputResolution{ContentHashes: map[string]Digest{
		"a.txt": sum([]byte("hello-changed")),
		"b.txt": sum([]byte("world")),
	}}

	full1 := FullFingerprint(base, j, res1)
	full2 := FullFingerprint(base, j, res2)
	assert.NotEqual(t, full1, full2)

	// identical resolution is deterministic
	assert.Equal(t, full1, FullFingerprint(base, j, res1))
}

func TestMemo_ComputesOnce(t *testing.T) {
	j := sampleJob()
	m := NewMemo()
	calls := 0
	compute := func() Digest {
		calls++
		return BaseFingerprint(j, noNamer)
	}
	d1 := m.m.get(0, compute)
	d2 := m.m.get(0, compute)
	assert.Equal(t, d1, d2)
	assert.Equal(t, 1, calls)
}

func TestDigestHex_Length(t *testing.T) {
	d := sum([]byte("x"))
	assert.Len(t, d.Hex(), 64)
}
