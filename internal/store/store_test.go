// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbtbuild/rbt/internal/rbterr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func writeOutputs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return dir
}

func TestHashTree_DeterministicRegardlessOfTraversal(t *testing.T) {
	a := writeOutputs(t, map[string]string{"a.txt": "1", "sub/b.txt": "2"})
	b := writeOutputs(t, map[string]string{"sub/b.txt": "2", "a.txt": "1"})

	da, err := hashTree(a)
	require.NoError(t, err)
	db, err := hashTree(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestHashTree_DifferentContentDifferentDigest(t *testing.T) {
	a := writeOutputs(t, map[string]string{"a.txt": "1"})
	b := writeOutputs(t, map[string]string{"a.txt": "2"})

	da, err := hashTree(a)
	require.NoError(t, err)
	db, err := hashTree(b)
	require.NoError(t, err)
	assert.NotEqual(t, da, db)
}

func TestStore_MaterializeThenInsertThenLookup(t *testing.T) {
	s := newTestStore(t)
	outDir := writeOutputs(t, map[string]string{"out.bin": "payload"})

	digest, casPath, err := s.Materialize(outDir)
	require.NoError(t, err)
	assert.DirExists(t, casPath)

	ctx := context.Background()
	var fullFP [32]byte
	fullFP[0] = 0x42
	require.NoError(t, s.Insert(ctx, "job-a", fullFP, casPath))

	got, found, err := s.Lookup(ctx, fullFP)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, casPath, got)
	_ = digest
}

func TestStore_Materialize_Idempotent(t *testing.T) {
	s := newTestStore(t)
	outDir1 := writeOutputs(t, map[string]string{"out.bin": "payload"})
	outDir2 := writeOutputs(t, map[string]string{"out.bin": "payload"})

	_, path1, err := s.Materialize(outDir1)
	require.NoError(t, err)
	_, path2, err := s.Materialize(outDir2)
	require.NoError(t, err)
	assert.Equal(t, path1, path2)
}

func TestStore_Insert_SameMappingIsNoOp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	var fullFP [32]byte
	fullFP[0] = 0x01

	require.NoError(t, s.Insert(ctx, "job-a", fullFP, "/cas/aaa"))
	require.NoError(t, s.Insert(ctx, "job-a", fullFP, "/cas/aaa"))
}

func TestStore_Insert_ConflictingMappingErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	var fullFP [32]byte
	fullFP[0] = 0x02

	require.NoError(t, s.Insert(ctx, "job-a", fullFP, "/cas/aaa"))
	err := s.Insert(ctx, "job-a", fullFP, "/cas/bbb")
	require.Error(t, err)
	var conflict *rbterr.StoreConflictError
	assert.ErrorAs(t, err, &conflict)
	assert.Equal(t, "/cas/aaa", conflict.Existing)
	assert.Equal(t, "/cas/bbb", conflict.Attempted)
}

func TestStore_Lookup_Miss(t *testing.T) {
	s := newTestStore(t)
	var fullFP [32]byte
	fullFP[0] = 0xFF

	_, found, err := s.Lookup(context.Background(), fullFP)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_CASPath_IsUnderCASRoot(t *testing.T) {
	s := newTestStore(t)
	var digest [32]byte
	digest[0] = 0x11
	path := s.CASPath(digest)
	assert.Contains(t, path, "cas")
}
