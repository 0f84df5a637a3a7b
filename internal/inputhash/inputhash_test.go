// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package inputhash

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbtbuild/rbt/internal/kvstore"
	"github.com/rbtbuild/rbt/internal/rbterr"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	db, err := kvstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewCache(db)
}

func TestHashFile_Deterministic(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "a.txt", "hello world")

	d1, err := hashFile(path)
	require.NoError(t, err)
	d2, err := hashFile(path)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestHashFile_DifferentContentDifferentDigest(t *testing.T) {
	dir := t.TempDir()
	a := writeTemp(t, dir, "a.txt", "hello")
	b := writeTemp(t, dir, "b.txt", "world")

	da, err := hashFile(a)
	require.NoError(t, err)
	db, err := hashFile(b)
	require.NoError(t, err)
	assert.NotEqual(t, da, db)
}

func TestHashFile_MissingFile(t *testing.T) {
	_, err := hashFile(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	var missing *rbterr.InputMissingError
	assert.ErrorAs(t, err, &missing)
}

func TestHashFileAtomic_StableFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "stable.txt", "steady content")

	digest, meta, err := hashFileAtomic(path, 3)
	require.NoError(t, err)
	assert.NotZero(t, meta.Size)
	direct, err := hashFile(path)
	require.NoError(t, err)
	assert.Equal(t, direct, digest)
}

func TestCache_StoreThenLookup(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	meta := FileMeta{Size: 10, MtimeNs: 123}

	_, found, err := cache.Lookup(ctx, "a.txt", meta)
	require.NoError(t, err)
	assert.False(t, found)

	var digest [32]byte
	digest[0] = 0xAB
	require.NoError(t, cache.Store(ctx, "a.txt", meta, digest))

	got, found, err := cache.Lookup(ctx, "a.txt", meta)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, digest, got)
}

func TestCache_DifferentMetaDifferentEntry(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	metaA := FileMeta{Size: 10, MtimeNs: 1}
	metaB := FileMeta{Size: 10, MtimeNs: 2}

	var digest [32]byte
	digest[0] = 0x01
	require.NoError(t, cache.Store(ctx, "a.txt", metaA, digest))

	_, found, err := cache.Lookup(ctx, "a.txt", metaB)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHasher_HashAll_DedupesAndCaches(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "one.txt", "only one file")

	cache := newTestCache(t)
	hasher := NewHasher(cache, 2)

	ctx := context.Background()
	results, err := hasher.HashAll(ctx, []string{path, path, path})
	require.NoError(t, err)
	require.Len(t, results, 1)

	direct, err := hashFile(path)
	require.NoError(t, err)
	assert.Equal(t, direct, results[path])
}

func TestHasher_HashAll_MultipleFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeTemp(t, dir, "a.txt", "content a")
	b := writeTemp(t, dir, "b.txt", "content b")

	cache := newTestCache(t)
	hasher := NewHasher(cache, 4)

	results, err := hasher.HashAll(context.Background(), []string{a, b})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NotEqual(t, results[a], results[b])
}

func TestHasher_HashAll_MissingInputPropagatesError(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.txt")

	cache := newTestCache(t)
	hasher := NewHasher(cache, 2)

	_, err := hasher.HashAll(context.Background(), []string{missing})
	require.Error(t, err)
	var missingErr *rbterr.InputMissingError
	assert.True(t, errors.As(err, &missingErr))
}

func TestHasher_HashAll_SecondCallHitsCache(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "cached.txt", "cache me")

	cache := newTestCache(t)
	first := NewHasher(cache, 1)
	firstResults, err := first.HashAll(context.Background(), []string{path})
	require.NoError(t, err)

	meta, _, err := statMeta(path)
	require.NoError(t, err)
	cached, found, err := cache.Lookup(context.Background(), path, meta)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, firstResults[path], cached)

	second := NewHasher(cache, 1)
	secondResults, err := second.HashAll(context.Background(), []string{path})
	require.NoError(t, err)

	assert.Equal(t, firstResults[path], secondResults[path])
}
