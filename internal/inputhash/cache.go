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
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/rbtbuild/rbt/internal/fingerprint"
	"github.com/rbtbuild/rbt/internal/kvstore"
)

// Cache is the metadata-keyed content-hash cache (§4.C): a write-once map
// from (path, FileMeta) to a previously computed BLAKE3 digest, backed by
// the shared kvstore so a daemonized invocation host can skip rehashing
// files it already saw on a previous build.
type Cache struct {
	db *kvstore.DB
}

// NewCache wraps an already-open kvstore handle. The Cache does not own
// db's lifecycle; the caller opens and closes it.
func NewCache(db *kvstore.DB) *Cache {
	return &Cache{db: db}
}

func cacheKey(path string, meta FileMeta) []byte {
	return []byte("inputhash/v1/" + path + "/" + meta.Key())
}

// Lookup returns the cached digest for (path, meta), or ok=false on a miss.
func (c *Cache) Lookup(ctx context.Context, path string, meta FileMeta) (fingerprint.Digest, bool, error) {
	var digest fingerprint.Digest
	found := false
	err := c.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(path, meta))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := hex.DecodeString(string(val))
			if err != nil || len(decoded) != len(digest) {
				return fmt.Errorf("inputhash: corrupt cache entry for %s", path)
			}
			copy(digest[:], decoded)
			found = true
			return nil
		})
	})
	if err != nil {
		return fingerprint.Digest{}, false, fmt.Errorf("inputhash: cache lookup: %w", err)
	}
	return digest, found, nil
}

// Store records the digest for (path, meta). Writes are idempotent: storing
// the same (key, digest) pair twice is a no-op, matching the write-once
// semantics of the rest of this module's content-addressed state.
func (c *Cache) Store(ctx context.Context, path string, meta FileMeta, digest fingerprint.Digest) error {
	err := c.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(cacheKey(path, meta), []byte(hex.EncodeToString(digest[:])))
	})
	if err != nil {
		return fmt.Errorf("inputhash: cache store: %w", err)
	}
	return nil
}
