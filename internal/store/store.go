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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"

	"github.com/rbtbuild/rbt/internal/fingerprint"
	"github.com/rbtbuild/rbt/internal/kvstore"
	"github.com/rbtbuild/rbt/internal/rbterr"
)

const resultPrefix = "result/v1/"

// Store is the result map and CAS described by §4.D, sharing one kvstore
// handle (distinguished by key prefix) with the caller-supplied casRoot
// holding the actual output-directory bytes on the plain filesystem.
type Store struct {
	db      *kvstore.DB
	casRoot string
}

// Open opens the Store rooted at stateRoot: a kvstore database under
// <stateRoot>/results and immutable CAS directories under <stateRoot>/cas.
func Open(stateRoot string) (*Store, error) {
	casRoot := filepath.Join(stateRoot, "cas")
	if err := os.MkdirAll(casRoot, 0o750); err != nil {
		return nil, fmt.Errorf("store: creating cas root: %w", err)
	}
	cfg := kvstore.DefaultConfig()
	cfg.Path = filepath.Join(stateRoot, "results")
	db, err := kvstore.OpenDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("store: opening index: %w", err)
	}
	return &Store{db: db, casRoot: casRoot}, nil
}

// OpenWithDB wraps an already-open kvstore handle, for callers that want the
// result map, CAS index, and input-hash cache to share a single badger
// handle instead of separate files.
func OpenWithDB(db *kvstore.DB, casRoot string) (*Store, error) {
	if err := os.MkdirAll(casRoot, 0o750); err != nil {
		return nil, fmt.Errorf("store: creating cas root: %w", err)
	}
	return &Store{db: db, casRoot: casRoot}, nil
}

// Close releases the underlying kvstore handle.
func (s *Store) Close() error { return s.db.Close() }

// CASPath returns the absolute, on-disk directory holding digest's
// materialized outputs.
func (s *Store) CASPath(digest fingerprint.Digest) string {
	return filepath.Join(s.casRoot, digest.Hex())
}

// Lookup returns the CASPath previously recorded for fullFP, or ok=false on
// a miss.
func (s *Store) Lookup(ctx context.Context, fullFP fingerprint.Digest) (string, bool, error) {
	var path string
	found := false
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(resultKey(fullFP))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			path = string(val)
			found = true
			return nil
		})
	})
	if err != nil {
		return "", false, &rbterr.StoreIOError{Op: "lookup", Err: err}
	}
	return path, found, nil
}

// Insert records fullFP -> casPath. Re-inserting an identical mapping is a
// no-op. Inserting a mapping for a fullFP that already maps to a different
// casPath is a StoreConflict: it indicates the job is non-deterministic,
// since the fingerprint is supposed to uniquely determine the output.
func (s *Store) Insert(ctx context.Context, jobName string, fullFP fingerprint.Digest, casPath string) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		key := resultKey(fullFP)
		item, err := txn.Get(key)
		if err == nil {
			var existing string
			getErr := item.Value(func(val []byte) error {
				existing = string(val)
				return nil
			})
			if getErr != nil {
				return getErr
			}
			if existing == casPath {
				return nil
			}
			return &rbterr.StoreConflictError{
				Job:         jobName,
				Fingerprint: fullFP.Hex(),
				Existing:    existing,
				Attempted:   casPath,
			}
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, []byte(casPath))
	})
}

// Materialize hashes outputsDir's contents, and — if no CAS entry for the
// resulting digest exists yet — atomically moves it into place via
// temp-dir-then-rename so concurrent or interrupted materialization can
// never leave a partially-written CAS entry visible. Returns the resulting
// digest and its CAS path.
func (s *Store) Materialize(outputsDir string) (fingerprint.Digest, string, error) {
	digest, err := hashTree(outputsDir)
	if err != nil {
		return fingerprint.Digest{}, "", fmt.Errorf("store: hashing outputs: %w", err)
	}

	finalPath := s.CASPath(digest)
	if _, err := os.Stat(finalPath); err == nil {
		_ = os.RemoveAll(outputsDir)
		return digest, finalPath, nil
	} else if !os.IsNotExist(err) {
		return fingerprint.Digest{}, "", &rbterr.StoreIOError{Op: "stat cas entry", Err: err}
	}

	tmpPath := finalPath + ".tmp-" + randomSuffix()
	if err := os.Rename(outputsDir, tmpPath); err != nil {
		return fingerprint.Digest{}, "", &rbterr.StoreIOError{Op: "stage cas entry", Err: err}
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		if _, statErr := os.Stat(finalPath); statErr == nil {
			_ = os.RemoveAll(tmpPath)
			return digest, finalPath, nil
		}
		return fingerprint.Digest{}, "", &rbterr.StoreIOError{Op: "commit cas entry", Err: err}
	}

	return digest, finalPath, nil
}

func resultKey(fullFP fingerprint.Digest) []byte {
	return []byte(resultPrefix + fullFP.Hex())
}
