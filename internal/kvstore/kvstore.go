// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package kvstore wraps github.com/dgraph-io/badger/v4 with the process-wide
// handle lifecycle the store and the metadata-hash cache both need (§4.D,
// §4.C, §5 "Process-wide state"): opened once at invocation start, closed
// once at shutdown, with no ambient singleton in between.
package kvstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config controls how a DB is opened.
type Config struct {
	// InMemory opens a transient database with no on-disk footprint, used
	// for tests and for any invocation that doesn't need cross-process
	// persistence.
	InMemory bool

	// Path is the on-disk directory. Required unless InMemory is true.
	Path string

	// SyncWrites forces an fsync after every write transaction.
	SyncWrites bool

	// NumVersionsToKeep bounds how many MVCC versions Badger retains per
	// key; the result map and CAS index are write-once so 1 is sufficient.
	NumVersionsToKeep int

	// GCInterval is how often the background value-log garbage collector
	// runs. Zero disables it. Only OpenDB starts the collector; Open ignores
	// this field.
	GCInterval time.Duration
}

// DefaultConfig is the production default: persistent, synced, single
// version, GC every 5 minutes.
func DefaultConfig() Config {
	return Config{
		InMemory:          false,
		SyncWrites:        true,
		NumVersionsToKeep: 1,
		GCInterval:        5 * time.Minute,
	}
}

// InMemoryConfig is the default used by tests: in-memory, unsynced, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory:          true,
		SyncWrites:        false,
		NumVersionsToKeep: 1,
		GCInterval:        0,
	}
}

// DB wraps a *badger.DB with context-aware transaction helpers and an
// optional background GC runner.
type DB struct {
	badger *badger.DB
	gc     *GCRunner
}

// Open opens a database per cfg. Persistent mode requires a non-empty Path.
func Open(cfg Config) (*DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("kvstore: path is required for persistent mode")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("kvstore: creating path: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(maxInt(cfg.NumVersionsToKeep, 1)).WithLogger(nil)

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kvstore: opening badger: %w", err)
	}
	return &DB{badger: bdb}, nil
}

// OpenInMemory is a convenience wrapper around Open(InMemoryConfig()).
func OpenInMemory() (*DB, error) { return Open(InMemoryConfig()) }

// OpenWithPath is a convenience wrapper around Open with DefaultConfig's
// settings but a caller-supplied Path.
func OpenWithPath(dir string) (*DB, error) {
	cfg := DefaultConfig()
	cfg.Path = dir
	return Open(cfg)
}

// OpenDB opens per cfg and, if cfg.GCInterval > 0, starts the background GC
// runner immediately.
func OpenDB(cfg Config) (*DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.GCInterval > 0 {
		runner, err := NewGCRunner(db, cfg.GCInterval, 0.5, nil)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		runner.Start()
		db.gc = runner
	}
	return db, nil
}

// Update runs a read-write transaction, matching badger.DB.Update's shape so
// existing badger-idiom test code ports unchanged.
func (db *DB) Update(fn func(txn *badger.Txn) error) error { return db.badger.Update(fn) }

// View runs a read-only transaction.
func (db *DB) View(fn func(txn *badger.Txn) error) error { return db.badger.View(fn) }

// WithTxn runs fn in a write transaction, aborting early if ctx is already
// cancelled before the transaction starts.
func (db *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("kvstore: context cancelled: %w", err)
	}
	return db.badger.Update(fn)
}

// WithReadTxn runs fn in a read-only transaction, aborting early if ctx is
// already cancelled.
func (db *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("kvstore: context cancelled: %w", err)
	}
	return db.badger.View(fn)
}

// Close stops any running GC and closes the underlying database. Safe to
// call once; matches the "opened once at startup, closed once at shutdown"
// process-wide resource policy (§5).
func (db *DB) Close() error {
	if db.gc != nil {
		db.gc.Stop()
	}
	return db.badger.Close()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// TempDir creates a uniquely-named temporary directory for tests, returning
// its path.
func TempDir(prefix string) (string, error) {
	return os.MkdirTemp("", prefix)
}

// CleanupDir removes a directory created by TempDir. Empty paths are a
// silent no-op so defer CleanupDir(dir) is always safe to write.
func CleanupDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.RemoveAll(dir)
}
