// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package kvstore

import (
	"fmt"
	"log/slog"
	"time"
)

// GCRunner periodically invokes badger's value-log garbage collection so a
// long-lived process holding a Store or meta-hash-cache handle does not grow
// its value log unboundedly (§4.D).
type GCRunner struct {
	db       *DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewGCRunner validates its arguments and returns a GCRunner bound to db.
// logger may be nil, in which case GC errors are silently discarded (GC
// failures are expected and harmless — Badger returns an error when there is
// nothing worth reclaiming).
func NewGCRunner(db *DB, interval time.Duration, ratio float64, logger *slog.Logger) (*GCRunner, error) {
	if db == nil {
		return nil, fmt.Errorf("kvstore: db must not be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("kvstore: interval must be positive")
	}
	if ratio <= 0 || ratio > 1 {
		return nil, fmt.Errorf("kvstore: ratio must be between 0 and 1")
	}
	return &GCRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins the periodic GC loop in a background goroutine.
func (r *GCRunner) Start() {
	go r.run()
}

func (r *GCRunner) run() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if err := r.db.badger.RunValueLogGC(r.ratio); err != nil && r.logger != nil {
				r.logger.Debug("value log gc skipped", "error", err)
			}
		}
	}
}

// Stop signals the GC loop to exit and waits for it to finish. Safe to call
// even if the loop has never observed a tick.
func (r *GCRunner) Stop() {
	close(r.stop)
	<-r.done
}
