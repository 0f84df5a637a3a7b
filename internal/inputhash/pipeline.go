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
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rbtbuild/rbt/internal/fingerprint"
)

// Hasher computes and caches BLAKE3 content digests for project-source
// paths, deduplicating across an entire invocation: a path referenced as an
// input by ten jobs is only ever stat'd and streamed once (§4.C).
//
// Grounded on this repository's own manifest hasher for the TOCTOU-safe
// per-file algorithm, and on vercel-turborepo's taskhash.go /
// quantmind-br-gendocs's cache.go for the bounded worker-pool fan-out over
// a batch of paths.
type Hasher struct {
	cache      *Cache
	maxWorkers int
	maxRetries int

	mu      sync.Mutex
	results map[string]fingerprint.Digest
}

// NewHasher builds a Hasher backed by cache. maxWorkers <= 0 defaults to
// GOMAXPROCS.
func NewHasher(cache *Cache, maxWorkers int) *Hasher {
	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}
	return &Hasher{
		cache:      cache,
		maxWorkers: maxWorkers,
		maxRetries: defaultMaxRetries,
		results:    make(map[string]fingerprint.Digest),
	}
}

// HashAll computes (or fetches from cache) the content digest of every path
// in paths, deduplicating repeats, and returns path -> digest. It stops and
// returns the first error encountered (e.g. rbterr.InputMissingError),
// cancelling in-flight work for the remaining paths.
func (h *Hasher) HashAll(ctx context.Context, paths []string) (map[string]fingerprint.Digest, error) {
	unique := dedupe(paths)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(h.maxWorkers)

	for _, p := range unique {
		path := p
		h.mu.Lock()
		_, seen := h.results[path]
		h.mu.Unlock()
		if seen {
			continue
		}
		group.Go(func() error {
			digest, err := h.hashOne(gctx, path)
			if err != nil {
				return err
			}
			h.mu.Lock()
			h.results[path] = digest
			h.mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]fingerprint.Digest, len(unique))
	h.mu.Lock()
	for _, p := range unique {
		out[p] = h.results[p]
	}
	h.mu.Unlock()
	return out, nil
}

func (h *Hasher) hashOne(ctx context.Context, path string) (fingerprint.Digest, error) {
	meta, _, err := statMeta(path)
	if err != nil {
		return fingerprint.Digest{}, statErr(path, err)
	}

	if digest, ok, err := h.cache.Lookup(ctx, path, meta); err != nil {
		return fingerprint.Digest{}, err
	} else if ok {
		return digest, nil
	}

	digest, meta, err := hashFileAtomic(path, h.maxRetries)
	if err != nil {
		return fingerprint.Digest{}, err
	}

	if err := h.cache.Store(ctx, path, meta, digest); err != nil {
		return fingerprint.Digest{}, err
	}
	return digest, nil
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
