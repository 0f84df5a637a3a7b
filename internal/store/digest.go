// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store implements the result map and content-addressed store
// (§4.D): a persistent full-fingerprint -> CASPath map, and a digest ->
// immutable output-directory map, both backed by the same embedded
// key-value engine the input hasher's metadata cache uses.
package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/rbtbuild/rbt/internal/fingerprint"
)

// maxConcurrentFileHashes bounds how many sibling files within one
// directory are hashed at once during materialize, mirroring the bounded
// semaphore of this module's merkle-tree grounding source.
const maxConcurrentFileHashes = 8

// hashTree computes a stable digest over a directory's contents: entries
// are traversed in sorted-by-name order and each is folded into the parent
// hash as (name, mode-marker, content-or-subtree-digest); sibling files are
// hashed concurrently under a semaphore while directory recursion itself
// stays sequential, so the result is identical regardless of the
// filesystem's on-disk directory order.
func hashTree(root string) (fingerprint.Digest, error) {
	sem := make(chan struct{}, maxConcurrentFileHashes)
	return hashDir(root, sem)
}

func hashDir(path string, sem chan struct{}) (fingerprint.Digest, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return fingerprint.Digest{}, fmt.Errorf("store: reading dir %s: %w", path, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	type childResult struct {
		digest fingerprint.Digest
		err    error
	}
	results := make([]childResult, len(entries))

	var wg sync.WaitGroup
	for i, entry := range entries {
		childPath := filepath.Join(path, entry.Name())
		if entry.IsDir() {
			d, err := hashDir(childPath, sem)
			results[i] = childResult{digest: d, err: err}
			continue
		}
		i, entry, childPath := i, entry, childPath
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			d, err := hashLeaf(childPath, entry)
			results[i] = childResult{digest: d, err: err}
		}()
	}
	wg.Wait()

	h := blake3.New()
	for i, entry := range entries {
		if results[i].err != nil {
			return fingerprint.Digest{}, results[i].err
		}
		marker := byte('f')
		if entry.IsDir() {
			marker = 'd'
		} else if entry.Type()&os.ModeSymlink != 0 {
			marker = 'l'
		}
		h.Write([]byte(entry.Name()))
		h.Write([]byte{0, marker})
		h.Write(results[i].digest[:])
	}
	var out fingerprint.Digest
	copy(out[:], h.Sum(nil))
	return out, nil
}

func hashLeaf(path string, entry os.DirEntry) (fingerprint.Digest, error) {
	if entry.Type()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return fingerprint.Digest{}, fmt.Errorf("store: reading symlink %s: %w", path, err)
		}
		h := blake3.New()
		h.Write([]byte(target))
		var d fingerprint.Digest
		copy(d[:], h.Sum(nil))
		return d, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fingerprint.Digest{}, fmt.Errorf("store: opening %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return fingerprint.Digest{}, fmt.Errorf("store: hashing %s: %w", path, err)
	}
	var d fingerprint.Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}
