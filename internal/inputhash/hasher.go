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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/rbtbuild/rbt/internal/fingerprint"
	"github.com/rbtbuild/rbt/internal/rbterr"
)

// ErrFileUnstable is returned when a file's metadata keeps changing across
// every retry of hashFileAtomic — something is actively writing to it.
var ErrFileUnstable = errors.New("inputhash: file changed while being hashed")

// defaultMaxRetries bounds the stat/hash/stat retry loop used to detect a
// file that mutated while it was being streamed for hashing.
const defaultMaxRetries = 3

// statErr normalizes a stat failure into rbterr.InputMissingError when the
// path simply doesn't exist, so callers across this package report missing
// inputs uniformly (§4.A invariant: a referenced project file that does not
// exist is InputMissing, not a generic I/O error).
func statErr(path string, err error) error {
	if os.IsNotExist(err) {
		return &rbterr.InputMissingError{Path: path}
	}
	return fmt.Errorf("inputhash: stat %s: %w", path, err)
}

// hashFile streams path through BLAKE3 and returns the resulting digest. It
// does not itself guard against concurrent mutation; callers that need that
// guarantee use hashFileAtomic.
func hashFile(path string) (fingerprint.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fingerprint.Digest{}, &rbterr.InputMissingError{Path: path}
		}
		return fingerprint.Digest{}, fmt.Errorf("inputhash: opening %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return fingerprint.Digest{}, fmt.Errorf("inputhash: reading %s: %w", path, err)
	}

	var d fingerprint.Digest
	sum := h.Sum(nil)
	copy(d[:], sum)
	return d, nil
}

// hashFileAtomic hashes path and returns both the resulting digest and the
// FileMeta observed around the hash, making up to maxRetries attempts if the
// file's metadata changed between the stat taken before streaming and the
// stat taken after — the same stat-before/hash/stat-after discipline this
// module's file-manifest hasher uses, adapted from size+mtime equality to
// full FileMeta equality.
func hashFileAtomic(path string, maxRetries int) (fingerprint.Digest, FileMeta, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		before, _, err := statMeta(path)
		if err != nil {
			if os.IsNotExist(err) {
				return fingerprint.Digest{}, FileMeta{}, &rbterr.InputMissingError{Path: path}
			}
			return fingerprint.Digest{}, FileMeta{}, fmt.Errorf("inputhash: stat %s: %w", path, err)
		}

		digest, err := hashFile(path)
		if err != nil {
			return fingerprint.Digest{}, FileMeta{}, err
		}

		after, _, err := statMeta(path)
		if err != nil {
			if os.IsNotExist(err) {
				return fingerprint.Digest{}, FileMeta{}, &rbterr.InputMissingError{Path: path}
			}
			return fingerprint.Digest{}, FileMeta{}, fmt.Errorf("inputhash: re-stat %s: %w", path, err)
		}

		if before == after {
			return digest, after, nil
		}
		lastErr = fmt.Errorf("inputhash: %s changed during hashing (attempt %d/%d)", path, attempt+1, maxRetries)
	}
	return fingerprint.Digest{}, FileMeta{}, fmt.Errorf("%w: %s: %v", ErrFileUnstable, path, lastErr)
}
