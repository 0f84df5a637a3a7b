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
	"sort"
	"sync"

	"github.com/rbtbuild/rbt/internal/model"
)

// JobNamer resolves a job-graph index to its declared name, used to encode
// JobOutputs/tool-from-job references without pulling the whole graph into
// this package.
type JobNamer func(index int) string

const (
	tagToolSystem byte = iota
	tagToolFromJob
	tagInputProjectFiles
	tagInputJobOutputs
)

func encodeMapping(e *encoder, m model.FileMapping) {
	e.str(m.Source)
	e.str(m.Dest())
}

// mappingBytes independently encodes one mapping so a set of mappings can be
// sorted by its encoded bytes before being written into the parent stream —
// this is what makes ProjectFiles mapping order irrelevant to the digest.
func mappingBytes(m model.FileMapping) []byte {
	e := newEncoder()
	encodeMapping(e, m)
	return e.buf
}

func sortedMappingBlobs(mappings []model.FileMapping) [][]byte {
	blobs := make([][]byte, len(mappings))
	for i, m := range mappings {
		blobs[i] = mappingBytes(m)
	}
	sort.Slice(blobs, func(i, j int) bool { return string(blobs[i]) < string(blobs[j]) })
	return blobs
}

func encodeTool(e *encoder, t model.Tool, namer JobNamer) {
	switch t.Kind {
	case model.ToolSystem:
		e.tag(tagToolSystem)
		e.str(t.Name)
	case model.ToolFromJob:
		e.tag(tagToolFromJob)
		e.str(namer(t.JobRef))
		e.str(t.Path)
	}
}

// inputBytes independently encodes one Input so the set of a job's inputs
// can be sorted by encoded bytes, making the enumeration order of the Inputs
// slice irrelevant to the base fingerprint.
func inputBytes(in model.Input, namer JobNamer) []byte {
	e := newEncoder()
	switch in.Kind {
	case model.InputProjectFiles:
		e.tag(tagInputProjectFiles)
	case model.InputJobOutputs:
		e.tag(tagInputJobOutputs)
		e.str(namer(in.JobRef))
	}
	for _, blob := range sortedMappingBlobs(in.Mappings) {
		e.bytes(blob)
	}
	return e.buf
}

// BaseFingerprint computes the I/O-free configuration digest of a job (§3,
// §4.B): tool identifier, ordered argument list, order-independent
// environment, order-independent inputs, order-independent outputs. It
// performs no syscalls and touches no file content. Reordering a set-valued
// field leaves it unchanged, while renaming a destination (or any other
// change to an encoded field) changes it, per invariants 1 and 2 of §8.
func BaseFingerprint(j *model.Job, namer JobNamer) Digest {
	e := newEncoder()

	encodeTool(e, j.Command.Tool, namer)
	e.strs(j.Command.Args)
	e.sortedMap(j.Command.Env)

	inputBlobs := make([][]byte, len(j.Inputs))
	for i, in := range j.Inputs {
		inputBlobs[i] = inputBytes(in, namer)
	}
	sort.Slice(inputBlobs, func(a, b int) bool { return string(inputBlobs[a]) < string(inputBlobs[b]) })
	e.uint64(uint64(len(inputBlobs)))
	for _, b := range inputBlobs {
		e.bytes(b)
	}

	e.sortedStrs(j.Outputs)
	e.sortedMap(j.Env)

	return sum(e.buf)
}

// memo caches a job's BaseFingerprint across the lifetime of the invocation,
// since graph intake holds every job for the whole build and the base
// fingerprint is a pure function of an immutable value (§4.B).
type memo struct {
	mu    sync.Mutex
	cache map[int]Digest
}

func newMemo() *memo { return &memo{cache: make(map[int]Digest)} }

func (m *memo) get(index int, compute func() Digest) Digest {
	m.mu.Lock()
	if d, ok := m.cache[index]; ok {
		m.mu.Unlock()
		return d
	}
	m.mu.Unlock()

	d := compute()

	m.mu.Lock()
	m.cache[index] = d
	m.mu.Unlock()
	return d
}

// Memo memoizes base fingerprints keyed by stable job-graph index.
type Memo struct{ m *memo }

// NewMemo returns an empty memoization table for one invocation's job graph.
func NewMemo() *Memo { return &Memo{m: newMemo()} }

// BaseFingerprintOf returns the memoized base fingerprint of job at index,
// computing it on first access.
func (mm *Memo) BaseFingerprintOf(index int, j *model.Job, namer JobNamer) Digest {
	return mm.m.get(index, func() Digest { return BaseFingerprint(j, namer) })
}

// InputResolution is how a single Input's contribution to the full
// fingerprint is resolved: either a content hash (ProjectFiles) or an
// upstream CAS path string (JobOutputs), combined in a canonical order that
// does not depend on the enumeration order of the job's inputs.
type InputResolution struct {
	// ContentHashes maps each ProjectFiles mapping's Source path to its
	// content hash, populated by the input hasher (§4.C).
	ContentHashes map[string]Digest
	// CASPaths maps a referenced job's stable index to its resolved CAS
	// path, populated by the coordinator from the results map (§4.F).
	CASPaths map[int]string
}

// FullFingerprint combines a job's base fingerprint with, in canonical
// order, the content hash of every project file it reads and the CAS path
// of every upstream job it depends on (§3, §4.F step 2).
func FullFingerprint(base Digest, j *model.Job, res InputResolution) Digest {
	e := newEncoder()
	e.bytes(base[:])
	if j.Command.Tool.Kind == model.ToolFromJob {
		e.tag(tagToolFromJob)
		e.str(res.CASPaths[j.Command.Tool.JobRef])
	}

	blobs := make([][]byte, 0, len(j.Inputs))
	for _, in := range j.Inputs {
		ie := newEncoder()
		switch in.Kind {
		case model.InputProjectFiles:
			ie.tag(tagInputProjectFiles)
			mappings := append([]model.FileMapping(nil), in.Mappings...)
			sort.Slice(mappings, func(a, b int) bool { return mappings[a].Source < mappings[b].Source })
			for _, m := range mappings {
				encodeMapping(ie, m)
				h := res.ContentHashes[m.Source]
				ie.bytes(h[:])
			}
		case model.InputJobOutputs:
			ie.tag(tagInputJobOutputs)
			ie.str(res.CASPaths[in.JobRef])
			for _, blob := range sortedMappingBlobs(in.Mappings) {
				ie.bytes(blob)
			}
		}
		blobs = append(blobs, ie.buf)
	}
	sort.Slice(blobs, func(a, b int) bool { return string(blobs[a]) < string(blobs[b]) })
	e.uint64(uint64(len(blobs)))
	for _, b := range blobs {
		e.bytes(b)
	}

	return sum(e.buf)
}
