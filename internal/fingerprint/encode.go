// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fingerprint computes the two-stage job fingerprints (base and
// full) from §3/§4.B of the build graph's data model. The boundary here is
// deliberately narrow: INPUT -> CANONICALIZE -> HASH -> DIGEST, with nothing
// but canonical bytes ever crossing it. No wall-clock reads, no random
// sources, no unsorted map iteration reach the hasher — a job's digest
// depends only on its declared configuration and resolved input hashes.
package fingerprint

import (
	"encoding/binary"
	"sort"

	"github.com/zeebo/blake3"
)

// Digest is a 256-bit BLAKE3 digest.
type Digest [32]byte

// Hex renders the digest as lowercase hex, used as the on-disk CAS directory
// name and as the result-map key.
func (d Digest) Hex() string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 64)
	for i, b := range d {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}

func (d Digest) String() string { return d.Hex() }

// encoder builds the canonical little-endian length-prefixed byte stream fed
// to BLAKE3. Every scalar is length-prefixed so "foo"+"bar" can never collide
// with "foob"+"ar"; every discriminated variant writes its tag byte first so
// distinct variants with identical payload bytes never collide either.
type encoder struct {
	buf []byte
}

func newEncoder() *encoder { return &encoder{buf: make([]byte, 0, 256)} }

func (e *encoder) tag(b byte) { e.buf = append(e.buf, b) }

func (e *encoder) uint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *encoder) bytes(b []byte) {
	e.uint64(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) str(s string) { e.bytes([]byte(s)) }

// strs encodes a list preserving its order (for fields where order is
// semantically significant, e.g. command arguments).
func (e *encoder) strs(list []string) {
	e.uint64(uint64(len(list)))
	for _, s := range list {
		e.str(s)
	}
}

// sortedStrs encodes a list after sorting it, so enumeration order never
// affects the resulting bytes. Used for every set-valued field (§3 invariant
// 5, §8 property 1).
func (e *encoder) sortedStrs(list []string) {
	sorted := append([]string(nil), list...)
	sort.Strings(sorted)
	e.strs(sorted)
}

// sortedMap encodes a string->string map in lexicographic key order.
func (e *encoder) sortedMap(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.uint64(uint64(len(keys)))
	for _, k := range keys {
		e.str(k)
		e.str(m[k])
	}
}

func sum(b []byte) Digest {
	h := blake3.New()
	_, _ = h.Write(b)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// combine hashes a tag followed by a length-prefixed list of parts. It does
// not sort: the parts are encoded in the order given, so a different order
// yields a different digest.
func combine(tag byte, parts ...[]byte) Digest {
	e := newEncoder()
	e.tag(tag)
	e.uint64(uint64(len(parts)))
	for _, p := range parts {
		e.bytes(p)
	}
	return sum(e.buf)
}
