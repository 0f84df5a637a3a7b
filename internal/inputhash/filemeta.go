// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package inputhash implements the input hasher (§4.C): for every distinct
// project-source path referenced by any job, produce a BLAKE3 content hash,
// using a metadata-keyed persistent cache to skip unchanged files, with a
// TOCTOU-safe stat-before/hash/stat-after retry loop adapted from this
// codebase's own file-manifest hasher.
package inputhash

import (
	"fmt"
	"os"
)

// FileMeta is the per-source-file tuple used as the cache key (§3). The Unix
// fields are populated on platforms where syscall.Stat_t is available; see
// filemeta_unix.go / filemeta_other.go.
type FileMeta struct {
	Size    int64
	MtimeNs int64
	Inode   uint64
	Mode    uint32
	UID     uint32
	GID     uint32
}

// Key renders FileMeta as a stable cache key. It is not itself a content
// digest and never crosses the fingerprint boundary (§9 "no entropy may
// cross this boundary" discipline applies to fingerprint.Digest, not to this
// cache key, which is metadata, not configuration).
func (m FileMeta) Key() string {
	return fmt.Sprintf("%d:%d:%d:%d:%d:%d", m.Size, m.MtimeNs, m.Inode, m.Mode, m.UID, m.GID)
}

func statMeta(path string) (FileMeta, os.FileInfo, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return FileMeta{}, nil, err
	}
	m := FileMeta{
		Size:    info.Size(),
		MtimeNs: info.ModTime().UnixNano(),
		Mode:    uint32(info.Mode()),
	}
	fillUnixFields(&m, path, info)
	return m, info, nil
}
