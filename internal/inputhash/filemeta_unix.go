// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build unix

package inputhash

import (
	"os"

	"golang.org/x/sys/unix"
)

// fillUnixFields populates the inode/uid/gid fields that only exist on
// POSIX platforms. os.Lstat already did one lstat(2) to build info; rather
// than reinterpret-cast its private *syscall.Stat_t, issue a second direct
// unix.Lstat against path so the fields come from a type this package
// actually owns the shape of.
func fillUnixFields(m *FileMeta, path string, _ os.FileInfo) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return
	}
	m.Inode = st.Ino
	m.UID = st.Uid
	m.GID = st.Gid
}
