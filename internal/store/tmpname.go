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
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

var tmpCounter uint64

// randomSuffix produces a suffix unique within this process, used to stage
// a CAS entry under a temp name before the final rename (§4.D "atomic via
// temp-dir-then-rename").
func randomSuffix() string {
	n := atomic.AddUint64(&tmpCounter, 1)
	return fmt.Sprintf("%d-%d-%d", os.Getpid(), time.Now().UnixNano(), n)
}
