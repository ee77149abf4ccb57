// Copyright 2016 The Sandpass Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package securebuf

import (
	"os"
	"sync"
	"unsafe"
)

// Small buffers share memory pages and mlock does not nest, so a page
// is unlocked only when the last locked buffer on it is released.
var pageLocks = struct {
	mu    sync.Mutex
	count map[uintptr]int
}{count: make(map[uintptr]int)}

var pageSize = uintptr(os.Getpagesize())

// Replaced in tests.
var (
	sysLock   = mlock
	sysUnlock = munlock
)

// pageRange returns the addresses of the first and last pages that b
// touches.  b must not be empty.
func pageRange(b []byte) (first, last uintptr) {
	start := uintptr(unsafe.Pointer(&b[0]))
	end := start + uintptr(len(b)) - 1
	return start &^ (pageSize - 1), end &^ (pageSize - 1)
}

// lockPages locks the pages under b and reports whether it succeeded.
func lockPages(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	pageLocks.mu.Lock()
	defer pageLocks.mu.Unlock()
	if sysLock(b) != nil {
		return false
	}
	first, last := pageRange(b)
	for p := first; p <= last; p += pageSize {
		pageLocks.count[p]++
	}
	return true
}

// unlockPages releases a lock taken by lockPages on the same slice.
func unlockPages(b []byte) {
	pageLocks.mu.Lock()
	defer pageLocks.mu.Unlock()
	first, last := pageRange(b)
	for p := first; p <= last; p += pageSize {
		if pageLocks.count[p]--; pageLocks.count[p] > 0 {
			continue
		}
		delete(pageLocks.count, p)
		sysUnlock(p, pageSize)
	}
}
