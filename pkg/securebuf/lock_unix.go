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


//go:build linux || darwin

package securebuf

import "golang.org/x/sys/unix"

func mlock(b []byte) error { return unix.Mlock(b) }

func munlock(addr, n uintptr) error {
	if _, _, errno := unix.Syscall(unix.SYS_MUNLOCK, addr, n, 0); errno != 0 {
		return errno
	}
	return nil
}
