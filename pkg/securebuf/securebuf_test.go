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
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"testing"
	"unsafe"
)

func TestEraseTwice(t *testing.T) {
	b := []byte("swordfish")
	buf := New(b)
	buf.Erase()
	buf.Erase()
	for i, x := range b[:cap(b)] {
		if x != 0 {
			t.Fatalf("after Erase, byte %d = %#02x; want 0", i, x)
		}
	}
	if !buf.Erased() {
		t.Error("Erased() = false after Erase")
	}
	if n := buf.Len(); n != 0 {
		t.Errorf("Len() = %d after Erase; want 0", n)
	}
}

func TestCloneIndependent(t *testing.T) {
	orig := FromString("hunter2")
	c := orig.Clone()
	c.Erase()
	if got := string(orig.Bytes()); got != "hunter2" {
		t.Errorf("original after erasing clone = %q; want %q", got, "hunter2")
	}
	if c.Len() != 0 {
		t.Errorf("clone.Len() = %d after Erase; want 0", c.Len())
	}
}

func TestHashes(t *testing.T) {
	buf := FromString("abc")
	if got, want := buf.SHA256(), sha256.Sum256([]byte("abc")); got != want {
		t.Errorf("SHA256() = %x; want %x", got, want)
	}
	if got, want := buf.SHA512(), sha512.Sum512([]byte("abc")); got != want {
		t.Errorf("SHA512() = %x; want %x", got, want)
	}

	buf.Append([]byte("def"))
	if got, want := buf.SHA256(), sha256.Sum256([]byte("abcdef")); got != want {
		t.Errorf("SHA256() after Append = %x; want %x", got, want)
	}

	buf.Erase()
	if got, want := buf.SHA256(), sha256.Sum256(nil); got != want {
		t.Errorf("SHA256() after Erase = %x; want hash of empty input %x", got, want)
	}
}

func TestConcat(t *testing.T) {
	a := FromString("foo")
	b := FromString("bar")
	c := Concat(a, nil, b)
	if got := c.Bytes(); !bytes.Equal(got, []byte("foobar")) {
		t.Errorf("Concat(foo, nil, bar) = %q; want %q", got, "foobar")
	}
	c.Erase()
	if string(a.Bytes()) != "foo" || string(b.Bytes()) != "bar" {
		t.Error("erasing Concat result modified its arguments")
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		a, b *Buffer
		want bool
	}{
		{FromString("x"), FromString("x"), true},
		{FromString("x"), FromString("y"), false},
		{FromString("x"), FromString("xx"), false},
		{nil, New(nil), true},
	}
	for _, test := range tests {
		if got := test.a.Equal(test.b); got != test.want {
			t.Errorf("%q.Equal(%q) = %t; want %t", test.a.Bytes(), test.b.Bytes(), got, test.want)
		}
	}
}

func TestRandomShortRead(t *testing.T) {
	if _, err := Random(bytes.NewReader([]byte{1, 2, 3}), 4); err == nil {
		t.Error("Random(3-byte reader, 4) did not return an error")
	}
	buf, err := Random(bytes.NewReader([]byte{1, 2, 3, 4}), 4)
	if err != nil {
		t.Fatal("Random:", err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{1, 2, 3, 4}) {
		t.Errorf("Random(...) = %v; want [1 2 3 4]", buf.Bytes())
	}
}

func TestSharedPageUnlock(t *testing.T) {
	var unlocked []uintptr
	sysLock = func([]byte) error { return nil }
	sysUnlock = func(addr, n uintptr) error {
		unlocked = append(unlocked, addr)
		return nil
	}
	defer func() { sysLock, sysUnlock = mlock, munlock }()

	// Use a page that nothing else in the process can be allocated on.
	arr := make([]byte, 3*pageSize)
	off := pageSize - uintptr(unsafe.Pointer(&arr[0]))&(pageSize-1)
	page := arr[off : off+pageSize]
	addr := uintptr(unsafe.Pointer(&page[0]))

	a := New(page[:32:32])
	b := New(page[32:64:64])
	if !a.Locked() || !b.Locked() {
		t.Fatalf("Locked() = %t, %t; want true, true", a.Locked(), b.Locked())
	}
	a.Erase()
	if len(unlocked) != 0 {
		t.Errorf("erasing one of two buffers on a page unlocked %#x; want nothing", unlocked)
	}
	b.Erase()
	if len(unlocked) != 1 || unlocked[0] != addr {
		t.Errorf("after erasing both buffers, unlocked %#x; want [%#x]", unlocked, addr)
	}
	if n, ok := pageLocks.count[addr]; ok {
		t.Errorf("page lock count = %d after erasing both buffers; want no entry", n)
	}
}

func TestFailedLockNotCounted(t *testing.T) {
	sysLock = func([]byte) error { return errors.New("out of lockable memory") }
	unlocks := 0
	sysUnlock = func(addr, n uintptr) error {
		unlocks++
		return nil
	}
	defer func() { sysLock, sysUnlock = mlock, munlock }()

	buf := FromString("hunter2")
	if buf.Locked() {
		t.Error("Locked() = true after mlock failure")
	}
	first, _ := pageRange(buf.Bytes())
	pageLocks.mu.Lock()
	n := pageLocks.count[first]
	pageLocks.mu.Unlock()
	buf.Erase()
	if unlocks != 0 {
		t.Errorf("Erase of unlocked buffer called munlock %d times", unlocks)
	}
	pageLocks.mu.Lock()
	defer pageLocks.mu.Unlock()
	if got := pageLocks.count[first]; got != n {
		t.Errorf("page lock count changed from %d to %d", n, got)
	}
}
