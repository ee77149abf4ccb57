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

// Package securebuf provides an erasable byte buffer for key material.
//
// A Buffer owns its bytes.  Whoever creates a Buffer is responsible for
// calling Erase once the contents are no longer needed, typically with
// a defer.  Erase is idempotent.
package securebuf // import "zombiezen.com/go/kdbxd/pkg/securebuf"

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"io"
	"runtime"

	"github.com/awnumar/memguard"
)

// A Buffer is an owned, erasable byte sequence with cached hashes.
// The zero value is an empty buffer.  A nil *Buffer behaves like an
// empty buffer for all read-only methods.
type Buffer struct {
	b      []byte
	erased bool
	locked bool

	sum256 *[sha256.Size]byte
	sum512 *[sha512.Size]byte
}

// New returns a buffer that takes ownership of b.  The caller must not
// use b after calling New.
func New(b []byte) *Buffer {
	buf := &Buffer{b: b}
	buf.lock()
	return buf
}

// Copy returns a buffer holding a copy of b.
func Copy(b []byte) *Buffer {
	c := make([]byte, len(b))
	copy(c, b)
	return New(c)
}

// FromString returns a buffer holding the bytes of s.
func FromString(s string) *Buffer {
	return New([]byte(s))
}

// Random returns a buffer of n bytes read from r.
func Random(r io.Reader, n int) (*Buffer, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		wipe(b)
		return nil, err
	}
	return New(b), nil
}

// Concat returns a new buffer holding the contents of bufs in order.
// The arguments are not modified.
func Concat(bufs ...*Buffer) *Buffer {
	n := 0
	for _, buf := range bufs {
		n += buf.Len()
	}
	b := make([]byte, 0, n)
	for _, buf := range bufs {
		b = append(b, buf.Bytes()...)
	}
	return New(b)
}

// Bytes returns the buffer's contents.  The slice aliases the buffer
// and is zeroed by Erase.
func (buf *Buffer) Bytes() []byte {
	if buf == nil || buf.erased {
		return nil
	}
	return buf.b
}

// Len returns the number of bytes in the buffer.
func (buf *Buffer) Len() int {
	return len(buf.Bytes())
}

// IsEmpty reports whether the buffer has no bytes.
func (buf *Buffer) IsEmpty() bool {
	return buf.Len() == 0
}

// Erased reports whether Erase has been called.
func (buf *Buffer) Erased() bool {
	return buf != nil && buf.erased
}

// Locked reports whether the buffer's memory was successfully locked
// into RAM.  Locking is best-effort.
func (buf *Buffer) Locked() bool {
	return buf != nil && buf.locked
}

// Clone returns a deep copy of buf.  Erasing the copy does not affect
// the original.
func (buf *Buffer) Clone() *Buffer {
	if buf == nil {
		return nil
	}
	c := Copy(buf.Bytes())
	c.erased = buf.erased
	return c
}

// Append appends p to the buffer, invalidating cached hashes.
func (buf *Buffer) Append(p []byte) {
	if buf.erased {
		panic("securebuf: append to erased buffer")
	}
	if cap(buf.b)-len(buf.b) < len(p) {
		// Growing would leave the old array behind; copy and wipe it.
		nb := make([]byte, len(buf.b), 2*len(buf.b)+len(p))
		copy(nb, buf.b)
		buf.release()
		buf.b = nb
		buf.lock()
	}
	buf.b = append(buf.b, p...)
	buf.invalidate()
}

// Erase overwrites the buffer with zeros and invalidates cached hashes.
// Calling Erase more than once is safe.
func (buf *Buffer) Erase() {
	if buf == nil || buf.erased {
		return
	}
	buf.release()
	buf.b = buf.b[:0]
	buf.erased = true
	buf.invalidate()
}

// SHA256 returns the SHA-256 digest of the contents.
// The digest is computed once and cached until the next mutation.
func (buf *Buffer) SHA256() [sha256.Size]byte {
	if buf == nil {
		return sha256.Sum256(nil)
	}
	if buf.sum256 == nil {
		s := sha256.Sum256(buf.Bytes())
		buf.sum256 = &s
	}
	return *buf.sum256
}

// SHA512 returns the SHA-512 digest of the contents.
// The digest is computed once and cached until the next mutation.
func (buf *Buffer) SHA512() [sha512.Size]byte {
	if buf == nil {
		return sha512.Sum512(nil)
	}
	if buf.sum512 == nil {
		s := sha512.Sum512(buf.Bytes())
		buf.sum512 = &s
	}
	return *buf.sum512
}

// Equal reports whether buf and other hold the same bytes, in constant
// time with respect to the contents.
func (buf *Buffer) Equal(other *Buffer) bool {
	a, b := buf.Bytes(), other.Bytes()
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

func (buf *Buffer) invalidate() {
	if buf.sum256 != nil {
		wipe(buf.sum256[:])
		buf.sum256 = nil
	}
	if buf.sum512 != nil {
		wipe(buf.sum512[:])
		buf.sum512 = nil
	}
}

func (buf *Buffer) lock() {
	if len(buf.b) == 0 {
		return
	}
	buf.locked = lockPages(buf.b[:cap(buf.b)])
}

// release zeroes the backing array and unlocks it.
func (buf *Buffer) release() {
	full := buf.b[:cap(buf.b)]
	wipe(full)
	if buf.locked {
		unlockPages(full)
		buf.locked = false
	}
}

func wipe(b []byte) {
	memguard.WipeBytes(b)
	runtime.KeepAlive(b)
}
