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

// Package kdbcrypt provides the cryptographic building blocks of the
// KDBX4 format: data ciphers, key derivation functions, protected
// value streams, key files, and the HMAC block keys that authenticate
// the encrypted payload.
package kdbcrypt // import "zombiezen.com/go/kdbxd/pkg/kdbcrypt"

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"io"
	"math"

	"github.com/awnumar/memguard"
	"zombiezen.com/go/kdbxd/pkg/securebuf"
)

// HeaderBlockIndex is the block index used to derive the key that
// authenticates the outer header.
const HeaderBlockIndex = math.MaxUint64

// BlockKey returns the HMAC key for the block with the given index:
// SHA-512 of the little-endian index followed by hmacKey.
func BlockKey(index uint64, hmacKey []byte) [sha512.Size]byte {
	h := sha512.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], index)
	h.Write(buf[:])
	h.Write(hmacKey)
	var k [sha512.Size]byte
	h.Sum(k[:0])
	return k
}

// BlockHMAC computes the HMAC-SHA256 of a payload block: the index and
// length are authenticated along with data.
func BlockHMAC(index uint64, data []byte, hmacKey []byte) [sha256.Size]byte {
	k := BlockKey(index, hmacKey)
	defer wipe(k[:])
	m := hmac.New(sha256.New, k[:])
	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[:8], index)
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(data)))
	m.Write(buf[:])
	m.Write(data)
	var sum [sha256.Size]byte
	m.Sum(sum[:0])
	return sum
}

// HeaderHMAC computes the HMAC-SHA256 that binds the raw outer header
// bytes to the master key.
func HeaderHMAC(raw []byte, hmacKey []byte) [sha256.Size]byte {
	k := BlockKey(HeaderBlockIndex, hmacKey)
	defer wipe(k[:])
	m := hmac.New(sha256.New, k[:])
	m.Write(raw)
	var sum [sha256.Size]byte
	m.Sum(sum[:0])
	return sum
}

// RandomBytes reads n bytes from r, or crypto/rand.Reader if r is nil.
// A short read is reported as a CryptoError.
func RandomBytes(r io.Reader, n int) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, &CryptoError{Kind: ErrRNG, Err: err}
	}
	return b, nil
}

// RandomBuffer is like RandomBytes but returns an erasable buffer.
func RandomBuffer(r io.Reader, n int) (*securebuf.Buffer, error) {
	if r == nil {
		r = rand.Reader
	}
	buf, err := securebuf.Random(r, n)
	if err != nil {
		return nil, &CryptoError{Kind: ErrRNG, Err: err}
	}
	return buf, nil
}

func wipe(b []byte) {
	memguard.WipeBytes(b)
}
