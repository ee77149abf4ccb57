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

package kdbcrypt

import (
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/salsa20/salsa"
)

// StreamID identifies the cipher that protects field values inside the
// XML payload.
type StreamID uint32

// Protected value stream ciphers.
const (
	NullStream     StreamID = 0
	ArcFourStream  StreamID = 1 // recognized but not supported
	Salsa20Stream  StreamID = 2
	ChaCha20Stream StreamID = 3
)

func (id StreamID) String() string {
	switch id {
	case NullStream:
		return "none"
	case ArcFourStream:
		return "ArcFour"
	case Salsa20Stream:
		return "Salsa20"
	case ChaCha20Stream:
		return "ChaCha20"
	default:
		return fmt.Sprintf("StreamID(%d)", uint32(id))
	}
}

// ErrUnsupportedStream is returned for stream IDs this package cannot
// construct.
var ErrUnsupportedStream = errors.New("kdbcrypt: unsupported protected stream cipher")

// NewProtectedStream returns the keystream for protected values.  The
// stream carries state across calls, so values must be processed in
// document order, each exactly once.
func NewProtectedStream(id StreamID, key []byte) (cipher.Stream, error) {
	switch id {
	case NullStream:
		return nullStream{}, nil
	case Salsa20Stream:
		return newSalsa20Stream(key), nil
	case ChaCha20Stream:
		h := sha512.Sum512(key)
		defer wipe(h[:])
		c, err := chacha20.NewUnauthenticatedCipher(h[:chacha20.KeySize], h[chacha20.KeySize:chacha20.KeySize+chacha20.NonceSize])
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w %v", ErrUnsupportedStream, id)
	}
}

type nullStream struct{}

func (nullStream) XORKeyStream(dst, src []byte) {
	copy(dst, src)
}

var salsa20Nonce = [8]byte{0xe8, 0x30, 0x09, 0x4b, 0x97, 0x20, 0x5d, 0x2a}

// salsa20Stream buffers one 64-byte keystream block so that values of
// any length can be processed.
type salsa20Stream struct {
	key     [32]byte
	counter [16]byte // nonce in 0..7, block counter in 8..15
	block   [64]byte
	used    int
}

func newSalsa20Stream(key []byte) *salsa20Stream {
	s := &salsa20Stream{key: sha256.Sum256(key), used: 64}
	copy(s.counter[:8], salsa20Nonce[:])
	return s
}

func (s *salsa20Stream) XORKeyStream(dst, src []byte) {
	if len(dst) < len(src) {
		panic("kdbcrypt: output smaller than input")
	}
	for i := range src {
		if s.used == len(s.block) {
			s.refill()
		}
		dst[i] = src[i] ^ s.block[s.used]
		s.used++
	}
}

func (s *salsa20Stream) refill() {
	var zero [64]byte
	salsa.XORKeyStream(s.block[:], zero[:], &s.counter, &s.key)
	n := binary.LittleEndian.Uint64(s.counter[8:])
	binary.LittleEndian.PutUint64(s.counter[8:], n+1)
	s.used = 0
}
