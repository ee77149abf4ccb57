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

// Package uuids provides the 128-bit identifiers used for KeePass
// groups, entries, ciphers and key derivation functions, along with
// the text forms KDBX files use for them.
package uuids // import "zombiezen.com/go/kdbxd/pkg/uuids"

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// A UUID is a universally unique identifier: a 128-bit value.
type UUID [16]byte

// Zero is the all-zero UUID.  KeePass uses it to mean "none", for
// example when no recycle bin has been created.
var Zero UUID

// New generates a new random (version 4) UUID using a provided source
// of random bytes.  If r is nil, crypto/rand.Reader is used.
func New(r io.Reader) (UUID, error) {
	if r == nil {
		r = rand.Reader
	}
	u, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return UUID{}, err
	}
	return UUID(u), nil
}

// Parse parses a hex-encoded UUID string (that may contain dashes) into a UUID.
func Parse(s string) (UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, parseError{s, err}
	}
	return UUID(u), nil
}

// ParseBase64 parses the standard base64 form of a UUID, as found in
// KDBX XML documents.
func ParseBase64(s string) (UUID, error) {
	var u UUID
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return UUID{}, parseError{s, err}
	}
	if len(b) != len(u) {
		return UUID{}, parseError{s, errSize}
	}
	copy(u[:], b)
	return u, nil
}

// FromBytes converts a 16-byte slice into a UUID.
func FromBytes(b []byte) (UUID, error) {
	var u UUID
	if len(b) != len(u) {
		return UUID{}, errSize
	}
	copy(u[:], b)
	return u, nil
}

var errSize = errors.New("wrong size")

type parseError struct {
	s   string
	err error
}

func (e parseError) Error() string {
	return "uuid: failed to parse " + strconv.Quote(e.s) + ": " + e.err.Error()
}

func (e parseError) Unwrap() error {
	return e.err
}

// AppendHex appends the dash-separated hex representation of u to b
// and returns the extended buffer.
func (u UUID) AppendHex(b []byte) []byte {
	b = appendHex(b, u[:4])
	b = append(b, '-')
	b = appendHex(b, u[4:6])
	b = append(b, '-')
	b = appendHex(b, u[6:8])
	b = append(b, '-')
	b = appendHex(b, u[8:10])
	b = append(b, '-')
	b = appendHex(b, u[10:])
	return b
}

func appendHex(b, src []byte) []byte {
	i := len(b)
	n := hex.EncodedLen(len(src))
	for j := 0; j < n; j++ {
		b = append(b, 0)
	}
	hex.Encode(b[i:], src)
	return b
}

// IsZero reports whether this is the zero UUID.
func (u UUID) IsZero() bool {
	return u == Zero
}

// String returns the dash-separated hex representation of u as a string.
func (u UUID) String() string {
	b := make([]byte, 0, 36)
	b = u.AppendHex(b)
	return string(b)
}

// Compact returns the 32-character uppercase hex form without dashes,
// which is how field references name entries.
func (u UUID) Compact() string {
	return strings.ToUpper(hex.EncodeToString(u[:]))
}

// Base64 returns the standard base64 encoding of u.
func (u UUID) Base64() string {
	return base64.StdEncoding.EncodeToString(u[:])
}

// MarshalText returns the dash-separated hex form.
func (u UUID) MarshalText() ([]byte, error) {
	return u.AppendHex(make([]byte, 0, 36)), nil
}

// UnmarshalText accepts the hex form, with or without dashes.
func (u *UUID) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// Version returns u's version or zero if this is not the RFC-specified UUID variant.
func (u UUID) Version() int {
	if uuid.UUID(u).Variant() != uuid.RFC4122 {
		return 0
	}
	return int(uuid.UUID(u).Version())
}
