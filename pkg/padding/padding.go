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

// Package padding provides block cipher padding schemes.
package padding // import "zombiezen.com/go/kdbxd/pkg/padding"

import (
	"crypto/subtle"
	"strconv"
)

// Padding is a padding algorithm.
type Padding interface {
	// Pad appends padding to b to align it to a block size.
	// The block size must be greater than 1.
	Pad(b []byte, blockSize int) []byte

	// Strip removes the padding from b.  The resulting slice will always
	// be a subslice of the argument.  The block size must be greater than 1.
	Strip(b []byte, blockSize int) ([]byte, error)
}

// Error is a padding failure code.
type Error int

// Padding failure codes.  The numeric values are stable so that
// callers can report them.
const (
	ErrWrongPadding Error = 1 + iota
	ErrBadBlockSize
	ErrDataSize
)

func (e Error) Error() string {
	switch e {
	case ErrWrongPadding:
		return "wrong padding"
	case ErrBadBlockSize:
		return "bad block size"
	case ErrDataSize:
		return "input is not a multiple of block size"
	default:
		return "padding error " + strconv.Itoa(int(e))
	}
}

// PKCS7 implements the padding algorithm as described in
// RFC 5652 section 6.3.  The block size must be less than 256.
var PKCS7 Padding = pkcs7{}

type pkcs7 struct{}

func (pkcs7) String() string   { return "PKCS7" }
func (pkcs7) GoString() string { return "padding.PKCS7" }

func (pkcs7) Pad(b []byte, blockSize int) []byte {
	if blockSize <= 1 || blockSize >= 256 {
		panic("padding: illegal PKCS7 block size")
	}
	n := blockSize - len(b)%blockSize
	for i := 0; i < n; i++ {
		b = append(b, byte(n))
	}
	return b
}

func (pkcs7) Strip(b []byte, blockSize int) ([]byte, error) {
	if blockSize <= 1 || blockSize >= 256 {
		return b, ErrBadBlockSize
	}
	if len(b) == 0 || len(b)%blockSize != 0 {
		return b, ErrDataSize
	}
	tail := b[len(b)-blockSize:]
	n := int(tail[blockSize-1])
	// Inspect the whole last block so timing does not depend on n.
	good := subtle.ConstantTimeLessOrEq(1, n) & subtle.ConstantTimeLessOrEq(n, blockSize)
	for i, x := range tail {
		inPad := subtle.ConstantTimeLessOrEq(blockSize-n, i)
		match := subtle.ConstantTimeByteEq(x, byte(n))
		good &= subtle.ConstantTimeSelect(inPad, match, 1)
	}
	if good != 1 {
		return b, ErrWrongPadding
	}
	return b[:len(b)-n], nil
}
