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

package keepass

import (
	"errors"
	"fmt"
	"strconv"
)

// HeaderErrorKind classifies a HeaderError.
type HeaderErrorKind int

// Header error kinds.
const (
	ReadingError HeaderErrorKind = 1 + iota
	WrongSignature
	UnsupportedFileVersion
	UnsupportedDataCipher
	UnsupportedStreamCipher
	UnsupportedKDF
	UnknownCompression
	BinaryUncompression
	HashMismatch
	HMACMismatch
	CorruptedField
)

var headerErrorText = map[HeaderErrorKind]string{
	ReadingError:            "error reading header",
	WrongSignature:          "not a KeePass file",
	UnsupportedFileVersion:  "unsupported file version",
	UnsupportedDataCipher:   "unsupported data cipher",
	UnsupportedStreamCipher: "unsupported protected stream cipher",
	UnsupportedKDF:          "unsupported key derivation function",
	UnknownCompression:      "unknown compression algorithm",
	BinaryUncompression:     "cannot decompress attachment",
	HashMismatch:            "header hash mismatch; file is corrupt",
	HMACMismatch:            "header HMAC mismatch",
	CorruptedField:          "corrupted header field",
}

// A HeaderError describes a problem with the outer or inner header.
type HeaderError struct {
	Kind  HeaderErrorKind
	Field string // set for CorruptedField
	Err   error
}

func (e *HeaderError) Error() string {
	msg, ok := headerErrorText[e.Kind]
	if !ok {
		msg = "header error " + strconv.Itoa(int(e.Kind))
	}
	msg = "keepass: " + msg
	if e.Field != "" {
		msg += " " + e.Field
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *HeaderError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *HeaderError of the same kind.
// A target with an empty Field matches any field.
func (e *HeaderError) Is(target error) bool {
	t, ok := target.(*HeaderError)
	return ok && t.Kind == e.Kind && (t.Field == "" || t.Field == e.Field)
}

func corruptedField(name string, err error) *HeaderError {
	return &HeaderError{Kind: CorruptedField, Field: name, Err: err}
}

// FormatErrorKind classifies a FormatError.
type FormatErrorKind int

// Format error kinds.
const (
	PrematureDataEnd FormatErrorKind = 1 + iota
	NegativeBlockSize
	ParsingError
	BlockHMACMismatch
	CompressionError
)

// A FormatError describes a problem with the encrypted payload.
type FormatError struct {
	Kind   FormatErrorKind
	Block  int // index of the offending block, if any
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	var msg string
	switch e.Kind {
	case PrematureDataEnd:
		msg = "keepass: unexpected end of file"
	case NegativeBlockSize:
		msg = fmt.Sprintf("keepass: block %d has negative size", e.Block)
	case ParsingError:
		msg = "keepass: cannot parse database"
	case BlockHMACMismatch:
		msg = fmt.Sprintf("keepass: HMAC mismatch in block %d; file is corrupt", e.Block)
	case CompressionError:
		msg = "keepass: gzip error"
	default:
		msg = "keepass: format error " + strconv.Itoa(int(e.Kind))
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *FormatError of the same kind.
func (e *FormatError) Is(target error) bool {
	t, ok := target.(*FormatError)
	return ok && t.Kind == e.Kind
}

// DatabaseErrorKind classifies a DatabaseError.
type DatabaseErrorKind int

// Database error kinds.
const (
	LoadError DatabaseErrorKind = 1 + iota
	InvalidKey
	SaveError
)

// A DatabaseError is returned from Open and Write.  Err holds the
// underlying HeaderError, FormatError, or kdbcrypt error.
type DatabaseError struct {
	Op     string // "load" or "save"
	Kind   DatabaseErrorKind
	Reason string
	Err    error
}

func (e *DatabaseError) Error() string {
	if e.Kind == InvalidKey {
		return "keepass: invalid password or key file"
	}
	msg := "keepass: " + e.Op
	if e.Reason != "" {
		msg += " " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *DatabaseError of the same kind.
func (e *DatabaseError) Is(target error) bool {
	t, ok := target.(*DatabaseError)
	return ok && t.Kind == e.Kind
}

// Errors for use with errors.Is.
var (
	ErrInvalidKey        = &DatabaseError{Op: "load", Kind: InvalidKey}
	ErrWrongSignature    = &HeaderError{Kind: WrongSignature}
	ErrWrongVersion      = &HeaderError{Kind: UnsupportedFileVersion}
	ErrUnknownEncryption = &HeaderError{Kind: UnsupportedDataCipher}
	ErrHashMismatch      = &HeaderError{Kind: HashMismatch}
	ErrBlockHMAC         = &FormatError{Kind: BlockHMACMismatch}
	ErrPrematureEnd      = &FormatError{Kind: PrematureDataEnd}
)

var (
	errNoRoot    = errors.New("keepass: database has no root group")
	errNotLoaded = errors.New("keepass: database keys have been erased")
)
