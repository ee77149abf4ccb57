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
	"errors"
	"strconv"
)

// CryptoErrorKind classifies a CryptoError.
type CryptoErrorKind int

// Crypto error kinds.
const (
	ErrRNG CryptoErrorKind = 1 + iota
	ErrPadding
	ErrKDF
)

func (k CryptoErrorKind) String() string {
	switch k {
	case ErrRNG:
		return "random number generator failure"
	case ErrPadding:
		return "padding error"
	case ErrKDF:
		return "key derivation failed"
	default:
		return "CryptoErrorKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// CryptoError is a failure in a cryptographic primitive.  These are
// never retried.
type CryptoError struct {
	Kind CryptoErrorKind
	Code int // library-specific code, if any
	Err  error
}

func (e *CryptoError) Error() string {
	msg := "kdbcrypt: " + e.Kind.String()
	if e.Code != 0 {
		msg += " (code " + strconv.Itoa(e.Code) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *CryptoError of the same kind.
func (e *CryptoError) Is(target error) bool {
	t, ok := target.(*CryptoError)
	return ok && t.Kind == e.Kind && t.Code == 0 && t.Err == nil
}

// KeyFileErrorKind classifies a KeyFileError.
type KeyFileErrorKind int

// Key file error kinds.
const (
	UnsupportedFormat KeyFileErrorKind = 1 + iota
	Corrupted
)

// KeyFileError is returned when a key file is recognized but cannot
// be used.
type KeyFileError struct {
	Kind KeyFileErrorKind
	Err  error
}

func (e *KeyFileError) Error() string {
	var msg string
	switch e.Kind {
	case UnsupportedFormat:
		msg = "kdbcrypt: unsupported key file format"
	case Corrupted:
		msg = "kdbcrypt: key file is corrupted"
	default:
		msg = "kdbcrypt: key file error " + strconv.Itoa(int(e.Kind))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *KeyFileError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *KeyFileError of the same kind.
func (e *KeyFileError) Is(target error) bool {
	t, ok := target.(*KeyFileError)
	return ok && t.Kind == e.Kind && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrKeyFileUnsupported = &KeyFileError{Kind: UnsupportedFormat}
	ErrKeyFileCorrupted   = &KeyFileError{Kind: Corrupted}
	ErrKDFParams          = &CryptoError{Kind: ErrKDF}

	errUnknownCipher = errors.New("kdbcrypt: unknown cipher")
)
