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
	"crypto/rand"
	"io"
	"io/ioutil"

	"github.com/sirupsen/logrus"
	"zombiezen.com/go/kdbxd/pkg/kdbcrypt"
)

// Options is the set of parameters for creating or opening a database.
// Nil is treated the same as the zero value.
type Options struct {
	// Password is an optional textual password to encrypt/decrypt
	// the database.
	Password string

	// KeyFile is an optional key file to encrypt/decrypt the database.
	KeyFile io.Reader

	// If Key is non-nil, it is used instead of Password/KeyFile.
	// The database keeps its own copy.
	Key *CompositeKey

	// KeyFileParser recognizes structured key files.  Defaults to
	// kdbcrypt.XMLKeyFileParser.
	KeyFileParser kdbcrypt.KeyFileParser

	// Random number source, used for seeds, IVs and UUIDs.
	// Defaults to crypto/rand.Reader.
	Rand io.Reader

	// Cipher to encrypt with.  Defaults to ChaCha20.
	// Only used for creation.
	Cipher kdbcrypt.Cipher

	// KDF is the key derivation function and its parameters.  If nil,
	// Argon2d with a fresh salt is used.  Only used for creation.
	KDF *kdbcrypt.KDFParams

	// DisableCompression turns off gzip compression of the payload.
	// Only used for creation.
	DisableCompression bool

	// Logger receives warnings about skipped fields and format
	// fallbacks.  Defaults to discarding everything.
	Logger logrus.FieldLogger

	// Progress, if non-nil, is updated as the database is read or
	// written.
	Progress *Progress
}

// compositeKey returns a key owned by the caller.
func (opts *Options) compositeKey() (*CompositeKey, error) {
	if opts == nil {
		return NewCompositeKey("", nil), nil
	}
	if opts.Key != nil {
		return opts.Key.Clone(), nil
	}
	var kf []byte
	if opts.KeyFile != nil {
		var err error
		kf, err = ioutil.ReadAll(opts.KeyFile)
		if err != nil {
			return nil, err
		}
		defer wipeBytes(kf)
	}
	return NewCompositeKey(opts.Password, kf), nil
}

func (opts *Options) getKeyFileParser() kdbcrypt.KeyFileParser {
	if opts == nil {
		return nil
	}
	return opts.KeyFileParser
}

func (opts *Options) getRand() io.Reader {
	if opts == nil || opts.Rand == nil {
		return rand.Reader
	}
	return opts.Rand
}

func (opts *Options) getCipher() kdbcrypt.Cipher {
	if opts == nil || opts.Cipher == 0 {
		return kdbcrypt.ChaCha20Cipher
	}
	return opts.Cipher
}

func (opts *Options) getKDF() (*kdbcrypt.KDFParams, error) {
	if opts == nil || opts.KDF == nil {
		return kdbcrypt.DefaultArgon2dParams(opts.getRand())
	}
	return opts.KDF.Clone(), nil
}

func (opts *Options) compressed() bool {
	return opts == nil || !opts.DisableCompression
}

var discardLogger = &logrus.Logger{
	Out:       ioutil.Discard,
	Formatter: new(logrus.TextFormatter),
	Hooks:     make(logrus.LevelHooks),
	Level:     logrus.PanicLevel,
}

func (opts *Options) logger() logrus.FieldLogger {
	if opts == nil || opts.Logger == nil {
		return discardLogger
	}
	return opts.Logger
}

func (opts *Options) progress() *Progress {
	if opts == nil {
		return nil
	}
	return opts.Progress
}

// Ciphers for Options
const (
	AESCipher      = kdbcrypt.AES256Cipher
	ChaCha20Cipher = kdbcrypt.ChaCha20Cipher
	TwofishCipher  = kdbcrypt.TwofishCipher
)
