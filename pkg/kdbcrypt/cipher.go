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
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/twofish"
	"zombiezen.com/go/kdbxd/pkg/cipherio"
	"zombiezen.com/go/kdbxd/pkg/padding"
	"zombiezen.com/go/kdbxd/pkg/securebuf"
	"zombiezen.com/go/kdbxd/pkg/uuids"
)

// Cipher is a data cipher that encrypts the database payload.
type Cipher int

// Available ciphers
const (
	AES256Cipher Cipher = 1 + iota
	ChaCha20Cipher
	TwofishCipher
)

var cipherUUIDs = map[Cipher]uuids.UUID{
	AES256Cipher:   {0x31, 0xc1, 0xf2, 0xe6, 0xbf, 0x71, 0x43, 0x50, 0xbe, 0x58, 0x05, 0x21, 0x6a, 0xfc, 0x5a, 0xff},
	ChaCha20Cipher: {0xd6, 0x03, 0x8a, 0x2b, 0x8b, 0x6f, 0x4c, 0xb5, 0xa5, 0x24, 0x33, 0x9a, 0x31, 0xdb, 0xb5, 0x9a},
	TwofishCipher:  {0xad, 0x68, 0xf2, 0x9f, 0x57, 0x6f, 0x4b, 0xb9, 0xa3, 0x6a, 0xd4, 0x7a, 0xf9, 0x65, 0x34, 0x6c},
}

// CipherByUUID returns the cipher identified by u in a KDBX header.
func CipherByUUID(u uuids.UUID) (Cipher, error) {
	for c, cu := range cipherUUIDs {
		if cu == u {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w %v", errUnknownCipher, u)
}

// UUID returns the identifier written to KDBX headers.
func (c Cipher) UUID() uuids.UUID {
	return cipherUUIDs[c]
}

func (c Cipher) String() string {
	switch c {
	case AES256Cipher:
		return "AES-256"
	case ChaCha20Cipher:
		return "ChaCha20"
	case TwofishCipher:
		return "Twofish"
	default:
		return fmt.Sprintf("Cipher(%d)", int(c))
	}
}

// KeySize returns the cipher's key size in bytes.
func (c Cipher) KeySize() int {
	return 32
}

// IVSize returns the size of the initialization vector in bytes.
func (c Cipher) IVSize() int {
	switch c {
	case ChaCha20Cipher:
		return chacha20.NonceSize
	default:
		return 16
	}
}

// ResizeKey hashes key down to the cipher's key size: SHA-256 for keys
// up to 32 bytes, truncated SHA-512 for keys up to 64 bytes.  Larger
// key sizes are not used by any supported cipher and panic.
func (c Cipher) ResizeKey(key []byte) *securebuf.Buffer {
	n := c.KeySize()
	switch {
	case n == 0:
		return securebuf.New(nil)
	case n <= sha256.Size:
		h := sha256.Sum256(key)
		defer wipe(h[:])
		return securebuf.Copy(h[:n])
	case n <= sha512.Size:
		h := sha512.Sum512(key)
		defer wipe(h[:])
		return securebuf.Copy(h[:n])
	default:
		panic("kdbcrypt: key size larger than SHA-512")
	}
}

func (c Cipher) block(key []byte) (cipher.Block, error) {
	switch c {
	case AES256Cipher:
		return aes.NewCipher(key)
	case TwofishCipher:
		return twofish.NewCipher(key)
	default:
		return nil, errUnknownCipher
	}
}

func (c Cipher) checkIV(iv []byte) error {
	if len(iv) != c.IVSize() {
		return fmt.Errorf("kdbcrypt: %v IV is %d bytes; want %d", c, len(iv), c.IVSize())
	}
	return nil
}

// NewEncrypter creates a new writer that encrypts to w.  Closing the
// new writer writes the final, padded block but does not close w.
func (c Cipher) NewEncrypter(w io.Writer, key, iv []byte) (io.WriteCloser, error) {
	if err := c.checkIV(iv); err != nil {
		return nil, err
	}
	if c == ChaCha20Cipher {
		s, err := chacha20.NewUnauthenticatedCipher(key, iv)
		if err != nil {
			return nil, err
		}
		return &cipher.StreamWriter{S: s, W: writerOnly{w}}, nil
	}
	ciph, err := c.block(key)
	if err != nil {
		return nil, err
	}
	e := cipher.NewCBCEncrypter(ciph, iv)
	return cipherio.NewWriter(w, e, padding.PKCS7), nil
}

// NewDecrypter creates a new reader that decrypts and strips padding from r.
func (c Cipher) NewDecrypter(r io.Reader, key, iv []byte) (io.Reader, error) {
	if err := c.checkIV(iv); err != nil {
		return nil, err
	}
	if c == ChaCha20Cipher {
		s, err := chacha20.NewUnauthenticatedCipher(key, iv)
		if err != nil {
			return nil, err
		}
		return &cipher.StreamReader{S: s, R: r}, nil
	}
	ciph, err := c.block(key)
	if err != nil {
		return nil, err
	}
	d := cipher.NewCBCDecrypter(ciph, iv)
	return paddingErrors{cipherio.NewReader(r, d, padding.PKCS7)}, nil
}

// writerOnly hides any Close method so that closing a StreamWriter
// does not close the destination.
type writerOnly struct {
	io.Writer
}

// paddingErrors reports padding failures as CryptoErrors.
type paddingErrors struct {
	r io.Reader
}

func (pe paddingErrors) Read(p []byte) (int, error) {
	n, err := pe.r.Read(p)
	if perr, ok := err.(padding.Error); ok {
		err = &CryptoError{Kind: ErrPadding, Code: int(perr), Err: perr}
	}
	return n, err
}
