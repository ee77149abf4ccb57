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
	"crypto/sha512"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"zombiezen.com/go/kdbxd/pkg/kdbcrypt"
	"zombiezen.com/go/kdbxd/pkg/securebuf"
)

// KeyState is the stage a CompositeKey has reached.  Each stage erases
// the secrets of the previous one.
type KeyState int

// Key states, in order.
const (
	KeyEmpty KeyState = iota
	KeyRaw
	KeyProcessed
	KeyCombined
	KeyFinal
)

func (s KeyState) String() string {
	switch s {
	case KeyEmpty:
		return "empty"
	case KeyRaw:
		return "raw"
	case KeyProcessed:
		return "processed"
	case KeyCombined:
		return "combined"
	case KeyFinal:
		return "final"
	default:
		return fmt.Sprintf("KeyState(%d)", int(s))
	}
}

// A CompositeKey turns a password and key file into the keys that
// encrypt and authenticate a database.  It only moves forward:
// raw components are processed, then combined, then run through the
// database's key derivation function to produce the final keys.
// Calling a method in the wrong state panics.
//
// A CompositeKey is not safe for concurrent use.
type CompositeKey struct {
	state KeyState

	// KeyRaw
	password *securebuf.Buffer
	keyFile  *securebuf.Buffer

	// KeyProcessed
	passwordHash *securebuf.Buffer
	keyFileKey   *securebuf.Buffer

	// KeyCombined
	combined *securebuf.Buffer

	// transformed caches the KDF output.  transformedFor is the
	// parameters it was computed with, or nil if it was supplied
	// directly by NewTransformedKey and has not been used yet.
	transformed    *securebuf.Buffer
	transformedFor *kdbcrypt.KDFParams

	// KeyFinal
	cipherKey *securebuf.Buffer
	hmacKey   *securebuf.Buffer
}

// NewCompositeKey returns a key in the KeyRaw state.  Either component
// may be empty.  keyFile is copied.
func NewCompositeKey(password string, keyFile []byte) *CompositeKey {
	return &CompositeKey{
		state:    KeyRaw,
		password: securebuf.FromString(password),
		keyFile:  securebuf.Copy(keyFile),
	}
}

// NewCombinedKey returns a key in the KeyCombined state from a
// previously combined 32-byte key.
func NewCombinedKey(combined []byte) *CompositeKey {
	return &CompositeKey{
		state:    KeyCombined,
		combined: securebuf.Copy(combined),
	}
}

// NewTransformedKey returns a key in the KeyCombined state that skips
// key derivation: transformed is the output of the database's KDF, as
// returned by TransformedKey.  Such a key can open and save a database
// but cannot be used with ChangeCompositeKey.
func NewTransformedKey(transformed []byte) *CompositeKey {
	return &CompositeKey{
		state:       KeyCombined,
		transformed: securebuf.Copy(transformed),
	}
}

// State returns the key's current state.
func (k *CompositeKey) State() KeyState {
	return k.state
}

func (k *CompositeKey) mustBe(method string, states ...KeyState) {
	for _, s := range states {
		if k.state == s {
			return
		}
	}
	panic(fmt.Sprintf("keepass: CompositeKey.%s called in state %v", method, k.state))
}

// Process hashes the password and extracts key material from the key
// file, then erases the raw components.  parser may be nil.
func (k *CompositeKey) Process(parser kdbcrypt.KeyFileParser) error {
	k.mustBe("Process", KeyRaw)
	if !k.password.IsEmpty() {
		sum := k.password.SHA256()
		k.passwordHash = securebuf.Copy(sum[:])
		wipeBytes(sum[:])
	}
	if !k.keyFile.IsEmpty() {
		kf, err := kdbcrypt.ProcessKeyFile(k.keyFile.Bytes(), parser)
		if err != nil {
			k.passwordHash.Erase()
			k.passwordHash = nil
			return err
		}
		k.keyFileKey = kf
	}
	k.password.Erase()
	k.keyFile.Erase()
	k.password, k.keyFile = nil, nil
	k.state = KeyProcessed
	return nil
}

// Combine hashes the processed components into the combined key and
// erases them.
func (k *CompositeKey) Combine() {
	k.mustBe("Combine", KeyProcessed)
	preKey := securebuf.Concat(k.passwordHash, k.keyFileKey)
	sum := preKey.SHA256()
	preKey.Erase()
	k.combined = securebuf.Copy(sum[:])
	wipeBytes(sum[:])
	k.passwordHash.Erase()
	k.keyFileKey.Erase()
	k.passwordHash, k.keyFileKey = nil, nil
	k.state = KeyCombined
}

// ensureCombined advances a raw key to KeyCombined.
func (k *CompositeKey) ensureCombined(parser kdbcrypt.KeyFileParser) error {
	if k.state == KeyRaw {
		if err := k.Process(parser); err != nil {
			return err
		}
	}
	if k.state == KeyProcessed {
		k.Combine()
	}
	return nil
}

var errTransformedOnly = errors.New("keepass: key was created from a transformed key and cannot be re-derived")

// deriveFinalKeys runs the KDF (unless a matching result is cached)
// and computes the cipher and HMAC keys for the given master seed.
func (k *CompositeKey) deriveFinalKeys(kdf *kdbcrypt.KDFParams, masterSeed []byte, c kdbcrypt.Cipher) error {
	k.mustBe("deriveFinalKeys", KeyCombined, KeyFinal)
	if k.state == KeyFinal {
		k.EraseFinalKeys()
	}
	cached := k.transformed != nil && (k.transformedFor == nil || k.transformedFor.Equal(kdf))
	if cached && k.transformedFor == nil {
		// A key from NewTransformedKey belongs to the parameters of the
		// first database it is used with.
		k.transformedFor = kdf.Clone()
	}
	if !cached {
		if k.combined == nil {
			return errTransformedOnly
		}
		t, err := kdf.Transform(k.combined.Bytes())
		if err != nil {
			return err
		}
		k.transformed.Erase()
		k.transformed = t
		k.transformedFor = kdf.Clone()
	}
	joined := securebuf.Concat(securebuf.Copy(masterSeed), k.transformed)
	defer joined.Erase()
	k.cipherKey = c.ResizeKey(joined.Bytes())
	h := sha512.New()
	h.Write(joined.Bytes())
	h.Write([]byte{0x01})
	var sum [sha512.Size]byte
	h.Sum(sum[:0])
	k.hmacKey = securebuf.Copy(sum[:])
	wipeBytes(sum[:])
	k.state = KeyFinal
	return nil
}

// EraseFinalKeys erases the cipher and HMAC keys, returning the key to
// the KeyCombined state.
func (k *CompositeKey) EraseFinalKeys() {
	k.mustBe("EraseFinalKeys", KeyFinal)
	k.cipherKey.Erase()
	k.hmacKey.Erase()
	k.cipherKey, k.hmacKey = nil, nil
	k.state = KeyCombined
}

// TransformedKey returns a copy of the KDF output, or nil if the key
// has not been derived yet.  The caller owns the returned buffer.
func (k *CompositeKey) TransformedKey() *securebuf.Buffer {
	if k.transformed == nil {
		return nil
	}
	return k.transformed.Clone()
}

// Clone returns a deep copy of k.
func (k *CompositeKey) Clone() *CompositeKey {
	c := &CompositeKey{
		state:        k.state,
		password:     k.password.Clone(),
		keyFile:      k.keyFile.Clone(),
		passwordHash: k.passwordHash.Clone(),
		keyFileKey:   k.keyFileKey.Clone(),
		combined:     k.combined.Clone(),
		transformed:  k.transformed.Clone(),
		cipherKey:    k.cipherKey.Clone(),
		hmacKey:      k.hmacKey.Clone(),
	}
	if k.transformedFor != nil {
		c.transformedFor = k.transformedFor.Clone()
	}
	return c
}

// Erase erases every secret held by k and resets it to KeyEmpty.
// Calling Erase more than once is safe.
func (k *CompositeKey) Erase() {
	if k == nil {
		return
	}
	for _, b := range []*securebuf.Buffer{k.password, k.keyFile, k.passwordHash, k.keyFileKey, k.combined, k.transformed, k.cipherKey, k.hmacKey} {
		b.Erase()
	}
	*k = CompositeKey{}
}

func wipeBytes(b []byte) {
	memguard.WipeBytes(b)
}
