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
	"errors"
	"fmt"
	"io"
	"sync"

	tobischo "github.com/tobischo/argon2"
	"golang.org/x/crypto/argon2"
	"zombiezen.com/go/kdbxd/pkg/securebuf"
	"zombiezen.com/go/kdbxd/pkg/uuids"
	"zombiezen.com/go/kdbxd/pkg/vardict"
)

// KDF is a key derivation function.
type KDF int

// Available key derivation functions.
const (
	Argon2d KDF = 1 + iota
	Argon2id
	AESKDF
)

var kdfUUIDs = map[KDF]uuids.UUID{
	Argon2d:  {0xef, 0x63, 0x6d, 0xdf, 0x8c, 0x29, 0x44, 0x4b, 0x91, 0xf7, 0xa9, 0xa4, 0x03, 0xe3, 0x0a, 0x0c},
	Argon2id: {0x9e, 0x29, 0x8b, 0x19, 0x56, 0xdb, 0x47, 0x73, 0xb2, 0x3d, 0xfc, 0x3e, 0xc6, 0xf0, 0xa1, 0xe6},
	AESKDF:   {0xc9, 0xd9, 0xf3, 0x9a, 0x62, 0x8a, 0x44, 0x60, 0xbf, 0x74, 0x0d, 0x08, 0xc1, 0x8a, 0x4f, 0xea},
}

// UUID returns the identifier stored under "$UUID" in KDF parameters.
func (k KDF) UUID() uuids.UUID {
	return kdfUUIDs[k]
}

func (k KDF) String() string {
	switch k {
	case Argon2d:
		return "Argon2d"
	case Argon2id:
		return "Argon2id"
	case AESKDF:
		return "AES-KDF"
	default:
		return fmt.Sprintf("KDF(%d)", int(k))
	}
}

func (k KDF) isArgon2() bool {
	return k == Argon2d || k == Argon2id
}

// Argon2Version is the only Argon2 version supported.
const Argon2Version = 0x13

// Parameter names in the KDF dictionary.
const (
	paramUUID        = "$UUID"
	paramSalt        = "S"
	paramParallelism = "P"
	paramMemory      = "M"
	paramIterations  = "I"
	paramVersion     = "V"
	paramSecret      = "K"
	paramAssocData   = "A"
	paramRounds      = "R"
)

// ErrUnsupportedKDF is returned by ParseKDFParams when "$UUID" does
// not name a known function.
var ErrUnsupportedKDF = errors.New("kdbcrypt: unsupported key derivation function")

// KDFParams holds the parameters of a key derivation function as
// stored in the KDBX header.  Keys not understood by this package are
// preserved when the parameters are written back.
type KDFParams struct {
	KDF KDF

	// Salt is the Argon2 salt or the AES-KDF transform seed.
	Salt []byte

	// Iterations is the Argon2 pass count or the number of AES-KDF rounds.
	Iterations uint64

	// Memory is the Argon2 memory cost in bytes.
	Memory uint64

	// Parallelism is the Argon2 lane count.
	Parallelism uint32

	// Version is the Argon2 version.
	Version uint32

	extra *vardict.Dict
}

// DefaultArgon2dParams returns the parameters used for new databases:
// 100 iterations over 1 MiB with 2 lanes and a fresh 32-byte salt.
func DefaultArgon2dParams(rand io.Reader) (*KDFParams, error) {
	p := &KDFParams{
		KDF:         Argon2d,
		Iterations:  100,
		Memory:      1 << 20,
		Parallelism: 2,
		Version:     Argon2Version,
	}
	if err := p.Reseed(rand); err != nil {
		return nil, err
	}
	return p, nil
}

// ParseKDFParams interprets a KDF parameter dictionary.  An unknown
// "$UUID" gives an error wrapping ErrUnsupportedKDF; malformed
// parameters give an error matching ErrKDFParams.
func ParseKDFParams(d *vardict.Dict) (*KDFParams, error) {
	raw, ok := d.Bytes(paramUUID)
	if !ok {
		return nil, &CryptoError{Kind: ErrKDF, Err: errors.New("missing $UUID")}
	}
	id, err := uuids.FromBytes(raw)
	if err != nil {
		return nil, &CryptoError{Kind: ErrKDF, Err: fmt.Errorf("$UUID: %w", err)}
	}
	p := &KDFParams{extra: d.Clone()}
	for k, u := range kdfUUIDs {
		if u == id {
			p.KDF = k
		}
	}
	if p.KDF == 0 {
		return nil, fmt.Errorf("%w %v", ErrUnsupportedKDF, id)
	}

	var missing string
	if p.Salt, ok = d.Bytes(paramSalt); !ok {
		missing = paramSalt
	}
	if p.KDF.isArgon2() {
		if p.Parallelism, ok = d.UInt32(paramParallelism); !ok {
			missing = paramParallelism
		}
		if p.Memory, ok = d.UInt64(paramMemory); !ok {
			missing = paramMemory
		}
		if p.Iterations, ok = d.UInt64(paramIterations); !ok {
			missing = paramIterations
		}
		if p.Version, ok = d.UInt32(paramVersion); !ok {
			missing = paramVersion
		}
		for _, name := range []string{paramSecret, paramAssocData} {
			if v, present := d.Bytes(name); present && len(v) > 0 {
				return nil, &CryptoError{Kind: ErrKDF, Err: fmt.Errorf("argon2 parameter %q is not supported", name)}
			}
		}
	} else {
		if p.Iterations, ok = d.UInt64(paramRounds); !ok {
			missing = paramRounds
		}
	}
	if missing != "" {
		return nil, &CryptoError{Kind: ErrKDF, Err: fmt.Errorf("%v parameter %q missing or mistyped", p.KDF, missing)}
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *KDFParams) validate() error {
	fail := func(format string, args ...interface{}) error {
		return &CryptoError{Kind: ErrKDF, Err: fmt.Errorf(format, args...)}
	}
	switch p.KDF {
	case Argon2d, Argon2id:
		switch {
		case len(p.Salt) < 8:
			return fail("argon2 salt is %d bytes; need at least 8", len(p.Salt))
		case p.Parallelism < 1 || p.Parallelism > 255:
			return fail("argon2 parallelism %d out of range", p.Parallelism)
		case p.Iterations < 1 || p.Iterations > 1<<32-1:
			return fail("argon2 iterations %d out of range", p.Iterations)
		case p.Memory/1024 < 8*uint64(p.Parallelism) || p.Memory/1024 > 1<<32-1:
			return fail("argon2 memory %d bytes out of range", p.Memory)
		case p.Version != Argon2Version:
			return fail("argon2 version %#x not supported", p.Version)
		}
	case AESKDF:
		if len(p.Salt) != 32 {
			return fail("AES-KDF seed is %d bytes; want 32", len(p.Salt))
		}
	default:
		return fail("unknown function %v", p.KDF)
	}
	return nil
}

// Clone returns a deep copy of p.
func (p *KDFParams) Clone() *KDFParams {
	c := *p
	c.Salt = append([]byte(nil), p.Salt...)
	if p.extra != nil {
		c.extra = p.extra.Clone()
	}
	return &c
}

// Equal reports whether p and q describe the same derivation.
func (p *KDFParams) Equal(q *KDFParams) bool {
	if p == nil || q == nil {
		return p == q
	}
	return p.KDF == q.KDF &&
		string(p.Salt) == string(q.Salt) &&
		p.Iterations == q.Iterations &&
		p.Memory == q.Memory &&
		p.Parallelism == q.Parallelism &&
		p.Version == q.Version
}

// Reseed replaces the salt with fresh random bytes.
func (p *KDFParams) Reseed(rand io.Reader) error {
	salt, err := RandomBytes(rand, 32)
	if err != nil {
		return err
	}
	p.Salt = salt
	return nil
}

// Dict returns the parameters as a variant dictionary, keeping any
// keys from the parsed original.
func (p *KDFParams) Dict() *vardict.Dict {
	var d *vardict.Dict
	if p.extra != nil {
		d = p.extra.Clone()
	} else {
		d = new(vardict.Dict)
	}
	u := p.KDF.UUID()
	d.SetBytes(paramUUID, u[:])
	if p.KDF.isArgon2() {
		d.SetUInt32(paramVersion, p.Version)
		d.SetBytes(paramSalt, p.Salt)
		d.SetUInt32(paramParallelism, p.Parallelism)
		d.SetUInt64(paramMemory, p.Memory)
		d.SetUInt64(paramIterations, p.Iterations)
	} else {
		d.SetUInt64(paramRounds, p.Iterations)
		d.SetBytes(paramSalt, p.Salt)
	}
	return d
}

// Transform runs the key derivation function over key, returning the
// 32-byte transformed key.
func (p *KDFParams) Transform(key []byte) (*securebuf.Buffer, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	switch p.KDF {
	case Argon2d:
		out := tobischo.DKey(key, p.Salt, uint32(p.Iterations), uint32(p.Memory/1024), uint8(p.Parallelism), 32)
		return securebuf.New(out), nil
	case Argon2id:
		out := argon2.IDKey(key, p.Salt, uint32(p.Iterations), uint32(p.Memory/1024), uint8(p.Parallelism), 32)
		return securebuf.New(out), nil
	case AESKDF:
		return transformAES(key, p.Salt, p.Iterations)
	default:
		return nil, &CryptoError{Kind: ErrKDF, Err: errUnknownKDF}
	}
}

var errUnknownKDF = errors.New("unknown function")

// transformAES encrypts each half of the 32-byte key with AES-256-ECB
// rounds times, then hashes the result.
func transformAES(key, seed []byte, rounds uint64) (*securebuf.Buffer, error) {
	if len(key) != sha256.Size {
		return nil, &CryptoError{Kind: ErrKDF, Err: fmt.Errorf("AES-KDF input is %d bytes; want %d", len(key), sha256.Size)}
	}
	c, err := aes.NewCipher(seed)
	if err != nil {
		return nil, &CryptoError{Kind: ErrKDF, Err: err}
	}
	var tk [sha256.Size]byte
	defer wipe(tk[:])
	var wg sync.WaitGroup
	wg.Add(2)
	go transformKeyBlock(&wg, c, tk[:aes.BlockSize], key[:aes.BlockSize], rounds)
	go transformKeyBlock(&wg, c, tk[aes.BlockSize:], key[aes.BlockSize:], rounds)
	wg.Wait()
	sum := sha256.Sum256(tk[:])
	defer wipe(sum[:])
	return securebuf.Copy(sum[:]), nil
}

// transformKeyBlock applies rounds of AES encryption to src and stores the result in dst.
func transformKeyBlock(wg *sync.WaitGroup, c cipher.Block, dst, src []byte, rounds uint64) {
	dst = dst[:aes.BlockSize]
	copy(dst, src)
	for i := uint64(0); i < rounds; i++ {
		c.Encrypt(dst, dst)
	}
	wg.Done()
}
