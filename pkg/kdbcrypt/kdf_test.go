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
	"bytes"
	"crypto/aes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"zombiezen.com/go/kdbxd/pkg/vardict"
)

// Cheap parameters so the tests run quickly.
func testArgon2Params(kdf KDF) *KDFParams {
	return &KDFParams{
		KDF:         kdf,
		Salt:        bytes.Repeat([]byte{0x5a}, 32),
		Iterations:  3,
		Memory:      64 * 1024,
		Parallelism: 2,
		Version:     Argon2Version,
	}
}

func TestArgon2Fidelity(t *testing.T) {
	// Expected tags come from the Argon2 reference implementation
	// (phc-winner-argon2, version 0x13, 32-byte output).
	tests := []struct {
		kdf         KDF
		iterations  uint64
		memory      uint64
		parallelism uint32
		want        string
	}{
		{Argon2d, 2, 64 * 1024, 2, "d6af1b803d316222b7b0c0adfee22bcabee33f4834e1fb3d40e2137ac0bb33cf"},
		{Argon2id, 2, 64 * 1024, 2, "94387415dfb84ed1977465a1e8626073adf42bd4eeae1faa1dd4e23a1ff6859f"},
		{Argon2id, 2, 1 << 26, 1, "09316115d5cf24ed5a15a31a3ba326e5cf32edc24702987c02b6566f61913cf7"},
	}
	for _, test := range tests {
		p := &KDFParams{
			KDF:         test.kdf,
			Salt:        []byte("somesalt"),
			Iterations:  test.iterations,
			Memory:      test.memory,
			Parallelism: test.parallelism,
			Version:     Argon2Version,
		}

		// Through the header dictionary and back.
		raw, err := p.Dict().MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		d, err := vardict.Parse(raw)
		if err != nil {
			t.Fatal(err)
		}
		p2, err := ParseKDFParams(d)
		if err != nil {
			t.Fatalf("ParseKDFParams(%v dict): %v", test.kdf, err)
		}
		if !p2.Equal(p) {
			t.Errorf("%v params after round trip = %+v; want %+v", test.kdf, p2, p)
		}

		got, err := p2.Transform([]byte("password"))
		if err != nil {
			t.Fatalf("%v Transform: %v", test.kdf, err)
		}
		if h := hex.EncodeToString(got.Bytes()); h != test.want {
			t.Errorf("%v(t=%d, m=%d, p=%d) = %s; want %s", test.kdf, test.iterations, test.memory/1024, test.parallelism, h, test.want)
		}
		got.Erase()
	}
}

func TestArgon2dDiffersFromArgon2id(t *testing.T) {
	combined := sha256.Sum256([]byte("swordfish"))
	d, _ := testArgon2Params(Argon2d).Transform(combined[:])
	id, _ := testArgon2Params(Argon2id).Transform(combined[:])
	if d.Equal(id) {
		t.Error("Argon2d and Argon2id produced the same key")
	}
}

func TestAESKDF(t *testing.T) {
	combined := sha256.Sum256([]byte("swordfish"))
	seed := bytes.Repeat([]byte{3}, 32)
	const rounds = 1000

	// Straightforward single-threaded reference.
	c, _ := aes.NewCipher(seed)
	ref := combined
	for i := 0; i < rounds; i++ {
		c.Encrypt(ref[:16], ref[:16])
		c.Encrypt(ref[16:], ref[16:])
	}
	want := sha256.Sum256(ref[:])

	p := &KDFParams{KDF: AESKDF, Salt: seed, Iterations: rounds}
	d := p.Dict()
	if r, ok := d.UInt64("R"); !ok || r != rounds {
		t.Errorf("Dict() R = %d, %t; want %d, true", r, ok, rounds)
	}
	p2, err := ParseKDFParams(d)
	if err != nil {
		t.Fatal("ParseKDFParams:", err)
	}
	got, err := p2.Transform(combined[:])
	if err != nil {
		t.Fatal("Transform:", err)
	}
	if !bytes.Equal(got.Bytes(), want[:]) {
		t.Errorf("AES-KDF = %x; want %x", got.Bytes(), want)
	}
}

func TestParseKDFParamsPreservesUnknownKeys(t *testing.T) {
	d := testArgon2Params(Argon2d).Dict()
	d.SetString("vendor", "x")
	p, err := ParseKDFParams(d)
	if err != nil {
		t.Fatal(err)
	}
	p.Iterations = 9
	out := p.Dict()
	if v, ok := out.String("vendor"); !ok || v != "x" {
		t.Errorf("vendor key after round trip = %q, %t; want \"x\", true", v, ok)
	}
	if v, _ := out.UInt64("I"); v != 9 {
		t.Errorf("I = %d; want 9", v)
	}
}

func TestParseKDFParamsErrors(t *testing.T) {
	unknown := new(vardict.Dict)
	unknown.SetBytes("$UUID", bytes.Repeat([]byte{1}, 16))
	if _, err := ParseKDFParams(unknown); !errors.Is(err, ErrUnsupportedKDF) {
		t.Errorf("ParseKDFParams(unknown UUID) error = %v; want %v", err, ErrUnsupportedKDF)
	}

	tests := []struct {
		name   string
		modify func(d *vardict.Dict)
	}{
		{"missing UUID", func(d *vardict.Dict) { d.Delete("$UUID") }},
		{"short UUID", func(d *vardict.Dict) { d.SetBytes("$UUID", []byte{1}) }},
		{"missing salt", func(d *vardict.Dict) { d.Delete("S") }},
		{"memory wrong type", func(d *vardict.Dict) { d.SetUInt32("M", 1<<20) }},
		{"version 0x10", func(d *vardict.Dict) { d.SetUInt32("V", 0x10) }},
		{"zero parallelism", func(d *vardict.Dict) { d.SetUInt32("P", 0) }},
		{"tiny memory", func(d *vardict.Dict) { d.SetUInt64("M", 1024) }},
		{"secret key", func(d *vardict.Dict) { d.SetBytes("K", []byte{1}) }},
	}
	for _, test := range tests {
		d := testArgon2Params(Argon2d).Dict()
		test.modify(d)
		if _, err := ParseKDFParams(d); !errors.Is(err, ErrKDFParams) {
			t.Errorf("ParseKDFParams(%s) error = %v; want KDF CryptoError", test.name, err)
		}
	}
}

func TestDefaultArgon2dParams(t *testing.T) {
	p, err := DefaultArgon2dParams(nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.KDF != Argon2d || p.Iterations != 100 || p.Memory != 1<<20 || p.Parallelism != 2 || len(p.Salt) != 32 {
		t.Errorf("DefaultArgon2dParams() = %+v", p)
	}
	old := append([]byte(nil), p.Salt...)
	if err := p.Reseed(nil); err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(old, p.Salt) {
		t.Error("Reseed kept the old salt")
	}
}
