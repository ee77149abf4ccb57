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
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"zombiezen.com/go/kdbxd/pkg/fakerand"
)

func TestProcessKeyFile(t *testing.T) {
	binKey := bytes.Repeat([]byte{0xab}, 32)
	other := []byte("just some file contents")
	otherHash := sha256.Sum256(other)
	notKeyFileXML := []byte("<html><body>hi</body></html>")
	notKeyFileHash := sha256.Sum256(notKeyFileXML)
	v1 := []byte(`<?xml version="1.0" encoding="utf-8"?>
<KeyFile><Meta><Version>1.00</Version></Meta><Key><Data>` + base64.StdEncoding.EncodeToString(binKey) + `</Data></Key></KeyFile>`)

	tests := []struct {
		name string
		data []byte
		want []byte
	}{
		{"binary", binKey, binKey},
		{"hex", []byte(strings.Repeat("ab", 32)), binKey},
		{"xml v1", v1, binKey},
		{"other", other, otherHash[:]},
		{"foreign xml", notKeyFileXML, notKeyFileHash[:]},
	}
	for _, test := range tests {
		got, err := ProcessKeyFile(test.data, nil)
		if err != nil {
			t.Errorf("ProcessKeyFile(%s): %v", test.name, err)
			continue
		}
		if !bytes.Equal(got.Bytes(), test.want) {
			t.Errorf("ProcessKeyFile(%s) = %x; want %x", test.name, got.Bytes(), test.want)
		}
	}
}

func TestGeneratedKeyFile(t *testing.T) {
	kf, err := GenerateKeyFile(fakerand.New())
	if err != nil {
		t.Fatal("GenerateKeyFile:", err)
	}
	got, err := ProcessKeyFile(kf, nil)
	if err != nil {
		t.Fatalf("ProcessKeyFile(generated): %v\n%s", err, kf)
	}
	if got.Len() != 32 {
		t.Errorf("key length = %d; want 32", got.Len())
	}
	if sum := sha256.Sum256(kf); bytes.Equal(got.Bytes(), sum[:]) {
		t.Error("generated key file was hashed instead of parsed")
	}

	// Flip one hex digit of the key; the stored hash no longer matches.
	i := bytes.Index(kf, []byte("\">")) + 6
	tampered := append([]byte(nil), kf...)
	if tampered[i] == '0' {
		tampered[i] = '1'
	} else {
		tampered[i] = '0'
	}
	if _, err := ProcessKeyFile(tampered, nil); !errors.Is(err, ErrKeyFileCorrupted) {
		t.Errorf("ProcessKeyFile(tampered) error = %v; want %v", err, ErrKeyFileCorrupted)
	}
}

func TestKeyFileErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		err  error
	}{
		{"version 3", `<KeyFile><Meta><Version>3.0</Version></Meta><Key><Data>00</Data></Key></KeyFile>`, ErrKeyFileUnsupported},
		{"no version", `<KeyFile><Key><Data>00</Data></Key></KeyFile>`, ErrKeyFileCorrupted},
		{"bad base64", `<KeyFile><Meta><Version>1.0</Version></Meta><Key><Data>!!!</Data></Key></KeyFile>`, ErrKeyFileCorrupted},
		{"short key", `<KeyFile><Meta><Version>2.0</Version></Meta><Key><Data>00ff</Data></Key></KeyFile>`, ErrKeyFileCorrupted},
		{"unclosed", `<KeyFile><Meta><Version>2.0</Version></Meta><Key>`, ErrKeyFileCorrupted},
	}
	for _, test := range tests {
		_, err := ProcessKeyFile([]byte(test.data), nil)
		if !errors.Is(err, test.err) {
			t.Errorf("ProcessKeyFile(%s) error = %v; want %v", test.name, err, test.err)
		}
	}
}

type fixedParser []byte

func (p fixedParser) ParseKeyFile(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, []byte("FIXED")) {
		return nil, ErrNotKeyFile
	}
	return append([]byte(nil), p...), nil
}

func TestCustomKeyFileParser(t *testing.T) {
	key := bytes.Repeat([]byte{1}, 32)
	got, err := ProcessKeyFile([]byte("FIXED key file"), fixedParser(key))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Bytes(), key) {
		t.Errorf("ProcessKeyFile with custom parser = %x; want %x", got.Bytes(), key)
	}
}
