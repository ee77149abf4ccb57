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
	"bytes"
	"errors"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"zombiezen.com/go/kdbxd/pkg/kdbcrypt"
	"zombiezen.com/go/kdbxd/pkg/securebuf"
	"zombiezen.com/go/kdbxd/pkg/vardict"
)

func testHeader() *header {
	pcd := new(vardict.Dict)
	pcd.SetString("app", "kdbxd")
	return &header{
		version:          Version41,
		cipher:           kdbcrypt.ChaCha20Cipher,
		compressed:       true,
		masterSeed:       bytes.Repeat([]byte{1}, masterSeedSize),
		iv:               bytes.Repeat([]byte{2}, kdbcrypt.ChaCha20Cipher.IVSize()),
		kdf:              fastKDF(),
		publicCustomData: pcd,
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := testHeader()
	buf := new(bytes.Buffer)
	if err := h.write(buf); err != nil {
		t.Fatal("write:", err)
	}
	buf.WriteString("payload")
	log, _ := logtest.NewNullLogger()
	got, err := readHeader(buf, log)
	if err != nil {
		t.Fatal("readHeader:", err)
	}
	if rest := buf.String(); rest != "payload" {
		t.Errorf("readHeader left %q unread; want %q", rest, "payload")
	}
	if got.version != h.version || got.cipher != h.cipher || got.compressed != h.compressed {
		t.Errorf("readHeader = {version %v, cipher %v, compressed %t}; want {%v, %v, %t}", got.version, got.cipher, got.compressed, h.version, h.cipher, h.compressed)
	}
	if !bytes.Equal(got.masterSeed, h.masterSeed) || !bytes.Equal(got.iv, h.iv) {
		t.Error("master seed or IV changed in round trip")
	}
	if !got.kdf.Equal(h.kdf) {
		t.Errorf("kdf = %+v; want %+v", got.kdf, h.kdf)
	}
	if s, _ := got.publicCustomData.String("app"); s != "kdbxd" {
		t.Errorf("public custom data app = %q; want %q", s, "kdbxd")
	}
	if !bytes.Equal(got.raw, h.raw) || got.hash != h.hash {
		t.Error("raw header bytes or hash differ from what was written")
	}
}

// rawHeader builds a header with the given fields after a valid
// signature and version.
func rawHeader(version uint32, fields func(ww *writer)) []byte {
	buf := new(bytes.Buffer)
	ww := &writer{w: buf}
	ww.writeUint32(magic1)
	ww.writeUint32(magic2)
	ww.writeUint32(version)
	fields(ww)
	writeField(ww, fieldEnd, nil)
	return buf.Bytes()
}

func validFields(skip uint8, iv []byte) func(*writer) {
	return func(ww *writer) {
		if skip != cipherIDField {
			cid := kdbcrypt.AES256Cipher.UUID()
			writeField(ww, cipherIDField, cid[:])
		}
		if skip != compressionFlagsField {
			writeUint32Field(ww, compressionFlagsField, noCompression)
		}
		if skip != masterSeedField {
			writeField(ww, masterSeedField, make([]byte, masterSeedSize))
		}
		if skip != encryptionIVField {
			writeField(ww, encryptionIVField, iv)
		}
		if skip != kdfParametersField {
			kdf, _ := fastKDF().Dict().MarshalBinary()
			writeField(ww, kdfParametersField, kdf)
		}
	}
}

func TestReadHeaderErrors(t *testing.T) {
	iv := make([]byte, 16)
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, &HeaderError{Kind: ReadingError}},
		{"signature", []byte{1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 4, 0}, ErrWrongSignature},
		{"version 3", rawHeader(0x00030001, validFields(0, iv)), ErrWrongVersion},
		{"version 5", rawHeader(0x00050000, validFields(0, iv)), ErrWrongVersion},
		{"missing cipher", rawHeader(uint32(Version4), validFields(cipherIDField, iv)), corruptedField("cipherID", nil)},
		{"missing KDF", rawHeader(uint32(Version4), validFields(kdfParametersField, iv)), corruptedField("kdfParameters", nil)},
		{"short IV", rawHeader(uint32(Version4), validFields(0, iv[:12])), corruptedField("encryptionIV", nil)},
		{
			"legacy field",
			rawHeader(uint32(Version4), func(ww *writer) {
				validFields(0, iv)(ww)
				writeUint32Field(ww, transformRoundsField, 6000)
			}),
			corruptedField("transformRounds", nil),
		},
		{
			"unknown cipher",
			rawHeader(uint32(Version4), func(ww *writer) {
				writeField(ww, cipherIDField, bytes.Repeat([]byte{0xee}, 16))
			}),
			ErrUnknownEncryption,
		},
		{
			"compression",
			rawHeader(uint32(Version4), func(ww *writer) {
				writeUint32Field(ww, compressionFlagsField, 7)
			}),
			&HeaderError{Kind: UnknownCompression},
		},
		{
			"seed size",
			rawHeader(uint32(Version4), func(ww *writer) {
				writeField(ww, masterSeedField, make([]byte, 16))
			}),
			corruptedField("masterSeed", nil),
		},
	}
	for _, test := range tests {
		log, _ := logtest.NewNullLogger()
		_, err := readHeader(bytes.NewReader(test.data), log)
		if !errors.Is(err, test.want) {
			t.Errorf("%s: readHeader error = %v; want %v", test.name, err, test.want)
		}
	}
}

func TestReadHeaderUnknownField(t *testing.T) {
	data := rawHeader(uint32(Version4), func(ww *writer) {
		validFields(0, make([]byte, 16))(ww)
		writeField(ww, 99, []byte("future"))
	})
	log, hook := logtest.NewNullLogger()
	h, err := readHeader(bytes.NewReader(data), log)
	if err != nil {
		t.Fatal("readHeader:", err)
	}
	if h.version != Version4 {
		t.Errorf("version = %v; want %v", h.version, Version4)
	}
	if e := hook.LastEntry(); e == nil || e.Data["field_id"] != uint8(99) {
		t.Errorf("last log entry = %v; want warning about field 99", e)
	}
}

func TestInnerHeaderRoundTrip(t *testing.T) {
	zipped, err := gzipBytes([]byte("compressed attachment"))
	if err != nil {
		t.Fatal(err)
	}
	ih := &innerHeader{
		streamID:  kdbcrypt.ChaCha20Stream,
		streamKey: securebuf.New(bytes.Repeat([]byte{9}, 64)),
		binaries: []*Binary{
			{ID: 0, Data: []byte("plain"), IsProtected: true},
			{ID: 1, Data: zipped, IsCompressed: true},
		},
	}
	buf := new(bytes.Buffer)
	if err := ih.write(buf); err != nil {
		t.Fatal("write:", err)
	}
	n := int64(buf.Len())
	buf.WriteString("<?xml")
	log, _ := logtest.NewNullLogger()
	got, consumed, err := readInnerHeader(buf, log)
	if err != nil {
		t.Fatal("readInnerHeader:", err)
	}
	if consumed != n {
		t.Errorf("readInnerHeader consumed %d bytes; want %d", consumed, n)
	}
	if got.streamID != kdbcrypt.ChaCha20Stream || !got.streamKey.Equal(ih.streamKey) {
		t.Errorf("stream = %v/%x; want %v/%x", got.streamID, got.streamKey.Bytes(), ih.streamID, ih.streamKey.Bytes())
	}
	if got.stream == nil {
		t.Error("protected stream not constructed")
	}
	want := []struct {
		data      string
		protected bool
	}{
		{"plain", true},
		{"compressed attachment", false},
	}
	if len(got.binaries) != len(want) {
		t.Fatalf("len(binaries) = %d; want %d", len(got.binaries), len(want))
	}
	for i, w := range want {
		b := got.binaries[i]
		if b.ID != i || string(b.Data) != w.data || b.IsProtected != w.protected || b.IsCompressed {
			t.Errorf("binaries[%d] = {%d %q protected=%t compressed=%t}; want {%d %q protected=%t compressed=false}", i, b.ID, b.Data, b.IsProtected, b.IsCompressed, i, w.data, w.protected)
		}
	}
}

func TestInnerHeaderErrors(t *testing.T) {
	tests := []struct {
		name   string
		fields func(ww *writer)
		want   error
	}{
		{"unsupported stream", func(ww *writer) {
			writeUint32Field(ww, innerStreamIDFieldV4, 1)
			writeField(ww, innerStreamKeyFieldV4, make([]byte, 32))
		}, &HeaderError{Kind: UnsupportedStreamCipher}},
		{"empty key", func(ww *writer) {
			writeUint32Field(ww, innerStreamIDFieldV4, uint32(kdbcrypt.ChaCha20Stream))
			writeField(ww, innerStreamKeyFieldV4, nil)
		}, corruptedField("innerRandomStreamKey", nil)},
		{"binary without flags", func(ww *writer) {
			writeField(ww, innerBinaryFieldV4, nil)
		}, corruptedField("binary", nil)},
		{"negative length", func(ww *writer) {
			ww.write([]byte{innerBinaryFieldV4})
			ww.writeUint32(0xfffffff0)
		}, &HeaderError{Kind: ReadingError}},
	}
	for _, test := range tests {
		buf := new(bytes.Buffer)
		ww := &writer{w: buf}
		test.fields(ww)
		writeField(ww, fieldEnd, nil)
		log, _ := logtest.NewNullLogger()
		_, _, err := readInnerHeader(buf, log)
		if !errors.Is(err, test.want) {
			t.Errorf("%s: readInnerHeader error = %v; want %v", test.name, err, test.want)
		}
	}
}
