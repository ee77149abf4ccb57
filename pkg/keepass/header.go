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
	"compress/gzip"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"zombiezen.com/go/kdbxd/pkg/kdbcrypt"
	"zombiezen.com/go/kdbxd/pkg/securebuf"
	"zombiezen.com/go/kdbxd/pkg/uuids"
	"zombiezen.com/go/kdbxd/pkg/vardict"
)

// File header magic numbers
const (
	magic1 = 0x9aa2d903
	magic2 = 0xb54bfb67

	fileVersionCriticalMask = 0xffff0000
)

// FormatVersion is a KDBX file format version.
type FormatVersion uint32

// Supported format versions.
const (
	Version4  FormatVersion = 0x00040000
	Version41 FormatVersion = 0x00040001
)

func (v FormatVersion) String() string {
	switch v {
	case Version4:
		return "4.0"
	case Version41:
		return "4.1"
	default:
		return fmt.Sprintf("%d.%d", uint32(v)>>16, uint32(v)&0xffff)
	}
}

// Outer header field ids
const (
	commentField          = 1
	cipherIDField         = 2
	compressionFlagsField = 3
	masterSeedField       = 4
	transformSeedField    = 5 // KDBX3
	transformRoundsField  = 6 // KDBX3
	encryptionIVField     = 7
	protectedKeyField     = 8 // KDBX3
	streamStartBytesField = 9 // KDBX3
	innerStreamIDField    = 10 // KDBX3
	kdfParametersField    = 11
	publicCustomDataField = 12
)

var legacyFieldNames = map[uint8]string{
	transformSeedField:    "transformSeed",
	transformRoundsField:  "transformRounds",
	protectedKeyField:     "protectedStreamKey",
	streamStartBytesField: "streamStartBytes",
	innerStreamIDField:    "innerRandomStreamID",
}

// Compression algorithms
const (
	noCompression   = 0
	gzipCompression = 1
)

const masterSeedSize = 32

// header holds the decoded outer header along with the exact bytes it
// was read from or written as.
type header struct {
	version          FormatVersion
	cipher           kdbcrypt.Cipher
	compressed       bool
	masterSeed       []byte
	iv               []byte
	kdf              *kdbcrypt.KDFParams
	publicCustomData *vardict.Dict

	raw  []byte
	hash [sha256.Size]byte
}

// readHeader reads the outer header from r, consuming exactly its bytes.
func readHeader(r io.Reader, log logrus.FieldLogger) (*header, error) {
	raw := new(bytes.Buffer)
	tee := io.TeeReader(r, raw)
	rr := reader{r: tee}
	sig1 := rr.readUint32()
	sig2 := rr.readUint32()
	version := rr.readUint32()
	if rr.err != nil {
		return nil, &HeaderError{Kind: ReadingError, Err: rr.err}
	}
	if sig1 != magic1 || sig2 != magic2 {
		return nil, &HeaderError{Kind: WrongSignature}
	}
	if version&fileVersionCriticalMask != uint32(Version4)&fileVersionCriticalMask {
		return nil, &HeaderError{Kind: UnsupportedFileVersion, Err: fmt.Errorf("version %#08x", version)}
	}
	h := new(header)
	if version == uint32(Version4) {
		h.version = Version4
	} else {
		h.version = Version41
	}

	seen := make(map[uint8]bool)
	fr := newFieldReader(tee, false)
	for {
		id, val, err := fr.next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, &HeaderError{Kind: ReadingError, Err: err}
		}
		if err := h.readField(id, val, log); err != nil {
			return nil, err
		}
		seen[id] = true
	}

	for _, m := range []struct {
		id   uint8
		name string
	}{
		{cipherIDField, "cipherID"},
		{compressionFlagsField, "compressionFlags"},
		{masterSeedField, "masterSeed"},
		{encryptionIVField, "encryptionIV"},
		{kdfParametersField, "kdfParameters"},
	} {
		if !seen[m.id] {
			return nil, corruptedField(m.name, errors.New("missing"))
		}
	}
	if err := verifyFieldSize("encryptionIV", h.iv, h.cipher.IVSize()); err != nil {
		return nil, err
	}
	h.raw = raw.Bytes()
	h.hash = sha256.Sum256(h.raw)
	return h, nil
}

func (h *header) readField(id uint8, val []byte, log logrus.FieldLogger) error {
	if name, ok := legacyFieldNames[id]; ok {
		return corruptedField(name, errors.New("not allowed in KDBX4"))
	}
	switch id {
	case commentField:
		// ignore
	case cipherIDField:
		u, err := uuids.FromBytes(val)
		if err != nil {
			return corruptedField("cipherID", err)
		}
		h.cipher, err = kdbcrypt.CipherByUUID(u)
		if err != nil {
			return &HeaderError{Kind: UnsupportedDataCipher, Err: err}
		}
	case compressionFlagsField:
		if err := verifyFieldSize("compressionFlags", val, 4); err != nil {
			return err
		}
		switch binary.LittleEndian.Uint32(val) {
		case noCompression:
			h.compressed = false
		case gzipCompression:
			h.compressed = true
		default:
			return &HeaderError{Kind: UnknownCompression}
		}
	case masterSeedField:
		if err := verifyFieldSize("masterSeed", val, masterSeedSize); err != nil {
			return err
		}
		h.masterSeed = append([]byte(nil), val...)
	case encryptionIVField:
		if len(val) == 0 {
			return corruptedField("encryptionIV", errors.New("empty"))
		}
		h.iv = append([]byte(nil), val...)
	case kdfParametersField:
		d, err := vardict.Parse(val)
		if err != nil {
			return corruptedField("kdfParameters", err)
		}
		h.kdf, err = kdbcrypt.ParseKDFParams(d)
		if errors.Is(err, kdbcrypt.ErrUnsupportedKDF) {
			return &HeaderError{Kind: UnsupportedKDF, Err: err}
		} else if err != nil {
			return corruptedField("kdfParameters", err)
		}
	case publicCustomDataField:
		d, err := vardict.Parse(val)
		if err != nil {
			return corruptedField("publicCustomData", err)
		}
		h.publicCustomData = d
	default:
		log.WithField("field_id", id).Warn("skipping unknown header field")
	}
	return nil
}

// write serializes the header to w and records the written bytes as
// the header's raw form.
func (h *header) write(w io.Writer) error {
	buf := new(bytes.Buffer)
	ww := &writer{w: buf}
	ww.writeUint32(magic1)
	ww.writeUint32(magic2)
	ww.writeUint32(uint32(h.version))
	cid := h.cipher.UUID()
	writeField(ww, cipherIDField, cid[:])
	if h.compressed {
		writeUint32Field(ww, compressionFlagsField, gzipCompression)
	} else {
		writeUint32Field(ww, compressionFlagsField, noCompression)
	}
	writeField(ww, masterSeedField, h.masterSeed)
	kdf, err := h.kdf.Dict().MarshalBinary()
	if err != nil {
		return err
	}
	writeField(ww, kdfParametersField, kdf)
	writeField(ww, encryptionIVField, h.iv)
	if h.publicCustomData.Len() > 0 {
		pcd, err := h.publicCustomData.MarshalBinary()
		if err != nil {
			return err
		}
		writeField(ww, publicCustomDataField, pcd)
	}
	writeField(ww, fieldEnd, nil)
	if ww.err != nil {
		return ww.err
	}
	h.raw = buf.Bytes()
	h.hash = sha256.Sum256(h.raw)
	_, err = w.Write(h.raw)
	return err
}

// hmac returns the HMAC that binds the raw header to hmacKey.
func (h *header) hmac(hmacKey []byte) [sha256.Size]byte {
	return kdbcrypt.HeaderHMAC(h.raw, hmacKey)
}

// Inner header field ids
const (
	innerStreamIDFieldV4  = 1
	innerStreamKeyFieldV4 = 2
	innerBinaryFieldV4    = 3
)

const binaryProtectedFlag = 0x01

// innerHeader is the header at the start of the decrypted payload.
type innerHeader struct {
	streamID  kdbcrypt.StreamID
	streamKey *securebuf.Buffer
	binaries  []*Binary

	// stream is constructed when the header's end field is read.
	stream cipher.Stream
}

// readInnerHeader reads the inner header from r.  It returns the
// number of bytes consumed so the caller can locate the XML payload.
func readInnerHeader(r io.Reader, log logrus.FieldLogger) (*innerHeader, int64, error) {
	cr := &countingReader{r: r}
	ih := new(innerHeader)
	fr := newFieldReader(cr, true)
	for {
		id, val, err := fr.next()
		if err != nil && err != io.EOF {
			ih.erase()
			return nil, cr.n, &HeaderError{Kind: ReadingError, Err: err}
		}
		if err == io.EOF {
			break
		}
		switch id {
		case innerStreamIDFieldV4:
			if err := verifyFieldSize("innerRandomStreamID", val, 4); err != nil {
				ih.erase()
				return nil, cr.n, err
			}
			ih.streamID = kdbcrypt.StreamID(binary.LittleEndian.Uint32(val))
		case innerStreamKeyFieldV4:
			if len(val) == 0 {
				ih.erase()
				return nil, cr.n, corruptedField("innerRandomStreamKey", errors.New("empty"))
			}
			ih.streamKey.Erase()
			ih.streamKey = securebuf.Copy(val)
			wipeBytes(val)
		case innerBinaryFieldV4:
			if len(val) == 0 {
				ih.erase()
				return nil, cr.n, corruptedField("binary", errors.New("missing flags"))
			}
			ih.binaries = append(ih.binaries, &Binary{
				ID:          len(ih.binaries),
				Data:        append([]byte(nil), val[1:]...),
				IsProtected: val[0]&binaryProtectedFlag != 0,
			})
		default:
			log.WithField("field_id", id).Warn("skipping unknown inner header field")
		}
	}
	stream, err := kdbcrypt.NewProtectedStream(ih.streamID, ih.streamKey.Bytes())
	if err != nil {
		ih.erase()
		return nil, cr.n, &HeaderError{Kind: UnsupportedStreamCipher, Err: err}
	}
	ih.stream = stream
	return ih, cr.n, nil
}

// write serializes the inner header with binaries in id order.
// Compressed binaries are stored decompressed.
func (ih *innerHeader) write(w io.Writer) error {
	ww := &writer{w: w}
	writeUint32Field(ww, innerStreamIDFieldV4, uint32(ih.streamID))
	writeField(ww, innerStreamKeyFieldV4, ih.streamKey.Bytes())
	for _, b := range ih.binaries {
		data := b.Data
		if b.IsCompressed {
			var err error
			data, err = gunzip(b.Data)
			if err != nil {
				return &HeaderError{Kind: BinaryUncompression, Err: err}
			}
		}
		var flags byte
		if b.IsProtected {
			flags |= binaryProtectedFlag
		}
		ww.write([]byte{innerBinaryFieldV4})
		ww.writeUint32(uint32(len(data) + 1))
		ww.write([]byte{flags})
		ww.write(data)
	}
	writeField(ww, fieldEnd, nil)
	return ww.err
}

func (ih *innerHeader) erase() {
	if ih == nil {
		return
	}
	ih.streamKey.Erase()
	ih.stream = nil
}

func gunzip(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func gzipBytes(b []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := gzip.NewWriter(buf)
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}
