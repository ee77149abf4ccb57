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
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"zombiezen.com/go/kdbxd/pkg/securebuf"
)

// KeyFileSize is the size of a processed key file.
const KeyFileSize = 32

// A KeyFileParser recognizes a structured key file format.  It returns
// ErrNotKeyFile if data is not in its format, so that processing can
// fall back to hashing the raw bytes.
type KeyFileParser interface {
	ParseKeyFile(data []byte) ([]byte, error)
}

// ErrNotKeyFile is returned by a KeyFileParser that does not recognize
// its input.
var ErrNotKeyFile = errors.New("kdbcrypt: not a structured key file")

// XMLKeyFileParser parses KeePass XML key files, versions 1.0 and 2.0.
var XMLKeyFileParser KeyFileParser = xmlKeyFileParser{}

// ProcessKeyFile turns the contents of a key file into 32 bytes of key
// material.  Exactly 32 bytes are used as-is, 64 hex digits are
// decoded, and formats recognized by parser (XMLKeyFileParser if nil)
// are extracted.  Anything else is hashed with SHA-256.
func ProcessKeyFile(data []byte, parser KeyFileParser) (*securebuf.Buffer, error) {
	switch len(data) {
	case KeyFileSize:
		return securebuf.Copy(data), nil
	case 2 * KeyFileSize:
		h := make([]byte, KeyFileSize)
		if _, err := hex.Decode(h, data); err == nil {
			return securebuf.New(h), nil
		}
		wipe(h)
	}
	if parser == nil {
		parser = XMLKeyFileParser
	}
	key, err := parser.ParseKeyFile(data)
	switch {
	case err == nil:
		if len(key) != KeyFileSize {
			wipe(key)
			return nil, &KeyFileError{Kind: Corrupted, Err: fmt.Errorf("key is %d bytes; want %d", len(key), KeyFileSize)}
		}
		return securebuf.New(key), nil
	case !errors.Is(err, ErrNotKeyFile):
		return nil, err
	}
	sum := sha256.Sum256(data)
	defer wipe(sum[:])
	return securebuf.Copy(sum[:]), nil
}

type xmlKeyFile struct {
	Meta struct {
		Version string `xml:"Version"`
	} `xml:"Meta"`
	Key struct {
		Data struct {
			Hash  string `xml:"Hash,attr"`
			Value string `xml:",chardata"`
		} `xml:"Data"`
	} `xml:"Key"`
}

type xmlKeyFileParser struct{}

func (xmlKeyFileParser) ParseKeyFile(data []byte) ([]byte, error) {
	trimmed := bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	trimmed = bytes.TrimSpace(trimmed)
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return nil, ErrNotKeyFile
	}
	d := xml.NewDecoder(bytes.NewReader(trimmed))
	var start xml.StartElement
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, ErrNotKeyFile
		}
		if se, ok := tok.(xml.StartElement); ok {
			start = se
			break
		}
	}
	if start.Name.Local != "KeyFile" {
		return nil, ErrNotKeyFile
	}
	var kf xmlKeyFile
	if err := d.DecodeElement(&kf, &start); err != nil && err != io.EOF {
		return nil, &KeyFileError{Kind: Corrupted, Err: err}
	}
	version := strings.TrimSpace(kf.Meta.Version)
	major, _, _ := strings.Cut(version, ".")
	switch major {
	case "1":
		key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(kf.Key.Data.Value))
		if err != nil {
			return nil, &KeyFileError{Kind: Corrupted, Err: err}
		}
		return key, nil
	case "2":
		digits := strings.Map(func(r rune) rune {
			switch r {
			case ' ', '\t', '\r', '\n':
				return -1
			}
			return r
		}, kf.Key.Data.Value)
		key, err := hex.DecodeString(digits)
		if err != nil {
			return nil, &KeyFileError{Kind: Corrupted, Err: err}
		}
		if want := strings.TrimSpace(kf.Key.Data.Hash); want != "" {
			sum := sha256.Sum256(key)
			if !strings.EqualFold(hex.EncodeToString(sum[:4]), want) {
				wipe(key)
				return nil, &KeyFileError{Kind: Corrupted, Err: errors.New("hash mismatch")}
			}
		}
		return key, nil
	case "":
		return nil, &KeyFileError{Kind: Corrupted, Err: errors.New("missing version")}
	default:
		return nil, &KeyFileError{Kind: UnsupportedFormat, Err: fmt.Errorf("version %q", version)}
	}
}

// GenerateKeyFile returns a new version 2.0 XML key file holding 32
// random bytes from rand.
func GenerateKeyFile(rand io.Reader) ([]byte, error) {
	key, err := RandomBytes(rand, KeyFileSize)
	if err != nil {
		return nil, err
	}
	defer wipe(key)
	sum := sha256.Sum256(key)
	digits := strings.ToUpper(hex.EncodeToString(key))

	buf := new(bytes.Buffer)
	buf.WriteString(xml.Header)
	buf.WriteString("<KeyFile>\n\t<Meta>\n\t\t<Version>2.0</Version>\n\t</Meta>\n\t<Key>\n")
	fmt.Fprintf(buf, "\t\t<Data Hash=\"%X\">\n", sum[:4])
	for line := 0; line < 2; line++ {
		buf.WriteString("\t\t\t")
		for g := 0; g < 4; g++ {
			if g > 0 {
				buf.WriteByte(' ')
			}
			off := line*32 + g*8
			buf.WriteString(digits[off : off+8])
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("\t\t</Data>\n\t</Key>\n</KeyFile>\n")
	return buf.Bytes(), nil
}
