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
	"encoding/binary"
	"fmt"
	"io"
)

// fieldEnd is the id of the terminating header field.
const fieldEnd = 0

type fieldReader struct {
	r   reader
	buf bytes.Buffer

	// signed selects the inner header's int32 lengths.
	signed bool
}

func newFieldReader(r io.Reader, signed bool) *fieldReader {
	return &fieldReader{r: reader{r: r}, signed: signed}
}

// next returns the next field in the input.  val is valid until the
// subsequent call to next.  When the terminating field is read, the
// error is io.EOF.
func (fr *fieldReader) next() (id uint8, val []byte, err error) {
	if fr.r.err != nil {
		return 0, nil, fr.r.err
	}
	id = fr.r.readUint8()
	n := fr.r.readUint32()
	if fr.r.err != nil {
		return 0, nil, fr.r.err
	}
	if fr.signed && int32(n) < 0 {
		fr.r.err = fmt.Errorf("field %d has negative length %d", id, int32(n))
		return 0, nil, fr.r.err
	}
	// Copy rather than preallocating so a corrupt length cannot force
	// a huge allocation.
	fr.buf.Reset()
	m, err := io.CopyN(&fr.buf, fr.r.r, int64(n))
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		fr.r.err = fmt.Errorf("field %d: read %d of %d bytes: %w", id, m, n, err)
		return 0, nil, fr.r.err
	}
	if id == fieldEnd {
		fr.r.err = io.EOF
	}
	return id, fr.buf.Bytes(), fr.r.err
}

type reader struct {
	r   io.Reader
	err error
}

func (r *reader) readFull(p []byte) {
	if r.err != nil {
		return
	}
	_, r.err = io.ReadFull(r.r, p)
}

func (r *reader) readUint8() uint8 {
	var buf [1]byte
	r.readFull(buf[:])
	if r.err != nil {
		return 0
	}
	return buf[0]
}

func (r *reader) readUint32() uint32 {
	var buf [4]byte
	r.readFull(buf[:])
	if r.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(buf[:])
}

type writer struct {
	w   io.Writer
	err error
}

func (w *writer) write(p []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(p)
}

func (w *writer) writeUint32(i uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], i)
	w.write(buf[:])
}

func writeField(w *writer, id uint8, val []byte) {
	w.write([]byte{id})
	w.writeUint32(uint32(len(val)))
	w.write(val)
}

func writeUint32Field(w *writer, id uint8, val uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], val)
	writeField(w, id, buf[:])
}

func verifyFieldSize(name string, val []byte, want int) error {
	n := len(val)
	if n != want {
		return corruptedField(name, fieldSizeError{n, want})
	}
	return nil
}

type fieldSizeError struct {
	size int
	want int
}

func (e fieldSizeError) Error() string {
	return fmt.Sprintf("size is %d, should be %d", e.size, e.want)
}
