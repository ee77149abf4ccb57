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

// Package cipherio provides I/O interfaces for encryption streams.
package cipherio // import "zombiezen.com/go/kdbxd/pkg/cipherio"

import (
	"crypto/cipher"
	"errors"
	"io"

	"zombiezen.com/go/kdbxd/pkg/padding"
)

const defaultBufSize = 32 * 1024

type reader struct {
	r    io.Reader
	mode cipher.BlockMode
	pad  padding.Padding

	rbuf    []byte
	pending []byte // ciphertext not yet decrypted
	plain   []byte // decrypted bytes not yet returned
	sawData bool
	err     error
}

// NewReader creates a new reader that decrypts and strips padding from r.
// The last block is held back until r reports io.EOF, so that padding
// can be removed from it.
func NewReader(r io.Reader, mode cipher.BlockMode, pad padding.Padding) io.Reader {
	bufSize := defaultBufSize
	if bs := mode.BlockSize(); bs > bufSize {
		bufSize = bs
	}
	return &reader{
		r:    r,
		mode: mode,
		pad:  pad,
		rbuf: make([]byte, bufSize),
	}
}

func (r *reader) Read(p []byte) (int, error) {
	for len(r.plain) == 0 && r.err == nil {
		r.fill()
	}
	if len(r.plain) > 0 {
		n := copy(p, r.plain)
		r.plain = r.plain[n:]
		return n, nil
	}
	return 0, r.err
}

// fill reads more ciphertext and decrypts every whole block but the
// last, which is only decrypted once the end of input is known.
func (r *reader) fill() {
	bs := r.mode.BlockSize()
	n, err := r.r.Read(r.rbuf)
	if n > 0 {
		r.sawData = true
		r.pending = append(r.pending, r.rbuf[:n]...)
	}
	switch {
	case err == io.EOF:
		r.finish()
		return
	case err != nil:
		r.err = err
		return
	}
	ready := len(r.pending) - len(r.pending)%bs - bs
	if ready <= 0 {
		return
	}
	out := make([]byte, ready)
	r.mode.CryptBlocks(out, r.pending[:ready])
	r.pending = append(r.pending[:0], r.pending[ready:]...)
	r.plain = out
}

func (r *reader) finish() {
	bs := r.mode.BlockSize()
	if !r.sawData || len(r.pending)%bs != 0 || len(r.pending) == 0 {
		r.err = io.ErrUnexpectedEOF
		return
	}
	out := make([]byte, len(r.pending))
	r.mode.CryptBlocks(out, r.pending)
	r.pending = nil
	stripped, err := r.pad.Strip(out, bs)
	if err != nil {
		r.err = err
		return
	}
	r.plain = stripped
	r.err = io.EOF
}

type writer struct {
	w    io.Writer
	mode cipher.BlockMode
	pad  padding.Padding

	buf  []byte // scratch space for encryption, a multiple of the block size
	tail []byte // plaintext bytes that do not yet fill a block
	err  error
}

// NewWriter creates a new writer that encrypts its input and writes to w.
// Closing the writer adds the final padding but does not close w.
func NewWriter(w io.Writer, mode cipher.BlockMode, pad padding.Padding) io.WriteCloser {
	return newWriter(w, mode, pad, defaultBufSize)
}

func newWriter(w io.Writer, mode cipher.BlockMode, pad padding.Padding, bufSize int) io.WriteCloser {
	bs := mode.BlockSize()
	if bs > bufSize {
		panic("cipherio: block size larger than buffer")
	}
	return &writer{
		w:    w,
		mode: mode,
		pad:  pad,
		buf:  make([]byte, bufSize-bufSize%bs),
		tail: make([]byte, 0, bs),
	}
}

func (w *writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	bs := w.mode.BlockSize()
	n := 0
	if len(w.tail) > 0 {
		k := copy(w.tail[len(w.tail):bs], p)
		w.tail = w.tail[:len(w.tail)+k]
		n += k
		if len(w.tail) < bs {
			return n, nil
		}
		if err := w.emit(w.tail); err != nil {
			return 0, err
		}
		w.tail = w.tail[:0]
	}
	// Only partial blocks are kept in tail; Close pads them.
	for len(p)-n >= bs {
		k := len(p) - n
		k -= k % bs
		if k > len(w.buf) {
			k = len(w.buf)
		}
		copy(w.buf, p[n:n+k])
		if err := w.emit(w.buf[:k]); err != nil {
			return n, err
		}
		n += k
	}
	w.tail = append(w.tail, p[n:]...)
	return len(p), nil
}

func (w *writer) emit(b []byte) error {
	w.mode.CryptBlocks(b, b)
	if _, err := w.w.Write(b); err != nil {
		w.err = err
		return err
	}
	return nil
}

func (w *writer) Close() error {
	if w.err == errClosed {
		return nil
	} else if w.err != nil {
		return w.err
	}
	last := w.pad.Pad(w.tail, w.mode.BlockSize())
	err := w.emit(last)
	w.err = errClosed
	return err
}

var errClosed = errors.New("cipherio: write on closed writer")
