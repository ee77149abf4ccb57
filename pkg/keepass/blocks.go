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
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"zombiezen.com/go/kdbxd/pkg/kdbcrypt"
)

// blockSize is the payload size of every block but the last.
const blockSize = 1024 * 1024

// blockReader verifies and concatenates the HMAC-authenticated blocks
// that follow the outer header.
type blockReader struct {
	ctx     context.Context
	r       io.Reader
	hmacKey []byte

	index uint64
	block bytes.Buffer
	done  bool
	err   error
}

func newBlockReader(ctx context.Context, r io.Reader, hmacKey []byte) *blockReader {
	return &blockReader{ctx: ctx, r: r, hmacKey: hmacKey}
}

func (br *blockReader) Read(p []byte) (int, error) {
	for br.block.Len() == 0 {
		if br.err != nil {
			return 0, br.err
		}
		if br.done {
			return 0, io.EOF
		}
		br.err = br.next()
	}
	return br.block.Read(p)
}

// next reads and verifies one block.
func (br *blockReader) next() error {
	if err := br.ctx.Err(); err != nil {
		return err
	}
	rr := reader{r: br.r}
	var stored [sha256.Size]byte
	rr.readFull(stored[:])
	size := int32(rr.readUint32())
	if rr.err != nil {
		return &FormatError{Kind: PrematureDataEnd, Block: int(br.index), Err: rr.err}
	}
	if size < 0 {
		return &FormatError{Kind: NegativeBlockSize, Block: int(br.index)}
	}
	br.block.Reset()
	if n, err := io.CopyN(&br.block, br.r, int64(size)); err != nil || n != int64(size) {
		return &FormatError{Kind: PrematureDataEnd, Block: int(br.index)}
	}
	sum := kdbcrypt.BlockHMAC(br.index, br.block.Bytes(), br.hmacKey)
	if !hmac.Equal(sum[:], stored[:]) {
		br.block.Reset()
		return &FormatError{Kind: BlockHMACMismatch, Block: int(br.index)}
	}
	if size == 0 {
		br.done = true
	}
	br.index++
	return nil
}

// blockWriter splits its input into authenticated blocks.  Close
// flushes the last partial block and writes the terminating empty
// block, but does not close the underlying writer.
type blockWriter struct {
	ctx     context.Context
	w       io.Writer
	hmacKey []byte

	index uint64
	buf   []byte
	err   error
}

func newBlockWriter(ctx context.Context, w io.Writer, hmacKey []byte) *blockWriter {
	return &blockWriter{
		ctx:     ctx,
		w:       w,
		hmacKey: hmacKey,
		buf:     make([]byte, 0, blockSize),
	}
}

func (bw *blockWriter) Write(p []byte) (int, error) {
	n := 0
	for len(p) > 0 {
		if bw.err != nil {
			return n, bw.err
		}
		k := copy(bw.buf[len(bw.buf):cap(bw.buf)], p)
		bw.buf = bw.buf[:len(bw.buf)+k]
		p = p[k:]
		n += k
		if len(bw.buf) == cap(bw.buf) {
			bw.flush()
		}
	}
	return n, bw.err
}

func (bw *blockWriter) flush() {
	if bw.err != nil {
		return
	}
	if err := bw.ctx.Err(); err != nil {
		bw.err = err
		return
	}
	sum := kdbcrypt.BlockHMAC(bw.index, bw.buf, bw.hmacKey)
	ww := &writer{w: bw.w}
	ww.write(sum[:])
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(bw.buf)))
	ww.write(size[:])
	ww.write(bw.buf)
	bw.err = ww.err
	bw.index++
	bw.buf = bw.buf[:0]
}

func (bw *blockWriter) Close() error {
	if len(bw.buf) > 0 {
		bw.flush()
	}
	// Terminator
	bw.flush()
	return bw.err
}
