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
	"errors"
	"io"
	"io/ioutil"
	"testing"
)

func TestBlocksRoundTrip(t *testing.T) {
	hmacKey := bytes.Repeat([]byte{7}, 64)
	sizes := []int{0, 1, blockSize - 1, blockSize, blockSize + 1, 2*blockSize + 17}
	for _, n := range sizes {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i * 31)
		}
		buf := new(bytes.Buffer)
		bw := newBlockWriter(context.Background(), buf, hmacKey)
		// Write in uneven chunks.
		for p := data; len(p) > 0; {
			k := 4093
			if k > len(p) {
				k = len(p)
			}
			if _, err := bw.Write(p[:k]); err != nil {
				t.Fatalf("size %d: Write: %v", n, err)
			}
			p = p[k:]
		}
		if err := bw.Close(); err != nil {
			t.Fatalf("size %d: Close: %v", n, err)
		}
		wantBlocks := (n+blockSize-1)/blockSize + 1
		if want := n + wantBlocks*36; buf.Len() != want {
			t.Errorf("size %d: encoded length = %d; want %d", n, buf.Len(), want)
		}
		got, err := ioutil.ReadAll(newBlockReader(context.Background(), bytes.NewReader(buf.Bytes()), hmacKey))
		if err != nil {
			t.Errorf("size %d: read: %v", n, err)
			continue
		}
		if !bytes.Equal(got, data) {
			t.Errorf("size %d: round trip mismatch", n)
		}
	}
}

func TestBlockReaderErrors(t *testing.T) {
	hmacKey := bytes.Repeat([]byte{7}, 64)
	buf := new(bytes.Buffer)
	bw := newBlockWriter(context.Background(), buf, hmacKey)
	bw.Write([]byte("hello, blocks"))
	bw.Close()
	good := buf.Bytes()

	tests := []struct {
		name   string
		data   []byte
		key    []byte
		want   error
		wantEq int
	}{
		{"wrong key", good, bytes.Repeat([]byte{8}, 64), ErrBlockHMAC, 0},
		{"no terminator", good[:len(good)-36], hmacKey, ErrPrematureEnd, 1},
		{"short payload", good[:40], hmacKey, ErrPrematureEnd, 0},
		{"negative size", append(append([]byte(nil), good[:32]...), 0xff, 0xff, 0xff, 0xff), hmacKey, &FormatError{Kind: NegativeBlockSize}, 0},
	}
	for _, test := range tests {
		_, err := ioutil.ReadAll(newBlockReader(context.Background(), bytes.NewReader(test.data), test.key))
		if !errors.Is(err, test.want) {
			t.Errorf("%s: error = %v; want %v", test.name, err, test.want)
			continue
		}
		var ferr *FormatError
		if errors.As(err, &ferr) && ferr.Block != test.wantEq {
			t.Errorf("%s: error block = %d; want %d", test.name, ferr.Block, test.wantEq)
		}
	}
}

func TestBlockReaderCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newBlockReader(ctx, bytes.NewReader(nil), nil).Read(make([]byte, 1))
	if err != context.Canceled {
		t.Errorf("Read error = %v; want %v", err, context.Canceled)
	}
	bw := newBlockWriter(ctx, io.Discard, nil)
	if err := bw.Close(); err != context.Canceled {
		t.Errorf("Close error = %v; want %v", err, context.Canceled)
	}
}
