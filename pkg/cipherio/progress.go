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

package cipherio

import (
	"context"
	"io"
	"sync/atomic"
)

// CheckInterval is the number of bytes transferred between
// cancellation checks in readers and writers returned by WithContext
// and WriterWithContext.
const CheckInterval = 64 * 1024

type ctxReader struct {
	ctx     context.Context
	r       io.Reader
	counter *atomic.Int64
	since   int
}

// WithContext returns a reader that stops with ctx.Err() once ctx is
// done.  The context is checked before the first read and then every
// CheckInterval bytes.  If counter is not nil, it is incremented by
// the number of bytes read.
func WithContext(ctx context.Context, r io.Reader, counter *atomic.Int64) io.Reader {
	return &ctxReader{ctx: ctx, r: r, counter: counter, since: CheckInterval}
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if cr.since >= CheckInterval {
		if err := cr.ctx.Err(); err != nil {
			return 0, err
		}
		cr.since = 0
	}
	if len(p) > CheckInterval-cr.since {
		p = p[:CheckInterval-cr.since]
	}
	n, err := cr.r.Read(p)
	cr.since += n
	if cr.counter != nil {
		cr.counter.Add(int64(n))
	}
	return n, err
}

type ctxWriter struct {
	ctx     context.Context
	w       io.Writer
	counter *atomic.Int64
	since   int
}

// WriterWithContext is the writing counterpart of WithContext.
func WriterWithContext(ctx context.Context, w io.Writer, counter *atomic.Int64) io.Writer {
	return &ctxWriter{ctx: ctx, w: w, counter: counter, since: CheckInterval}
}

func (cw *ctxWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		if cw.since >= CheckInterval {
			if err := cw.ctx.Err(); err != nil {
				return written, err
			}
			cw.since = 0
		}
		chunk := p
		if len(chunk) > CheckInterval-cw.since {
			chunk = chunk[:CheckInterval-cw.since]
		}
		n, err := cw.w.Write(chunk)
		written += n
		cw.since += n
		if cw.counter != nil {
			cw.counter.Add(int64(n))
		}
		if err != nil {
			return written, err
		}
		p = p[n:]
	}
	return written, nil
}
