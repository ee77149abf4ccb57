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

package fakerand

import (
	"bytes"
	"io"
	"testing"
)

func TestDeterministic(t *testing.T) {
	a := make([]byte, 100)
	b := make([]byte, 100)
	io.ReadFull(New(), a)
	r := New()
	io.ReadFull(r, b[:37])
	io.ReadFull(r, b[37:])
	if !bytes.Equal(a, b) {
		t.Errorf("two readers produced different output:\n%x\n%x", a, b)
	}
	if bytes.Equal(a, make([]byte, 100)) {
		t.Error("output is all zeros")
	}
}

func TestSeeds(t *testing.T) {
	a := make([]byte, 32)
	b := make([]byte, 32)
	io.ReadFull(NewSeeded(1), a)
	io.ReadFull(NewSeeded(2), b)
	if bytes.Equal(a, b) {
		t.Error("NewSeeded(1) and NewSeeded(2) produced the same output")
	}
}
