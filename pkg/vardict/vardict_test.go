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

package vardict

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	// {"R": UInt64(6000), "S": ByteArray{1,2}}
	raw := []byte{
		0x00, 0x01,
		0x05, 1, 0, 0, 0, 'R', 8, 0, 0, 0, 0x70, 0x17, 0, 0, 0, 0, 0, 0,
		0x42, 1, 0, 0, 0, 'S', 2, 0, 0, 0, 1, 2,
		0x00,
	}
	d, err := Parse(raw)
	if err != nil {
		t.Fatal("Parse:", err)
	}
	if got, want := d.Keys(), []string{"R", "S"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %q; want %q", got, want)
	}
	if r, ok := d.UInt64("R"); !ok || r != 6000 {
		t.Errorf("UInt64(\"R\") = %d, %t; want 6000, true", r, ok)
	}
	if s, ok := d.Bytes("S"); !ok || !bytes.Equal(s, []byte{1, 2}) {
		t.Errorf("Bytes(\"S\") = %v, %t; want [1 2], true", s, ok)
	}
	if _, ok := d.UInt32("R"); ok {
		t.Error("UInt32(\"R\") ok = true for a UInt64 key")
	}
	out, err := d.MarshalBinary()
	if err != nil {
		t.Fatal("MarshalBinary:", err)
	}
	if !bytes.Equal(out, raw) {
		t.Errorf("MarshalBinary() = %v; want %v", out, raw)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		err  error
	}{
		{"empty", nil, ErrTruncated},
		{"no end", []byte{0x00, 0x01}, ErrTruncated},
		{"future major version", []byte{0x00, 0x02, 0x00}, ErrUnsupportedVersion},
		{"short key", []byte{0x00, 0x01, 0x04, 9, 0, 0, 0, 'x'}, ErrTruncated},
		{"short value", []byte{0x00, 0x01, 0x04, 1, 0, 0, 0, 'x', 4, 0, 0, 0, 1}, ErrTruncated},
	}
	for _, test := range tests {
		_, err := Parse(test.raw)
		if !errors.Is(err, test.err) {
			t.Errorf("Parse(%s) error = %v; want %v", test.name, err, test.err)
		}
	}

	bad := [][]byte{
		// UInt32 with 3-byte value
		{0x00, 0x01, 0x04, 1, 0, 0, 0, 'x', 3, 0, 0, 0, 1, 2, 3, 0x00},
		// unknown type 0x77
		{0x00, 0x01, 0x77, 1, 0, 0, 0, 'x', 0, 0, 0, 0, 0x00},
	}
	for _, raw := range bad {
		if _, err := Parse(raw); err == nil {
			t.Errorf("Parse(%v) did not return an error", raw)
		}
	}
}

func TestMinorVersionAccepted(t *testing.T) {
	d, err := Parse([]byte{0x05, 0x01, 0x00})
	if err != nil {
		t.Fatal("Parse(version 0x0105):", err)
	}
	if d.Len() != 0 {
		t.Errorf("Len() = %d; want 0", d.Len())
	}
}

func TestRoundTripAllTypes(t *testing.T) {
	d := new(Dict)
	d.SetString("$name", "argon")
	d.SetUInt32("u32", 0xdeadbeef)
	d.SetUInt64("u64", 1<<40)
	d.SetBool("flag", true)
	d.SetInt32("i32", -7)
	d.SetInt64("i64", -1<<40)
	d.SetBytes("blob", []byte("xyz"))
	d.SetUInt32("u32", 42) // replace in place

	raw, err := d.MarshalBinary()
	if err != nil {
		t.Fatal("MarshalBinary:", err)
	}
	got, err := Parse(raw)
	if err != nil {
		t.Fatal("Parse:", err)
	}
	if want := []string{"$name", "u32", "u64", "flag", "i32", "i64", "blob"}; !reflect.DeepEqual(got.Keys(), want) {
		t.Errorf("Keys() = %q; want %q", got.Keys(), want)
	}
	if v, _ := got.String("$name"); v != "argon" {
		t.Errorf("String(\"$name\") = %q; want \"argon\"", v)
	}
	if v, _ := got.UInt32("u32"); v != 42 {
		t.Errorf("UInt32(\"u32\") = %d; want 42", v)
	}
	if v, _ := got.UInt64("u64"); v != 1<<40 {
		t.Errorf("UInt64(\"u64\") = %d; want %d", v, uint64(1<<40))
	}
	if v, ok := got.Bool("flag"); !ok || !v {
		t.Errorf("Bool(\"flag\") = %t, %t; want true, true", v, ok)
	}
	if v, _ := got.Int32("i32"); v != -7 {
		t.Errorf("Int32(\"i32\") = %d; want -7", v)
	}
	if v, _ := got.Int64("i64"); v != -1<<40 {
		t.Errorf("Int64(\"i64\") = %d; want %d", v, int64(-1<<40))
	}
	if typ, _ := got.Type("blob"); typ != ByteArray {
		t.Errorf("Type(\"blob\") = %v; want %v", typ, ByteArray)
	}
}

func TestCloneAndDelete(t *testing.T) {
	d := new(Dict)
	d.SetBytes("S", []byte{1})
	d.SetUInt32("P", 2)
	c := d.Clone()
	c.Delete("S")
	c.SetUInt32("P", 3)
	if d.Len() != 2 {
		t.Errorf("original Len() = %d after modifying clone; want 2", d.Len())
	}
	if v, _ := d.UInt32("P"); v != 2 {
		t.Errorf("original P = %d after modifying clone; want 2", v)
	}
	if c.Len() != 1 {
		t.Errorf("clone Len() = %d; want 1", c.Len())
	}
}
