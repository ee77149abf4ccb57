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

// Package vardict reads and writes the KeePass variant dictionary: a
// small, self-describing, ordered map of typed values used for key
// derivation parameters and public custom data in KDBX4 headers.
package vardict // import "zombiezen.com/go/kdbxd/pkg/vardict"

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
)

// Version is the dictionary format version written by Marshal.
const Version = 0x0100

const criticalMask = 0xff00

// Type is a value type tag.
type Type uint8

// Value types.
const (
	UInt32    Type = 0x04
	UInt64    Type = 0x05
	Bool      Type = 0x08
	Int32     Type = 0x0c
	Int64     Type = 0x0d
	String    Type = 0x18
	ByteArray Type = 0x42

	end Type = 0x00
)

func (t Type) String() string {
	switch t {
	case UInt32:
		return "UInt32"
	case UInt64:
		return "UInt64"
	case Bool:
		return "Bool"
	case Int32:
		return "Int32"
	case Int64:
		return "Int64"
	case String:
		return "String"
	case ByteArray:
		return "ByteArray"
	default:
		return "Type(" + strconv.Itoa(int(t)) + ")"
	}
}

// size returns the fixed encoded size of t, or -1 for variable-size types.
func (t Type) size() int {
	switch t {
	case UInt32, Int32:
		return 4
	case UInt64, Int64:
		return 8
	case Bool:
		return 1
	default:
		return -1
	}
}

// Dict is an ordered map from names to typed values.  The zero value
// is an empty dictionary.  Keys keep the position of their first
// insertion.
type Dict struct {
	items []item
}

type item struct {
	key  string
	typ  Type
	data []byte
}

// Errors returned by Parse.
var (
	ErrUnsupportedVersion = errors.New("vardict: unsupported version")
	ErrTruncated          = errors.New("vardict: truncated data")
)

// Parse decodes a serialized dictionary.
func Parse(b []byte) (*Dict, error) {
	if len(b) < 2 {
		return nil, ErrTruncated
	}
	if v := binary.LittleEndian.Uint16(b); v&criticalMask > Version&criticalMask {
		return nil, fmt.Errorf("%w %#04x", ErrUnsupportedVersion, v)
	}
	b = b[2:]
	d := new(Dict)
	for {
		if len(b) < 1 {
			return nil, ErrTruncated
		}
		typ := Type(b[0])
		b = b[1:]
		if typ == end {
			return d, nil
		}
		key, rest, err := lengthPrefixed(b)
		if err != nil {
			return nil, err
		}
		data, rest, err := lengthPrefixed(rest)
		if err != nil {
			return nil, err
		}
		b = rest
		switch typ {
		case UInt32, UInt64, Bool, Int32, Int64, String, ByteArray:
		default:
			return nil, fmt.Errorf("vardict: key %q has unknown type %v", key, typ)
		}
		if n := typ.size(); n >= 0 && len(data) != n {
			return nil, fmt.Errorf("vardict: key %q: %v value is %d bytes; want %d", key, typ, len(data), n)
		}
		d.set(string(key), typ, append([]byte(nil), data...))
	}
}

func lengthPrefixed(b []byte) (data, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, ErrTruncated
	}
	n := binary.LittleEndian.Uint32(b)
	b = b[4:]
	if uint64(n) > uint64(len(b)) {
		return nil, nil, ErrTruncated
	}
	return b[:n], b[n:], nil
}

// MarshalBinary encodes the dictionary.  Parsing the result gives back
// the same keys, values, and order.
func (d *Dict) MarshalBinary() ([]byte, error) {
	n := 3
	for _, it := range d.all() {
		n += 9 + len(it.key) + len(it.data)
	}
	b := make([]byte, 0, n)
	b = binary.LittleEndian.AppendUint16(b, Version)
	for _, it := range d.all() {
		b = append(b, byte(it.typ))
		b = binary.LittleEndian.AppendUint32(b, uint32(len(it.key)))
		b = append(b, it.key...)
		b = binary.LittleEndian.AppendUint32(b, uint32(len(it.data)))
		b = append(b, it.data...)
	}
	b = append(b, byte(end))
	return b, nil
}

func (d *Dict) all() []item {
	if d == nil {
		return nil
	}
	return d.items
}

// Len returns the number of keys in d.
func (d *Dict) Len() int {
	return len(d.all())
}

// Keys returns the keys of d in order.
func (d *Dict) Keys() []string {
	keys := make([]string, 0, d.Len())
	for _, it := range d.all() {
		keys = append(keys, it.key)
	}
	return keys
}

// Type returns the type of the value stored under key.
func (d *Dict) Type(key string) (Type, bool) {
	it := d.find(key)
	if it == nil {
		return 0, false
	}
	return it.typ, true
}

// Clone returns a deep copy of d.
func (d *Dict) Clone() *Dict {
	c := &Dict{items: make([]item, len(d.all()))}
	for i, it := range d.all() {
		c.items[i] = item{key: it.key, typ: it.typ, data: append([]byte(nil), it.data...)}
	}
	return c
}

// Delete removes key from d.
func (d *Dict) Delete(key string) {
	if d == nil {
		return
	}
	for i := range d.items {
		if d.items[i].key == key {
			d.items = append(d.items[:i], d.items[i+1:]...)
			return
		}
	}
}

func (d *Dict) find(key string) *item {
	if d == nil {
		return nil
	}
	for i := range d.items {
		if d.items[i].key == key {
			return &d.items[i]
		}
	}
	return nil
}

func (d *Dict) get(key string, typ Type) ([]byte, bool) {
	it := d.find(key)
	if it == nil || it.typ != typ {
		return nil, false
	}
	return it.data, true
}

func (d *Dict) set(key string, typ Type, data []byte) {
	if it := d.find(key); it != nil {
		it.typ, it.data = typ, data
		return
	}
	d.items = append(d.items, item{key: key, typ: typ, data: data})
}

// UInt32 returns the value of a UInt32 key.  ok is false if the key is
// missing or has a different type.
func (d *Dict) UInt32(key string) (v uint32, ok bool) {
	b, ok := d.get(key, UInt32)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

// UInt64 returns the value of a UInt64 key.
func (d *Dict) UInt64(key string) (v uint64, ok bool) {
	b, ok := d.get(key, UInt64)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

// Bool returns the value of a Bool key.
func (d *Dict) Bool(key string) (v bool, ok bool) {
	b, ok := d.get(key, Bool)
	if !ok {
		return false, false
	}
	return b[0] != 0, true
}

// Int32 returns the value of an Int32 key.
func (d *Dict) Int32(key string) (v int32, ok bool) {
	b, ok := d.get(key, Int32)
	if !ok {
		return 0, false
	}
	return int32(binary.LittleEndian.Uint32(b)), true
}

// Int64 returns the value of an Int64 key.
func (d *Dict) Int64(key string) (v int64, ok bool) {
	b, ok := d.get(key, Int64)
	if !ok {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(b)), true
}

// String returns the value of a String key.
func (d *Dict) String(key string) (v string, ok bool) {
	b, ok := d.get(key, String)
	if !ok {
		return "", false
	}
	return string(b), true
}

// Bytes returns the value of a ByteArray key.  The returned slice is a copy.
func (d *Dict) Bytes(key string) (v []byte, ok bool) {
	b, ok := d.get(key, ByteArray)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

// SetUInt32 stores a UInt32 value.
func (d *Dict) SetUInt32(key string, v uint32) {
	d.set(key, UInt32, binary.LittleEndian.AppendUint32(nil, v))
}

// SetUInt64 stores a UInt64 value.
func (d *Dict) SetUInt64(key string, v uint64) {
	d.set(key, UInt64, binary.LittleEndian.AppendUint64(nil, v))
}

// SetBool stores a Bool value.
func (d *Dict) SetBool(key string, v bool) {
	b := []byte{0}
	if v {
		b[0] = 1
	}
	d.set(key, Bool, b)
}

// SetInt32 stores an Int32 value.
func (d *Dict) SetInt32(key string, v int32) {
	d.set(key, Int32, binary.LittleEndian.AppendUint32(nil, uint32(v)))
}

// SetInt64 stores an Int64 value.
func (d *Dict) SetInt64(key string, v int64) {
	d.set(key, Int64, binary.LittleEndian.AppendUint64(nil, uint64(v)))
}

// SetString stores a String value.
func (d *Dict) SetString(key string, v string) {
	d.set(key, String, []byte(v))
}

// SetBytes stores a copy of v as a ByteArray value.
func (d *Dict) SetBytes(key string, v []byte) {
	d.set(key, ByteArray, append([]byte(nil), v...))
}
