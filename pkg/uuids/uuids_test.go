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

package uuids

import (
	"bytes"
	"strings"
	"testing"
)

var hexTests = []struct {
	u UUID
	s string
}{
	{
		UUID{},
		"00000000-0000-0000-0000-000000000000",
	},
	{
		UUID{0xf8, 0x1d, 0x4f, 0xae, 0x7d, 0xec, 0x11, 0xd0, 0xa7, 0x65, 0x00, 0xa0, 0xc9, 0x1e, 0x6b, 0xf6},
		"f81d4fae-7dec-11d0-a765-00a0c91e6bf6",
	},
}

func TestParse(t *testing.T) {
	for _, test := range hexTests {
		u, err := Parse(test.s)
		if err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", test.s, err)
		}
		if u != test.u {
			t.Errorf("Parse(%q) = %v; want %v", test.s, u, test.u)
		}
	}

	parseTests := []struct {
		s    string
		u    UUID
		fail bool
	}{
		{
			s: "f81d4fae7dec11d0a76500a0c91e6bf6",
			u: UUID{0xf8, 0x1d, 0x4f, 0xae, 0x7d, 0xec, 0x11, 0xd0, 0xa7, 0x65, 0x00, 0xa0, 0xc9, 0x1e, 0x6b, 0xf6},
		},
		{
			s:    "",
			fail: true,
		},
		{
			s:    "XXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX",
			fail: true,
		},
		{
			s:    "f81d4fae7dec11d0a76500a0c91e6bf",
			fail: true,
		},
		{
			s:    "f81d4fae7dec11d0a76500a0c91e6bf6ad",
			fail: true,
		},
		{
			s:    "f81d4fae7dec11d0a76500a0c91e6bf6a",
			fail: true,
		},
	}
	for _, test := range parseTests {
		u, err := Parse(test.s)
		if (err != nil) != test.fail {
			if test.fail {
				t.Errorf("Parse(%q) should return an error", test.s)
			} else {
				t.Errorf("Parse(%q) unexpected error: %v", test.s, err)
			}
		}
		if u != test.u {
			t.Errorf("Parse(%q) = %v; want %v", test.s, u, test.u)
		}
	}
}

func TestAppendHex(t *testing.T) {
	for _, test := range hexTests {
		{
			s := test.u.AppendHex(make([]byte, 0, 36))
			if !bytes.Equal(s, []byte(test.s)) {
				t.Errorf("UUID(%v).AppendHex(make([]byte, 0)) = %q; want %q", [16]byte(test.u), s, test.s)
			}
		}

		{
			s := test.u.AppendHex(make([]byte, 0, 36))
			if !bytes.Equal(s, []byte(test.s)) {
				t.Errorf("UUID(%v).AppendHex(make([]byte, 0, 36)) = %q; want %q", [16]byte(test.u), s, test.s)
			}
		}

		{
			b := make([]byte, 0, 39)
			b = append(b, "foo"...)
			s := test.u.AppendHex(b)
			if !bytes.Equal(s, []byte("foo"+test.s)) {
				t.Errorf("UUID(%v).AppendHex(\"foo\") = %q; want %q", [16]byte(test.u), s, "foo"+test.s)
			}
		}
	}
}

func TestString(t *testing.T) {
	for _, test := range hexTests {
		s := test.u.String()
		if s != test.s {
			t.Errorf("UUID(%v).String() = %q; want %q", [16]byte(test.u), s, test.s)
		}
	}
}

func TestNew(t *testing.T) {
	const random = "\xf0\xf1\xf2\xf3\xf4\xf5\xf6\xf7\xf8\xf9\xfa\xfb\xfc\xfd\xfe\xff\xe0\xe1"

	u, err := New(strings.NewReader(random))
	if err != nil {
		t.Fatal("New error:", err)
	}

	if version := u[6] >> 4; version != 4 {
		t.Errorf("New() = %v, version = %d; want 4", u, version)
	}
	if variant := u[8] >> 5; variant&6 != 4 {
		t.Errorf("New() = %v, variant = %d; want 4", u, variant&6)
	}
	if v := u.Version(); v != 4 {
		t.Errorf("New().Version() = %d; want 4", v)
	}
	if _, err := New(strings.NewReader("short")); err == nil {
		t.Error("New(short reader) did not return an error")
	}
}

func TestBase64(t *testing.T) {
	tests := []struct {
		u UUID
		s string
	}{
		{UUID{}, "AAAAAAAAAAAAAAAAAAAAAA=="},
		{
			UUID{0x31, 0xc1, 0xf2, 0xe6, 0xbf, 0x71, 0x43, 0x50, 0xbe, 0x58, 0x05, 0x21, 0x6a, 0xfc, 0x5a, 0xff},
			"McHy5r9xQ1C+WAUhavxa/w==",
		},
	}
	for _, test := range tests {
		if got := test.u.Base64(); got != test.s {
			t.Errorf("UUID(%v).Base64() = %q; want %q", [16]byte(test.u), got, test.s)
		}
		u, err := ParseBase64(test.s)
		if err != nil {
			t.Errorf("ParseBase64(%q) unexpected error: %v", test.s, err)
		}
		if u != test.u {
			t.Errorf("ParseBase64(%q) = %v; want %v", test.s, u, test.u)
		}
	}
	for _, bad := range []string{"", "AAAA", "not base64!"} {
		if _, err := ParseBase64(bad); err == nil {
			t.Errorf("ParseBase64(%q) should return an error", bad)
		}
	}
}

func TestCompact(t *testing.T) {
	u := UUID{0xf8, 0x1d, 0x4f, 0xae, 0x7d, 0xec, 0x11, 0xd0, 0xa7, 0x65, 0x00, 0xa0, 0xc9, 0x1e, 0x6b, 0xf6}
	const want = "F81D4FAE7DEC11D0A76500A0C91E6BF6"
	if got := u.Compact(); got != want {
		t.Errorf("UUID(%v).Compact() = %q; want %q", [16]byte(u), got, want)
	}
	if back, err := Parse(want); err != nil || back != u {
		t.Errorf("Parse(%q) = %v, %v; want %v, <nil>", want, back, err, u)
	}
}

func TestText(t *testing.T) {
	for _, test := range hexTests {
		text, err := test.u.MarshalText()
		if err != nil || string(text) != test.s {
			t.Errorf("UUID(%v).MarshalText() = %q, %v; want %q, <nil>", [16]byte(test.u), text, err, test.s)
		}
		var u UUID
		if err := u.UnmarshalText([]byte(test.s)); err != nil || u != test.u {
			t.Errorf("UnmarshalText(%q) = %v, %v; want %v, <nil>", test.s, u, err, test.u)
		}
	}
}
