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

package authhdr

import (
	"net/http"
	"reflect"
	"testing"
)

func TestUser(t *testing.T) {
	tests := []struct {
		scheme Scheme
		h      http.Header
		want   *User
	}{
		{Default, http.Header{}, nil},
		{
			Default,
			http.Header{
				"X-Kdbxd-User-Id":  {"abc123"},
				"X-Kdbxd-Username": {"Alice%20Smith"},
			},
			&User{ID: "abc123", Name: "Alice Smith"},
		},
		{
			Sandstorm,
			http.Header{
				"X-Sandstorm-User-Id":          {"u1"},
				"X-Sandstorm-Username":         {"Bob"},
				"X-Sandstorm-Preferred-Handle": {"bob_"},
			},
			&User{ID: "u1", Name: "Bob", Handle: "bob_"},
		},
		{
			Default,
			http.Header{
				"X-Kdbxd-User-Id":  {"x"},
				"X-Kdbxd-Username": {"bad%zzescape"},
			},
			&User{ID: "x"},
		},
		{
			Sandstorm,
			http.Header{"X-Kdbxd-User-Id": {"wrong-prefix"}},
			nil,
		},
	}
	for _, test := range tests {
		if got := test.scheme.User(test.h); !reflect.DeepEqual(got, test.want) {
			t.Errorf("%q.User(%v) = %+v; want %+v", test.scheme.Prefix, test.h, got, test.want)
		}
	}
}

func TestPermissions(t *testing.T) {
	tests := []struct {
		hdr   string
		perms []string
	}{
		{"", nil},
		{"read", []string{"read"}},
		{"read,write", []string{"read", "write"}},
		{"read, write", []string{"read", "write"}},
	}
	for _, test := range tests {
		h := http.Header{}
		if test.hdr != "" {
			h.Set("X-Kdbxd-Permissions", test.hdr)
		}
		if got := Default.Permissions(h); !reflect.DeepEqual(got, test.perms) {
			t.Errorf("Permissions(%q) = %q; want %q", test.hdr, got, test.perms)
		}
		for _, p := range test.perms {
			if !Default.HasPermission(h, p) {
				t.Errorf("HasPermission(%q, %q) = false; want true", test.hdr, p)
			}
		}
		if Default.HasPermission(h, "admin") {
			t.Errorf("HasPermission(%q, \"admin\") = true; want false", test.hdr)
		}
	}
}
