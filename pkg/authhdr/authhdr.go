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

// Package authhdr reads the user identity and permissions that an
// authenticating reverse proxy (such as Sandstorm) adds to HTTP
// request headers.  The proxy must strip these headers from incoming
// requests; the server trusts whatever it receives.
package authhdr // import "zombiezen.com/go/kdbxd/pkg/authhdr"

import (
	"net/http"
	"net/url"
	"strings"
)

// A Scheme names the headers used by a proxy.  Each header is the
// prefix followed by "User-Id", "Username", "Preferred-Handle" or
// "Permissions".
type Scheme struct {
	Prefix string
}

// Known schemes.
var (
	Sandstorm = Scheme{Prefix: "X-Sandstorm-"}
	Default   = Scheme{Prefix: "X-Kdbxd-"}
)

// A User is the person a proxy authenticated.
type User struct {
	// ID is a unique identifier for the user.
	ID string

	// Name is the user's display name.
	Name string

	// Handle is a short handle, consisting of ASCII letters, numbers,
	// and underscores.
	Handle string
}

// String returns the user's display name.
func (u *User) String() string {
	return u.Name
}

// User extracts the user from a request header or returns nil if the
// request is anonymous.
func (s Scheme) User(h http.Header) *User {
	id := h.Get(s.Prefix + "User-Id")
	if id == "" {
		return nil
	}
	return &User{
		ID:     id,
		Name:   s.UserName(h),
		Handle: h.Get(s.Prefix + "Preferred-Handle"),
	}
}

// UserName extracts the user's percent-encoded display name from a
// request header.  It returns the empty string if the header is
// missing or malformed.  This may be non-empty even if the user is
// not logged in.
func (s Scheme) UserName(h http.Header) string {
	name, err := url.PathUnescape(h.Get(s.Prefix + "Username"))
	if err != nil {
		return ""
	}
	return name
}

// Permissions extracts the comma-separated permissions in the request
// header.
func (s Scheme) Permissions(h http.Header) []string {
	p := h.Get(s.Prefix + "Permissions")
	if p == "" {
		return nil
	}
	perms := strings.Split(p, ",")
	for i := range perms {
		perms[i] = strings.TrimSpace(perms[i])
	}
	return perms
}

// HasPermission reports whether the request header grants perm.
func (s Scheme) HasPermission(h http.Header, perm string) bool {
	for _, p := range s.Permissions(h) {
		if p == perm {
			return true
		}
	}
	return false
}
