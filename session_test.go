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

package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"zombiezen.com/go/kdbxd/pkg/fakerand"
	"zombiezen.com/go/kdbxd/pkg/keepass"
)

func TestSessionStorage(t *testing.T) {
	start := time.Date(2019, time.July, 1, 22, 0, 0, 0, time.UTC)
	const expiry = 30 * time.Minute
	tests := []struct {
		name   string
		readAt time.Time
		remove bool
		gc     bool
		valid  bool
	}{
		{
			name:   "Fresh",
			readAt: start.Add(1 * time.Minute),
			valid:  true,
		},
		{
			name:   "JustBeforeExpiry",
			readAt: start.Add(expiry - time.Second),
			valid:  true,
		},
		{
			name:   "PastExpiry",
			readAt: start.Add(expiry),
			valid:  false,
		},
		{
			name:   "Removed",
			readAt: start.Add(1 * time.Minute),
			remove: true,
			valid:  false,
		},
		{
			name:   "CollectedAfterExpiry",
			readAt: start.Add(expiry + time.Minute),
			gc:     true,
			valid:  false,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			now := start
			ss := &sessionStorage{
				expiry: expiry,
				rand:   fakerand.New(),
				now:    func() time.Time { return now },
			}
			key := keepass.NewCombinedKey(make([]byte, 32))

			// Create a new session.
			rec := httptest.NewRecorder()
			s, err := ss.new(rec, key)
			if err != nil {
				t.Fatal(err)
			}
			cookies := rec.Result().Cookies()
			if len(cookies) != 1 {
				t.Fatalf("new set %d cookies; want 1", len(cookies))
			}
			if got, want := cookies[0].MaxAge, int(expiry/time.Second); got != want {
				t.Errorf("Cookie %q has expiry of %d seconds; want %d seconds", cookies[0].Name, got, want)
			}
			if !cookies[0].HttpOnly {
				t.Errorf("Cookie %q is not HttpOnly", cookies[0].Name)
			}

			now = test.readAt
			if test.remove {
				ss.remove(s)
			}
			if test.gc {
				if n := ss.clearInvalid(); n != 1 {
					t.Errorf("clearInvalid() = %d; want 1", n)
				}
			}

			// Try to read back session.
			req := &http.Request{
				Header: make(http.Header),
			}
			for _, c := range cookies {
				req.AddCookie(c)
			}
			got := ss.fromRequest(req)
			if got == nil && test.valid {
				t.Error("fromRequest(req) = <nil>; want valid session")
			} else if got != nil && !test.valid {
				t.Errorf("fromRequest(req) = %#v; want invalid session", got)
			}
			if (test.remove || test.gc) && key.State() != keepass.KeyEmpty {
				t.Errorf("key state after session ended = %v; want %v", key.State(), keepass.KeyEmpty)
			}
		})
	}
}

func TestSessionTokensDiffer(t *testing.T) {
	ss := &sessionStorage{expiry: time.Minute}
	s1, err := ss.new(httptest.NewRecorder(), nil)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := ss.new(httptest.NewRecorder(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if s1.token == s2.token {
		t.Errorf("two sessions share token %q", s1.token)
	}
	if ss.len() != 2 {
		t.Errorf("len() = %d; want 2", ss.len())
	}
	ss.clear()
	if ss.len() != 0 {
		t.Errorf("len() after clear = %d; want 0", ss.len())
	}
}
