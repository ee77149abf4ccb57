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
	"net/http/httptest"
	"testing"
	"time"
)

func TestMultiLimiter(t *testing.T) {
	now := time.Date(2016, time.May, 1, 12, 0, 0, 0, time.UTC)
	m := newUnlockLimiter(rateLimitConfig{PerMinute: 6, Burst: 2})
	m.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if !m.allow("192.0.2.1") {
			t.Fatalf("allow #%d denied within burst", i+1)
		}
	}
	if m.allow("192.0.2.1") {
		t.Error("allow after burst succeeded; want denied")
	}
	if !m.allow("192.0.2.2") {
		t.Error("allow for other client denied")
	}

	now = now.Add(10 * time.Second)
	if !m.allow("192.0.2.1") {
		t.Error("allow after refill denied")
	}

	now = now.Add(time.Hour)
	m.allow("192.0.2.3")
	if _, ok := m.entries["192.0.2.1"]; ok {
		t.Error("idle bucket not dropped")
	}
}

func TestNilLimiter(t *testing.T) {
	m := newUnlockLimiter(rateLimitConfig{})
	if m != nil {
		t.Fatalf("newUnlockLimiter(zero) = %v; want nil", m)
	}
	for i := 0; i < 100; i++ {
		if !m.allow("x") {
			t.Fatal("nil limiter denied")
		}
	}
	if err := m.checkRate(httptest.NewRequest("POST", "/_/start", nil)); err != nil {
		t.Errorf("nil limiter checkRate = %v; want nil", err)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote string
		xff    string
		want   string
	}{
		{"192.0.2.1:1234", "", "192.0.2.1"},
		{"[2001:db8::1]:443", "", "2001:db8::1"},
		{"192.0.2.1:1234", "203.0.113.7", "203.0.113.7"},
		{"192.0.2.1:1234", " 203.0.113.7 , 10.0.0.1", "203.0.113.7"},
		{"pipe", "", "pipe"},
	}
	for _, test := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = test.remote
		if test.xff != "" {
			r.Header.Set("X-Forwarded-For", test.xff)
		}
		if got := clientIP(r); got != test.want {
			t.Errorf("clientIP(RemoteAddr=%q, X-Forwarded-For=%q) = %q; want %q", test.remote, test.xff, got, test.want)
		}
	}
}
