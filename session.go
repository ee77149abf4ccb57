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
	"crypto/rand"
	"encoding/base64"
	"io"
	"net/http"
	"time"

	"zombiezen.com/go/kdbxd/pkg/keepass"
)

// sessionCookie is the name of browser cookie containing the session token.
const sessionCookie = "kdbxd_session"

const defaultTokenSize = 33

// sessionStorage holds the unlocked sessions.  Each session keeps the
// database's combined key (with its transformed key cached) so that
// requests do not have to run the key derivation function.
type sessionStorage struct {
	s map[string]*session

	expiry    time.Duration
	tokenSize int
	rand      io.Reader
	now       func() time.Time
}

type session struct {
	token   string
	expires time.Time
	key     *keepass.CompositeKey
}

func (ss *sessionStorage) timeNow() time.Time {
	if ss.now == nil {
		return time.Now()
	}
	return ss.now()
}

// new creates a new session holding key, sets the session cookie on w
// and returns the session.  The session takes ownership of key.
func (ss *sessionStorage) new(w http.ResponseWriter, key *keepass.CompositeKey) (*session, error) {
	n := ss.tokenSize
	if n <= 0 {
		n = defaultTokenSize
	}
	buf := make([]byte, n)
	r := ss.rand
	if r == nil {
		r = rand.Reader
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	tok := base64.URLEncoding.EncodeToString(buf)
	s := &session{
		token:   tok,
		expires: ss.timeNow().Add(ss.expiry),
		key:     key,
	}
	if ss.s == nil {
		ss.s = make(map[string]*session)
	}
	ss.s[tok] = s
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(ss.expiry / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	return s, nil
}

// fromRequest returns the valid session named by the request's cookie
// or nil.
func (ss *sessionStorage) fromRequest(r *http.Request) *session {
	if ss.s == nil {
		return nil
	}
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	s := ss.s[c.Value]
	if !s.isValid(ss.timeNow()) {
		return nil
	}
	return s
}

// remove ends a session and erases its key.
func (ss *sessionStorage) remove(s *session) {
	if s == nil {
		return
	}
	delete(ss.s, s.token)
	s.key.Erase()
}

// clearInvalid removes expired sessions and returns the number removed.
func (ss *sessionStorage) clearInvalid() int {
	now := ss.timeNow()
	n := 0
	for _, s := range ss.s {
		if !s.isValid(now) {
			ss.remove(s)
			n++
		}
	}
	return n
}

// clear removes every session.
func (ss *sessionStorage) clear() {
	for _, s := range ss.s {
		ss.remove(s)
	}
}

func (ss *sessionStorage) len() int {
	return len(ss.s)
}

func (s *session) isValid(now time.Time) bool {
	return s != nil && now.Before(s.expires)
}

// expireCookie tells the client to forget its session cookie.
func expireCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
