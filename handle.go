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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"zombiezen.com/go/kdbxd/third_party/responsestats"
)

const xsrfTokenSize = 33

type appHandler struct {
	a    *app
	f    func(http.ResponseWriter, *http.Request) error
	perm string
}

func (a *app) handler(perm string, f func(http.ResponseWriter, *http.Request) error) appHandler {
	return appHandler{a: a, f: f, perm: perm}
}

func (ah appHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	a := ah.a
	stats := responsestats.New(w)
	log := a.requestLogger(r)
	defer func() {
		code := stats.StatusCode()
		if code == 0 {
			code = http.StatusOK
		}
		a.metrics.observeRequest(r, code, time.Since(start))
		log.WithFields(logrus.Fields{
			"status":   code,
			"bytes":    stats.Size(),
			"duration": time.Since(start),
		}).Debug("request")
	}()

	if a.cfg.CheckPermissions && ah.perm != "" && !a.auth.HasPermission(r.Header, ah.perm) {
		writeJSONError(stats, "permission denied", http.StatusForbidden)
		return
	}
	r.Body = http.MaxBytesReader(stats, r.Body, a.cfg.MaxRequestSize)
	if err := a.parseMultipartForm(r); err != nil {
		log.WithError(err).Info("form parse failed")
		writeJSONError(stats, "could not parse form", http.StatusBadRequest)
		return
	}
	if !(r.Method == "GET" || r.Method == "HEAD" || r.Method == "OPTIONS" || r.Method == "TRACE") {
		if err := checkXSRF(r); err != nil {
			log.WithError(err).Info("client error")
			writeJSONError(stats, userErrorMessage(err), errorStatusCode(err))
			return
		}
	}
	stats.Header().Set("Cache-Control", "private, no-store")
	err := ah.f(stats, r)
	if err == nil {
		return
	}
	if isUserError(err) {
		log.WithError(err).Info("client error")
	} else {
		log.WithError(err).Error("server error")
	}
	if stats.StatusCode() == 0 {
		msg := userErrorMessage(err)
		if msg == "" {
			msg = "internal server error; check logs"
		}
		writeJSONError(stats, msg, errorStatusCode(err))
	}
}

func (a *app) requestLogger(r *http.Request) logrus.FieldLogger {
	fields := logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"client": clientIP(r),
	}
	if u := a.auth.User(r.Header); u != nil {
		fields["user_id"] = u.ID
	}
	return a.log.WithFields(fields)
}

func (a *app) parseMultipartForm(r *http.Request) error {
	err := r.ParseMultipartForm(a.cfg.MaxRequestSize)
	if err == http.ErrNotMultipart {
		return nil
	}
	if err != nil {
		return err
	}
	if err := r.MultipartForm.RemoveAll(); err != nil {
		// This is likely to never occur, since the request should be limited to MaxRequestSize.
		a.log.WithError(err).Warn("form cleanup")
	}
	return nil
}

// writeJSON sends v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, code int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, struct {
		Error string `json:"error"`
	}{msg})
}

// readJSON decodes the request body into v.
func readJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			err = fmt.Errorf("empty body")
		}
		return userError{
			msg: "Malformed request: " + err.Error(),
			err: fmt.Errorf("decode request: %v", err),
		}
	}
	return nil
}

// xsrfCookie is the name of browser cookie containing the session-independent XSRF token.
const xsrfCookie = "kdbxd_xsrf"

// xsrfHeader is the request header that must echo the XSRF cookie on
// state-changing requests.
const xsrfHeader = "X-Xsrf-Token"

// xsrfToken either returns the XSRF token from the cookie or generates
// a new one and sets the XSRF cookie.
func xsrfToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(xsrfCookie); err == nil && c.Value != "" {
		return c.Value, nil
	} else if err != http.ErrNoCookie && err != nil {
		return "", fmt.Errorf("read xsrf token: %v", err)
	}
	buf := make([]byte, xsrfTokenSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate xsrf token: %v", err)
	}
	tok := base64.StdEncoding.EncodeToString(buf)
	http.SetCookie(w, &http.Cookie{
		Name:     xsrfCookie,
		Value:    tok,
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
	})
	return tok, nil
}

func checkXSRF(r *http.Request) error {
	c, err := r.Cookie(xsrfCookie)
	if err != nil {
		return xsrfError{err}
	} else if c.Value == "" {
		return xsrfError{fmt.Errorf("empty cookie")}
	}
	if hv := r.Header.Get(xsrfHeader); hv != c.Value {
		return xsrfError{fmt.Errorf("header value %q does not match cookie %q", hv, c.Value)}
	}
	return nil
}

// handleXSRF hands out the XSRF token that clients echo in the
// X-Xsrf-Token header.
func handleXSRF(w http.ResponseWriter, r *http.Request) error {
	tok, err := xsrfToken(w, r)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, struct {
		Token string `json:"token"`
	}{tok})
}
