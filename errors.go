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
	"errors"
	"net/http"

	"zombiezen.com/go/kdbxd/pkg/keepass"
)

func isUserError(e error) bool {
	return userErrorMessage(e) != ""
}

func userErrorMessage(e error) string {
	var ue interface {
		UserError() string
	}
	if !errors.As(e, &ue) {
		return ""
	}
	return ue.UserError()
}

func errorStatusCode(e error) int {
	var sc interface {
		StatusCode() int
	}
	if !errors.As(e, &sc) {
		return http.StatusInternalServerError
	}
	return sc.StatusCode()
}

type userError struct {
	msg  string
	code int // defaults to 400
	err  error
}

func (ue userError) Error() string {
	return ue.err.Error()
}

func (ue userError) Unwrap() error {
	return ue.err
}

func (ue userError) UserError() string {
	return ue.msg
}

func (ue userError) StatusCode() int {
	if ue.code == 0 {
		return http.StatusBadRequest
	}
	return ue.code
}

type xsrfError struct {
	err error
}

func (xe xsrfError) Error() string {
	return "check xsrf: " + xe.err.Error()
}

func (xe xsrfError) UserError() string {
	return "invalid XSRF token"
}

func (xe xsrfError) StatusCode() int {
	return http.StatusBadRequest
}

type notFoundError struct{}

func (notFoundError) Error() string {
	return "not found"
}

func (notFoundError) UserError() string {
	return "not found"
}

func (notFoundError) StatusCode() int {
	return http.StatusNotFound
}

type invalidParentError struct {
	val string
}

func (e invalidParentError) Error() string {
	return "invalid parent " + e.val
}

func (e invalidParentError) UserError() string {
	return e.Error()
}

func (e invalidParentError) StatusCode() int {
	return http.StatusNotFound
}

var errInvalidSession = userError{
	msg:  "Invalid session. Please enter your credentials again.",
	code: http.StatusUnauthorized,
	err:  errors.New("invalid session"),
}

var errNoDatabase = userError{
	msg:  "Database does not exist.",
	code: http.StatusNotFound,
	err:  errors.New("open database: does not exist"),
}

type rateLimitError struct {
	client string
}

func (e rateLimitError) Error() string {
	return "rate limit exceeded for " + e.client
}

func (rateLimitError) UserError() string {
	return "Too many attempts. Try again later."
}

func (rateLimitError) StatusCode() int {
	return http.StatusTooManyRequests
}

// databaseError converts an error from opening a database into one
// suitable for showing the user.
func databaseError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, keepass.ErrInvalidKey) {
		return userError{
			msg:  "Could not decrypt database. This means either the password or key file you entered is incorrect or the database is corrupt.",
			code: http.StatusForbidden,
			err:  err,
		}
	}
	var dbErr *keepass.DatabaseError
	if errors.As(err, &dbErr) && dbErr.Kind == keepass.LoadError {
		return userError{
			msg:  "The database is damaged or uses an unsupported format.",
			code: http.StatusUnprocessableEntity,
			err:  err,
		}
	}
	return err
}
