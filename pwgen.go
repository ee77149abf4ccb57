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
	"bufio"
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
)

const (
	upperLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerLetters = "abcdefghijklmnopqrstuvwxyz"
	digits       = "0123456789"
	symbols      = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

func (a *app) pwgen(w http.ResponseWriter, r *http.Request) error {
	n, err := strconv.ParseUint(r.FormValue("n"), 10, 0)
	if err != nil {
		return userError{msg: "n must be an integer", err: err}
	}
	rng := a.rand
	if rng == nil {
		rng = rand.Reader
	}
	var password string
	switch r.FormValue("mode") {
	case "":
		if n < 1 || n > 200 {
			return userError{msg: "n must be an integer 1-200", err: errors.New("pwgen: n out of range")}
		}
		set := passwordCharset(r.Form)
		if len(set) == 0 {
			return userError{msg: "character set is empty", err: errors.New("pwgen: empty charset")}
		}
		password, err = generatePasswordFromSet(rng, int(n), set)
		if err != nil {
			return err
		}
	case "phrase":
		if n < 1 || n > 50 {
			return userError{msg: "n must be an integer 1-50", err: errors.New("pwgen: n out of range")}
		}
		possessives := r.FormValue("possessives") != ""
		password, err = generatePassphrase(rng, a.cfg.WordsFile, int(n), possessives)
		if err != nil {
			return err
		}
	default:
		return userError{msg: "mode must be \"phrase\" or empty", err: errors.New("pwgen: unknown mode")}
	}
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	return writeJSON(w, http.StatusOK, struct {
		Password string        `json:"password"`
		Strength *strengthView `json:"strength"`
	}{password, passwordStrength(password, nil)})
}

// passwordCharset returns the characters selected by the upper, lower,
// digits and symbols form values.  The first three default to on and
// symbols defaults to off.
func passwordCharset(form url.Values) []byte {
	include := func(name string, def bool) bool {
		v := form.Get(name)
		if v == "" {
			return def
		}
		b, err := strconv.ParseBool(v)
		return err == nil && b
	}
	set := make([]byte, 0, len(upperLetters)+len(lowerLetters)+len(digits)+len(symbols))
	if include("upper", true) {
		set = append(set, upperLetters...)
	}
	if include("lower", true) {
		set = append(set, lowerLetters...)
	}
	if include("digits", true) {
		set = append(set, digits...)
	}
	if include("symbols", false) {
		set = append(set, symbols...)
	}
	return set
}

func generatePasswordFromSet(r io.Reader, n int, set []byte) (string, error) {
	pw := make([]byte, n)
	for i := range pw {
		j, err := randInt(r, len(set))
		if err != nil {
			return "", err
		}
		pw[i] = set[j]
	}
	return string(pw), nil
}

func generatePassphrase(r io.Reader, wordsFile string, numWords int, includePossessives bool) (string, error) {
	if err := initWordList(wordsFile); err != nil {
		return "", err
	}
	max := len(wordList.words)
	if includePossessives {
		max += len(wordList.possessives)
	}
	if max == 0 {
		return "", errors.New("word list is empty")
	}
	var buf bytes.Buffer
	for i := 0; i < numWords; i++ {
		w, err := randInt(r, max)
		if err != nil {
			return "", err
		}
		if i > 0 {
			buf.WriteByte(' ')
		}
		if w < len(wordList.words) {
			buf.WriteString(wordList.words[w])
		} else {
			buf.WriteString(wordList.possessives[w-len(wordList.words)])
		}
	}
	return buf.String(), nil
}

var wordList struct {
	once        sync.Once
	words       []string
	possessives []string
	err         error
}

// initWordList loads the word list from path the first time it is
// called.  Later calls return the first result.
func initWordList(path string) error {
	wordList.once.Do(func() {
		wf, err := os.Open(path)
		if err != nil {
			wordList.err = err
			return
		}
		defer wf.Close()
		wordList.words, wordList.possessives, wordList.err = readWordList(wf)
	})
	return wordList.err
}

// readWordList reads one word per line, separating possessive forms.
func readWordList(r io.Reader) (words, possessives []string, err error) {
	ws := bufio.NewScanner(r)
	for ws.Scan() {
		w := strings.TrimSpace(ws.Text())
		if w == "" {
			continue
		}
		if !strings.HasSuffix(w, "'s") {
			words = append(words, w)
		} else {
			possessives = append(possessives, w)
		}
	}
	return words, possessives, ws.Err()
}

func randInt(r io.Reader, n int) (int, error) {
	max := big.NewInt(int64(n))
	i, err := rand.Int(r, max)
	if err != nil {
		return 0, err
	}
	return int(i.Int64()), nil
}
