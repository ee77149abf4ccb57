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

package keepass

import "strings"

// Field references have the form {REF:<wanted>@<search>:<text>}.
const (
	refPrefix   = "{REF:"
	maxRefDepth = 10
)

// resolveReferences recomputes the resolved value of every field of
// the given entries.  References are looked up among the live entries.
func (db *Database) resolveReferences(entries []*Entry) {
	for _, e := range entries {
		for _, f := range e.Fields {
			f.resolved = ""
			f.isResolved = false
		}
	}
	var targets []*Entry
	for _, e := range db.Entries() {
		if !e.IsDeleted {
			targets = append(targets, e)
		}
	}
	for _, e := range entries {
		for _, f := range e.Fields {
			f.resolved = resolveRefs(f.Value, targets, 0)
			f.isResolved = true
		}
	}
}

// resolveRefs substitutes every reference in s.  References that
// cannot be resolved are left as-is.
func resolveRefs(s string, targets []*Entry, depth int) string {
	if depth >= maxRefDepth || !strings.Contains(s, refPrefix) {
		return s
	}
	var sb strings.Builder
	for {
		i := strings.Index(s, refPrefix)
		if i == -1 {
			break
		}
		j := strings.IndexByte(s[i:], '}')
		if j == -1 {
			break
		}
		ref := s[i : i+j+1]
		sb.WriteString(s[:i])
		if v, ok := lookupRef(ref, targets); ok {
			sb.WriteString(resolveRefs(v, targets, depth+1))
		} else {
			sb.WriteString(ref)
		}
		s = s[i+j+1:]
	}
	sb.WriteString(s)
	return sb.String()
}

type fieldRef struct {
	want   byte
	search byte
	text   string
}

func parseRef(ref string) (fieldRef, bool) {
	body := ref[len(refPrefix) : len(ref)-1]
	if len(body) < 4 || body[1] != '@' || body[3] != ':' {
		return fieldRef{}, false
	}
	r := fieldRef{
		want:   upper(body[0]),
		search: upper(body[2]),
		text:   body[4:],
	}
	if !strings.ContainsRune("TUPANI", rune(r.want)) || !strings.ContainsRune("TUPANIO", rune(r.search)) {
		return fieldRef{}, false
	}
	return r, true
}

func upper(c byte) byte {
	if 'a' <= c && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

func lookupRef(ref string, targets []*Entry) (string, bool) {
	r, ok := parseRef(ref)
	if !ok {
		return "", false
	}
	for _, e := range targets {
		if r.matches(e) {
			return refField(e, r.want), true
		}
	}
	return "", false
}

func (r fieldRef) matches(e *Entry) bool {
	switch r.search {
	case 'I':
		return strings.EqualFold(e.UUID.Compact(), r.text)
	case 'O':
		for _, f := range e.Fields {
			if !isStandardField(f.Name) && strings.EqualFold(f.Value, r.text) {
				return true
			}
		}
		return false
	default:
		return strings.EqualFold(refField(e, r.search), r.text)
	}
}

func refField(e *Entry, code byte) string {
	switch code {
	case 'T':
		return e.Title()
	case 'U':
		return e.UserName()
	case 'P':
		return e.Password()
	case 'A':
		return e.URL()
	case 'N':
		return e.Notes()
	case 'I':
		return e.UUID.Compact()
	default:
		return ""
	}
}
