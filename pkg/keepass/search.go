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

import (
	"unicode"

	"golang.org/x/text/language"
	textsearch "golang.org/x/text/search"
)

// CompareOptions controls how search words are matched.
type CompareOptions int

// Compare options, which may be combined.
const (
	IgnoreCase CompareOptions = 1 << iota
	IgnoreDiacritics
)

// A SearchQuery describes a search over entries.  Every word of Text
// must appear in some field of a matching entry.
type SearchQuery struct {
	Text string

	IncludeSubgroups       bool
	IncludeDeleted         bool
	IncludeFieldNames      bool
	IncludeProtectedValues bool

	CompareOptions CompareOptions
}

// Search returns the entries under the root group that match q.
func (db *Database) Search(q *SearchQuery) []*Entry {
	var results []*Entry
	db.root.Search(q, &results)
	return results
}

// Search appends the entries in g that match q to results, descending
// into subgroups if q.IncludeSubgroups is set.
func (g *Group) Search(q *SearchQuery, results *[]*Entry) {
	pq := q.parse()
	if pq == nil {
		return
	}
	g.search(q, pq, true, results)
}

func (g *Group) search(q *SearchQuery, pq *parsedQuery, parentSearchable bool, results *[]*Entry) {
	searchable := g.EnableSearching.Resolve(parentSearchable)
	if !q.IncludeDeleted {
		if g.IsDeleted || !searchable {
			return
		}
	}
	for _, e := range g.entries {
		if e.IsDeleted && !q.IncludeDeleted {
			continue
		}
		if pq.matchesEntry(e, q) {
			*results = append(*results, e)
		}
	}
	if !q.IncludeSubgroups {
		return
	}
	for _, sub := range g.groups {
		sub.search(q, pq, searchable, results)
	}
}

type parsedQuery struct {
	pats []*textsearch.Pattern
}

func (q *SearchQuery) parse() *parsedQuery {
	words := splitWords(q.Text)
	if len(words) == 0 {
		return nil
	}
	var opts []textsearch.Option
	switch q.CompareOptions & (IgnoreCase | IgnoreDiacritics) {
	case IgnoreCase:
		opts = append(opts, textsearch.IgnoreCase)
	case IgnoreDiacritics:
		opts = append(opts, textsearch.IgnoreDiacritics)
	case IgnoreCase | IgnoreDiacritics:
		opts = append(opts, textsearch.Loose)
	}
	m := textsearch.New(language.Und, opts...)
	pq := &parsedQuery{pats: make([]*textsearch.Pattern, len(words))}
	for i := range words {
		pq.pats[i] = m.CompileString(words[i])
	}
	return pq
}

func splitWords(query string) []string {
	var words []string
	start := -1
	for i, r := range query {
		space := unicode.IsSpace(r)
		if space && start != -1 {
			words = append(words, query[start:i])
			start = -1
		} else if !space && start == -1 {
			start = i
		}
	}
	if start != -1 {
		words = append(words, query[start:])
	}
	return words
}

func (pq *parsedQuery) matchesEntry(e *Entry, q *SearchQuery) bool {
	for _, pat := range pq.pats {
		if !matchesAnyField(pat, e, q) {
			return false
		}
	}
	return true
}

func matchesAnyField(pat *textsearch.Pattern, e *Entry, q *SearchQuery) bool {
	found := func(s string) bool {
		start, _ := pat.IndexString(s)
		return start != -1
	}
	for _, f := range e.Fields {
		if q.IncludeFieldNames && found(f.Name) {
			return true
		}
		if f.Protected && !q.IncludeProtectedValues {
			continue
		}
		if found(f.Value) {
			return true
		}
	}
	for _, t := range e.Tags {
		if found(t) {
			return true
		}
	}
	return false
}
