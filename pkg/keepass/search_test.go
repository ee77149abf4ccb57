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
	"reflect"
	"sort"
	"testing"
)

func TestSplitWords(t *testing.T) {
	tests := []struct {
		query string
		words []string
	}{
		{"", nil},
		{"   ", nil},
		{"foo", []string{"foo"}},
		{"  foo  ", []string{"foo"}},
		{"foo bar", []string{"foo", "bar"}},
		{"foo\tbar\n baz", []string{"foo", "bar", "baz"}},
		{"héllo wörld", []string{"héllo", "wörld"}},
	}
	for _, test := range tests {
		if words := splitWords(test.query); !reflect.DeepEqual(words, test.words) {
			t.Errorf("splitWords(%q) = %q; want %q", test.query, words, test.words)
		}
	}
}

func searchTestDB(t *testing.T) *Database {
	t.Helper()
	db := newTestDB(t, testOptions())
	mk := func(g *Group, title, user, password string) *Entry {
		e, err := g.NewEntry()
		if err != nil {
			t.Fatal("NewEntry:", err)
		}
		e.SetTitle(title)
		e.SetUserName(user)
		e.SetPassword(password)
		return e
	}
	mk(db.Root(), "Bank", "alice", "hunter2")
	e := mk(db.Root(), "Café Menu", "bob", "espresso")
	e.SetField("Table", "twelve", false)
	e.Tags = []string{"food"}

	sub, err := db.Root().NewSubgroup()
	if err != nil {
		t.Fatal(err)
	}
	sub.Name = "Work"
	mk(sub, "VPN", "alice", "tunnel")

	hidden, err := db.Root().NewSubgroup()
	if err != nil {
		t.Fatal(err)
	}
	hidden.Name = "Hidden"
	hidden.EnableSearching = Disabled
	mk(hidden, "Secret Bank", "carol", "vault")
	return db
}

func searchTitles(db *Database, q *SearchQuery) []string {
	var titles []string
	for _, e := range db.Search(q) {
		titles = append(titles, e.Title())
	}
	sort.Strings(titles)
	return titles
}

func TestSearch(t *testing.T) {
	db := searchTestDB(t)
	tests := []struct {
		name  string
		query SearchQuery
		want  []string
	}{
		{"empty", SearchQuery{Text: " ", IncludeSubgroups: true}, nil},
		{"title", SearchQuery{Text: "Bank", IncludeSubgroups: true}, []string{"Bank"}},
		{"top level only", SearchQuery{Text: "alice"}, []string{"Bank"}},
		{"subgroups", SearchQuery{Text: "alice", IncludeSubgroups: true}, []string{"Bank", "VPN"}},
		{"all words", SearchQuery{Text: "alice tunnel", IncludeSubgroups: true, IncludeProtectedValues: true}, []string{"VPN"}},
		{"protected hidden", SearchQuery{Text: "hunter2", IncludeSubgroups: true}, nil},
		{"protected", SearchQuery{Text: "hunter2", IncludeSubgroups: true, IncludeProtectedValues: true}, []string{"Bank"}},
		{"custom field", SearchQuery{Text: "twelve", IncludeSubgroups: true}, []string{"Café Menu"}},
		{"field name hidden", SearchQuery{Text: "Table", IncludeSubgroups: true}, nil},
		{"field name", SearchQuery{Text: "Table", IncludeSubgroups: true, IncludeFieldNames: true}, []string{"Café Menu"}},
		{"tag", SearchQuery{Text: "food", IncludeSubgroups: true}, []string{"Café Menu"}},
		{"case sensitive", SearchQuery{Text: "bank", IncludeSubgroups: true}, nil},
		{"ignore case", SearchQuery{Text: "bank", IncludeSubgroups: true, CompareOptions: IgnoreCase}, []string{"Bank"}},
		{"ignore diacritics", SearchQuery{Text: "Cafe", IncludeSubgroups: true, CompareOptions: IgnoreDiacritics}, []string{"Café Menu"}},
		{"loose", SearchQuery{Text: "cafe", IncludeSubgroups: true, CompareOptions: IgnoreCase | IgnoreDiacritics}, []string{"Café Menu"}},
		{"searching disabled", SearchQuery{Text: "carol", IncludeSubgroups: true}, nil},
	}
	for _, test := range tests {
		if got := searchTitles(db, &test.query); !reflect.DeepEqual(got, test.want) {
			t.Errorf("%s: Search(%q) = %q; want %q", test.name, test.query.Text, got, test.want)
		}
	}
}

func TestSearchDeleted(t *testing.T) {
	db := searchTestDB(t)
	var bank *Entry
	for _, e := range db.Root().Entries() {
		if e.Title() == "Bank" {
			bank = e
		}
	}
	if err := db.DeleteEntry(bank); err != nil {
		t.Fatal("DeleteEntry:", err)
	}
	q := &SearchQuery{Text: "alice", IncludeSubgroups: true}
	if got, want := searchTitles(db, q), []string{"VPN"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Search(%q) after delete = %q; want %q", q.Text, got, want)
	}
	q.IncludeDeleted = true
	if got, want := searchTitles(db, q), []string{"Bank", "VPN"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Search(%q) including deleted = %q; want %q", q.Text, got, want)
	}
}
