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
	"strconv"
	"time"

	"zombiezen.com/go/kdbxd/pkg/keepass"
)

// searchQueryFromRequest builds a search from the q parameter and the
// boolean flags subgroups (default true), deleted, names, protected
// and case.
func searchQueryFromRequest(r *http.Request) *keepass.SearchQuery {
	flag := func(name string, def bool) bool {
		v := r.FormValue(name)
		if v == "" {
			return def
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	}
	q := &keepass.SearchQuery{
		Text:                   r.FormValue("q"),
		IncludeSubgroups:       flag("subgroups", true),
		IncludeDeleted:         flag("deleted", false),
		IncludeFieldNames:      flag("names", false),
		IncludeProtectedValues: flag("protected", false),
		CompareOptions:         keepass.IgnoreDiacritics,
	}
	if !flag("case", false) {
		q.CompareOptions |= keepass.IgnoreCase
	}
	return q
}

func (a *app) handleSearch(w http.ResponseWriter, r *http.Request) error {
	q := searchQueryFromRequest(r)
	a.mu.Lock()
	defer a.mu.Unlock()
	db, err := a.dbFromRequest(r)
	if err != nil {
		return err
	}
	defer db.Erase()
	var data struct {
		Query   string          `json:"query"`
		Results []*entrySummary `json:"results"`
	}
	data.Query = q.Text
	data.Results = []*entrySummary{}
	now := time.Now()
	for _, e := range sortEntries(db.Search(q)) {
		data.Results = append(data.Results, summarizeEntry(e, now))
	}
	return writeJSON(w, http.StatusOK, data)
}
