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
	"encoding/base64"
	"errors"
	"fmt"
	"io/ioutil"
	"mime"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/nbutton23/zxcvbn-go"
	"zombiezen.com/go/kdbxd/pkg/keepass"
	"zombiezen.com/go/kdbxd/pkg/uuids"
)

// parseID accepts a UUID in hex (with or without dashes) or in the
// URL-safe base64 form of the KDBX encoding.
func parseID(s string) (uuids.UUID, error) {
	if u, err := uuids.Parse(s); err == nil {
		return u, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(trimPadding(s))
	if err != nil {
		return uuids.UUID{}, err
	}
	return uuids.FromBytes(b)
}

func trimPadding(s string) string {
	for len(s) > 0 && s[len(s)-1] == '=' {
		s = s[:len(s)-1]
	}
	return s
}

type requestParams struct {
	g *keepass.Group
	e *keepass.Entry
}

func extractRequestParams(db *keepass.Database, r *http.Request) (requestParams, error) {
	v := mux.Vars(r)
	var p requestParams
	if v["gid"] != "" {
		gid, err := parseID(v["gid"])
		if err != nil {
			return requestParams{}, notFoundError{}
		}
		p.g = db.FindGroup(gid)
		if p.g == nil {
			return requestParams{}, notFoundError{}
		}
	}
	if v["uuid"] != "" {
		u, err := parseID(v["uuid"])
		if err != nil {
			return requestParams{}, notFoundError{}
		}
		p.e = db.FindEntry(u)
		if p.e == nil {
			return requestParams{}, notFoundError{}
		}
		p.g = p.e.Parent()
	}
	return p, nil
}

type groupNode struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Deleted  bool         `json:"deleted,omitempty"`
	Entries  int          `json:"entries"`
	Children []*groupNode `json:"children,omitempty"`
}

func groupTree(g *keepass.Group) *groupNode {
	n := &groupNode{
		ID:      g.UUID.Compact(),
		Name:    g.Name,
		Deleted: g.IsDeleted,
		Entries: g.NEntries(),
	}
	for _, sub := range g.Groups() {
		n.Children = append(n.Children, groupTree(sub))
	}
	return n
}

type groupView struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Notes   string          `json:"notes,omitempty"`
	Parent  string          `json:"parent,omitempty"`
	Deleted bool            `json:"deleted,omitempty"`
	Tags    []string        `json:"tags,omitempty"`
	Groups  []*groupNode    `json:"groups"`
	Entries []*entrySummary `json:"entries"`
}

type entrySummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	UserName string `json:"username,omitempty"`
	URL      string `json:"url,omitempty"`
	Expired  bool   `json:"expired,omitempty"`
}

func summarizeEntry(e *keepass.Entry, now time.Time) *entrySummary {
	return &entrySummary{
		ID:       e.UUID.Compact(),
		Title:    e.Title(),
		UserName: e.UserName(),
		URL:      e.URL(),
		Expired:  e.Times.Expired(now),
	}
}

func viewOfGroup(g *keepass.Group) *groupView {
	now := time.Now()
	v := &groupView{
		ID:      g.UUID.Compact(),
		Name:    g.Name,
		Notes:   g.Notes,
		Deleted: g.IsDeleted,
		Tags:    g.Tags,
		Groups:  []*groupNode{},
		Entries: []*entrySummary{},
	}
	if p := g.Parent(); p != nil {
		v.Parent = p.UUID.Compact()
	}
	for _, sub := range g.Groups() {
		v.Groups = append(v.Groups, &groupNode{
			ID:      sub.UUID.Compact(),
			Name:    sub.Name,
			Deleted: sub.IsDeleted,
			Entries: sub.NEntries(),
		})
	}
	for _, e := range sortEntries(g.Entries()) {
		v.Entries = append(v.Entries, summarizeEntry(e, now))
	}
	return v
}

type fieldView struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Protected bool   `json:"protected,omitempty"`
}

type attachmentView struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

type strengthView struct {
	Score     int     `json:"score"`
	Entropy   float64 `json:"entropy"`
	CrackTime string  `json:"crack_time"`
}

type entryView struct {
	ID          string            `json:"id"`
	Group       string            `json:"group"`
	Title       string            `json:"title"`
	UserName    string            `json:"username"`
	Password    string            `json:"password,omitempty"`
	URL         string            `json:"url"`
	Notes       string            `json:"notes"`
	Fields      []*fieldView      `json:"fields"`
	Tags        []string          `json:"tags,omitempty"`
	Attachments []*attachmentView `json:"attachments"`
	History     int               `json:"history"`
	Strength    *strengthView     `json:"strength,omitempty"`
	Created     time.Time         `json:"created"`
	Modified    time.Time         `json:"modified"`
	Expires     *time.Time        `json:"expires,omitempty"`
}

// viewOfEntry renders e.  Protected values are only included if
// reveal is set.  References are shown resolved.
func viewOfEntry(e *keepass.Entry, reveal bool) *entryView {
	v := &entryView{
		ID:          e.UUID.Compact(),
		Title:       resolved(e, keepass.TitleField),
		UserName:    resolved(e, keepass.UserNameField),
		URL:         resolved(e, keepass.URLField),
		Notes:       resolved(e, keepass.NotesField),
		Fields:      []*fieldView{},
		Tags:        e.Tags,
		Attachments: []*attachmentView{},
		History:     len(e.History),
		Created:     e.Times.CreationTime,
		Modified:    e.Times.LastModificationTime,
	}
	if g := e.Parent(); g != nil {
		v.Group = g.UUID.Compact()
	}
	if f := e.Field(keepass.PasswordField); f != nil {
		pw := f.ResolvedValue()
		if reveal || !f.Protected {
			v.Password = pw
		}
		if pw != "" {
			v.Strength = passwordStrength(pw, []string{e.Title(), e.UserName(), e.URL()})
		}
	}
	for _, f := range e.Fields {
		switch f.Name {
		case keepass.TitleField, keepass.UserNameField, keepass.PasswordField, keepass.URLField, keepass.NotesField:
			continue
		}
		fv := &fieldView{Name: f.Name, Protected: f.Protected}
		if reveal || !f.Protected {
			fv.Value = f.ResolvedValue()
		}
		v.Fields = append(v.Fields, fv)
	}
	for _, a := range e.Attachments {
		v.Attachments = append(v.Attachments, &attachmentView{Name: a.Name, Size: a.Size()})
	}
	if e.Times.Expires {
		t := e.Times.ExpiryTime
		v.Expires = &t
	}
	return v
}

func resolved(e *keepass.Entry, name string) string {
	if f := e.Field(name); f != nil {
		return f.ResolvedValue()
	}
	return ""
}

func passwordStrength(pw string, userInputs []string) *strengthView {
	m := zxcvbn.PasswordStrength(pw, userInputs)
	return &strengthView{
		Score:     m.Score,
		Entropy:   m.Entropy,
		CrackTime: m.CrackTimeDisplay,
	}
}

func (a *app) groupList(w http.ResponseWriter, r *http.Request) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	db, err := a.dbFromRequest(r)
	if err != nil {
		return err
	}
	defer db.Erase()
	return writeJSON(w, http.StatusOK, groupTree(db.Root()))
}

func (a *app) viewGroup(w http.ResponseWriter, r *http.Request) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	db, err := a.dbFromRequest(r)
	if err != nil {
		return err
	}
	defer db.Erase()
	params, err := extractRequestParams(db, r)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, viewOfGroup(params.g))
}

type groupRequest struct {
	Name  string   `json:"name"`
	Notes string   `json:"notes"`
	Tags  []string `json:"tags"`
}

func (a *app) postGroup(w http.ResponseWriter, r *http.Request) error {
	var req groupRequest
	if err := readJSON(r, &req); err != nil {
		return err
	}
	if req.Name == "" {
		return userError{msg: "Group name is required.", err: errors.New("post group: empty name")}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var view *groupView
	err := a.transaction(r, func(db *keepass.Database) error {
		p, err := extractRequestParams(db, r)
		if err != nil {
			return err
		}
		g, err := p.g.NewSubgroup()
		if err != nil {
			return err
		}
		g.Name = req.Name
		g.Notes = req.Notes
		g.Tags = req.Tags
		view = viewOfGroup(g)
		return nil
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, view)
}

func (a *app) deleteGroup(w http.ResponseWriter, r *http.Request) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.transaction(r, func(db *keepass.Database) error {
		p, err := extractRequestParams(db, r)
		if err != nil {
			return err
		}
		if p.g == db.Root() {
			return userError{msg: "The root group cannot be deleted.", err: errors.New("delete root group")}
		}
		return db.DeleteGroup(p.g)
	})
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// entryRequest is the body of a request to create or edit an entry.
// Nil fields are left unchanged.
type entryRequest struct {
	Title    *string         `json:"title"`
	UserName *string         `json:"username"`
	Password *string         `json:"password"`
	URL      *string         `json:"url"`
	Notes    *string         `json:"notes"`
	Fields   []*fieldRequest `json:"fields"`
	Tags     *[]string       `json:"tags"`
	Expires  *time.Time      `json:"expires"`

	// Group moves the entry to another group.
	Group string `json:"group"`
}

type fieldRequest struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Protected bool   `json:"protected"`
	Delete    bool   `json:"delete"`
}

func (req *entryRequest) apply(db *keepass.Database, e *keepass.Entry) error {
	set := func(p *string, f func(string)) {
		if p != nil {
			f(*p)
		}
	}
	set(req.Title, e.SetTitle)
	set(req.UserName, e.SetUserName)
	set(req.Password, e.SetPassword)
	set(req.URL, e.SetURL)
	set(req.Notes, e.SetNotes)
	for _, f := range req.Fields {
		if f.Name == "" {
			return userError{msg: "Field name is required.", err: errors.New("apply entry: empty field name")}
		}
		if f.Delete {
			e.RemoveField(f.Name)
		} else {
			e.SetField(f.Name, f.Value, f.Protected)
		}
	}
	if req.Tags != nil {
		e.Tags = *req.Tags
	}
	if req.Expires != nil {
		e.Times.Expires = !req.Expires.IsZero()
		e.Times.ExpiryTime = req.Expires.UTC().Truncate(time.Second)
	}
	if req.Group != "" {
		gid, err := parseID(req.Group)
		if err != nil {
			return invalidParentError{req.Group}
		}
		g := db.FindGroup(gid)
		if g == nil {
			return invalidParentError{req.Group}
		}
		if err := e.Move(g); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) postEntry(w http.ResponseWriter, r *http.Request) error {
	var req entryRequest
	if err := readJSON(r, &req); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var view *entryView
	err := a.transaction(r, func(db *keepass.Database) error {
		p, err := extractRequestParams(db, r)
		if err != nil {
			return err
		}
		e, err := p.g.NewEntry()
		if err != nil {
			return err
		}
		if err := req.apply(db, e); err != nil {
			return err
		}
		view = viewOfEntry(e, false)
		return nil
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, view)
}

func (a *app) viewEntry(w http.ResponseWriter, r *http.Request) error {
	reveal, _ := strconv.ParseBool(r.FormValue("reveal"))
	a.mu.Lock()
	defer a.mu.Unlock()
	db, err := a.dbFromRequest(r)
	if err != nil {
		return err
	}
	defer db.Erase()
	p, err := extractRequestParams(db, r)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, viewOfEntry(p.e, reveal))
}

func (a *app) editEntry(w http.ResponseWriter, r *http.Request) error {
	var req entryRequest
	if err := readJSON(r, &req); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var view *entryView
	err := a.transaction(r, func(db *keepass.Database) error {
		p, err := extractRequestParams(db, r)
		if err != nil {
			return err
		}
		p.e.Backup()
		if err := req.apply(db, p.e); err != nil {
			return err
		}
		p.e.Touch(keepass.Modified, false)
		view = viewOfEntry(p.e, false)
		return nil
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, view)
}

func (a *app) deleteEntry(w http.ResponseWriter, r *http.Request) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.transaction(r, func(db *keepass.Database) error {
		p, err := extractRequestParams(db, r)
		if err != nil {
			return err
		}
		return db.DeleteEntry(p.e)
	})
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (a *app) getAttachment(w http.ResponseWriter, r *http.Request) error {
	name := mux.Vars(r)["name"]
	a.mu.Lock()
	defer a.mu.Unlock()
	db, err := a.dbFromRequest(r)
	if err != nil {
		return err
	}
	defer db.Erase()
	p, err := extractRequestParams(db, r)
	if err != nil {
		return err
	}
	att := p.e.Attachment(name)
	if att == nil {
		return notFoundError{}
	}
	data, err := att.Open()
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, err = w.Write(data)
	return err
}

func (a *app) postAttachment(w http.ResponseWriter, r *http.Request) error {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return userError{msg: "Missing file upload.", err: fmt.Errorf("post attachment: %v", err)}
	}
	data, err := ioutil.ReadAll(f)
	f.Close()
	if err != nil {
		return err
	}
	name := r.FormValue("name")
	if name == "" {
		name = hdr.Filename
	}
	if name == "" {
		return userError{msg: "Attachment name is required.", err: errors.New("post attachment: empty name")}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var view *entryView
	err = a.transaction(r, func(db *keepass.Database) error {
		p, err := extractRequestParams(db, r)
		if err != nil {
			return err
		}
		att, err := db.NewAttachment(name, data)
		if err != nil {
			return err
		}
		p.e.Backup()
		p.e.RemoveAttachment(name)
		p.e.Attachments = append(p.e.Attachments, att)
		p.e.Touch(keepass.Modified, false)
		view = viewOfEntry(p.e, false)
		return nil
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, view)
}

func sortEntries(ent []*keepass.Entry) []*keepass.Entry {
	sorted := make(entriesByName, len(ent))
	copy(sorted, ent)
	sort.Sort(sorted)
	return []*keepass.Entry(sorted)
}

type entriesByName []*keepass.Entry

func (e entriesByName) Len() int {
	return len(e)
}

func (e entriesByName) Less(i, j int) bool {
	return e[i].Title() < e[j].Title()
}

func (e entriesByName) Swap(i, j int) {
	e[i], e[j] = e[j], e[i]
}
