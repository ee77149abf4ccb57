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
	"errors"

	"zombiezen.com/go/kdbxd/pkg/uuids"
)

// Standard field names
const (
	TitleField    = "Title"
	UserNameField = "UserName"
	PasswordField = "Password"
	URLField      = "URL"
	NotesField    = "Notes"
)

var standardFields = []string{TitleField, UserNameField, PasswordField, URLField, NotesField}

func isStandardField(name string) bool {
	for _, s := range standardFields {
		if s == name {
			return true
		}
	}
	return false
}

// An Entry stores a set of named fields, typically a username and
// password.
type Entry struct {
	UUID            uuids.UUID
	IconID          int
	CustomIconUUID  uuids.UUID
	ForegroundColor string
	BackgroundColor string
	OverrideURL     string
	Tags            []string
	Times           Times
	AutoType        AutoType
	Fields          []*Field
	Attachments     []*Attachment
	History         []*Entry
	CustomData      []CustomDataItem

	// KDBX 4.1
	QualityCheck        bool
	PreviousParentGroup uuids.UUID

	// IsDeleted is set for entries in the recycle bin.
	IsDeleted bool

	parent uuids.UUID
	db     *Database
}

// A Field is a named string value of an entry.
type Field struct {
	Name      string
	Value     string
	Protected bool

	// resolved is Value with field references substituted.
	resolved   string
	isResolved bool
}

// ResolvedValue returns the field's value with any {REF:...}
// placeholders replaced by the referenced values.
func (f *Field) ResolvedValue() string {
	if f.isResolved {
		return f.resolved
	}
	return f.Value
}

func (f *Field) clone() *Field {
	c := *f
	return &c
}

// AutoType holds an entry's auto-type configuration.
type AutoType struct {
	Enabled                 bool
	DataTransferObfuscation int
	DefaultSequence         string
	Associations            []AutoTypeAssociation
}

// AutoTypeAssociation maps a window title pattern to a keystroke
// sequence.
type AutoTypeAssociation struct {
	Window            string
	KeystrokeSequence string
}

// Parent returns the entry's group or nil if the entry has been
// removed or is a history item.
func (e *Entry) Parent() *Group {
	if e.parent.IsZero() || e.db == nil {
		return nil
	}
	return e.db.groups[e.parent]
}

// Field returns the field with the given name or nil.
func (e *Entry) Field(name string) *Field {
	for _, f := range e.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Get returns the value of the named field or the empty string.
func (e *Entry) Get(name string) string {
	if f := e.Field(name); f != nil {
		return f.Value
	}
	return ""
}

// SetField sets the named field, adding it if necessary.
func (e *Entry) SetField(name, value string, protected bool) {
	if f := e.Field(name); f != nil {
		f.Value = value
		f.Protected = protected
		f.isResolved = false
		return
	}
	e.Fields = append(e.Fields, &Field{Name: name, Value: value, Protected: protected})
}

// RemoveField removes a custom field.  Standard fields are cleared
// instead of removed.
func (e *Entry) RemoveField(name string) {
	if isStandardField(name) {
		if f := e.Field(name); f != nil {
			f.Value = ""
			f.isResolved = false
		}
		return
	}
	for i, f := range e.Fields {
		if f.Name == name {
			e.Fields = append(e.Fields[:i], e.Fields[i+1:]...)
			return
		}
	}
}

func (e *Entry) setStandard(name, value string) {
	protected := false
	if e.db != nil {
		protected = e.db.Meta.MemoryProtection.protects(name)
	}
	if f := e.Field(name); f != nil {
		protected = f.Protected
	}
	e.SetField(name, value, protected)
}

// Title returns the entry's title.
func (e *Entry) Title() string { return e.Get(TitleField) }

// UserName returns the entry's user name.
func (e *Entry) UserName() string { return e.Get(UserNameField) }

// Password returns the entry's password.
func (e *Entry) Password() string { return e.Get(PasswordField) }

// URL returns the entry's URL.
func (e *Entry) URL() string { return e.Get(URLField) }

// Notes returns the entry's notes.
func (e *Entry) Notes() string { return e.Get(NotesField) }

// SetTitle sets the entry's title.
func (e *Entry) SetTitle(s string) { e.setStandard(TitleField, s) }

// SetUserName sets the entry's user name.
func (e *Entry) SetUserName(s string) { e.setStandard(UserNameField, s) }

// SetPassword sets the entry's password.
func (e *Entry) SetPassword(s string) { e.setStandard(PasswordField, s) }

// SetURL sets the entry's URL.
func (e *Entry) SetURL(s string) { e.setStandard(URLField, s) }

// SetNotes sets the entry's notes.
func (e *Entry) SetNotes(s string) { e.setStandard(NotesField, s) }

// Attachment returns the attachment with the given name or nil.
func (e *Entry) Attachment(name string) *Attachment {
	for _, a := range e.Attachments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// RemoveAttachment removes the named attachment and reports whether it
// was present.
func (e *Entry) RemoveAttachment(name string) bool {
	for i, a := range e.Attachments {
		if a.Name == name {
			e.Attachments = append(e.Attachments[:i], e.Attachments[i+1:]...)
			return true
		}
	}
	return false
}

// Touch updates the entry's access time (and modification time if
// mode is Modified).  If touchParents is true, the entry's groups are
// touched as well.
func (e *Entry) Touch(mode TouchMode, touchParents bool) {
	e.Times.touch(mode, e.db.now())
	if touchParents {
		if p := e.Parent(); p != nil {
			p.Touch(mode, true)
		}
	}
}

// Move moves e into g.
func (e *Entry) Move(g *Group) error {
	old := e.Parent()
	if old == nil {
		return errors.New("keepass: entry is not in a group")
	}
	if old == g {
		return nil
	}
	old.removeEntry(e)
	g.addEntry(e)
	e.PreviousParentGroup = old.UUID
	e.Times.LocationChanged = e.db.now()
	return nil
}

// Clone returns a deep copy of e that is not attached to any group.
// The history is copied as well.
func (e *Entry) Clone() *Entry {
	c := e.cloneWithoutHistory()
	for _, h := range e.History {
		c.History = append(c.History, h.cloneWithoutHistory())
	}
	return c
}

func (e *Entry) cloneWithoutHistory() *Entry {
	c := *e
	c.parent = uuids.Zero
	c.History = nil
	c.Tags = append([]string(nil), e.Tags...)
	c.CustomData = append([]CustomDataItem(nil), e.CustomData...)
	c.AutoType.Associations = append([]AutoTypeAssociation(nil), e.AutoType.Associations...)
	c.Fields = make([]*Field, len(e.Fields))
	for i, f := range e.Fields {
		c.Fields[i] = f.clone()
	}
	c.Attachments = make([]*Attachment, len(e.Attachments))
	for i, a := range e.Attachments {
		c.Attachments[i] = a.clone()
	}
	return &c
}

// Backup pushes a copy of the entry's current state onto its history
// and trims the history to the database's limits.
func (e *Entry) Backup() {
	e.History = append(e.History, e.cloneWithoutHistory())
	e.MaintainHistory()
}

// MaintainHistory removes the oldest history items until the history
// satisfies Meta.HistoryMaxItems and Meta.HistoryMaxSize.  A negative
// limit means unlimited.
func (e *Entry) MaintainHistory() {
	if e.db == nil {
		return
	}
	if max := e.db.Meta.HistoryMaxItems; max >= 0 && len(e.History) > max {
		e.History = append([]*Entry(nil), e.History[len(e.History)-max:]...)
	}
	if max := e.db.Meta.HistoryMaxSize; max >= 0 {
		for len(e.History) > 0 && e.historySize() > max {
			e.History = e.History[1:]
		}
	}
}

func (e *Entry) historySize() int64 {
	var n int64
	for _, h := range e.History {
		n += h.size()
	}
	return n
}

// size approximates the serialized size of e, excluding history.
func (e *Entry) size() int64 {
	var n int64
	for _, f := range e.Fields {
		n += int64(len(f.Name) + len(f.Value))
	}
	for _, a := range e.Attachments {
		n += int64(len(a.Name) + len(a.data))
	}
	for _, t := range e.Tags {
		n += int64(len(t))
	}
	return n
}

// An Attachment is a named file attached to an entry.  Its contents
// are stored in the database's binary pool when the database is saved.
type Attachment struct {
	Name string

	data       []byte
	compressed bool

	// id is the attachment's index in the binary pool as of the last
	// load or save.
	id int
}

// IsCompressed reports whether the attachment is held gzip-compressed.
func (a *Attachment) IsCompressed() bool {
	return a.compressed
}

// Open returns the attachment's uncompressed contents.
func (a *Attachment) Open() ([]byte, error) {
	if !a.compressed {
		return a.data, nil
	}
	data, err := gunzip(a.data)
	if err != nil {
		return nil, &HeaderError{Kind: BinaryUncompression, Err: err}
	}
	return data, nil
}

// Size returns the number of bytes held, compressed or not.
func (a *Attachment) Size() int {
	return len(a.data)
}

func (a *Attachment) clone() *Attachment {
	c := *a
	return &c
}
