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

// Tristate is a setting that may be inherited from the parent group.
type Tristate int8

// Tristate values.
const (
	Inherit Tristate = iota
	Enabled
	Disabled
)

// Resolve returns the setting's value, using def when inherited.
func (t Tristate) Resolve(def bool) bool {
	switch t {
	case Enabled:
		return true
	case Disabled:
		return false
	default:
		return def
	}
}

// A Group is a hierarchical collection of entries.
type Group struct {
	UUID           uuids.UUID
	Name           string
	Notes          string
	IconID         int
	CustomIconUUID uuids.UUID
	Times          Times
	IsExpanded     bool

	DefaultAutoTypeSequence string
	EnableAutoType          Tristate
	EnableSearching         Tristate
	LastTopVisibleEntry     uuids.UUID

	// KDBX 4.1
	Tags                []string
	PreviousParentGroup uuids.UUID

	CustomData []CustomDataItem

	// IsDeleted is set for groups in the recycle bin.
	IsDeleted bool

	parent  uuids.UUID
	db      *Database
	groups  []*Group
	entries []*Entry
}

// Parent returns the group's parent or nil if g is the root group or
// has been removed from the database.
func (g *Group) Parent() *Group {
	if g.parent.IsZero() {
		return nil
	}
	return g.db.groups[g.parent]
}

// Groups returns the groups as a slice.
func (g *Group) Groups() []*Group {
	gg := make([]*Group, len(g.groups))
	copy(gg, g.groups)
	return gg
}

// NGroups returns the number of subgroups this group has.
func (g *Group) NGroups() int {
	return len(g.groups)
}

// Group returns the group at index i.  If i is out of range,
// this method will panic.
func (g *Group) Group(i int) *Group {
	return g.groups[i]
}

// Entries returns the entries in the group as a slice.
func (g *Group) Entries() []*Entry {
	e := make([]*Entry, len(g.entries))
	copy(e, g.entries)
	return e
}

// NEntries returns the number of entries this group has.
func (g *Group) NEntries() int {
	return len(g.entries)
}

// Entry returns the entry at index i.  If i is out of range,
// this method will panic.
func (g *Group) Entry(i int) *Entry {
	return g.entries[i]
}

// NewSubgroup creates a group inside g and returns it.
// An error is returned if the ID generation fails.
func (g *Group) NewSubgroup() (*Group, error) {
	id, err := g.db.newUUID()
	if err != nil {
		return nil, err
	}
	sub := &Group{
		UUID:       id,
		Times:      newTimes(g.db.now()),
		IconID:     folderIcon,
		IsExpanded: true,
		db:         g.db,
	}
	g.addGroup(sub)
	return sub, nil
}

// NewEntry creates a new entry inside the group and returns it.
// An error is returned if the ID generation fails.
func (g *Group) NewEntry() (*Entry, error) {
	id, err := g.db.newUUID()
	if err != nil {
		return nil, err
	}
	e := &Entry{
		UUID:         id,
		Times:        newTimes(g.db.now()),
		AutoType:     AutoType{Enabled: true},
		QualityCheck: true,
		db:           g.db,
	}
	for _, name := range standardFields {
		e.Fields = append(e.Fields, &Field{Name: name, Protected: g.db.Meta.MemoryProtection.protects(name)})
	}
	g.addEntry(e)
	return e, nil
}

func (g *Group) addGroup(sub *Group) {
	sub.parent = g.UUID
	g.groups = append(g.groups, sub)
	g.db.registerGroup(sub)
}

func (g *Group) addEntry(e *Entry) {
	e.parent = g.UUID
	g.entries = append(g.entries, e)
	g.db.entries[e.UUID] = e
}

// removeGroup detaches sub and its descendants from g and the index.
func (g *Group) removeGroup(sub *Group) bool {
	i := indexOf(len(g.groups), func(i int) bool { return g.groups[i] == sub })
	if i == -1 {
		return false
	}
	copy(g.groups[i:], g.groups[i+1:])
	g.groups[len(g.groups)-1] = nil
	g.groups = g.groups[:len(g.groups)-1]
	g.db.unregisterGroup(sub)
	sub.parent = uuids.Zero
	return true
}

func (g *Group) removeEntry(e *Entry) bool {
	i := indexOf(len(g.entries), func(i int) bool { return g.entries[i] == e })
	if i == -1 {
		return false
	}
	copy(g.entries[i:], g.entries[i+1:])
	g.entries[len(g.entries)-1] = nil
	g.entries = g.entries[:len(g.entries)-1]
	delete(g.db.entries, e.UUID)
	e.parent = uuids.Zero
	return true
}

func indexOf(n int, match func(int) bool) int {
	for i := 0; i < n; i++ {
		if match(i) {
			return i
		}
	}
	return -1
}

// IsAncestor reports whether g is a (possibly indirect) parent of other.
func (g *Group) IsAncestor(other *Group) bool {
	for p := other.Parent(); p != nil; p = p.Parent() {
		if p == g {
			return true
		}
	}
	return false
}

var errMoveIntoSelf = errors.New("keepass: cannot move a group into itself or its descendants")

// Move moves g under parent.  Moving the root group, or moving a group
// under one of its own descendants, is an error.
func (g *Group) Move(parent *Group) error {
	if g == parent || g.IsAncestor(parent) {
		return errMoveIntoSelf
	}
	old := g.Parent()
	if old == nil {
		return errors.New("keepass: cannot move the root group")
	}
	if old == parent {
		return nil
	}
	old.removeGroup(g)
	parent.addGroup(g)
	g.PreviousParentGroup = old.UUID
	g.Times.LocationChanged = g.db.now()
	return nil
}

// Touch updates the group's access time (and modification time if
// mode is Modified).  If touchParents is true, the ancestors are
// touched as well.
func (g *Group) Touch(mode TouchMode, touchParents bool) {
	now := g.db.now()
	g.Times.touch(mode, now)
	if touchParents {
		for p := g.Parent(); p != nil; p = p.Parent() {
			p.Times.touch(mode, now)
		}
	}
}

// setDeleted marks g and every descendant group and entry.
func (g *Group) setDeleted(deleted bool) {
	g.IsDeleted = deleted
	for _, e := range g.entries {
		e.IsDeleted = deleted
	}
	for _, sub := range g.groups {
		sub.setDeleted(deleted)
	}
}

// walk calls fg for g and every descendant group in depth-first
// order, each group's entries passed to fe before its subgroups.
func (g *Group) walk(fg func(*Group), fe func(*Entry)) {
	if fg != nil {
		fg(g)
	}
	if fe != nil {
		for _, e := range g.entries {
			fe(e)
		}
	}
	for _, sub := range g.groups {
		sub.walk(fg, fe)
	}
}

// Standard icon ids
const (
	folderIcon     = 48
	recycleBinIcon = 43
)
