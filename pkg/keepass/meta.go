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
	"bytes"
	"crypto/sha256"
	"time"

	"zombiezen.com/go/kdbxd/pkg/uuids"
)

// Meta holds database-wide settings stored in the XML payload.
type Meta struct {
	Generator string

	// HeaderHash is the outer header hash some writers store in the
	// payload.  It is verified on load and never written.
	HeaderHash []byte

	SettingsChanged            time.Time
	DatabaseName               string
	DatabaseNameChanged        time.Time
	DatabaseDescription        string
	DatabaseDescriptionChanged time.Time
	DefaultUserName            string
	DefaultUserNameChanged     time.Time
	MaintenanceHistoryDays     int
	Color                      string

	MasterKeyChanged         time.Time
	MasterKeyChangeRec       int64
	MasterKeyChangeForce     int64
	MasterKeyChangeForceOnce bool

	MemoryProtection MemoryProtection
	CustomIcons      []*CustomIcon

	RecycleBinEnabled bool
	RecycleBinUUID    uuids.UUID
	RecycleBinChanged time.Time

	EntryTemplatesGroup        uuids.UUID
	EntryTemplatesGroupChanged time.Time

	HistoryMaxItems int
	HistoryMaxSize  int64

	LastSelectedGroup   uuids.UUID
	LastTopVisibleGroup uuids.UUID

	CustomData []CustomDataItem
}

const generatorName = "kdbxd"

func newMeta(now time.Time) *Meta {
	return &Meta{
		Generator:                  generatorName,
		SettingsChanged:            now,
		DatabaseNameChanged:        now,
		DatabaseDescriptionChanged: now,
		DefaultUserNameChanged:     now,
		MaintenanceHistoryDays:     365,
		MasterKeyChanged:           now,
		MasterKeyChangeRec:         -1,
		MasterKeyChangeForce:       -1,
		MemoryProtection:           MemoryProtection{ProtectPassword: true},
		RecycleBinEnabled:          true,
		RecycleBinChanged:          now,
		EntryTemplatesGroupChanged: now,
		HistoryMaxItems:            10,
		HistoryMaxSize:             6 * 1024 * 1024,
	}
}

// MemoryProtection lists the standard fields that are stored encrypted
// with the protected stream.
type MemoryProtection struct {
	ProtectTitle    bool
	ProtectUserName bool
	ProtectPassword bool
	ProtectURL      bool
	ProtectNotes    bool
}

func (mp *MemoryProtection) protects(field string) bool {
	switch field {
	case TitleField:
		return mp.ProtectTitle
	case UserNameField:
		return mp.ProtectUserName
	case PasswordField:
		return mp.ProtectPassword
	case URLField:
		return mp.ProtectURL
	case NotesField:
		return mp.ProtectNotes
	default:
		return false
	}
}

// A CustomIcon is a PNG image referenced by groups and entries.
type CustomIcon struct {
	UUID uuids.UUID
	Data []byte

	// KDBX 4.1
	Name                 string
	LastModificationTime time.Time
}

// A CustomDataItem is a plugin-defined key/value pair.
type CustomDataItem struct {
	Key   string
	Value string

	// LastModificationTime is only stored in KDBX 4.1.
	LastModificationTime time.Time
}

func (m *Meta) findCustomIcon(u uuids.UUID) *CustomIcon {
	for _, ic := range m.CustomIcons {
		if ic.UUID == u {
			return ic
		}
	}
	return nil
}

func (m *Meta) findCustomIconByData(data []byte) *CustomIcon {
	sum := sha256.Sum256(data)
	for _, ic := range m.CustomIcons {
		if sha256.Sum256(ic.Data) == sum && bytes.Equal(ic.Data, data) {
			return ic
		}
	}
	return nil
}

// DeletedObject is a tombstone recording that an object was removed.
type DeletedObject struct {
	UUID         uuids.UUID
	DeletionTime time.Time
}
