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
	"context"
	"crypto/cipher"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"zombiezen.com/go/kdbxd/pkg/kdbcrypt"
	"zombiezen.com/go/kdbxd/pkg/uuids"
)

func nullStreamForTest() cipher.Stream {
	s, err := kdbcrypt.NewProtectedStream(kdbcrypt.NullStream, nil)
	if err != nil {
		panic(err)
	}
	return s
}

func decodeTestXML(doc string, log logrus.FieldLogger) (*Database, error) {
	db := &Database{
		groups:  make(map[uuids.UUID]*Group),
		entries: make(map[uuids.UUID]*Entry),
		log:     log,
		clock:   time.Now,
	}
	err := db.decodeXML(context.Background(), strings.NewReader(doc), nullStreamForTest())
	return db, err
}

const testDocument = `<?xml version="1.0" encoding="utf-8" standalone="yes"?>
<KeePassFile>
	<Meta>
		<Generator>KeePass</Generator>
		<DatabaseName>Test</DatabaseName>
		<FutureSetting>ignored</FutureSetting>
		<RecycleBinEnabled>False</RecycleBinEnabled>
		<MemoryProtection>
			<ProtectPassword>True</ProtectPassword>
		</MemoryProtection>
	</Meta>
	<Root>
		<Group>
			<UUID>AAECAwQFBgcICQoLDA0ODw==</UUID>
			<Name>Root</Name>
			<EnableSearching>null</EnableSearching>
			<EnableAutoType>False</EnableAutoType>
			<Times>
				<CreationTime>2020-01-02T03:04:05Z</CreationTime>
				<Expires>False</Expires>
			</Times>
			<Entry>
				<UUID>EBESExQVFhcYGRobHB0eHw==</UUID>
				<String>
					<Key>Title</Key>
					<Value>Hello</Value>
				</String>
				<String>
					<Key>Password</Key>
					<Value Protected="True">c2VjcmV0</Value>
				</String>
				<Unknown><Nested>x</Nested></Unknown>
				<AutoType>
					<Enabled>True</Enabled>
					<Association>
						<Window>Example*</Window>
						<KeystrokeSequence>{PASSWORD}{ENTER}</KeystrokeSequence>
					</Association>
				</AutoType>
			</Entry>
		</Group>
		<DeletedObjects>
			<DeletedObject>
				<UUID>EBESExQVFhcYGRobHB0eHw==</UUID>
				<DeletionTime>Jh7g1w4AAAA=</DeletionTime>
			</DeletedObject>
		</DeletedObjects>
	</Root>
</KeePassFile>
`

func TestDecodeXML(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	db, err := decodeTestXML(testDocument, log)
	if err != nil {
		t.Fatal("decodeXML:", err)
	}
	if db.Meta.DatabaseName != "Test" || db.Meta.RecycleBinEnabled {
		t.Errorf("Meta = {DatabaseName: %q, RecycleBinEnabled: %t}; want {\"Test\", false}", db.Meta.DatabaseName, db.Meta.RecycleBinEnabled)
	}
	root := db.Root()
	if root == nil || root.Name != "Root" {
		t.Fatalf("root = %+v; want group named Root", root)
	}
	if root.EnableSearching != Inherit || root.EnableAutoType != Disabled {
		t.Errorf("EnableSearching, EnableAutoType = %v, %v; want Inherit, Disabled", root.EnableSearching, root.EnableAutoType)
	}
	if want := time.Date(2020, time.January, 2, 3, 4, 5, 0, time.UTC); !root.Times.CreationTime.Equal(want) {
		t.Errorf("root CreationTime = %v; want %v", root.Times.CreationTime, want)
	}
	if root.NEntries() != 1 {
		t.Fatalf("root has %d entries; want 1", root.NEntries())
	}
	e := root.Entry(0)
	if e.Title() != "Hello" {
		t.Errorf("Title() = %q; want \"Hello\"", e.Title())
	}
	if pw := e.Field(PasswordField); pw == nil || pw.Value != "secret" || !pw.Protected {
		t.Errorf("Password field = %+v; want protected \"secret\"", pw)
	}
	if len(e.AutoType.Associations) != 1 || e.AutoType.Associations[0].KeystrokeSequence != "{PASSWORD}{ENTER}" {
		t.Errorf("AutoType = %+v", e.AutoType)
	}
	if db.FindEntry(e.UUID) != e || e.Parent() != root {
		t.Error("entry not indexed under root")
	}
	if len(db.DeletedObjects) != 1 || db.DeletedObjects[0].UUID != e.UUID {
		t.Errorf("DeletedObjects = %v", db.DeletedObjects)
	}

	var warnings []string
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			if el, ok := entry.Data["element"].(string); ok {
				warnings = append(warnings, el)
			}
		}
	}
	want := []string{"FutureSetting", "CreationTime", "Unknown"}
	if strings.Join(warnings, ",") != strings.Join(want, ",") {
		t.Errorf("warnings for elements %q; want %q", warnings, want)
	}
}

func TestDecodeXMLErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"wrong root", `<NotKeePass/>`, &FormatError{Kind: ParsingError}},
		{"truncated", testDocument[:len(testDocument)/2], &FormatError{Kind: ParsingError}},
		{"no root group", `<KeePassFile><Meta></Meta><Root></Root></KeePassFile>`, errNoRoot},
		{"no meta", `<KeePassFile><Root><Group><Name>x</Name></Group></Root></KeePassFile>`, &FormatError{Kind: ParsingError}},
		{"bad time", `<KeePassFile><Meta><SettingsChanged>soon</SettingsChanged></Meta></KeePassFile>`, errTimeFormat},
		{"bad protected value", `<KeePassFile><Meta/><Root><Group><Entry><String><Key>k</Key><Value Protected="True">!!!</Value></String></Entry></Group></Root></KeePassFile>`, &FormatError{Kind: ParsingError}},
	}
	for _, test := range tests {
		_, err := decodeTestXML(test.doc, discardLogger)
		if !errors.Is(err, test.want) {
			t.Errorf("%s: decodeXML error = %v; want %v", test.name, err, test.want)
		}
	}
}

func TestStripInvalidXML(t *testing.T) {
	tests := []struct {
		s    string
		want string
		n    int
	}{
		{"", "", 0},
		{"plain", "plain", 0},
		{"tab\there\r\nnext", "tab\there\r\nnext", 0},
		{"a\x01b", "ab", 1},
		{"\x00\x1f", "", 2},
		{"café \U0001f511", "café \U0001f511", 0},
		{"x\ufffey\uffff", "xy", 2},
		{"bad\xffutf8", "badutf8", 1},
		{"\ufffd", "\ufffd", 0},
	}
	for _, test := range tests {
		got, n := stripInvalidXML(test.s)
		if got != test.want || n != test.n {
			t.Errorf("stripInvalidXML(%q) = %q, %d; want %q, %d", test.s, got, n, test.want, test.n)
		}
	}
}

func TestInvalidXMLCharsOnSave(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	opts := testOptions()
	opts.Logger = log
	db := newTestDB(t, opts)
	e, _ := db.Root().NewEntry()
	e.SetTitle("bell\x07 title")
	e.SetNotes("line\x01one\nline two")
	e.SetPassword("pass\x01word")

	db2 := reopen(t, db)
	e2 := db2.FindEntry(e.UUID)
	if got := e2.Title(); got != "bell title" {
		t.Errorf("title after reload = %q; want %q", got, "bell title")
	}
	if got := e2.Notes(); got != "lineone\nline two" {
		t.Errorf("notes after reload = %q; want %q", got, "lineone\nline two")
	}
	// Protected values are stored as base64, so any byte survives.
	if got := e2.Password(); got != "pass\x01word" {
		t.Errorf("password after reload = %q; want %q", got, "pass\x01word")
	}

	warned := false
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Data["count"] == 2 {
			warned = true
		}
	}
	if !warned {
		t.Error("no warning logged with count=2 for dropped characters")
	}
}
