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
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"zombiezen.com/go/kdbxd/pkg/uuids"
)

// xmlReader walks the payload document one element at a time.
// The first error is sticky: after it, every method is a no-op.
type xmlReader struct {
	ctx    context.Context
	d      *xml.Decoder
	db     *Database
	stream cipher.Stream
	log    logrus.FieldLogger
	err    error

	elements     int
	warnedLegacy bool
}

// ctxCheckInterval is the number of elements read between
// cancellation checks.
const ctxCheckInterval = 256

func (x *xmlReader) fail(err error) {
	if x.err == nil {
		x.err = err
	}
}

func (x *xmlReader) failf(format string, args ...interface{}) {
	x.fail(&FormatError{Kind: ParsingError, Reason: fmt.Sprintf(format, args...)})
}

func (x *xmlReader) token() xml.Token {
	if x.err != nil {
		return nil
	}
	tok, err := x.d.Token()
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		x.fail(&FormatError{Kind: ParsingError, Err: err})
		return nil
	}
	return tok
}

// child advances to the next child element of the current element.
// It returns false once the current element's end tag is consumed.
func (x *xmlReader) child() (xml.StartElement, bool) {
	for {
		switch tok := x.token().(type) {
		case nil:
			return xml.StartElement{}, false
		case xml.StartElement:
			x.elements++
			if x.elements%ctxCheckInterval == 0 {
				if err := x.ctx.Err(); err != nil {
					x.fail(err)
					return xml.StartElement{}, false
				}
			}
			return tok, true
		case xml.EndElement:
			return xml.StartElement{}, false
		}
	}
}

// text returns the character data of the current element and consumes
// its end tag.
func (x *xmlReader) text() string {
	var sb strings.Builder
	for {
		switch tok := x.token().(type) {
		case nil:
			return ""
		case xml.CharData:
			sb.Write(tok)
		case xml.StartElement:
			x.unknown("text", tok)
		case xml.EndElement:
			return sb.String()
		}
	}
}

func (x *xmlReader) skip() {
	if x.err != nil {
		return
	}
	if err := x.d.Skip(); err != nil {
		x.fail(&FormatError{Kind: ParsingError, Err: err})
	}
}

func (x *xmlReader) unknown(parent string, se xml.StartElement) {
	x.log.WithFields(logrus.Fields{
		"element": se.Name.Local,
		"parent":  parent,
	}).Warn("skipping unknown XML element")
	x.skip()
}

func (x *xmlReader) bool() bool {
	return strings.EqualFold(strings.TrimSpace(x.text()), "true")
}

func (x *xmlReader) tristate() Tristate {
	switch s := strings.TrimSpace(x.text()); {
	case strings.EqualFold(s, "true"):
		return Enabled
	case strings.EqualFold(s, "false"):
		return Disabled
	default:
		return Inherit
	}
}

func (x *xmlReader) int64(name string) int64 {
	s := strings.TrimSpace(x.text())
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		x.fail(&FormatError{Kind: ParsingError, Reason: name, Err: err})
	}
	return n
}

func (x *xmlReader) int(name string) int {
	return int(x.int64(name))
}

func (x *xmlReader) time(name string) time.Time {
	s := strings.TrimSpace(x.text())
	if s == "" || x.err != nil {
		return time.Time{}
	}
	t, legacy, err := parseTime(s)
	if err != nil {
		x.fail(&FormatError{Kind: ParsingError, Reason: name, Err: err})
		return time.Time{}
	}
	if legacy && !x.warnedLegacy {
		x.log.WithField("element", name).Warn("found ISO 8601 timestamp in KDBX4 database")
		x.warnedLegacy = true
	}
	return t
}

func (x *xmlReader) uuid(name string) uuids.UUID {
	s := strings.TrimSpace(x.text())
	if s == "" || x.err != nil {
		return uuids.Zero
	}
	u, err := uuids.ParseBase64(s)
	if err != nil {
		x.fail(&FormatError{Kind: ParsingError, Reason: name, Err: err})
	}
	return u
}

func (x *xmlReader) bytes(name string) []byte {
	s := strings.TrimSpace(x.text())
	if x.err != nil {
		return nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		x.fail(&FormatError{Kind: ParsingError, Reason: name, Err: err})
	}
	return b
}

func (x *xmlReader) tags() []string {
	var tags []string
	for _, t := range strings.FieldsFunc(x.text(), func(r rune) bool { return r == ';' || r == ',' }) {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// decodeXML parses the payload document into db, decrypting protected
// values with stream in document order.
func (db *Database) decodeXML(ctx context.Context, r io.Reader, stream cipher.Stream) error {
	x := &xmlReader{
		ctx:    ctx,
		d:      xml.NewDecoder(r),
		db:     db,
		stream: stream,
		log:    db.log,
	}
	se, ok := x.child()
	if !ok {
		if x.err != nil {
			return x.err
		}
		return &FormatError{Kind: ParsingError, Reason: "empty document"}
	}
	if se.Name.Local != "KeePassFile" {
		return &FormatError{Kind: ParsingError, Reason: "root element is " + se.Name.Local}
	}
	for {
		se, ok := x.child()
		if !ok {
			break
		}
		switch se.Name.Local {
		case "Meta":
			db.Meta = x.readMeta()
		case "Root":
			x.readRoot()
		default:
			x.unknown("KeePassFile", se)
		}
	}
	if x.err != nil {
		return x.err
	}
	if db.Meta == nil {
		return &FormatError{Kind: ParsingError, Reason: "missing Meta element"}
	}
	if db.root == nil {
		return &FormatError{Kind: ParsingError, Err: errNoRoot}
	}
	db.registerGroup(db.root)
	return nil
}

func (x *xmlReader) readMeta() *Meta {
	m := newMeta(time.Time{})
	m.Generator = ""
	for {
		se, ok := x.child()
		if !ok {
			return m
		}
		switch se.Name.Local {
		case "Generator":
			m.Generator = x.text()
		case "HeaderHash":
			m.HeaderHash = x.bytes("HeaderHash")
		case "SettingsChanged":
			m.SettingsChanged = x.time("SettingsChanged")
		case "DatabaseName":
			m.DatabaseName = x.text()
		case "DatabaseNameChanged":
			m.DatabaseNameChanged = x.time("DatabaseNameChanged")
		case "DatabaseDescription":
			m.DatabaseDescription = x.text()
		case "DatabaseDescriptionChanged":
			m.DatabaseDescriptionChanged = x.time("DatabaseDescriptionChanged")
		case "DefaultUserName":
			m.DefaultUserName = x.text()
		case "DefaultUserNameChanged":
			m.DefaultUserNameChanged = x.time("DefaultUserNameChanged")
		case "MaintenanceHistoryDays":
			m.MaintenanceHistoryDays = x.int("MaintenanceHistoryDays")
		case "Color":
			m.Color = x.text()
		case "MasterKeyChanged":
			m.MasterKeyChanged = x.time("MasterKeyChanged")
		case "MasterKeyChangeRec":
			m.MasterKeyChangeRec = x.int64("MasterKeyChangeRec")
		case "MasterKeyChangeForce":
			m.MasterKeyChangeForce = x.int64("MasterKeyChangeForce")
		case "MasterKeyChangeForceOnce":
			m.MasterKeyChangeForceOnce = x.bool()
		case "MemoryProtection":
			x.readMemoryProtection(&m.MemoryProtection)
		case "CustomIcons":
			m.CustomIcons = x.readCustomIcons()
		case "RecycleBinEnabled":
			m.RecycleBinEnabled = x.bool()
		case "RecycleBinUUID":
			m.RecycleBinUUID = x.uuid("RecycleBinUUID")
		case "RecycleBinChanged":
			m.RecycleBinChanged = x.time("RecycleBinChanged")
		case "EntryTemplatesGroup":
			m.EntryTemplatesGroup = x.uuid("EntryTemplatesGroup")
		case "EntryTemplatesGroupChanged":
			m.EntryTemplatesGroupChanged = x.time("EntryTemplatesGroupChanged")
		case "HistoryMaxItems":
			m.HistoryMaxItems = x.int("HistoryMaxItems")
		case "HistoryMaxSize":
			m.HistoryMaxSize = x.int64("HistoryMaxSize")
		case "LastSelectedGroup":
			m.LastSelectedGroup = x.uuid("LastSelectedGroup")
		case "LastTopVisibleGroup":
			m.LastTopVisibleGroup = x.uuid("LastTopVisibleGroup")
		case "Binaries":
			// KDBX 3 stored attachments here.
			x.log.Warn("ignoring Meta/Binaries in KDBX4 database")
			x.skip()
		case "CustomData":
			m.CustomData = x.readCustomData()
		default:
			x.unknown("Meta", se)
		}
	}
}

func (x *xmlReader) readMemoryProtection(mp *MemoryProtection) {
	for {
		se, ok := x.child()
		if !ok {
			return
		}
		switch se.Name.Local {
		case "ProtectTitle":
			mp.ProtectTitle = x.bool()
		case "ProtectUserName":
			mp.ProtectUserName = x.bool()
		case "ProtectPassword":
			mp.ProtectPassword = x.bool()
		case "ProtectURL":
			mp.ProtectURL = x.bool()
		case "ProtectNotes":
			mp.ProtectNotes = x.bool()
		default:
			x.unknown("MemoryProtection", se)
		}
	}
}

func (x *xmlReader) readCustomIcons() []*CustomIcon {
	var icons []*CustomIcon
	for {
		se, ok := x.child()
		if !ok {
			return icons
		}
		if se.Name.Local != "Icon" {
			x.unknown("CustomIcons", se)
			continue
		}
		ic := new(CustomIcon)
		for {
			se, ok := x.child()
			if !ok {
				break
			}
			switch se.Name.Local {
			case "UUID":
				ic.UUID = x.uuid("Icon/UUID")
			case "Data":
				ic.Data = x.bytes("Icon/Data")
			case "Name":
				ic.Name = x.text()
			case "LastModificationTime":
				ic.LastModificationTime = x.time("Icon/LastModificationTime")
			default:
				x.unknown("Icon", se)
			}
		}
		icons = append(icons, ic)
	}
}

func (x *xmlReader) readCustomData() []CustomDataItem {
	var items []CustomDataItem
	for {
		se, ok := x.child()
		if !ok {
			return items
		}
		if se.Name.Local != "Item" {
			x.unknown("CustomData", se)
			continue
		}
		var item CustomDataItem
		for {
			se, ok := x.child()
			if !ok {
				break
			}
			switch se.Name.Local {
			case "Key":
				item.Key = x.text()
			case "Value":
				item.Value = x.text()
			case "LastModificationTime":
				item.LastModificationTime = x.time("Item/LastModificationTime")
			default:
				x.unknown("Item", se)
			}
		}
		items = append(items, item)
	}
}

func (x *xmlReader) readRoot() {
	for {
		se, ok := x.child()
		if !ok {
			return
		}
		switch se.Name.Local {
		case "Group":
			if x.db.root != nil {
				x.failf("multiple root groups")
				return
			}
			x.db.root = x.readGroup()
		case "DeletedObjects":
			x.readDeletedObjects()
		default:
			x.unknown("Root", se)
		}
	}
}

func (x *xmlReader) readDeletedObjects() {
	for {
		se, ok := x.child()
		if !ok {
			return
		}
		if se.Name.Local != "DeletedObject" {
			x.unknown("DeletedObjects", se)
			continue
		}
		var obj DeletedObject
		for {
			se, ok := x.child()
			if !ok {
				break
			}
			switch se.Name.Local {
			case "UUID":
				obj.UUID = x.uuid("DeletedObject/UUID")
			case "DeletionTime":
				obj.DeletionTime = x.time("DeletionTime")
			default:
				x.unknown("DeletedObject", se)
			}
		}
		x.db.DeletedObjects = append(x.db.DeletedObjects, obj)
	}
}

func (x *xmlReader) readGroup() *Group {
	g := &Group{db: x.db}
	for {
		se, ok := x.child()
		if !ok {
			break
		}
		switch se.Name.Local {
		case "UUID":
			g.UUID = x.uuid("Group/UUID")
		case "Name":
			g.Name = x.text()
		case "Notes":
			g.Notes = x.text()
		case "IconID":
			g.IconID = x.int("Group/IconID")
		case "CustomIconUUID":
			g.CustomIconUUID = x.uuid("Group/CustomIconUUID")
		case "Times":
			x.readTimes(&g.Times)
		case "IsExpanded":
			g.IsExpanded = x.bool()
		case "DefaultAutoTypeSequence":
			g.DefaultAutoTypeSequence = x.text()
		case "EnableAutoType":
			g.EnableAutoType = x.tristate()
		case "EnableSearching":
			g.EnableSearching = x.tristate()
		case "LastTopVisibleEntry":
			g.LastTopVisibleEntry = x.uuid("LastTopVisibleEntry")
		case "Tags":
			g.Tags = x.tags()
		case "PreviousParentGroup":
			g.PreviousParentGroup = x.uuid("Group/PreviousParentGroup")
		case "CustomData":
			g.CustomData = x.readCustomData()
		case "Entry":
			g.entries = append(g.entries, x.readEntry(false))
		case "Group":
			g.groups = append(g.groups, x.readGroup())
		default:
			x.unknown("Group", se)
		}
	}
	for _, e := range g.entries {
		e.parent = g.UUID
	}
	for _, sub := range g.groups {
		sub.parent = g.UUID
	}
	return g
}

func (x *xmlReader) readTimes(t *Times) {
	for {
		se, ok := x.child()
		if !ok {
			return
		}
		switch name := se.Name.Local; name {
		case "CreationTime":
			t.CreationTime = x.time(name)
		case "LastModificationTime":
			t.LastModificationTime = x.time(name)
		case "LastAccessTime":
			t.LastAccessTime = x.time(name)
		case "ExpiryTime":
			t.ExpiryTime = x.time(name)
		case "Expires":
			t.Expires = x.bool()
		case "UsageCount":
			t.UsageCount = x.int64(name)
		case "LocationChanged":
			t.LocationChanged = x.time(name)
		default:
			x.unknown("Times", se)
		}
	}
}

func (x *xmlReader) readEntry(inHistory bool) *Entry {
	e := &Entry{db: x.db, QualityCheck: true}
	for {
		se, ok := x.child()
		if !ok {
			return e
		}
		switch se.Name.Local {
		case "UUID":
			e.UUID = x.uuid("Entry/UUID")
		case "IconID":
			e.IconID = x.int("Entry/IconID")
		case "CustomIconUUID":
			e.CustomIconUUID = x.uuid("Entry/CustomIconUUID")
		case "ForegroundColor":
			e.ForegroundColor = x.text()
		case "BackgroundColor":
			e.BackgroundColor = x.text()
		case "OverrideURL":
			e.OverrideURL = x.text()
		case "Tags":
			e.Tags = x.tags()
		case "QualityCheck":
			e.QualityCheck = x.bool()
		case "PreviousParentGroup":
			e.PreviousParentGroup = x.uuid("Entry/PreviousParentGroup")
		case "Times":
			x.readTimes(&e.Times)
		case "String":
			if f := x.readField(); f != nil {
				e.Fields = append(e.Fields, f)
			}
		case "Binary":
			if a := x.readAttachment(); a != nil {
				e.Attachments = append(e.Attachments, a)
			}
		case "AutoType":
			x.readAutoType(&e.AutoType)
		case "CustomData":
			e.CustomData = x.readCustomData()
		case "History":
			if inHistory {
				x.log.Warn("skipping nested entry history")
				x.skip()
				continue
			}
			x.readHistory(e)
		default:
			x.unknown("Entry", se)
		}
	}
}

func (x *xmlReader) readHistory(e *Entry) {
	for {
		se, ok := x.child()
		if !ok {
			return
		}
		if se.Name.Local != "Entry" {
			x.unknown("History", se)
			continue
		}
		e.History = append(e.History, x.readEntry(true))
	}
}

func (x *xmlReader) readField() *Field {
	f := new(Field)
	for {
		se, ok := x.child()
		if !ok {
			break
		}
		switch se.Name.Local {
		case "Key":
			f.Name = x.text()
		case "Value":
			if strings.EqualFold(attr(se, "Protected"), "true") {
				raw := x.bytes("String/Value")
				x.stream.XORKeyStream(raw, raw)
				f.Value = string(raw)
				f.Protected = true
				wipeBytes(raw)
			} else {
				f.Protected = strings.EqualFold(attr(se, "ProtectInMemory"), "true")
				f.Value = x.text()
			}
		default:
			x.unknown("String", se)
		}
	}
	if x.err != nil {
		return nil
	}
	return f
}

func (x *xmlReader) readAttachment() *Attachment {
	a := &Attachment{id: -1}
	for {
		se, ok := x.child()
		if !ok {
			break
		}
		switch se.Name.Local {
		case "Key":
			a.Name = x.text()
		case "Value":
			ref := attr(se, "Ref")
			x.skip()
			id, err := strconv.Atoi(ref)
			if err != nil || id < 0 || id >= len(x.db.binaries) {
				x.log.WithField("ref", ref).Warn("attachment refers to missing binary")
				continue
			}
			b := x.db.binaries[id]
			a.data = b.Data
			a.compressed = b.IsCompressed
			a.id = id
		default:
			x.unknown("Binary", se)
		}
	}
	if x.err != nil {
		return nil
	}
	return a
}

func (x *xmlReader) readAutoType(at *AutoType) {
	for {
		se, ok := x.child()
		if !ok {
			return
		}
		switch se.Name.Local {
		case "Enabled":
			at.Enabled = x.bool()
		case "DataTransferObfuscation":
			at.DataTransferObfuscation = x.int("DataTransferObfuscation")
		case "DefaultSequence":
			at.DefaultSequence = x.text()
		case "Association":
			var assoc AutoTypeAssociation
			for {
				se, ok := x.child()
				if !ok {
					break
				}
				switch se.Name.Local {
				case "Window":
					assoc.Window = x.text()
				case "KeystrokeSequence":
					assoc.KeystrokeSequence = x.text()
				default:
					x.unknown("Association", se)
				}
			}
			at.Associations = append(at.Associations, assoc)
		default:
			x.unknown("AutoType", se)
		}
	}
}

// xmlWriter emits the payload document.  The first error is sticky.
type xmlWriter struct {
	e       *xml.Encoder
	stream  cipher.Stream
	version FormatVersion
	err     error

	// stripped counts characters dropped because XML 1.0 cannot
	// represent them.
	stripped int
}

func (x *xmlWriter) token(t xml.Token) {
	if x.err == nil {
		x.err = x.e.EncodeToken(t)
	}
}

func (x *xmlWriter) start(name string, attrs ...xml.Attr) {
	x.token(xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs})
}

func (x *xmlWriter) end(name string) {
	x.token(xml.EndElement{Name: xml.Name{Local: name}})
}

func (x *xmlWriter) text(name, s string, attrs ...xml.Attr) {
	x.start(name, attrs...)
	if s != "" {
		s, n := stripInvalidXML(s)
		x.stripped += n
		x.token(xml.CharData(s))
	}
	x.end(name)
}

// stripInvalidXML removes invalid UTF-8 and the characters outside the
// XML 1.0 Char production, returning the number of characters removed.
// encoding/xml would otherwise write them as U+FFFD.
func stripInvalidXML(s string) (string, int) {
	var sb strings.Builder
	n := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 || !isXMLChar(r) {
			if n == 0 {
				sb.Grow(len(s))
				sb.WriteString(s[:i])
			}
			n++
		} else if n > 0 {
			sb.WriteString(s[i : i+size])
		}
		i += size
	}
	if n == 0 {
		return s, 0
	}
	return sb.String(), n
}

func isXMLChar(r rune) bool {
	return r == '\t' || r == '\n' || r == '\r' ||
		r >= 0x20 && r <= 0xd7ff ||
		r >= 0xe000 && r <= 0xfffd ||
		r >= 0x10000 && r <= utf8.MaxRune
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func (x *xmlWriter) bool(name string, b bool) {
	x.text(name, formatBool(b))
}

func (x *xmlWriter) tristate(name string, t Tristate) {
	switch t {
	case Enabled:
		x.text(name, "True")
	case Disabled:
		x.text(name, "False")
	default:
		x.text(name, "null")
	}
}

func (x *xmlWriter) int64(name string, n int64) {
	x.text(name, strconv.FormatInt(n, 10))
}

func (x *xmlWriter) time(name string, t time.Time) {
	x.text(name, formatTime(t))
}

func (x *xmlWriter) uuid(name string, u uuids.UUID) {
	x.text(name, u.Base64())
}

func (x *xmlWriter) is41() bool {
	return x.version == Version41
}

// encodeXML writes the payload document, encrypting protected values
// with stream in document order.
func (db *Database) encodeXML(w io.Writer, stream cipher.Stream) error {
	x := &xmlWriter{
		e:       xml.NewEncoder(w),
		stream:  stream,
		version: db.header.version,
	}
	x.e.Indent("", "\t")
	x.token(xml.ProcInst{Target: "xml", Inst: []byte(`version="1.0" encoding="utf-8" standalone="yes"`)})
	x.start("KeePassFile")
	x.writeMeta(db.Meta)
	x.start("Root")
	x.writeGroup(db.root)
	x.start("DeletedObjects")
	for _, obj := range db.DeletedObjects {
		x.start("DeletedObject")
		x.uuid("UUID", obj.UUID)
		x.time("DeletionTime", obj.DeletionTime)
		x.end("DeletedObject")
	}
	x.end("DeletedObjects")
	x.end("Root")
	x.end("KeePassFile")
	if x.err != nil {
		return x.err
	}
	if x.stripped > 0 {
		db.log.WithField("count", x.stripped).Warn("dropped characters not allowed in XML")
	}
	if err := x.e.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func (x *xmlWriter) writeMeta(m *Meta) {
	x.start("Meta")
	x.text("Generator", m.Generator)
	x.time("SettingsChanged", m.SettingsChanged)
	x.text("DatabaseName", m.DatabaseName)
	x.time("DatabaseNameChanged", m.DatabaseNameChanged)
	x.text("DatabaseDescription", m.DatabaseDescription)
	x.time("DatabaseDescriptionChanged", m.DatabaseDescriptionChanged)
	x.text("DefaultUserName", m.DefaultUserName)
	x.time("DefaultUserNameChanged", m.DefaultUserNameChanged)
	x.int64("MaintenanceHistoryDays", int64(m.MaintenanceHistoryDays))
	x.text("Color", m.Color)
	x.time("MasterKeyChanged", m.MasterKeyChanged)
	x.int64("MasterKeyChangeRec", m.MasterKeyChangeRec)
	x.int64("MasterKeyChangeForce", m.MasterKeyChangeForce)
	if m.MasterKeyChangeForceOnce {
		x.bool("MasterKeyChangeForceOnce", true)
	}
	x.start("MemoryProtection")
	x.bool("ProtectTitle", m.MemoryProtection.ProtectTitle)
	x.bool("ProtectUserName", m.MemoryProtection.ProtectUserName)
	x.bool("ProtectPassword", m.MemoryProtection.ProtectPassword)
	x.bool("ProtectURL", m.MemoryProtection.ProtectURL)
	x.bool("ProtectNotes", m.MemoryProtection.ProtectNotes)
	x.end("MemoryProtection")
	if len(m.CustomIcons) > 0 {
		x.start("CustomIcons")
		for _, ic := range m.CustomIcons {
			x.start("Icon")
			x.uuid("UUID", ic.UUID)
			x.text("Data", base64.StdEncoding.EncodeToString(ic.Data))
			if x.is41() {
				if ic.Name != "" {
					x.text("Name", ic.Name)
				}
				if !ic.LastModificationTime.IsZero() {
					x.time("LastModificationTime", ic.LastModificationTime)
				}
			}
			x.end("Icon")
		}
		x.end("CustomIcons")
	}
	x.bool("RecycleBinEnabled", m.RecycleBinEnabled)
	x.uuid("RecycleBinUUID", m.RecycleBinUUID)
	x.time("RecycleBinChanged", m.RecycleBinChanged)
	x.uuid("EntryTemplatesGroup", m.EntryTemplatesGroup)
	x.time("EntryTemplatesGroupChanged", m.EntryTemplatesGroupChanged)
	x.int64("HistoryMaxItems", int64(m.HistoryMaxItems))
	x.int64("HistoryMaxSize", m.HistoryMaxSize)
	x.uuid("LastSelectedGroup", m.LastSelectedGroup)
	x.uuid("LastTopVisibleGroup", m.LastTopVisibleGroup)
	x.writeCustomData(m.CustomData)
	x.end("Meta")
}

func (x *xmlWriter) writeCustomData(items []CustomDataItem) {
	if len(items) == 0 {
		return
	}
	x.start("CustomData")
	for _, item := range items {
		x.start("Item")
		x.text("Key", item.Key)
		x.text("Value", item.Value)
		if x.is41() && !item.LastModificationTime.IsZero() {
			x.time("LastModificationTime", item.LastModificationTime)
		}
		x.end("Item")
	}
	x.end("CustomData")
}

func (x *xmlWriter) writeTimes(t *Times) {
	x.start("Times")
	x.time("CreationTime", t.CreationTime)
	x.time("LastModificationTime", t.LastModificationTime)
	x.time("LastAccessTime", t.LastAccessTime)
	x.time("ExpiryTime", t.ExpiryTime)
	x.bool("Expires", t.Expires)
	x.int64("UsageCount", t.UsageCount)
	x.time("LocationChanged", t.LocationChanged)
	x.end("Times")
}

func (x *xmlWriter) writeGroup(g *Group) {
	x.start("Group")
	x.uuid("UUID", g.UUID)
	x.text("Name", g.Name)
	x.text("Notes", g.Notes)
	x.int64("IconID", int64(g.IconID))
	if !g.CustomIconUUID.IsZero() {
		x.uuid("CustomIconUUID", g.CustomIconUUID)
	}
	x.writeTimes(&g.Times)
	x.bool("IsExpanded", g.IsExpanded)
	x.text("DefaultAutoTypeSequence", g.DefaultAutoTypeSequence)
	x.tristate("EnableAutoType", g.EnableAutoType)
	x.tristate("EnableSearching", g.EnableSearching)
	x.uuid("LastTopVisibleEntry", g.LastTopVisibleEntry)
	if x.is41() {
		if len(g.Tags) > 0 {
			x.text("Tags", strings.Join(g.Tags, ";"))
		}
		if !g.PreviousParentGroup.IsZero() {
			x.uuid("PreviousParentGroup", g.PreviousParentGroup)
		}
	}
	x.writeCustomData(g.CustomData)
	for _, e := range g.entries {
		x.writeEntry(e, false)
	}
	for _, sub := range g.groups {
		x.writeGroup(sub)
	}
	x.end("Group")
}

func (x *xmlWriter) writeEntry(e *Entry, inHistory bool) {
	x.start("Entry")
	x.uuid("UUID", e.UUID)
	x.int64("IconID", int64(e.IconID))
	if !e.CustomIconUUID.IsZero() {
		x.uuid("CustomIconUUID", e.CustomIconUUID)
	}
	x.text("ForegroundColor", e.ForegroundColor)
	x.text("BackgroundColor", e.BackgroundColor)
	x.text("OverrideURL", e.OverrideURL)
	if x.is41() {
		if !e.QualityCheck {
			x.bool("QualityCheck", false)
		}
		if !e.PreviousParentGroup.IsZero() {
			x.uuid("PreviousParentGroup", e.PreviousParentGroup)
		}
	}
	x.text("Tags", strings.Join(e.Tags, ";"))
	x.writeTimes(&e.Times)
	x.writeCustomData(e.CustomData)
	for _, f := range e.Fields {
		x.writeField(f)
	}
	for _, a := range e.Attachments {
		x.start("Binary")
		x.text("Key", a.Name)
		x.text("Value", "", xml.Attr{Name: xml.Name{Local: "Ref"}, Value: strconv.Itoa(a.id)})
		x.end("Binary")
	}
	x.start("AutoType")
	x.bool("Enabled", e.AutoType.Enabled)
	x.int64("DataTransferObfuscation", int64(e.AutoType.DataTransferObfuscation))
	if e.AutoType.DefaultSequence != "" {
		x.text("DefaultSequence", e.AutoType.DefaultSequence)
	}
	for _, assoc := range e.AutoType.Associations {
		x.start("Association")
		x.text("Window", assoc.Window)
		x.text("KeystrokeSequence", assoc.KeystrokeSequence)
		x.end("Association")
	}
	x.end("AutoType")
	if !inHistory {
		x.start("History")
		for _, h := range e.History {
			x.writeEntry(h, true)
		}
		x.end("History")
	}
	x.end("Entry")
}

var protectedAttr = xml.Attr{Name: xml.Name{Local: "Protected"}, Value: "True"}

func (x *xmlWriter) writeField(f *Field) {
	x.start("String")
	x.text("Key", f.Name)
	if f.Protected {
		raw := []byte(f.Value)
		x.stream.XORKeyStream(raw, raw)
		x.text("Value", base64.StdEncoding.EncodeToString(raw), protectedAttr)
		wipeBytes(raw)
	} else {
		x.text("Value", f.Value)
	}
	x.end("String")
}
