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

// Package keepass reads and writes the KeePass KDBX 4 database format.
package keepass // import "zombiezen.com/go/kdbxd/pkg/keepass"

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"io"
	"io/ioutil"
	"time"

	"github.com/sirupsen/logrus"
	"zombiezen.com/go/kdbxd/pkg/cipherio"
	"zombiezen.com/go/kdbxd/pkg/kdbcrypt"
	"zombiezen.com/go/kdbxd/pkg/securebuf"
	"zombiezen.com/go/kdbxd/pkg/uuids"
	"zombiezen.com/go/kdbxd/pkg/vardict"
)

// A Binary is an entry in the database's attachment pool.
type Binary struct {
	ID           int
	Data         []byte
	IsCompressed bool
	IsProtected  bool
}

// A Database represents a decrypted KDBX file.
type Database struct {
	Meta           *Meta
	DeletedObjects []DeletedObject

	header    *header
	streamID  kdbcrypt.StreamID
	streamKey *securebuf.Buffer
	binaries  []*Binary
	key       *CompositeKey
	keyParser kdbcrypt.KeyFileParser

	root    *Group
	groups  map[uuids.UUID]*Group
	entries map[uuids.UUID]*Entry

	rand     io.Reader
	log      logrus.FieldLogger
	progress *Progress
	clock    func() time.Time
}

func newDatabase(h *header, key *CompositeKey, opts *Options) *Database {
	return &Database{
		header:    h,
		streamID:  kdbcrypt.ChaCha20Stream,
		key:       key,
		keyParser: opts.getKeyFileParser(),
		groups:    make(map[uuids.UUID]*Group),
		entries:   make(map[uuids.UUID]*Entry),
		rand:      opts.getRand(),
		log:       opts.logger(),
		progress:  opts.progress(),
		clock:     time.Now,
	}
}

// New creates a new empty database.
func New(opts *Options) (*Database, error) {
	key, err := opts.compositeKey()
	if err != nil {
		return nil, err
	}
	if err := key.ensureCombined(opts.getKeyFileParser()); err != nil {
		key.Erase()
		return nil, err
	}
	if key.combined == nil {
		// A new database gets a fresh salt, so a transformed key cannot fit it.
		key.Erase()
		return nil, errTransformedOnly
	}
	kdf, err := opts.getKDF()
	if err != nil {
		key.Erase()
		return nil, err
	}
	h := &header{
		version:    Version4,
		cipher:     opts.getCipher(),
		compressed: opts.compressed(),
		kdf:        kdf,
	}
	db := newDatabase(h, key, opts)
	db.Meta = newMeta(db.now())
	id, err := db.newUUID()
	if err != nil {
		key.Erase()
		return nil, err
	}
	db.root = &Group{
		UUID:       id,
		Name:       "Root",
		IconID:     folderIcon,
		IsExpanded: true,
		Times:      newTimes(db.now()),
		db:         db,
	}
	db.registerGroup(db.root)
	return db, nil
}

// now returns the current time truncated to the second, the precision
// of stored times.
func (db *Database) now() time.Time {
	return db.clock().UTC().Truncate(time.Second)
}

func (db *Database) newUUID() (uuids.UUID, error) {
	for {
		u, err := uuids.New(db.rand)
		if err != nil {
			return uuids.Zero, err
		}
		if db.groups[u] == nil && db.entries[u] == nil {
			return u, nil
		}
	}
}

func (db *Database) registerGroup(g *Group) {
	g.walk(func(g *Group) {
		if _, dup := db.groups[g.UUID]; dup {
			db.log.WithField("uuid", g.UUID).Warn("duplicate group UUID")
			return
		}
		db.groups[g.UUID] = g
	}, func(e *Entry) {
		if _, dup := db.entries[e.UUID]; dup {
			db.log.WithField("uuid", e.UUID).Warn("duplicate entry UUID")
			return
		}
		db.entries[e.UUID] = e
	})
}

func (db *Database) unregisterGroup(g *Group) {
	g.walk(func(g *Group) {
		if db.groups[g.UUID] == g {
			delete(db.groups, g.UUID)
		}
	}, func(e *Entry) {
		if db.entries[e.UUID] == e {
			delete(db.entries, e.UUID)
		}
	})
}

// Root returns the root group.
func (db *Database) Root() *Group {
	return db.root
}

// Version returns the file format version the database will be
// written as.
func (db *Database) Version() FormatVersion {
	if db.header.version != Version41 && db.uses41Features() {
		return Version41
	}
	return db.header.version
}

// Cipher returns the cipher used to encrypt the payload.
func (db *Database) Cipher() kdbcrypt.Cipher {
	return db.header.cipher
}

// SetCipher changes the cipher used on the next Write.
func (db *Database) SetCipher(c kdbcrypt.Cipher) {
	db.header.cipher = c
}

// KDF returns a copy of the key derivation parameters.
func (db *Database) KDF() *kdbcrypt.KDFParams {
	return db.header.kdf.Clone()
}

// SetKDF changes the key derivation parameters used on the next Write.
func (db *Database) SetKDF(p *kdbcrypt.KDFParams) {
	db.header.kdf = p.Clone()
}

// Compressed reports whether the payload is gzip-compressed.
func (db *Database) Compressed() bool {
	return db.header.compressed
}

// SetCompressed changes whether the payload is compressed on the next
// Write.  Attachments already held compressed stay compressed until
// the database is reloaded.
func (db *Database) SetCompressed(c bool) {
	db.header.compressed = c
}

// PublicCustomData returns the unencrypted custom data stored in the
// outer header.  Changes to it are written on the next Write.
func (db *Database) PublicCustomData() *vardict.Dict {
	if db.header.publicCustomData == nil {
		db.header.publicCustomData = new(vardict.Dict)
	}
	return db.header.publicCustomData
}

// Binaries returns the attachment pool as of the last load or save.
func (db *Database) Binaries() []*Binary {
	b := make([]*Binary, len(db.binaries))
	copy(b, db.binaries)
	return b
}

// CompositeKey returns a copy of the database's key.  The copy holds
// the combined and transformed keys, so it can reopen the database
// without running the key derivation function again.  The caller must
// Erase it.
func (db *Database) CompositeKey() *CompositeKey {
	if db.key == nil {
		return nil
	}
	return db.key.Clone()
}

// Open decrypts and reads a database.
func Open(r io.Reader, opts *Options) (*Database, error) {
	return OpenContext(context.Background(), r, opts)
}

// OpenContext decrypts and reads a database.  If ctx is cancelled
// before the database is fully read, OpenContext returns an error
// wrapping ctx.Err().  A wrong password or key file gives an error
// that matches ErrInvalidKey.
func OpenContext(ctx context.Context, r io.Reader, opts *Options) (*Database, error) {
	log := opts.logger()
	prog := opts.progress()
	prog.reset()
	fail := func(err error) (*Database, error) {
		if errors.Is(err, ErrInvalidKey) {
			return nil, ErrInvalidKey
		}
		return nil, &DatabaseError{Op: "load", Kind: LoadError, Err: err}
	}

	h, err := readHeader(r, log)
	if err != nil {
		return fail(err)
	}
	prog.set(PhaseHeaderRead)
	log.WithFields(logrus.Fields{
		"version": h.version,
		"cipher":  h.cipher,
		"kdf":     h.kdf.KDF,
	}).Debug("header read")
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	key, err := opts.compositeKey()
	if err != nil {
		return fail(err)
	}
	keyOK := false
	defer func() {
		if !keyOK {
			key.Erase()
		}
	}()
	if err := key.ensureCombined(opts.getKeyFileParser()); err != nil {
		return fail(err)
	}
	if err := key.deriveFinalKeys(h.kdf, h.masterSeed, h.cipher); err != nil {
		return fail(err)
	}
	prog.set(PhaseKeyDerived)
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	var stored [2 * sha256.Size]byte
	if _, err := io.ReadFull(r, stored[:]); err != nil {
		return fail(&FormatError{Kind: PrematureDataEnd, Err: err})
	}
	if !bytes.Equal(stored[:sha256.Size], h.hash[:]) {
		return fail(&HeaderError{Kind: HashMismatch})
	}
	mac := h.hmac(key.hmacKey.Bytes())
	if !hmac.Equal(stored[sha256.Size:], mac[:]) {
		return fail(ErrInvalidKey)
	}

	br := newBlockReader(ctx, r, key.hmacKey.Bytes())
	dec, err := h.cipher.NewDecrypter(cipherio.WithContext(ctx, br, prog.counter()), key.cipherKey.Bytes(), h.iv)
	if err != nil {
		return fail(err)
	}
	plain, err := ioutil.ReadAll(dec)
	if err != nil {
		wipeBytes(plain)
		return fail(err)
	}
	key.EraseFinalKeys()
	prog.set(PhaseContentDecrypted)
	log.WithField("size", len(plain)).Debug("content decrypted")

	payload := plain
	if h.compressed {
		payload, err = gunzip(plain)
		wipeBytes(plain)
		if err != nil {
			wipeBytes(payload)
			return fail(&FormatError{Kind: CompressionError, Err: err})
		}
	}
	defer wipeBytes(payload)
	prog.set(PhaseDecompressed)
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	ih, n, err := readInnerHeader(bytes.NewReader(payload), log)
	if err != nil {
		return fail(err)
	}
	prog.set(PhaseInnerHeaderRead)

	db := newDatabase(h, key, opts)
	db.streamID = ih.streamID
	db.streamKey = ih.streamKey
	db.binaries = ih.binaries
	if err := db.decodeXML(ctx, bytes.NewReader(payload[n:]), ih.stream); err != nil {
		ih.erase()
		return fail(err)
	}
	prog.set(PhaseXMLParsed)
	if len(db.Meta.HeaderHash) > 0 && !bytes.Equal(db.Meta.HeaderHash, h.hash[:]) {
		ih.erase()
		return fail(&HeaderError{Kind: HashMismatch, Err: errors.New("payload header hash")})
	}

	if bin, _ := db.BackupGroup(false); bin != nil {
		bin.setDeleted(true)
	}
	db.resolveReferences(db.entriesWithHistory())
	keyOK = true
	prog.set(PhaseLoaded)
	log.WithFields(logrus.Fields{
		"groups":  len(db.groups),
		"entries": len(db.entries),
	}).Debug("database loaded")
	return db, nil
}

// Write encodes the database to a writer.
func (db *Database) Write(w io.Writer) error {
	return db.WriteContext(context.Background(), w)
}

// WriteContext encrypts and encodes the database to w.  Every save
// uses a fresh master seed, IV and protected stream key.  Nothing is
// written to w unless the whole database was encoded successfully.
func (db *Database) WriteContext(ctx context.Context, w io.Writer) error {
	if db.key == nil {
		return &DatabaseError{Op: "save", Kind: SaveError, Err: errNotLoaded}
	}
	if db.root == nil {
		return &DatabaseError{Op: "save", Kind: SaveError, Err: errNoRoot}
	}
	fail := func(err error) error {
		return &DatabaseError{Op: "save", Kind: SaveError, Err: err}
	}
	db.progress.reset()
	h := db.header

	seed, err := kdbcrypt.RandomBytes(db.rand, masterSeedSize)
	if err != nil {
		return fail(err)
	}
	iv, err := kdbcrypt.RandomBytes(db.rand, h.cipher.IVSize())
	if err != nil {
		return fail(err)
	}
	streamKey, err := kdbcrypt.RandomBuffer(db.rand, 64)
	if err != nil {
		return fail(err)
	}
	h.masterSeed, h.iv = seed, iv
	db.streamKey.Erase()
	db.streamKey = streamKey
	db.progress.set(PhaseKeysRandomized)

	if err := db.key.deriveFinalKeys(h.kdf, h.masterSeed, h.cipher); err != nil {
		return fail(err)
	}
	defer db.key.EraseFinalKeys()
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	db.updateBinaries()
	db.progress.set(PhaseBinariesUpdated)
	if db.uses41Features() {
		h.version = Version41
	}

	buf := new(bytes.Buffer)
	if err := h.write(buf); err != nil {
		return fail(err)
	}
	mac := h.hmac(db.key.hmacKey.Bytes())
	buf.Write(h.hash[:])
	buf.Write(mac[:])
	db.progress.set(PhaseHeaderWritten)

	stream, err := kdbcrypt.NewProtectedStream(db.streamID, db.streamKey.Bytes())
	if err != nil {
		return fail(&HeaderError{Kind: UnsupportedStreamCipher, Err: err})
	}
	bw := newBlockWriter(ctx, buf, db.key.hmacKey.Bytes())
	enc, err := h.cipher.NewEncrypter(cipherio.WriterWithContext(ctx, bw, db.progress.counter()), db.key.cipherKey.Bytes(), h.iv)
	if err != nil {
		return fail(err)
	}
	var zw io.WriteCloser = nopCloser{enc}
	if h.compressed {
		zw = gzip.NewWriter(enc)
	}
	ih := &innerHeader{
		streamID:  db.streamID,
		streamKey: db.streamKey,
		binaries:  db.binaries,
	}
	if err := ih.write(zw); err != nil {
		return fail(err)
	}
	if err := db.encodeXML(zw, stream); err != nil {
		return fail(err)
	}
	if err := zw.Close(); err != nil {
		return fail(err)
	}
	if err := enc.Close(); err != nil {
		return fail(err)
	}
	if err := bw.Close(); err != nil {
		return fail(err)
	}
	db.progress.set(PhaseContentWritten)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fail(err)
	}
	db.resolveReferences(db.Entries())
	db.progress.set(PhaseSaved)
	return nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// updateBinaries rebuilds the binary pool from the attachments in the
// tree.  Attachments with the same content and compression share a
// pool entry.
func (db *Database) updateBinaries() {
	type binaryKey struct {
		sum        [sha256.Size]byte
		compressed bool
	}
	oldProtected := make(map[binaryKey]bool, len(db.binaries))
	for _, b := range db.binaries {
		oldProtected[binaryKey{sha256.Sum256(b.Data), b.IsCompressed}] = b.IsProtected
	}
	index := make(map[binaryKey]int)
	var pool []*Binary
	add := func(atts []*Attachment) {
		for _, a := range atts {
			k := binaryKey{sha256.Sum256(a.data), a.compressed}
			id, ok := index[k]
			if !ok {
				id = len(pool)
				prot, found := oldProtected[k]
				if !found {
					prot = !a.compressed
				}
				pool = append(pool, &Binary{
					ID:           id,
					Data:         a.data,
					IsCompressed: a.compressed,
					IsProtected:  prot,
				})
				index[k] = id
			}
			a.id = id
		}
	}
	db.root.walk(nil, func(e *Entry) {
		for _, h := range e.History {
			add(h.Attachments)
		}
		add(e.Attachments)
	})
	db.binaries = pool
}

// ChangeCompositeKey replaces the database's key.  The key derivation
// function gets a fresh salt, so the next Write runs it again.
func (db *Database) ChangeCompositeKey(key *CompositeKey) error {
	k := key.Clone()
	if err := k.ensureCombined(db.keyParser); err != nil {
		k.Erase()
		return err
	}
	if k.combined == nil {
		k.Erase()
		return errTransformedOnly
	}
	if err := db.header.kdf.Reseed(db.rand); err != nil {
		k.Erase()
		return err
	}
	db.key.Erase()
	db.key = k
	db.Meta.MasterKeyChanged = db.now()
	db.Meta.MasterKeyChangeForceOnce = false
	return nil
}

// Erase wipes the database's keys and attachment data.  The database
// cannot be written afterward.  Calling Erase more than once is safe.
func (db *Database) Erase() {
	db.key.Erase()
	db.key = nil
	db.streamKey.Erase()
	db.streamKey = nil
	for _, b := range db.binaries {
		wipeBytes(b.Data)
	}
	db.binaries = nil
	if db.root != nil {
		db.root.walk(nil, func(e *Entry) {
			for _, h := range e.History {
				for _, a := range h.Attachments {
					wipeBytes(a.data)
				}
			}
			for _, a := range e.Attachments {
				wipeBytes(a.data)
			}
		})
	}
}

// Entries returns every entry in the tree, in document order.
// History items are not included.
func (db *Database) Entries() []*Entry {
	var list []*Entry
	db.root.walk(nil, func(e *Entry) {
		list = append(list, e)
	})
	return list
}

func (db *Database) entriesWithHistory() []*Entry {
	var list []*Entry
	db.root.walk(nil, func(e *Entry) {
		list = append(list, e)
		list = append(list, e.History...)
	})
	return list
}

// Count returns the number of groups and/or entries below the root
// group.
func (db *Database) Count(includeGroups, includeEntries bool) int {
	n := 0
	db.root.walk(func(g *Group) {
		if includeGroups && g != db.root {
			n++
		}
	}, func(*Entry) {
		if includeEntries {
			n++
		}
	})
	return n
}

// FindGroup returns the group with the given UUID or nil if not found.
func (db *Database) FindGroup(u uuids.UUID) *Group {
	return db.groups[u]
}

// FindEntry returns the entry with the given UUID or nil if not found.
// History items are not searched.
func (db *Database) FindEntry(u uuids.UUID) *Entry {
	return db.entries[u]
}

// BackupGroup returns the recycle bin.  If the recycle bin is enabled
// but does not exist yet, it is created when createIfMissing is true.
// BackupGroup returns nil if the recycle bin is disabled.
func (db *Database) BackupGroup(createIfMissing bool) (*Group, error) {
	if !db.Meta.RecycleBinEnabled {
		return nil, nil
	}
	if !db.Meta.RecycleBinUUID.IsZero() {
		if g := db.groups[db.Meta.RecycleBinUUID]; g != nil {
			return g, nil
		}
	}
	if !createIfMissing {
		return nil, nil
	}
	g, err := db.root.NewSubgroup()
	if err != nil {
		return nil, err
	}
	g.Name = "Recycle Bin"
	g.IconID = recycleBinIcon
	g.IsExpanded = false
	g.EnableSearching = Disabled
	g.EnableAutoType = Disabled
	g.IsDeleted = true
	db.Meta.RecycleBinUUID = g.UUID
	db.Meta.RecycleBinChanged = db.now()
	return g, nil
}

var (
	errDeleteRoot = errors.New("keepass: cannot delete the root group")
	errDetached   = errors.New("keepass: object is not in the database")
)

// DeleteEntry moves e to the recycle bin, or removes it permanently if
// the recycle bin is disabled or e is already in it.
func (db *Database) DeleteEntry(e *Entry) error {
	parent := e.Parent()
	if parent == nil {
		return errDetached
	}
	if !e.IsDeleted && db.Meta.RecycleBinEnabled {
		bin, err := db.BackupGroup(true)
		if err != nil {
			return err
		}
		if err := e.Move(bin); err != nil {
			return err
		}
		e.IsDeleted = true
		e.Touch(Accessed, false)
		return nil
	}
	db.addTombstone(e.UUID)
	parent.removeEntry(e)
	return nil
}

// DeleteGroup moves g to the recycle bin, or removes it and everything
// below it permanently if the recycle bin is disabled or g is already
// in it.
func (db *Database) DeleteGroup(g *Group) error {
	if g == db.root {
		return errDeleteRoot
	}
	parent := g.Parent()
	if parent == nil {
		return errDetached
	}
	if !g.IsDeleted && db.Meta.RecycleBinEnabled {
		bin, err := db.BackupGroup(true)
		if err != nil {
			return err
		}
		if err := g.Move(bin); err != nil {
			return err
		}
		g.setDeleted(true)
		g.Touch(Accessed, false)
		return nil
	}
	if g.UUID == db.Meta.RecycleBinUUID {
		db.Meta.RecycleBinUUID = uuids.Zero
		db.Meta.RecycleBinChanged = db.now()
	}
	g.walk(func(sub *Group) {
		db.addTombstone(sub.UUID)
	}, func(e *Entry) {
		db.addTombstone(e.UUID)
	})
	parent.removeGroup(g)
	return nil
}

func (db *Database) addTombstone(u uuids.UUID) {
	db.DeletedObjects = append(db.DeletedObjects, DeletedObject{UUID: u, DeletionTime: db.now()})
}

// AddCustomIcon adds a PNG icon to the database and returns its UUID.
// Adding an icon identical to an existing one returns the existing
// icon's UUID.
func (db *Database) AddCustomIcon(png []byte) (uuids.UUID, error) {
	if ic := db.Meta.findCustomIconByData(png); ic != nil {
		return ic.UUID, nil
	}
	u, err := uuids.New(db.rand)
	if err != nil {
		return uuids.Zero, err
	}
	db.Meta.CustomIcons = append(db.Meta.CustomIcons, &CustomIcon{
		UUID:                 u,
		Data:                 append([]byte(nil), png...),
		LastModificationTime: db.now(),
	})
	return u, nil
}

// DeleteCustomIcon removes an icon and clears every reference to it.
// It reports whether the icon existed.
func (db *Database) DeleteCustomIcon(u uuids.UUID) bool {
	icons := db.Meta.CustomIcons
	i := indexOf(len(icons), func(i int) bool { return icons[i].UUID == u })
	if i == -1 {
		return false
	}
	db.Meta.CustomIcons = append(icons[:i], icons[i+1:]...)
	db.addTombstone(u)
	db.removeUnusedCustomIconRefs()
	return true
}

func (db *Database) removeUnusedCustomIconRefs() {
	known := make(map[uuids.UUID]bool, len(db.Meta.CustomIcons))
	for _, ic := range db.Meta.CustomIcons {
		known[ic.UUID] = true
	}
	db.root.walk(func(g *Group) {
		if !known[g.CustomIconUUID] {
			g.CustomIconUUID = uuids.Zero
		}
	}, func(e *Entry) {
		if !known[e.CustomIconUUID] {
			e.CustomIconUUID = uuids.Zero
		}
		for _, h := range e.History {
			if !known[h.CustomIconUUID] {
				h.CustomIconUUID = uuids.Zero
			}
		}
	})
}

// NewAttachment creates an attachment holding a copy of data.  The data
// is held compressed if the database is compressed.
func (db *Database) NewAttachment(name string, data []byte) (*Attachment, error) {
	a := &Attachment{Name: name}
	if db.header.compressed {
		z, err := gzipBytes(data)
		if err != nil {
			return nil, err
		}
		a.data = z
		a.compressed = true
	} else {
		a.data = append([]byte(nil), data...)
	}
	return a, nil
}

// uses41Features reports whether the database holds data that can
// only be stored in KDBX 4.1.
func (db *Database) uses41Features() bool {
	for _, ic := range db.Meta.CustomIcons {
		if ic.Name != "" || !ic.LastModificationTime.IsZero() {
			return true
		}
	}
	if customDataHasTimes(db.Meta.CustomData) {
		return true
	}
	found := false
	db.root.walk(func(g *Group) {
		if len(g.Tags) > 0 || !g.PreviousParentGroup.IsZero() || customDataHasTimes(g.CustomData) {
			found = true
		}
	}, func(e *Entry) {
		if !e.QualityCheck || !e.PreviousParentGroup.IsZero() || customDataHasTimes(e.CustomData) {
			found = true
		}
	})
	return found
}

func customDataHasTimes(items []CustomDataItem) bool {
	for _, item := range items {
		if !item.LastModificationTime.IsZero() {
			return true
		}
	}
	return false
}

// HeaderInfo describes a database file's unencrypted outer header.
type HeaderInfo struct {
	Version          FormatVersion
	Cipher           kdbcrypt.Cipher
	Compressed       bool
	KDF              *kdbcrypt.KDFParams
	PublicCustomData *vardict.Dict
}

// ReadHeaderInfo reads the outer header of a database without
// decrypting it.
func ReadHeaderInfo(r io.Reader) (*HeaderInfo, error) {
	h, err := readHeader(r, discardLogger)
	if err != nil {
		return nil, err
	}
	return &HeaderInfo{
		Version:          h.version,
		Cipher:           h.cipher,
		Compressed:       h.compressed,
		KDF:              h.kdf,
		PublicCustomData: h.publicCustomData,
	}, nil
}
