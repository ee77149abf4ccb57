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

// kdbxctl creates, inspects and rekeys KeePass KDBX 4 databases.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/nbutton23/zxcvbn-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
	"zombiezen.com/go/kdbxd/pkg/kdbcrypt"
	"zombiezen.com/go/kdbxd/pkg/keepass"
	"zombiezen.com/go/kdbxd/pkg/vardict"
)

const usage = `usage: kdbxctl [-v] COMMAND [ARGS]

Commands:
  create  create a new database
  info    show the unencrypted header of a database
  ls      list the groups and entries of a database
  verify  decrypt a database and check its integrity
  passwd  change the password or key file of a database
`

// minStrength is the zxcvbn score below which create and passwd warn
// about the new password.
const minStrength = 3

type usageError struct {
	msg string
}

func (e usageError) Error() string { return e.msg }

// cli holds the streams and settings shared by all commands.
type cli struct {
	stdin  *bufio.Reader
	stdout io.Writer
	log    *logrus.Logger
	rand   io.Reader

	// readPassword prompts for a password.  If nil, the terminal is
	// used when stdin is one, and a line of stdin otherwise.
	readPassword func(prompt string) (string, error)
}

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	c := &cli{
		stdin:  bufio.NewReader(os.Stdin),
		stdout: os.Stdout,
		log:    log,
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	err := c.run(ctx, os.Args[1:])
	cancel()
	var uerr usageError
	switch {
	case err == nil:
	case errors.As(err, &uerr):
		fmt.Fprintln(os.Stderr, "kdbxctl:", uerr.msg)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "kdbxctl:", err)
		os.Exit(1)
	}
}

func (c *cli) run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("kdbxctl", flag.ContinueOnError)
	fs.SetOutput(ioutil.Discard)
	verbose := fs.Bool("v", false, "log debug messages")
	if err := fs.Parse(args); err != nil {
		return usageError{err.Error()}
	}
	if *verbose {
		c.log.SetLevel(logrus.DebugLevel)
	}
	if fs.NArg() == 0 {
		return usageError{"missing command"}
	}
	cmd, args := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "create":
		return c.create(ctx, args)
	case "info":
		return c.info(args)
	case "ls":
		return c.ls(ctx, args)
	case "verify":
		return c.verify(ctx, args)
	case "passwd":
		return c.passwd(ctx, args)
	default:
		return usageError{fmt.Sprintf("unknown command %q", cmd)}
	}
}

// parseArgs parses a command's flags and returns its single path argument.
func parseArgs(fs *flag.FlagSet, args []string) (string, error) {
	fs.SetOutput(ioutil.Discard)
	if err := fs.Parse(args); err != nil {
		return "", usageError{fs.Name() + ": " + err.Error()}
	}
	if fs.NArg() != 1 {
		return "", usageError{fs.Name() + ": expected exactly one database path"}
	}
	return fs.Arg(0), nil
}

func (c *cli) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	cipherName := fs.String("cipher", "chacha20", "data cipher: aes, chacha20 or twofish")
	kdfName := fs.String("kdf", "argon2d", "key derivation function: argon2d, argon2id or aes")
	iterations := fs.Uint64("iterations", 0, "KDF iterations (default depends on -kdf)")
	memory := fs.Uint64("memory", 64*1024, "Argon2 memory in KiB")
	parallelism := fs.Uint("parallelism", 2, "Argon2 lanes")
	noCompress := fs.Bool("no-compress", false, "store the payload without gzip")
	keyFile := fs.String("keyfile", "", "path to a key file")
	force := fs.Bool("force", false, "overwrite an existing file")
	name := fs.String("name", "", "database name")
	path, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if !*force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("create %s: file exists (use -force to overwrite)", path)
		}
	}

	cipher, err := parseCipher(*cipherName)
	if err != nil {
		return usageError{"create: " + err.Error()}
	}
	kdf, err := parseKDF(*kdfName)
	if err != nil {
		return usageError{"create: " + err.Error()}
	}
	params := &kdbcrypt.KDFParams{
		KDF:        kdf,
		Iterations: *iterations,
	}
	if kdf == kdbcrypt.AESKDF {
		if params.Iterations == 0 {
			params.Iterations = 600000
		}
	} else {
		if params.Iterations == 0 {
			params.Iterations = 10
		}
		params.Memory = *memory * 1024
		params.Parallelism = uint32(*parallelism)
		params.Version = kdbcrypt.Argon2Version
	}
	if err := params.Reseed(c.rand); err != nil {
		return err
	}

	password, err := c.newPassword()
	if err != nil {
		return err
	}
	kf, err := readKeyFile(*keyFile)
	if err != nil {
		return err
	}
	if password == "" && kf == nil {
		return errors.New("create: need a password or a key file")
	}
	db, err := keepass.New(&keepass.Options{
		Password:           password,
		KeyFile:            kf,
		Rand:               c.rand,
		Cipher:             cipher,
		KDF:                params,
		DisableCompression: *noCompress,
		Logger:             c.log,
	})
	if err != nil {
		return fmt.Errorf("create: %v", err)
	}
	defer db.Erase()
	if *name != "" {
		db.Meta.DatabaseName = *name
		db.Root().Name = *name
	}
	if err := c.save(ctx, db, path); err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{
		"path":   path,
		"cipher": cipher,
		"kdf":    kdf,
	}).Info("created database")
	return nil
}

// headerSummary is the YAML rendering of a database header.
type headerSummary struct {
	Version    string            `yaml:"version"`
	Cipher     string            `yaml:"cipher"`
	Compressed bool              `yaml:"compressed"`
	KDF        kdfSummary        `yaml:"kdf"`
	CustomData map[string]string `yaml:"public_custom_data,omitempty"`
}

type kdfSummary struct {
	Name        string `yaml:"name"`
	Iterations  uint64 `yaml:"iterations"`
	MemoryKiB   uint64 `yaml:"memory_kib,omitempty"`
	Parallelism uint32 `yaml:"parallelism,omitempty"`
	SaltSize    int    `yaml:"salt_size"`
}

func (c *cli) info(args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	path, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	h, err := keepass.ReadHeaderInfo(f)
	if err != nil {
		return fmt.Errorf("%s: %v", path, err)
	}
	s := &headerSummary{
		Version:    h.Version.String(),
		Cipher:     h.Cipher.String(),
		Compressed: h.Compressed,
		KDF: kdfSummary{
			Name:        h.KDF.KDF.String(),
			Iterations:  h.KDF.Iterations,
			MemoryKiB:   h.KDF.Memory / 1024,
			Parallelism: h.KDF.Parallelism,
			SaltSize:    len(h.KDF.Salt),
		},
	}
	if d := h.PublicCustomData; d != nil && d.Len() > 0 {
		s.CustomData = make(map[string]string, d.Len())
		for _, k := range d.Keys() {
			s.CustomData[k] = formatValue(d, k)
		}
	}
	out, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	_, err = c.stdout.Write(out)
	return err
}

func formatValue(d *vardict.Dict, key string) string {
	typ, _ := d.Type(key)
	switch typ {
	case vardict.UInt32:
		v, _ := d.UInt32(key)
		return fmt.Sprint(v)
	case vardict.UInt64:
		v, _ := d.UInt64(key)
		return fmt.Sprint(v)
	case vardict.Bool:
		v, _ := d.Bool(key)
		return fmt.Sprint(v)
	case vardict.Int32:
		v, _ := d.Int32(key)
		return fmt.Sprint(v)
	case vardict.Int64:
		v, _ := d.Int64(key)
		return fmt.Sprint(v)
	case vardict.String:
		v, _ := d.String(key)
		return v
	default:
		v, _ := d.Bytes(key)
		return fmt.Sprintf("%x", v)
	}
}

func (c *cli) ls(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	long := fs.Bool("l", false, "show user names and URLs")
	all := fs.Bool("a", false, "include the recycle bin")
	keyFile := fs.String("keyfile", "", "path to a key file")
	path, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	db, err := c.open(ctx, path, *keyFile)
	if err != nil {
		return err
	}
	defer db.Erase()
	w := bufio.NewWriter(c.stdout)
	printGroup(w, db.Root(), 0, *long, *all)
	return w.Flush()
}

func printGroup(w io.Writer, g *keepass.Group, depth int, long, all bool) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(w, "%s%s/\n", indent, g.Name)
	for _, sub := range g.Groups() {
		if sub.IsDeleted && !all {
			continue
		}
		printGroup(w, sub, depth+1, long, all)
	}
	for _, e := range g.Entries() {
		if e.IsDeleted && !all {
			continue
		}
		if !long {
			fmt.Fprintf(w, "%s  %s\n", indent, e.Title())
			continue
		}
		fmt.Fprintf(w, "%s  %s\t%s\t%s\n", indent, e.Title(), e.UserName(), e.URL())
	}
}

func (c *cli) verify(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	keyFile := fs.String("keyfile", "", "path to a key file")
	path, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	db, err := c.open(ctx, path, *keyFile)
	if err != nil {
		return err
	}
	defer db.Erase()
	fmt.Fprintf(c.stdout, "%s: OK (KDBX %v, %d groups, %d entries, %d attachments)\n",
		path, db.Version(), db.Count(true, false), db.Count(false, true), len(db.Binaries()))
	return nil
}

func (c *cli) passwd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("passwd", flag.ContinueOnError)
	keyFile := fs.String("keyfile", "", "path to the current key file")
	newKeyFile := fs.String("new-keyfile", "", "path to the new key file")
	path, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	db, err := c.open(ctx, path, *keyFile)
	if err != nil {
		return err
	}
	defer db.Erase()

	password, err := c.newPassword()
	if err != nil {
		return err
	}
	var kf []byte
	if *newKeyFile != "" {
		if kf, err = ioutil.ReadFile(*newKeyFile); err != nil {
			return err
		}
	}
	if password == "" && kf == nil {
		return errors.New("passwd: need a password or a key file")
	}
	key := keepass.NewCompositeKey(password, kf)
	defer key.Erase()
	if err := db.ChangeCompositeKey(key); err != nil {
		return fmt.Errorf("passwd: %v", err)
	}
	if err := c.save(ctx, db, path); err != nil {
		return err
	}
	c.log.WithField("path", path).Info("changed database key")
	return nil
}

// open decrypts the database at path, prompting for its password.
func (c *cli) open(ctx context.Context, path, keyFile string) (*keepass.Database, error) {
	kf, err := readKeyFile(keyFile)
	if err != nil {
		return nil, err
	}
	password, err := c.prompt("Password for " + filepath.Base(path) + ": ")
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	prog := new(keepass.Progress)
	db, err := keepass.OpenContext(ctx, f, &keepass.Options{
		Password: password,
		KeyFile:  kf,
		Rand:     c.rand,
		Logger:   c.log,
		Progress: prog,
	})
	c.log.WithFields(logrus.Fields{
		"phase": prog.Phase(),
		"bytes": prog.Bytes(),
	}).Debug("load finished")
	if errors.Is(err, keepass.ErrInvalidKey) {
		return nil, fmt.Errorf("%s: wrong password or key file", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return db, nil
}

// save writes db to a temporary file next to path and renames it into place.
func (c *cli) save(ctx context.Context, db *keepass.Database, path string) error {
	f, err := ioutil.TempFile(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err != nil {
		return fmt.Errorf("save %s: %v", path, err)
	}
	tmp := f.Name()
	if err := db.WriteContext(ctx, f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("save %s: %v", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("save %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save %s: %v", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save %s: %v", path, err)
	}
	return nil
}

// newPassword asks for a password twice and warns if it is weak.
// An empty password is allowed when a key file is used.
func (c *cli) newPassword() (string, error) {
	pw, err := c.prompt("New password: ")
	if err != nil {
		return "", err
	}
	confirm, err := c.prompt("Confirm password: ")
	if err != nil {
		return "", err
	}
	if pw != confirm {
		return "", errors.New("passwords do not match")
	}
	if pw != "" {
		m := zxcvbn.PasswordStrength(pw, nil)
		if m.Score < minStrength {
			c.log.WithFields(logrus.Fields{
				"score":      m.Score,
				"crack_time": m.CrackTimeDisplay,
			}).Warn("weak password")
		}
	}
	return pw, nil
}

func (c *cli) prompt(p string) (string, error) {
	if c.readPassword != nil {
		return c.readPassword(p)
	}
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, p)
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}
	line, err := c.stdin.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read password: %v", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readKeyFile(path string) (io.Reader, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return strings.NewReader(string(data)), nil
}

func parseCipher(s string) (kdbcrypt.Cipher, error) {
	switch strings.ToLower(s) {
	case "chacha20":
		return kdbcrypt.ChaCha20Cipher, nil
	case "aes", "aes256":
		return kdbcrypt.AES256Cipher, nil
	case "twofish":
		return kdbcrypt.TwofishCipher, nil
	default:
		return 0, fmt.Errorf("unknown cipher %q", s)
	}
}

func parseKDF(s string) (kdbcrypt.KDF, error) {
	switch strings.ToLower(s) {
	case "argon2d":
		return kdbcrypt.Argon2d, nil
	case "argon2id":
		return kdbcrypt.Argon2id, nil
	case "aes":
		return kdbcrypt.AESKDF, nil
	default:
		return 0, fmt.Errorf("unknown kdf %q", s)
	}
}
