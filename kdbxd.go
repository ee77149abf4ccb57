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

// kdbxd serves a JSON API over a single KeePass KDBX 4 database.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"zombiezen.com/go/kdbxd/pkg/authhdr"
	"zombiezen.com/go/kdbxd/pkg/keepass"
)

// app is the server state.  Fields above mu are read-only after
// construction.
type app struct {
	cfg     *config
	log     *logrus.Logger
	metrics *metrics
	limiter *multiLimiter
	auth    authhdr.Scheme
	rand    io.Reader
	router  *mux.Router

	mu       sync.Mutex
	sessions sessionStorage
	storage  *storage
}

func newApp(cfg *config, log *logrus.Logger, reg prometheus.Registerer) *app {
	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: newMetrics(reg),
		limiter: newUnlockLimiter(cfg.RateLimit),
		auth:    authhdr.Scheme{Prefix: cfg.AuthHeaderPrefix},
		sessions: sessionStorage{
			expiry: cfg.SessionExpiry,
		},
		storage: newStorage(cfg.DB),
	}
	a.router = a.routes()
	return a
}

func main() {
	fs := flag.NewFlagSet("kdbxd", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML configuration file")
	defaults := defaultConfig()
	fs.String("listen", defaults.Listen, "address to listen on")
	fs.String("db", "", "path to database")
	fs.String("log_level", defaults.LogLevel, "minimum level of log messages")
	fs.String("log_format", defaults.LogFormat, "log format: text or json")
	fs.Duration("session_expiry", defaults.SessionExpiry, "length of time that a session token is valid")
	fs.Duration("session_gc", defaults.SessionGC, "frequency at which sessions are to be cleared from memory after expiring")
	fs.Int64("max_request_size", defaults.MaxRequestSize, "number of bytes to limit requests to")
	fs.String("words_file", defaults.WordsFile, "file with words, one per line, for passphrases")
	fs.Bool("permissions", defaults.CheckPermissions, "whether to check proxy permission headers")
	fs.Parse(os.Args[1:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "kdbxd:", err)
		os.Exit(1)
	}
	cfg.applyFlags(fs)
	log := cfg.newLogger()
	if cfg.DB == "" {
		log.Error("must specify -db")
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a := newApp(cfg, log, reg)

	sm := http.NewServeMux()
	sm.Handle(cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	sm.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, "ok\n")
	})
	sm.Handle("/", a.router)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.gcSessions(ctx)
	log.WithFields(logrus.Fields{
		"listen": cfg.Listen,
		"db":     cfg.DB,
	}).Info("serving")
	if err := http.ListenAndServe(cfg.Listen, sm); err != nil {
		log.WithError(err).Error("listen")
		os.Exit(1)
	}
}

func (a *app) routes() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/_/xsrf", a.handler("", handleXSRF)).Methods("GET")
	r.Handle("/_/newdb", a.handler("write", a.newDB)).Methods("POST")
	r.Handle("/_/start", a.handler("read", a.startSession)).Methods("POST")
	r.Handle("/_/lock", a.handler("", a.lock)).Methods("POST")
	r.Handle("/_/pwgen", a.handler("", a.pwgen)).Methods("GET")

	r.Handle("/groups", a.handler("read", a.groupList)).Methods("GET")
	r.Handle("/groups/{gid}", a.handler("read", a.viewGroup)).Methods("GET")
	r.Handle("/groups/{gid}", a.handler("write", a.deleteGroup)).Methods("DELETE")
	r.Handle("/groups/{gid}/groups", a.handler("write", a.postGroup)).Methods("POST")
	r.Handle("/groups/{gid}/entries", a.handler("write", a.postEntry)).Methods("POST")
	r.Handle("/entries/{uuid}", a.handler("read", a.viewEntry)).Methods("GET")
	r.Handle("/entries/{uuid}", a.handler("write", a.editEntry)).Methods("PUT")
	r.Handle("/entries/{uuid}", a.handler("write", a.deleteEntry)).Methods("DELETE")
	r.Handle("/entries/{uuid}/attachments", a.handler("write", a.postAttachment)).Methods("POST")
	r.Handle("/entries/{uuid}/attachments/{name}", a.handler("read", a.getAttachment)).Methods("GET")
	r.Handle("/search", a.handler("read", a.handleSearch)).Methods("GET")

	return r
}

// gcSessions erases expired sessions until ctx is done.
func (a *app) gcSessions(ctx context.Context) {
	tick := time.NewTicker(a.cfg.SessionGC)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
		case <-ctx.Done():
			return
		}
		a.mu.Lock()
		n := a.sessions.clearInvalid()
		a.metrics.sessions.Set(float64(a.sessions.len()))
		a.mu.Unlock()
		if n > 0 {
			a.log.WithField("count", n).Info("cleared invalid sessions")
		}
	}
}

func (a *app) newDB(w http.ResponseWriter, r *http.Request) error {
	if err := a.limiter.checkRate(r); err != nil {
		return err
	}
	password, keyfile, err := readCredentials(r)
	if err != nil {
		return err
	}
	f, _, err := r.FormFile("database")
	if err == nil {
		defer f.Close()
	} else if err != http.ErrMissingFile && err != http.ErrNotMultipart {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if exists, err := a.storage.exists(); err != nil {
		return err
	} else if exists {
		return userError{
			msg:  "Can't overwrite existing database.",
			code: http.StatusConflict,
			err:  errors.New("database exists"),
		}
	}
	var db *keepass.Database
	if f == nil {
		opts, err := a.cfg.NewDatabase.options(a.rand)
		if err != nil {
			return err
		}
		opts.Password = password
		opts.KeyFile = optReader(keyfile)
		opts.Logger = a.log
		db, err = keepass.New(opts)
		if err != nil {
			return err
		}
		if err := prepopulateDB(db); err != nil {
			return err
		}
		if err := a.writeDatabase(db); err != nil {
			return err
		}
	} else if db, err = a.importDB(f, password, keyfile); err != nil {
		return err
	}
	defer db.Erase()

	if _, err := a.sessions.new(w, db.CompositeKey()); err != nil {
		return err
	}
	a.metrics.sessions.Set(float64(a.sessions.len()))
	return writeJSON(w, http.StatusCreated, groupTree(db.Root()))
}

func prepopulateDB(db *keepass.Database) error {
	for _, name := range []string{"Internet", "Wi-Fi", "Misc"} {
		g, err := db.Root().NewSubgroup()
		if err != nil {
			return err
		}
		g.Name = name
	}
	return nil
}

// importDB checks that an uploaded database opens with the given
// credentials and then stores it byte for byte.
func (a *app) importDB(f io.Reader, password string, keyfile []byte) (*keepass.Database, error) {
	data, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("import database: %v", err)
	}
	start := time.Now()
	db, err := keepass.Open(bytes.NewReader(data), &keepass.Options{
		Password: password,
		KeyFile:  optReader(keyfile),
		Rand:     a.rand,
		Logger:   a.log,
	})
	a.metrics.observeDB("load", start, err)
	if err != nil {
		return nil, databaseError(err)
	}

	dbw, err := a.storage.writer()
	if err != nil {
		db.Erase()
		return nil, fmt.Errorf("import database: open writer: %v", err)
	}
	if _, err := dbw.Write(data); err != nil {
		dbw.abort()
		db.Erase()
		return nil, fmt.Errorf("import database: writing: %v", err)
	}
	if err := dbw.Close(); err != nil {
		db.Erase()
		return nil, fmt.Errorf("import database: writing: %v", err)
	}
	return db, nil
}

func (a *app) startSession(w http.ResponseWriter, r *http.Request) error {
	if err := a.limiter.checkRate(r); err != nil {
		return err
	}
	password, keyfile, err := readCredentials(r)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	db, err := a.openDatabase(&keepass.Options{
		Password: password,
		KeyFile:  optReader(keyfile),
	})
	if err != nil {
		return err
	}
	defer db.Erase()
	s, err := a.sessions.new(w, db.CompositeKey())
	if err != nil {
		return err
	}
	a.metrics.sessions.Set(float64(a.sessions.len()))
	return writeJSON(w, http.StatusOK, struct {
		Expires time.Time `json:"expires"`
		Version string    `json:"version"`
	}{s.expires, db.Version().String()})
}

func (a *app) lock(w http.ResponseWriter, r *http.Request) error {
	a.mu.Lock()
	a.sessions.remove(a.sessions.fromRequest(r))
	a.metrics.sessions.Set(float64(a.sessions.len()))
	a.mu.Unlock()
	expireCookie(w)
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// readCredentials gets credentials from a request.
func readCredentials(req *http.Request) (password string, keyfile []byte, err error) {
	password = req.FormValue("password")
	kf, _, err := req.FormFile("keyfile")
	if err == http.ErrMissingFile || err == http.ErrNotMultipart {
		return password, nil, nil
	} else if err != nil {
		return password, nil, err
	}
	defer kf.Close()
	keyfile, err = ioutil.ReadAll(io.LimitReader(kf, maxKeyFileSize))
	if err != nil {
		return password, nil, err
	}
	return password, keyfile, nil
}

const maxKeyFileSize = 1 << 20

// dbFromRequest opens the database with the request's session key.
// The caller must hold a.mu and Erase the database when done.
func (a *app) dbFromRequest(r *http.Request) (*keepass.Database, error) {
	s := a.sessions.fromRequest(r)
	if s == nil {
		return nil, errInvalidSession
	}
	db, err := a.openDatabase(&keepass.Options{Key: s.key})
	if errors.Is(err, keepass.ErrInvalidKey) {
		// The database was rekeyed or replaced since the session started.
		a.sessions.remove(s)
		return nil, errInvalidSession
	}
	return db, err
}

// transaction opens the database, modifies it, and writes it back to disk.
// The caller must hold a.mu.
func (a *app) transaction(r *http.Request, f func(*keepass.Database) error) error {
	db, err := a.dbFromRequest(r)
	if err != nil {
		return err
	}
	defer db.Erase()
	if err := f(db); err != nil {
		return err
	}
	return a.writeDatabase(db)
}

func (a *app) openDatabase(opts *keepass.Options) (*keepass.Database, error) {
	exists, err := a.storage.exists()
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errNoDatabase
	}
	f, err := a.storage.reader()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	opts.Rand = a.rand
	opts.Logger = a.log
	start := time.Now()
	db, err := keepass.Open(f, opts)
	a.metrics.observeDB("load", start, err)
	if err != nil {
		return nil, databaseError(err)
	}
	return db, nil
}

func (a *app) writeDatabase(db *keepass.Database) error {
	pf, err := a.storage.writer()
	if err != nil {
		return fmt.Errorf("write database: open: %v", err)
	}
	start := time.Now()
	err = db.Write(pf)
	a.metrics.observeDB("save", start, err)
	if err != nil {
		pf.abort()
		return fmt.Errorf("write database: %v", err)
	}
	if err := pf.Close(); err != nil {
		return fmt.Errorf("write database: close: %v", err)
	}
	return nil
}

func optReader(b []byte) io.Reader {
	if len(b) == 0 {
		return nil
	}
	return bytes.NewReader(b)
}
