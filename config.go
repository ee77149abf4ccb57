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
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"zombiezen.com/go/kdbxd/pkg/authhdr"
	"zombiezen.com/go/kdbxd/pkg/kdbcrypt"
	"zombiezen.com/go/kdbxd/pkg/keepass"
)

// config is the server configuration.  It is read from an optional
// YAML file; command-line flags that are set explicitly take
// precedence.
type config struct {
	Listen           string        `yaml:"listen"`
	DB               string        `yaml:"db"`
	LogLevel         string        `yaml:"log_level"`
	LogFormat        string        `yaml:"log_format"`
	MetricsPath      string        `yaml:"metrics_path"`
	SessionExpiry    time.Duration `yaml:"session_expiry"`
	SessionGC        time.Duration `yaml:"session_gc"`
	MaxRequestSize   int64         `yaml:"max_request_size"`
	CheckPermissions bool          `yaml:"check_permissions"`
	AuthHeaderPrefix string        `yaml:"auth_header_prefix"`
	WordsFile        string        `yaml:"words_file"`

	RateLimit   rateLimitConfig   `yaml:"rate_limit"`
	NewDatabase newDatabaseConfig `yaml:"new_database"`
}

// rateLimitConfig limits unlock and create attempts per client IP.
type rateLimitConfig struct {
	PerMinute float64 `yaml:"per_minute"`
	Burst     int     `yaml:"burst"`
}

// newDatabaseConfig holds the settings for databases created through
// the API.
type newDatabaseConfig struct {
	Cipher      string `yaml:"cipher"`
	KDF         string `yaml:"kdf"`
	Iterations  uint64 `yaml:"iterations"`
	MemoryKiB   uint64 `yaml:"memory_kib"`
	Parallelism uint32 `yaml:"parallelism"`
	Compression *bool  `yaml:"compression"`
}

func defaultConfig() *config {
	return &config{
		Listen:           "[::]:8080",
		LogLevel:         "info",
		LogFormat:        "text",
		MetricsPath:      "/metrics",
		SessionExpiry:    30 * time.Minute,
		SessionGC:        1 * time.Minute,
		MaxRequestSize:   2 << 20,
		AuthHeaderPrefix: authhdr.Default.Prefix,
		WordsFile:        "/usr/share/dict/words",
		RateLimit: rateLimitConfig{
			PerMinute: 10,
			Burst:     5,
		},
		NewDatabase: newDatabaseConfig{
			Cipher:      "chacha20",
			KDF:         "argon2d",
			Iterations:  100,
			MemoryKiB:   1024,
			Parallelism: 2,
		},
	}
}

// loadConfig reads a YAML configuration file on top of the defaults.
func loadConfig(path string) (*config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %v", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %v", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("load config %s: %v", path, err)
	}
	return cfg, nil
}

func (cfg *config) validate() error {
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be \"text\" or \"json\", got %q", cfg.LogFormat)
	}
	if cfg.SessionExpiry <= 0 {
		return fmt.Errorf("session_expiry must be positive")
	}
	if cfg.SessionGC <= 0 {
		return fmt.Errorf("session_gc must be positive")
	}
	if cfg.MaxRequestSize <= 0 {
		return fmt.Errorf("max_request_size must be positive")
	}
	if cfg.RateLimit.PerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	if _, err := cfg.NewDatabase.cipher(); err != nil {
		return err
	}
	if _, err := cfg.NewDatabase.kdf(); err != nil {
		return err
	}
	return nil
}

// applyFlags overrides cfg with the flags in fs that were set on the
// command line.
func (cfg *config) applyFlags(fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		g, ok := f.Value.(flag.Getter)
		if !ok {
			return
		}
		switch v := g.Get().(type) {
		case string:
			switch f.Name {
			case "listen":
				cfg.Listen = v
			case "db":
				cfg.DB = v
			case "log_level":
				cfg.LogLevel = v
			case "log_format":
				cfg.LogFormat = v
			case "words_file":
				cfg.WordsFile = v
			}
		case time.Duration:
			switch f.Name {
			case "session_expiry":
				cfg.SessionExpiry = v
			case "session_gc":
				cfg.SessionGC = v
			}
		case int64:
			if f.Name == "max_request_size" {
				cfg.MaxRequestSize = v
			}
		case bool:
			if f.Name == "permissions" {
				cfg.CheckPermissions = v
			}
		}
	})
}

func (cfg *config) newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("log_level", cfg.LogLevel).Warn("invalid log level, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func (nc *newDatabaseConfig) cipher() (kdbcrypt.Cipher, error) {
	switch strings.ToLower(nc.Cipher) {
	case "", "chacha20":
		return keepass.ChaCha20Cipher, nil
	case "aes", "aes256", "aes-256":
		return keepass.AESCipher, nil
	case "twofish":
		return keepass.TwofishCipher, nil
	default:
		return 0, fmt.Errorf("unknown cipher %q", nc.Cipher)
	}
}

func (nc *newDatabaseConfig) kdf() (kdbcrypt.KDF, error) {
	switch strings.ToLower(nc.KDF) {
	case "", "argon2d":
		return kdbcrypt.Argon2d, nil
	case "argon2id":
		return kdbcrypt.Argon2id, nil
	case "aes", "aes-kdf":
		return kdbcrypt.AESKDF, nil
	default:
		return 0, fmt.Errorf("unknown kdf %q", nc.KDF)
	}
}

// options returns the keepass options for a new database.  The key
// fields are left for the caller to fill in.
func (nc *newDatabaseConfig) options(rand io.Reader) (*keepass.Options, error) {
	c, err := nc.cipher()
	if err != nil {
		return nil, err
	}
	kdf, err := nc.kdf()
	if err != nil {
		return nil, err
	}
	p := &kdbcrypt.KDFParams{
		KDF:        kdf,
		Iterations: nc.Iterations,
	}
	if kdf != kdbcrypt.AESKDF {
		p.Memory = nc.MemoryKiB * 1024
		p.Parallelism = nc.Parallelism
		p.Version = kdbcrypt.Argon2Version
	}
	if err := p.Reseed(rand); err != nil {
		return nil, err
	}
	return &keepass.Options{
		Cipher:             c,
		KDF:                p,
		DisableCompression: nc.Compression != nil && !*nc.Compression,
		Rand:               rand,
	}, nil
}
