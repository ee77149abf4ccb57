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
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
)

// storage manages I/O to a single file.  Writes go to a temporary file
// in the same directory that replaces the original when closed, so a
// failed save never leaves a truncated database behind.
type storage struct {
	path string
}

// newStorage creates a storage that points to path.  The file will be
// created on the first write if it does not exist.
func newStorage(path string) *storage {
	return &storage{path: path}
}

// exists reports whether the file exists yet.
func (st *storage) exists() (bool, error) {
	_, err := os.Stat(st.path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// reader opens the file for reading.
func (st *storage) reader() (io.ReadCloser, error) {
	return os.Open(st.path)
}

// writer returns a writer that replaces the file when it is closed.
// Closing the returned writer will sync it to disk.
func (st *storage) writer() (*pendingFile, error) {
	f, err := ioutil.TempFile(filepath.Dir(st.path), "."+filepath.Base(st.path)+".tmp")
	if err != nil {
		return nil, err
	}
	if err := f.Chmod(0600); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return &pendingFile{f: f, dst: st.path}, nil
}

// remove deletes the file.
func (st *storage) remove() error {
	err := os.Remove(st.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// pendingFile is a temporary file that is renamed over its destination
// when closed.
type pendingFile struct {
	f   *os.File
	dst string
}

func (pf *pendingFile) Write(p []byte) (int, error) {
	return pf.f.Write(p)
}

// Close syncs the file and moves it into place.
func (pf *pendingFile) Close() error {
	if err := pf.f.Sync(); err != nil {
		pf.abort()
		return err
	}
	if err := pf.f.Close(); err != nil {
		os.Remove(pf.f.Name())
		return err
	}
	if err := os.Rename(pf.f.Name(), pf.dst); err != nil {
		os.Remove(pf.f.Name())
		return err
	}
	return nil
}

// abort discards the file without touching the destination.
func (pf *pendingFile) abort() {
	pf.f.Close()
	os.Remove(pf.f.Name())
}
