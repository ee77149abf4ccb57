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
	"fmt"
	"sync/atomic"
)

// Phase is a stage of loading or saving a database.
type Phase int32

// Load phases, in order.
const (
	PhaseIdle Phase = iota
	PhaseHeaderRead
	PhaseKeyDerived
	PhaseContentDecrypted
	PhaseDecompressed
	PhaseInnerHeaderRead
	PhaseXMLParsed
	PhaseLoaded
)

// Save phases, in order.
const (
	PhaseKeysRandomized Phase = 100 + iota
	PhaseBinariesUpdated
	PhaseHeaderWritten
	PhaseContentWritten
	PhaseSaved
)

var phaseNames = map[Phase]string{
	PhaseIdle:             "idle",
	PhaseHeaderRead:       "header read",
	PhaseKeyDerived:       "key derived",
	PhaseContentDecrypted: "content decrypted",
	PhaseDecompressed:     "decompressed",
	PhaseInnerHeaderRead:  "inner header read",
	PhaseXMLParsed:        "XML parsed",
	PhaseLoaded:           "loaded",
	PhaseKeysRandomized:   "keys randomized",
	PhaseBinariesUpdated:  "binaries updated",
	PhaseHeaderWritten:    "header written",
	PhaseContentWritten:   "content written",
	PhaseSaved:            "saved",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Phase(%d)", int32(p))
}

// Progress reports how far a load or save has gotten.  It is safe to
// read from another goroutine while the operation runs.
type Progress struct {
	phase atomic.Int32
	bytes atomic.Int64
}

// Phase returns the last phase completed.
func (p *Progress) Phase() Phase {
	return Phase(p.phase.Load())
}

// Bytes returns the number of encrypted payload bytes processed so far.
// It only increases during a single operation.
func (p *Progress) Bytes() int64 {
	return p.bytes.Load()
}

func (p *Progress) set(ph Phase) {
	if p != nil {
		p.phase.Store(int32(ph))
	}
}

func (p *Progress) reset() {
	if p != nil {
		p.phase.Store(int32(PhaseIdle))
		p.bytes.Store(0)
	}
}

// counter returns the byte counter for cipherio, or nil.
func (p *Progress) counter() *atomic.Int64 {
	if p == nil {
		return nil
	}
	return &p.bytes
}
