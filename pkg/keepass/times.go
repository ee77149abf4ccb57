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
	"encoding/base64"
	"encoding/binary"
	"errors"
	"time"
)

// Times holds all of the temporal data for a group or entry.
type Times struct {
	CreationTime         time.Time
	LastModificationTime time.Time
	LastAccessTime       time.Time
	ExpiryTime           time.Time
	Expires              bool
	UsageCount           int64
	LocationChanged      time.Time
}

func newTimes(now time.Time) Times {
	return Times{
		CreationTime:         now,
		LastModificationTime: now,
		LastAccessTime:       now,
		ExpiryTime:           now,
		LocationChanged:      now,
	}
}

// Expired reports whether the item has an expiry in the past.
func (t *Times) Expired(now time.Time) bool {
	return t.Expires && !t.ExpiryTime.After(now)
}

// TouchMode selects which timestamps Touch updates.
type TouchMode int

// Touch modes.
const (
	Accessed TouchMode = iota
	Modified
)

func (t *Times) touch(mode TouchMode, now time.Time) {
	t.LastAccessTime = now
	t.UsageCount++
	if mode == Modified {
		t.LastModificationTime = now
	}
}

// secondsToUnixEpoch is the number of seconds between
// 0001-01-01T00:00:00Z and 1970-01-01T00:00:00Z.
const secondsToUnixEpoch = 62135596800

func formatTime(t time.Time) string {
	var buf [8]byte
	var secs int64
	if !t.IsZero() {
		secs = t.Unix() + secondsToUnixEpoch
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(secs))
	return base64.StdEncoding.EncodeToString(buf[:])
}

var errTimeFormat = errors.New("keepass: unrecognized time format")

// parseTime parses a KDBX4 time.  legacy is true if the value was
// stored as an RFC 3339 string instead of base64-encoded seconds.
func parseTime(s string) (t time.Time, legacy bool, err error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == 8 {
		secs := int64(binary.LittleEndian.Uint64(b))
		if secs == 0 {
			return time.Time{}, false, nil
		}
		return time.Unix(secs-secondsToUnixEpoch, 0).UTC(), false, nil
	}
	t, err = time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, errTimeFormat
	}
	return t.UTC(), true, nil
}
