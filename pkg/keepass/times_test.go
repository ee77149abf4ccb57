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
	"testing"
	"time"
)

func TestFormatTime(t *testing.T) {
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Time{}, "AAAAAAAAAAA="},
		{time.Date(2021, time.March, 14, 15, 9, 26, 0, time.UTC), "Jh7g1w4AAAA="},
	}
	for _, test := range tests {
		if got := formatTime(test.t); got != test.want {
			t.Errorf("formatTime(%v) = %q; want %q", test.t, got, test.want)
		}
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		s      string
		want   time.Time
		legacy bool
		err    bool
	}{
		{s: "AAAAAAAAAAA=", want: time.Time{}},
		{s: "Jh7g1w4AAAA=", want: time.Date(2021, time.March, 14, 15, 9, 26, 0, time.UTC)},
		{s: "2020-01-02T03:04:05Z", want: time.Date(2020, time.January, 2, 3, 4, 5, 0, time.UTC), legacy: true},
		{s: "2020-01-02T04:04:05+01:00", want: time.Date(2020, time.January, 2, 3, 4, 5, 0, time.UTC), legacy: true},
		{s: "yesterday", err: true},
		{s: "AAAA", err: true},
	}
	for _, test := range tests {
		got, legacy, err := parseTime(test.s)
		if err != nil {
			if !test.err {
				t.Errorf("parseTime(%q) error: %v", test.s, err)
			}
			continue
		}
		if test.err {
			t.Errorf("parseTime(%q) = %v; want error", test.s, got)
			continue
		}
		if !got.Equal(test.want) || legacy != test.legacy {
			t.Errorf("parseTime(%q) = %v, %t; want %v, %t", test.s, got, legacy, test.want, test.legacy)
		}
	}
}

func TestTimesTouch(t *testing.T) {
	t0 := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	times := newTimes(t0)
	times.touch(Accessed, t1)
	if !times.LastAccessTime.Equal(t1) || !times.LastModificationTime.Equal(t0) {
		t.Errorf("after Accessed touch: access = %v, modification = %v; want %v, %v", times.LastAccessTime, times.LastModificationTime, t1, t0)
	}
	times.touch(Modified, t1)
	if !times.LastModificationTime.Equal(t1) {
		t.Errorf("after Modified touch: modification = %v; want %v", times.LastModificationTime, t1)
	}
	if times.UsageCount != 2 {
		t.Errorf("UsageCount = %d; want 2", times.UsageCount)
	}
}
