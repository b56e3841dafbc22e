/*
Copyright 2026 The Vitess Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package key

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRangeContains(t *testing.T) {
	r := NewRange("", "EE")
	assert.True(t, r.Contains(""))
	assert.True(t, r.Contains("05C1"))
	assert.False(t, r.Contains("EE"))
	assert.False(t, r.Contains("EF"))

	closed := Range{Min: "10", Max: "20", IsMaxInclusive: true}
	assert.False(t, closed.Contains("10"))
	assert.True(t, closed.Contains("20"))
}

func TestRangeIntersect(t *testing.T) {
	testcases := []struct {
		a, b     Range
		want     string
		overlaps bool
	}{{
		a:        FullRange(),
		b:        NewRange("EE", "FF"),
		want:     "[EE,FF)",
		overlaps: true,
	}, {
		a:        NewRange("", "EE"),
		b:        NewRange("EE", "FF"),
		want:     "[EE,EE)",
		overlaps: false,
	}, {
		a:        NewRange("20", "80"),
		b:        NewRange("40", "FF"),
		want:     "[40,80)",
		overlaps: true,
	}}
	for _, tc := range testcases {
		got := tc.a.Intersect(tc.b)
		assert.Equal(t, tc.want, got.String())
		assert.Equal(t, tc.overlaps, tc.a.Overlaps(tc.b), "%v %v", tc.a, tc.b)
	}
}

func TestRangeCompare(t *testing.T) {
	left := NewRange("", "EE")
	right := NewRange("EE", "FF")
	assert.Equal(t, -1, left.Compare(right))
	assert.Equal(t, 1, right.Compare(left))
	assert.Equal(t, 0, left.Compare(NewRange("", "EE")))
	assert.Equal(t, -1, NewRange("", "80").Compare(left))
}

func TestOverlappingAndCovers(t *testing.T) {
	all := []PartitionKeyRange{
		{ID: "2", Min: "EE", Max: "FF", Parents: []string{"0"}},
		{ID: "1", Min: "", Max: "EE", Parents: []string{"0"}},
	}
	got := Overlapping(all, FullRange())
	assert.Equal(t, []string{"1", "2"}, []string{got[0].ID, got[1].ID})
	assert.True(t, Covers(got, FullRange()))
	assert.False(t, Covers(got[:1], FullRange()))
	assert.Equal(t, "2[EE,FF)", got[1].String())

	only := Overlapping(all, NewRange("F0", "F8"))
	assert.Len(t, only, 1)
	assert.Equal(t, "2", only[0].ID)
}
