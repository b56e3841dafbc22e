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
// Package key models the partition key space: the ranges that physical
// partitions own, and the feed ranges a query reads.
//
// Boundaries are effective partition key strings. The empty string is the
// start of the key space and MaxKey its end. Boundaries compare as plain
// byte strings.
package key

import (
	"fmt"
	"slices"
	"strings"
)

const (
	// MinKey is the inclusive lower bound of the key space.
	MinKey = ""
	// MaxKey is the exclusive upper bound of the key space.
	MaxKey = "FF"
)

// Range is a contiguous slice of the key space. A feed range is the Range a
// producer reads; it tags every page the producer returns.
type Range struct {
	Min            string
	Max            string
	IsMinInclusive bool
	IsMaxInclusive bool
}

// NewRange returns the half-open range [min, max).
func NewRange(min, max string) Range {
	return Range{Min: min, Max: max, IsMinInclusive: true}
}

// FullRange returns the range covering the whole key space.
func FullRange() Range {
	return NewRange(MinKey, MaxKey)
}

// IsEmpty returns true if the range contains no key.
func (r Range) IsEmpty() bool {
	switch c := strings.Compare(r.Min, r.Max); {
	case c > 0:
		return true
	case c == 0:
		return !(r.IsMinInclusive && r.IsMaxInclusive)
	}
	return false
}

// Contains returns true if k is inside the range.
func (r Range) Contains(k string) bool {
	if c := strings.Compare(k, r.Min); c < 0 || (c == 0 && !r.IsMinInclusive) {
		return false
	}
	if c := strings.Compare(k, r.Max); c > 0 || (c == 0 && !r.IsMaxInclusive) {
		return false
	}
	return true
}

// Overlaps returns true if the two ranges share at least one key.
func (r Range) Overlaps(o Range) bool {
	return !r.Intersect(o).IsEmpty()
}

// Intersect returns the keys contained in both ranges. The result may be
// empty.
func (r Range) Intersect(o Range) Range {
	out := r
	switch c := strings.Compare(o.Min, r.Min); {
	case c > 0:
		out.Min, out.IsMinInclusive = o.Min, o.IsMinInclusive
	case c == 0:
		out.IsMinInclusive = r.IsMinInclusive && o.IsMinInclusive
	}
	switch c := strings.Compare(o.Max, r.Max); {
	case c < 0:
		out.Max, out.IsMaxInclusive = o.Max, o.IsMaxInclusive
	case c == 0:
		out.IsMaxInclusive = r.IsMaxInclusive && o.IsMaxInclusive
	}
	return out
}

// Compare orders ranges by their lower bound, then by their upper bound. It
// is the tie-break used when rows from different ranges compare equal.
func (r Range) Compare(o Range) int {
	if c := strings.Compare(r.Min, o.Min); c != 0 {
		return c
	}
	if r.IsMinInclusive != o.IsMinInclusive {
		// [a is before (a
		if r.IsMinInclusive {
			return -1
		}
		return 1
	}
	if c := strings.Compare(r.Max, o.Max); c != 0 {
		return c
	}
	if r.IsMaxInclusive != o.IsMaxInclusive {
		if r.IsMaxInclusive {
			return 1
		}
		return -1
	}
	return 0
}

// String returns the interval notation of the range, e.g. [,FF).
func (r Range) String() string {
	open, end := "(", ")"
	if r.IsMinInclusive {
		open = "["
	}
	if r.IsMaxInclusive {
		end = "]"
	}
	return open + r.Min + "," + r.Max + end
}

// PartitionKeyRange is the range owned by one physical partition at a
// point in time. It is never mutated: a split replaces it with children
// whose Parents name it.
type PartitionKeyRange struct {
	ID      string
	Min     string
	Max     string
	Parents []string
}

// Range returns the half-open range [Min, Max) of the partition.
func (pkr PartitionKeyRange) Range() Range {
	return NewRange(pkr.Min, pkr.Max)
}

func (pkr PartitionKeyRange) String() string {
	return fmt.Sprintf("%s%v", pkr.ID, pkr.Range())
}

// SortRanges sorts partition key ranges by their lower bound.
func SortRanges(ranges []PartitionKeyRange) {
	slices.SortFunc(ranges, func(a, b PartitionKeyRange) int {
		return a.Range().Compare(b.Range())
	})
}

// Overlapping returns, in key order, the ranges of all that overlap r.
func Overlapping(all []PartitionKeyRange, r Range) []PartitionKeyRange {
	var out []PartitionKeyRange
	for _, pkr := range all {
		if pkr.Range().Overlaps(r) {
			out = append(out, pkr)
		}
	}
	SortRanges(out)
	return out
}

// Covers returns true if ranges, sorted and contiguous, cover r without gaps.
func Covers(ranges []PartitionKeyRange, r Range) bool {
	if len(ranges) == 0 {
		return r.IsEmpty()
	}
	pos := r.Min
	for _, pkr := range ranges {
		if pkr.Min > pos {
			return false
		}
		if pkr.Max > pos {
			pos = pkr.Max
		}
	}
	return pos >= r.Max
}
