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
package distinct

import (
	"encoding/json"
	"strings"

	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/vt/vterrors"
)

// Type is the kind of duplicate elimination applied to a query.
type Type int

const (
	// None does not remove duplicates.
	None Type = iota
	// Ordered removes duplicates from a result where equal rows are
	// adjacent, e.g. the result is sorted on the distinct projection. Only the
	// last hash is kept, which makes the state fit in a continuation token.
	Ordered
	// Unordered removes duplicates anywhere in the result. Every hash seen is
	// kept; the state cannot be carried in a continuation token.
	Unordered
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Ordered:
		return "ordered"
	case Unordered:
		return "unordered"
	}
	return "unknown"
}

// ParseType parses the String form of a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "ordered":
		return Ordered, nil
	case "unordered":
		return Unordered, nil
	}
	return None, vterrors.Errorf(codes.InvalidArgument, "unknown distinct type %q: expected none, ordered or unordered", s)
}

// Map remembers the rows that were returned.
type Map interface {
	// Add returns true if doc was not seen before. The doc is recorded.
	Add(doc json.RawMessage) (bool, error)
	// LastHash returns the hash of the last row that was added, nil if
	// nothing was added yet.
	LastHash() *UInt128
}

// NewMap returns the map for the given type, seeded with the last hash of a
// previous page when resuming an ordered query. None has no map.
func NewMap(t Type, lastHash *UInt128) (Map, error) {
	switch t {
	case Ordered:
		return &OrderedMap{last: lastHash}, nil
	case Unordered:
		if lastHash != nil {
			return nil, vterrors.New(codes.InvalidArgument, "an unordered DISTINCT query cannot be resumed from a previous hash")
		}
		return &UnorderedMap{seen: make(map[UInt128]struct{})}, nil
	}
	return nil, vterrors.Errorf(codes.InvalidArgument, "no distinct map for type %v", t)
}

// OrderedMap drops a row when it hashes like the row just before it.
type OrderedMap struct {
	last *UInt128
}

// Add implements Map.
func (m *OrderedMap) Add(doc json.RawMessage) (bool, error) {
	h, err := HashJSON(doc)
	if err != nil {
		return false, err
	}
	if m.last != nil && *m.last == h {
		return false, nil
	}
	m.last = &h
	return true, nil
}

// LastHash implements Map.
func (m *OrderedMap) LastHash() *UInt128 {
	return m.last
}

// UnorderedMap drops every row whose hash was seen before.
type UnorderedMap struct {
	seen map[UInt128]struct{}
	last *UInt128
}

// Add implements Map.
func (m *UnorderedMap) Add(doc json.RawMessage) (bool, error) {
	h, err := HashJSON(doc)
	if err != nil {
		return false, err
	}
	if _, ok := m.seen[h]; ok {
		return false, nil
	}
	m.seen[h] = struct{}{}
	m.last = &h
	return true, nil
}

// LastHash implements Map.
func (m *UnorderedMap) LastHash() *UInt128 {
	return m.last
}
