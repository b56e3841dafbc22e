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
package producer

import (
	"bytes"
	"cmp"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/vt/vterrors"
)

// SortKeyExtractor splits a document returned for an ordered query into the
// document the caller sees and its sort key values.
type SortKeyExtractor interface {
	Extract(doc json.RawMessage) (payload json.RawMessage, items []json.RawMessage, err error)
}

// SortKeyFunc adapts a function to SortKeyExtractor.
type SortKeyFunc func(doc json.RawMessage) (json.RawMessage, []json.RawMessage, error)

// Extract implements SortKeyExtractor.
func (f SortKeyFunc) Extract(doc json.RawMessage) (json.RawMessage, []json.RawMessage, error) {
	return f(doc)
}

// RewrittenExtractor reads the shape an ordered query is rewritten to:
//
//	{"orderByItems":[{"item":<value>},...],"payload":<document>}
//
// An entry without item is an undefined value. A missing payload is an
// undefined document and is returned as nil.
var RewrittenExtractor SortKeyExtractor = SortKeyFunc(extractRewritten)

func extractRewritten(doc json.RawMessage) (json.RawMessage, []json.RawMessage, error) {
	if !gjson.ValidBytes(doc) {
		return nil, nil, vterrors.Errorf(codes.Internal, "ordered query returned invalid JSON: %.64s", doc)
	}
	res := gjson.ParseBytes(doc)
	obi := res.Get("orderByItems")
	if !obi.IsArray() {
		return nil, nil, vterrors.Errorf(codes.Internal, "ordered query returned a document without orderByItems: %.64s", doc)
	}
	var items []json.RawMessage
	for _, it := range obi.Array() {
		if v := it.Get("item"); v.Exists() {
			items = append(items, json.RawMessage(v.Raw))
		} else {
			items = append(items, nil)
		}
	}
	var payload json.RawMessage
	if p := res.Get("payload"); p.Exists() {
		payload = json.RawMessage(p.Raw)
	}
	return payload, items, nil
}

// Direction is the sort direction of one sort key.
type Direction int

const (
	// Ascending sorts smaller values first.
	Ascending Direction = iota
	// Descending sorts larger values first.
	Descending
)

// SortOrder holds the direction of each sort key. Rows with more sort keys
// than directions compare the extra keys ascending.
type SortOrder []Direction

// Compare compares two rows' sort key values.
func (so SortOrder) Compare(a, b []json.RawMessage) int {
	for i := range max(len(a), len(b)) {
		var x, y json.RawMessage
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		c := CompareItems(x, y)
		if i < len(so) && so[i] == Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// typeRank orders values of different types: undefined, null, false, true,
// numbers, strings, arrays, objects.
func typeRank(v gjson.Result, undefined bool) int {
	switch {
	case undefined:
		return 0
	case v.Type == gjson.Null:
		return 1
	case v.Type == gjson.False:
		return 2
	case v.Type == gjson.True:
		return 3
	case v.Type == gjson.Number:
		return 4
	case v.Type == gjson.String:
		return 5
	case v.IsArray():
		return 6
	}
	return 7
}

// CompareItems compares two sort key values. A nil value is undefined and
// sorts before everything else. Values of the same type compare by value;
// arrays compare element by element.
func CompareItems(a, b json.RawMessage) int {
	ua, ub := len(bytes.TrimSpace(a)) == 0, len(bytes.TrimSpace(b)) == 0
	return compareResults(gjson.ParseBytes(a), ua, gjson.ParseBytes(b), ub)
}

func compareResults(a gjson.Result, ua bool, b gjson.Result, ub bool) int {
	ra, rb := typeRank(a, ua), typeRank(b, ub)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case 4:
		if c := cmp.Compare(a.Float(), b.Float()); c != 0 {
			return c
		}
		// float64 cannot tell large integers apart.
		if isInteger(a.Raw) && isInteger(b.Raw) {
			return compareIntegers(a.Raw, b.Raw)
		}
		return 0
	case 5:
		return strings.Compare(a.String(), b.String())
	case 6:
		ea, eb := a.Array(), b.Array()
		for i := range min(len(ea), len(eb)) {
			if c := compareResults(ea[i], false, eb[i], false); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(ea), len(eb))
	case 7:
		return strings.Compare(a.Raw, b.Raw)
	}
	return 0
}

// isInteger returns true if the JSON number s has no fraction and no
// exponent.
func isInteger(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// compareIntegers compares two integer literals of any size.
func compareIntegers(a, b string) int {
	a, b = normalizeInteger(a), normalizeInteger(b)
	na, nb := strings.HasPrefix(a, "-"), strings.HasPrefix(b, "-")
	if na != nb {
		if na {
			return -1
		}
		return 1
	}
	a, b = strings.TrimPrefix(a, "-"), strings.TrimPrefix(b, "-")
	c := cmp.Compare(len(a), len(b))
	if c == 0 {
		c = strings.Compare(a, b)
	}
	if na {
		return -c
	}
	return c
}

func normalizeInteger(s string) string {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimLeft(strings.TrimPrefix(s, "-"), "0")
	switch {
	case s == "":
		return "0"
	case neg:
		return "-" + s
	}
	return s
}
