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
// Package distinct removes duplicate rows from a streamed query result
// without keeping the rows themselves. Rows are reduced to a 128 bit hash
// that depends only on their value: object property order, the textual form
// of numbers and the Go type used to hold a value do not change it.
package distinct

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/vt/vterrors"
)

type typeTag byte

// Type tags are mixed into every hash so that values of different JSON types
// never share a hash by construction, e.g. "2" and 2.
const (
	tagNull typeTag = iota + 1
	tagFalse
	tagTrue
	tagNumber
	tagString
	tagArray
	tagObject
	tagProperty
)

// hiLaneSeed prefixes the input of the high 64 bits so that the two halves
// are independent hashes of the same bytes.
var hiLaneSeed = []byte{0x9e, 0x37, 0x79, 0xb9, 0x7f, 0x4a, 0x7c, 0x15}

var nullHash = hashParts(tagNull)

// NullHash returns the hash of a JSON null.
func NullHash() UInt128 {
	return nullHash
}

func hashParts(tag typeTag, parts ...[]byte) UInt128 {
	lo, hi := xxhash.New(), xxhash.New()
	_, _ = hi.Write(hiLaneSeed)
	for _, d := range []*xxhash.Digest{lo, hi} {
		_, _ = d.Write([]byte{byte(tag)})
		for _, p := range parts {
			_, _ = d.Write(p)
		}
	}
	return UInt128{Hi: hi.Sum64(), Lo: lo.Sum64()}
}

// maxExactInt bounds the integers that have an exact float64. Integers
// beyond it hash their decimal digits so that distinct values never share
// the hash of their rounded float64.
const maxExactInt = 1 << 53

func hashNumber(f float64) UInt128 {
	if math.Abs(f) > maxExactInt && !math.IsInf(f, 0) {
		// float64 values this large are integers.
		i, _ := big.NewFloat(f).Int(nil)
		return hashInteger(i.String())
	}
	if f == 0 {
		// -0 and +0 are the same value.
		f = 0
	}
	if math.IsNaN(f) {
		f = math.NaN()
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
	return hashParts(tagNumber, b[:])
}

func hashInteger(digits string) UInt128 {
	return hashParts(tagNumber, []byte(digits))
}

func hashInt(i int64) UInt128 {
	if i > maxExactInt || i < -maxExactInt {
		return hashInteger(strconv.FormatInt(i, 10))
	}
	return hashNumber(float64(i))
}

func hashUint(u uint64) UInt128 {
	if u > maxExactInt {
		return hashInteger(strconv.FormatUint(u, 10))
	}
	return hashNumber(float64(u))
}

// hashNumberText hashes a JSON number. Integer literals keep every digit;
// fractions and exponents are read as float64.
func hashNumberText(s string) (UInt128, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return UInt128{}, vterrors.Errorf(codes.InvalidArgument, "cannot hash number %q: %v", s, err)
	}
	if math.Abs(f) > maxExactInt && !strings.ContainsAny(s, ".eE") {
		if i, ok := new(big.Int).SetString(s, 10); ok {
			return hashInteger(i.String()), nil
		}
	}
	return hashNumber(f), nil
}

func hashString(s string) UInt128 {
	return hashParts(tagString, []byte(s))
}

// Hash returns the hash of a structured value: nil, bool, any integer or
// floating point type, json.Number, string, map[string]any, []any,
// json.RawMessage, or anything encoding/json can marshal, in which case the
// JSON projection is hashed.
func Hash(v any) (UInt128, error) {
	switch v := v.(type) {
	case nil:
		return nullHash, nil
	case bool:
		if v {
			return hashParts(tagTrue), nil
		}
		return hashParts(tagFalse), nil
	case string:
		return hashString(v), nil
	case float64:
		return hashNumber(v), nil
	case float32:
		return hashNumber(float64(v)), nil
	case int:
		return hashInt(int64(v)), nil
	case int8:
		return hashNumber(float64(v)), nil
	case int16:
		return hashNumber(float64(v)), nil
	case int32:
		return hashNumber(float64(v)), nil
	case int64:
		return hashInt(v), nil
	case uint:
		return hashUint(uint64(v)), nil
	case uint8:
		return hashNumber(float64(v)), nil
	case uint16:
		return hashNumber(float64(v)), nil
	case uint32:
		return hashNumber(float64(v)), nil
	case uint64:
		return hashUint(v), nil
	case json.Number:
		return hashNumberText(v.String())
	case []any:
		return hashArray(v)
	case map[string]any:
		return hashObject(v)
	case json.RawMessage:
		return HashJSON(v)
	case json.Marshaler:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nullHash, nil
		}
		b, err := v.MarshalJSON()
		if err != nil {
			return UInt128{}, vterrors.Wrapf(err, "cannot hash %T", v)
		}
		return HashJSON(b)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return UInt128{}, vterrors.Errorf(codes.InvalidArgument, "cannot hash %T: %v", v, err)
	}
	return HashJSON(b)
}

// HashJSON parses a JSON document and returns the hash of its value.
func HashJSON(doc []byte) (UInt128, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return UInt128{}, vterrors.Errorf(codes.InvalidArgument, "cannot hash invalid JSON document: %v", err)
	}
	return Hash(v)
}

// hashArray chains element hashes so that position matters.
func hashArray(items []any) (UInt128, error) {
	h := hashParts(tagArray)
	for _, item := range items {
		ih, err := Hash(item)
		if err != nil {
			return UInt128{}, err
		}
		hb, ib := h.Bytes(), ih.Bytes()
		h = hashParts(tagArray, hb[:], ib[:])
	}
	return h, nil
}

// hashObject sums property hashes so that property order does not matter.
func hashObject(obj map[string]any) (UInt128, error) {
	var sum UInt128
	for k, v := range obj {
		vh, err := Hash(v)
		if err != nil {
			return UInt128{}, err
		}
		kb, vb := hashString(k).Bytes(), vh.Bytes()
		sum = sum.Add(hashParts(tagProperty, kb[:], vb[:]))
	}
	sb := sum.Bytes()
	return hashParts(tagObject, sb[:]), nil
}
