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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/vt/vterrors"
)

func mustHash(t *testing.T, v any) UInt128 {
	t.Helper()
	h, err := Hash(v)
	require.NoError(t, err)
	return h
}

func mustHashJSON(t *testing.T, doc string) UInt128 {
	t.Helper()
	h, err := HashJSON([]byte(doc))
	require.NoError(t, err)
	return h
}

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type celsius float64

func (c celsius) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"unit": "C", "value": float64(c)})
}

func TestHashStable(t *testing.T) {
	values := []any{
		nil,
		true,
		false,
		0,
		-17,
		3.25,
		"",
		"hello",
		[]any{1, "two", nil},
		map[string]any{"a": 1, "b": []any{true, false}},
		point{X: 1, Y: 2},
	}
	for _, v := range values {
		assert.Equal(t, mustHash(t, v), mustHash(t, v), "%v", v)
	}
}

func TestHashNumbers(t *testing.T) {
	two := mustHash(t, 2)
	assert.Equal(t, two, mustHash(t, 2.0))
	assert.Equal(t, two, mustHash(t, int8(2)))
	assert.Equal(t, two, mustHash(t, uint64(2)))
	assert.Equal(t, two, mustHash(t, json.Number("2.00")))
	assert.Equal(t, two, mustHashJSON(t, "2.00"))
	assert.Equal(t, two, mustHashJSON(t, "2e0"))
	assert.Equal(t, mustHash(t, 0.0), mustHashJSON(t, "-0"))
	assert.NotEqual(t, two, mustHash(t, 3))
	assert.NotEqual(t, two, mustHash(t, "2"))
}

func TestHashLargeIntegers(t *testing.T) {
	above := mustHash(t, int64(1<<53+1))
	assert.NotEqual(t, mustHash(t, int64(1<<53)), above)
	assert.Equal(t, above, mustHash(t, json.Number("9007199254740993")))
	assert.Equal(t, above, mustHashJSON(t, "9007199254740993"))
	assert.Equal(t, above, mustHash(t, uint64(1<<53+1)))
	assert.NotEqual(t, mustHashJSON(t, "9007199254740992"), mustHashJSON(t, "9007199254740993"))
	assert.NotEqual(t, mustHashJSON(t, "-9007199254740993"), mustHashJSON(t, "-9007199254740992"))
	assert.NotEqual(t, mustHash(t, uint64(math.MaxUint64)), mustHash(t, uint64(math.MaxUint64-1)))
	assert.Equal(t, mustHash(t, uint64(math.MaxUint64)), mustHashJSON(t, "18446744073709551615"))
	assert.NotEqual(t, mustHashJSON(t, "123456789012345678901234567890"), mustHashJSON(t, "123456789012345678901234567891"))

	// Large floats are integers and hash like them.
	assert.Equal(t, mustHash(t, 1e20), mustHashJSON(t, "100000000000000000000"))
	assert.Equal(t, mustHash(t, 1e20), mustHashJSON(t, "1e20"))
	assert.Equal(t, mustHash(t, float64(1<<60)), mustHash(t, int64(1<<60)))
	assert.Equal(t, mustHash(t, 1<<53), mustHash(t, float64(1<<53)))
}

func TestHashTypeTags(t *testing.T) {
	hashes := map[UInt128]string{}
	for _, doc := range []string{`null`, `false`, `true`, `0`, `""`, `"null"`, `[]`, `{}`, `[null]`, `{"":null}`, `[[]]`, `[{}]`} {
		h := mustHashJSON(t, doc)
		if prev, ok := hashes[h]; ok {
			t.Errorf("%s and %s hash to %v", prev, doc, h)
		}
		hashes[h] = doc
	}
}

func TestHashArrayOrder(t *testing.T) {
	assert.NotEqual(t, mustHashJSON(t, `[1,2]`), mustHashJSON(t, `[2,1]`))
	assert.NotEqual(t, mustHashJSON(t, `["x","y","z"]`), mustHashJSON(t, `["x","z","y"]`))
	assert.NotEqual(t, mustHashJSON(t, `[[1],2]`), mustHashJSON(t, `[1,[2]]`))
	assert.Equal(t, mustHashJSON(t, `[1,2]`), mustHash(t, []any{1.0, 2}))
	assert.Equal(t, mustHashJSON(t, `[1,2]`), mustHash(t, []int{1, 2}))
}

func TestHashObjectOrder(t *testing.T) {
	assert.Equal(t, mustHashJSON(t, `{"a":1,"b":2}`), mustHashJSON(t, `{"b":2,"a":1}`))
	assert.Equal(t,
		mustHashJSON(t, `{"outer":{"x":[1,{"p":true,"q":null}],"y":"s"},"z":0}`),
		mustHashJSON(t, `{"z":0.0,"outer":{"y":"s","x":[1.00,{"q":null,"p":true}]}}`))
	// Keys and values stay bound to each other.
	assert.NotEqual(t, mustHashJSON(t, `{"a":1,"b":2}`), mustHashJSON(t, `{"a":2,"b":1}`))
	assert.NotEqual(t, mustHashJSON(t, `{"a":1}`), mustHashJSON(t, `{"a":1,"b":null}`))
	assert.Equal(t, mustHashJSON(t, `{"x":1,"y":2}`), mustHash(t, point{X: 1, Y: 2}))
	assert.Equal(t, mustHashJSON(t, `{"x":1,"y":2}`), mustHash(t, map[string]int{"y": 2, "x": 1}))
}

func TestHashNull(t *testing.T) {
	assert.Equal(t, NullHash(), mustHash(t, nil))
	assert.Equal(t, NullHash(), mustHashJSON(t, "null"))
	assert.Equal(t, NullHash(), mustHash(t, json.RawMessage("null")))
	var p *point
	assert.Equal(t, NullHash(), mustHash(t, p))
	assert.False(t, NullHash().IsZero())
	for _, v := range []any{false, 0, "", []any{}, map[string]any{}} {
		assert.NotEqual(t, NullHash(), mustHash(t, v), "%#v", v)
	}
}

func TestHashMarshaler(t *testing.T) {
	assert.Equal(t, mustHashJSON(t, `{"value":21.5,"unit":"C"}`), mustHash(t, celsius(21.5)))
	assert.Equal(t, mustHashJSON(t, `{"a":[1,2]}`), mustHash(t, json.RawMessage(` {"a": [1, 2.0]} `)))
}

func TestHashErrors(t *testing.T) {
	_, err := HashJSON([]byte(`{"a":`))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, vterrors.Code(err))

	_, err = Hash(make(chan int))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, vterrors.Code(err))

	_, err = Hash([]any{1, func() {}})
	require.Error(t, err)
}
