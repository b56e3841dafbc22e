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
// Package continuation encodes and decodes the continuation tokens that let a
// caller resume a cross-partition query where a previous page left off.
//
// A composite token pins a backend cursor to the feed range it was issued
// for:
//
//	{"token":"<cursor>","range":{"min":"","max":"FF","isMinInclusive":true,"isMaxInclusive":false}}
//
// Older clients wrote the range as an escaped JSON string, which is still
// accepted when parsing.
package continuation

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/vt/key"
	"vitess.io/docfeed/go/vt/vterrors"
)

// CompositeToken is a backend cursor together with the range it belongs to.
// An empty Token means the range has not been read yet and is written as
// null.
type CompositeToken struct {
	Token string
	Range key.Range
}

type wireRange struct {
	Min            string `json:"min"`
	Max            string `json:"max"`
	IsMinInclusive bool   `json:"isMinInclusive"`
	IsMaxInclusive bool   `json:"isMaxInclusive"`
}

type wireComposite struct {
	Token *string   `json:"token"`
	Range wireRange `json:"range"`
}

// MarshalJSON implements json.Marshaler. Fields are always written in the
// order token, range and min, max, isMinInclusive, isMaxInclusive.
func (ct CompositeToken) MarshalJSON() ([]byte, error) {
	w := wireComposite{
		Range: wireRange{
			Min:            ct.Range.Min,
			Max:            ct.Range.Max,
			IsMinInclusive: ct.Range.IsMinInclusive,
			IsMaxInclusive: ct.Range.IsMaxInclusive,
		},
	}
	if ct.Token != "" {
		w.Token = &ct.Token
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. It accepts the range as a
// nested object or as a string holding the object.
func (ct *CompositeToken) UnmarshalJSON(b []byte) error {
	if !gjson.ValidBytes(b) {
		return vterrors.Errorf(codes.InvalidArgument, "continuation token is not valid JSON: %.64s", b)
	}
	v, err := parseComposite(gjson.ParseBytes(b))
	if err != nil {
		return err
	}
	*ct = v
	return nil
}

// String returns the JSON form of the token.
func (ct CompositeToken) String() string {
	b, _ := ct.MarshalJSON()
	return string(b)
}

// TryParseComposite parses a composite token. It returns false if s is not
// one, in which case the caller decides whether to start from the beginning.
func TryParseComposite(s string) (CompositeToken, bool) {
	var ct CompositeToken
	if err := ct.UnmarshalJSON([]byte(s)); err != nil {
		return CompositeToken{}, false
	}
	return ct, true
}

func parseComposite(doc gjson.Result) (CompositeToken, error) {
	if !doc.IsObject() {
		return CompositeToken{}, vterrors.Errorf(codes.InvalidArgument, "continuation token must be an object, got %s", doc.Type)
	}
	var ct CompositeToken
	switch token := doc.Get("token"); token.Type {
	case gjson.Null:
		// absent or null
	case gjson.String:
		ct.Token = token.String()
	default:
		return CompositeToken{}, vterrors.Errorf(codes.InvalidArgument, "continuation token has a %s token, want a string", token.Type)
	}

	rng := doc.Get("range")
	switch {
	case rng.Type == gjson.String:
		// Legacy tokens carry the range double encoded.
		inner := rng.String()
		if !gjson.Valid(inner) {
			return CompositeToken{}, vterrors.Errorf(codes.InvalidArgument, "continuation token range %q is not valid JSON", inner)
		}
		rng = gjson.Parse(inner)
	case !rng.Exists():
		return CompositeToken{}, vterrors.New(codes.InvalidArgument, "continuation token has no range")
	}
	r, err := parseRange(rng)
	if err != nil {
		return CompositeToken{}, err
	}
	ct.Range = r
	return ct, nil
}

// parseRange reads a range object. Missing inclusivity flags default to a
// half-open range, which is what every partition range is.
func parseRange(rng gjson.Result) (key.Range, error) {
	if !rng.IsObject() {
		return key.Range{}, vterrors.Errorf(codes.InvalidArgument, "continuation token range must be an object, got %s", rng.Type)
	}
	lo, hi := rng.Get("min"), rng.Get("max")
	if lo.Type != gjson.String || hi.Type != gjson.String {
		return key.Range{}, vterrors.Errorf(codes.InvalidArgument, "continuation token range %s needs string min and max", rng.Raw)
	}
	r := key.NewRange(lo.String(), hi.String())
	for name, flag := range map[string]*bool{"isMinInclusive": &r.IsMinInclusive, "isMaxInclusive": &r.IsMaxInclusive} {
		switch v := rng.Get(name); v.Type {
		case gjson.True, gjson.False:
			*flag = v.Bool()
		case gjson.Null:
		default:
			return key.Range{}, vterrors.Errorf(codes.InvalidArgument, "continuation token range has a %s %s, want a bool", v.Type, name)
		}
	}
	return r, nil
}
