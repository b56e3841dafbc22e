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
package continuation

import (
	"encoding/json"

	"github.com/buger/jsonparser"
	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/vt/feed/distinct"
	"vitess.io/docfeed/go/vt/vterrors"
)

// DistinctToken wraps the token of a DISTINCT query. SourceToken is the
// token of the underlying query, and LastHash the hash of the last row that
// was returned, nil if no row was returned yet.
//
//	{"lastHash":"1F-...-0A","sourceToken":"[{\"token\":...}]"}
type DistinctToken struct {
	LastHash    *distinct.UInt128 `json:"lastHash"`
	SourceToken string            `json:"sourceToken"`
}

// String returns the JSON form of the token.
func (dt DistinctToken) String() string {
	b, _ := json.Marshal(dt)
	return string(b)
}

// UnmarshalJSON implements json.Unmarshaler. An empty lastHash is the same
// as a null one. Any other lastHash that is not the dash separated hex of 16
// bytes is an error.
func (dt *DistinctToken) UnmarshalJSON(b []byte) error {
	var (
		out        DistinctToken
		haveSource bool
	)
	err := jsonparser.ObjectEach(b, func(k, v []byte, typ jsonparser.ValueType, _ int) error {
		switch string(k) {
		case "lastHash":
			switch typ {
			case jsonparser.Null:
				out.LastHash = nil
			case jsonparser.String:
				s, err := jsonparser.ParseString(v)
				if err != nil {
					return err
				}
				if s == "" {
					out.LastHash = nil
					break
				}
				h, err := distinct.ParseUInt128(s)
				if err != nil {
					return err
				}
				out.LastHash = &h
			default:
				return vterrors.Errorf(codes.InvalidArgument, "lastHash is a %s, want a string", typ)
			}
		case "sourceToken":
			switch typ {
			case jsonparser.Null:
				out.SourceToken = ""
			case jsonparser.String:
				s, err := jsonparser.ParseString(v)
				if err != nil {
					return err
				}
				out.SourceToken = s
			default:
				return vterrors.Errorf(codes.InvalidArgument, "sourceToken is a %s, want a string", typ)
			}
			haveSource = true
		}
		return nil
	})
	if err != nil {
		if vterrors.Code(err) == codes.InvalidArgument {
			return vterrors.Wrap(err, "invalid distinct continuation token")
		}
		return vterrors.Errorf(codes.InvalidArgument, "invalid distinct continuation token: %v", err)
	}
	if !haveSource {
		return vterrors.New(codes.InvalidArgument, "invalid distinct continuation token: no sourceToken")
	}
	*dt = out
	return nil
}

// TryParseDistinct parses a distinct token. A missing, null or empty
// lastHash is accepted; a malformed one is not.
func TryParseDistinct(s string) (DistinctToken, bool) {
	var dt DistinctToken
	if err := dt.UnmarshalJSON([]byte(s)); err != nil {
		return DistinctToken{}, false
	}
	return dt, true
}
