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
	"strings"

	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/vt/vterrors"
)

// A token set is the resume state of a whole cross-partition query: a JSON
// array with one token per range that still has rows. Unordered queries use
// composite tokens and ordered queries order-by tokens. An empty set means
// the query is done; an empty string means it has not started.

// EncodeCompositeSet returns the JSON array of the tokens.
func EncodeCompositeSet(tokens []CompositeToken) (string, error) {
	return encodeSet(tokens)
}

// ParseCompositeSet parses a set of composite tokens. A single composite
// token object is accepted as a set of one.
func ParseCompositeSet(s string) ([]CompositeToken, error) {
	if strings.HasPrefix(strings.TrimSpace(s), "{") {
		var ct CompositeToken
		if err := ct.UnmarshalJSON([]byte(s)); err != nil {
			return nil, err
		}
		return []CompositeToken{ct}, nil
	}
	var tokens []CompositeToken
	if err := decodeSet(s, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// EncodeOrderBySet returns the JSON array of the tokens.
func EncodeOrderBySet(tokens []OrderByToken) (string, error) {
	return encodeSet(tokens)
}

// ParseOrderBySet parses a set of order-by tokens.
func ParseOrderBySet(s string) ([]OrderByToken, error) {
	var tokens []OrderByToken
	if err := decodeSet(s, &tokens); err != nil {
		return nil, err
	}
	for i, ot := range tokens {
		if ot.SkipCount < 0 {
			return nil, vterrors.Errorf(codes.InvalidArgument, "order by continuation token %d has a negative skipCount %d", i, ot.SkipCount)
		}
		if len(ot.OrderByItems) == 0 && ot.SkipCount > 0 {
			return nil, vterrors.Errorf(codes.InvalidArgument, "order by continuation token %d skips %d rows but has no orderByItems", i, ot.SkipCount)
		}
	}
	return tokens, nil
}

func encodeSet[T any](tokens []T) (string, error) {
	if tokens == nil {
		tokens = []T{}
	}
	b, err := json.Marshal(tokens)
	if err != nil {
		return "", vterrors.Wrap(err, "encode continuation token set")
	}
	return string(b), nil
}

func decodeSet[T any](s string, out *[]T) error {
	if err := json.Unmarshal([]byte(s), out); err != nil {
		if vterrors.Code(err) == codes.InvalidArgument {
			return err
		}
		return vterrors.Errorf(codes.InvalidArgument, "invalid continuation token set: %v", err)
	}
	if *out == nil {
		return vterrors.New(codes.InvalidArgument, "continuation token set must be an array")
	}
	return nil
}
