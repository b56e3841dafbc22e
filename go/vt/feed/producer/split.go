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
	"context"

	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/vt/key"
	"vitess.io/docfeed/go/vt/vterrors"
)

// SplitResolver finds the ranges that replaced a range that is gone.
type SplitResolver struct {
	routing    RoutingCache
	collection string
}

// NewSplitResolver returns a SplitResolver for a collection.
func NewSplitResolver(routing RoutingCache, collection string) *SplitResolver {
	return &SplitResolver{routing: routing, collection: collection}
}

// Resolve returns, in key order, the replacement ranges of rng clipped to
// rng. It makes exactly one lookup, bypassing the cached routing map, and
// fails unless the replacements cover rng without gaps.
func (sr *SplitResolver) Resolve(ctx context.Context, rng key.Range) ([]key.Range, error) {
	if sr.routing == nil {
		return nil, vterrors.Errorf(codes.Unavailable, "range %v is gone and there is no routing cache", rng)
	}
	pkrs, err := sr.routing.GetOverlappingRanges(ctx, sr.collection, rng, true)
	if err != nil {
		if code := vterrors.Code(err); code == codes.Canceled || code == codes.DeadlineExceeded {
			return nil, err
		}
		return nil, vterrors.Wrapf(vterrors.New(codes.Unavailable, err.Error()), "resolve replacement ranges of %v", rng)
	}
	key.SortRanges(pkrs)
	if !key.Covers(pkrs, rng) {
		return nil, vterrors.Errorf(codes.Unavailable, "routing map of %s does not cover %v: %v", sr.collection, rng, pkrs)
	}

	out := make([]key.Range, 0, len(pkrs))
	for _, pkr := range pkrs {
		child := pkr.Range().Intersect(rng)
		if child.IsEmpty() {
			continue
		}
		out = append(out, child)
	}
	return out, nil
}
