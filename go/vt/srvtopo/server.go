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
/*
Package srvtopo caches the partition routing map of collections for the
serving path.

A feed query resolves the ranges it reads through a RoutingCache. The cache
keeps serving the last routing map it got while the source is unavailable,
and can be forced to refresh when a request found out that the map is stale
because a partition was split.
*/
package srvtopo

import (
	"context"

	"vitess.io/docfeed/go/vt/key"
)

// RangeSource is the authority on the partition key ranges of a collection.
type RangeSource interface {
	// GetPartitionKeyRanges returns the current ranges of the collection.
	GetPartitionKeyRanges(ctx context.Context, collection string) ([]key.PartitionKeyRange, error)
}
