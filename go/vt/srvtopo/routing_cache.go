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
package srvtopo

import (
	"context"
	"slices"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/stats"
	"vitess.io/docfeed/go/vt/key"
	"vitess.io/docfeed/go/vt/vterrors"
)

var (
	// routingCacheTTL is the time for which cached routing maps are
	// considered valid.
	routingCacheTTL = 1 * time.Second

	// routingCacheRefresh is how often the source is queried in the
	// background while the cached map is still valid.
	routingCacheRefresh = 1 * time.Second
)

// RegisterFlags installs the routing cache flags on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&routingCacheTTL, "routing-cache-ttl", routingCacheTTL, "how long a cached partition routing map is valid")
	fs.DurationVar(&routingCacheRefresh, "routing-cache-refresh", routingCacheRefresh, "how frequently to refresh the partition routing map")
}

type collectionKey string

func (k collectionKey) String() string {
	return string(k)
}

// RoutingCache serves the ranges of collections from a RangeSource. It is
// safe for concurrent use.
type RoutingCache struct {
	source RangeSource
	query  *resilientQuery
}

// NewRoutingCache returns a cache over source using the flag values for TTL
// and refresh interval. Counters are published under counterPrefix, or not
// at all if it is empty.
func NewRoutingCache(source RangeSource, counterPrefix string) *RoutingCache {
	return NewRoutingCacheWithTTL(source, counterPrefix, routingCacheTTL, routingCacheRefresh)
}

// NewRoutingCacheWithTTL is NewRoutingCache with explicit durations.
func NewRoutingCacheWithTTL(source RangeSource, counterPrefix string, cacheTTL, cacheRefresh time.Duration) *RoutingCache {
	if cacheRefresh > cacheTTL {
		cacheTTL = cacheRefresh
	}
	name := ""
	if counterPrefix != "" {
		name = counterPrefix + "Counts"
	}
	rc := &RoutingCache{source: source}
	rc.query = &resilientQuery{
		query: func(ctx context.Context, entry *queryEntry) (any, error) {
			ranges, err := source.GetPartitionKeyRanges(ctx, entry.key.String())
			if err != nil {
				return nil, err
			}
			if len(ranges) == 0 {
				return nil, vterrors.Errorf(codes.NotFound, "collection %v has no partition key ranges", entry.key)
			}
			sorted := slices.Clone(ranges)
			key.SortRanges(sorted)
			return sorted, nil
		},
		counts:               stats.NewCountersWithSingleLabel(name, "Partition routing cache query counts", "Category", queryCategory, cachedCategory, errorCategory, refreshCategory),
		cacheRefreshInterval: cacheRefresh,
		cacheTTL:             cacheTTL,
		entries:              make(map[string]*queryEntry),
	}
	return rc
}

// GetPartitionKeyRanges returns all ranges of the collection in key order.
func (rc *RoutingCache) GetPartitionKeyRanges(ctx context.Context, collection string) ([]key.PartitionKeyRange, error) {
	v, err := rc.query.getCurrentValue(ctx, collectionKey(collection), true)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, vterrors.Errorf(codes.Unavailable, "no routing map for collection %v", collection)
	}
	return v.([]key.PartitionKeyRange), nil
}

// GetOverlappingRanges returns, in key order, the ranges of the collection
// that overlap rng. With forceRefresh the source is queried before
// answering, whatever the age of the cached map.
func (rc *RoutingCache) GetOverlappingRanges(ctx context.Context, collection string, rng key.Range, forceRefresh bool) ([]key.PartitionKeyRange, error) {
	var (
		v   any
		err error
	)
	if forceRefresh {
		v, err = rc.query.refresh(ctx, collectionKey(collection))
	} else {
		v, err = rc.query.getCurrentValue(ctx, collectionKey(collection), true)
	}
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, vterrors.Errorf(codes.Unavailable, "no routing map for collection %v", collection)
	}
	return key.Overlapping(v.([]key.PartitionKeyRange), rng), nil
}

// Counts returns the query counters of the cache.
func (rc *RoutingCache) Counts() map[string]int64 {
	return rc.query.counts.Counts()
}
