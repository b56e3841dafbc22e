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
	"fmt"
	"sync"
	"time"

	"vitess.io/docfeed/go/stats"
	"vitess.io/docfeed/go/vt/log"
)

const (
	queryCategory   = "QueryCount"
	cachedCategory  = "QueryCachedCount"
	errorCategory   = "QueryErrorCount"
	refreshCategory = "QueryForcedRefreshCount"
)

// sourceTimeout bounds a single query to the range source.
var sourceTimeout = 5 * time.Second

type queryEntry struct {
	// immutable values
	key fmt.Stringer

	// the mutex protects any access to this structure (read or write)
	mutex sync.Mutex

	// refreshingChan is used to synchronize requests and avoid hammering
	// the range source
	refreshingChan chan struct{}

	insertionTime time.Time
	lastQueryTime time.Time
	value         any
	lastError     error
}

type resilientQuery struct {
	query func(ctx context.Context, entry *queryEntry) (any, error)

	counts               *stats.CountersWithSingleLabel
	cacheRefreshInterval time.Duration
	cacheTTL             time.Duration

	mutex   sync.Mutex
	entries map[string]*queryEntry
}

func (q *resilientQuery) getEntry(wkey fmt.Stringer) *queryEntry {
	key := wkey.String()
	q.mutex.Lock()
	defer q.mutex.Unlock()
	entry, ok := q.entries[key]
	if !ok {
		entry = &queryEntry{
			key: wkey,
		}
		q.entries[key] = entry
	}
	return entry
}

func (q *resilientQuery) getCurrentValue(ctx context.Context, wkey fmt.Stringer, staleOK bool) (any, error) {
	q.counts.Add(queryCategory, 1)

	entry := q.getEntry(wkey)

	// Lock the entry, and do everything holding the lock except
	// querying the underlying source.
	//
	// This means that even if the source is very slow, two concurrent
	// requests will only issue one underlying query.
	entry.mutex.Lock()
	defer entry.mutex.Unlock()

	cacheValid := entry.value != nil && (time.Since(entry.insertionTime) < q.cacheTTL)
	if !cacheValid && staleOK {
		// Only allow stale results for a bounded period
		cacheValid = entry.value != nil && (time.Since(entry.insertionTime) < (q.cacheTTL + 2*q.cacheRefreshInterval))
	}
	shouldRefresh := time.Since(entry.lastQueryTime) > q.cacheRefreshInterval

	// If it is not time to check again, then return either the cached
	// value or the cached error but don't ask the source again.
	if !shouldRefresh {
		if cacheValid {
			return entry.value, nil
		}
		if entry.lastError != nil || entry.refreshingChan == nil {
			return nil, entry.lastError
		}
	}

	// Refresh the state in a background goroutine if no refresh is already
	// in progress. This way queries are not blocked while the cache is still
	// valid but past the refresh time, and avoids calling out to the source
	// while the lock is held.
	if entry.refreshingChan == nil {
		entry.refreshingChan = make(chan struct{})
		entry.lastQueryTime = time.Now()

		go func() {
			defer func() {
				if err := recover(); err != nil {
					log.Errorf("ResilientQuery uncaught panic, key :%v, err :%v)", wkey, err)
				}
			}()

			newCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sourceTimeout)
			defer cancel()

			result, err := q.query(newCtx, entry)

			entry.mutex.Lock()
			defer func() {
				close(entry.refreshingChan)
				entry.refreshingChan = nil
				entry.mutex.Unlock()
			}()

			q.store(entry, result, err, newCtx.Err() == context.DeadlineExceeded)
		}()
	}

	// If the cached entry is still valid then use it, otherwise wait
	// for the refresh attempt to complete to get a more up to date
	// response.
	if cacheValid {
		return entry.value, nil
	}

	refreshingChan := entry.refreshingChan
	entry.mutex.Unlock()
	select {
	case <-refreshingChan:
	case <-ctx.Done():
		entry.mutex.Lock()
		return nil, ctx.Err()
	}
	entry.mutex.Lock()

	if entry.value != nil {
		return entry.value, nil
	}

	return nil, entry.lastError
}

// refresh queries the source now, regardless of the TTL and the refresh
// interval, and returns its answer. A failed refresh keeps the cached
// value for later callers but returns the error.
func (q *resilientQuery) refresh(ctx context.Context, wkey fmt.Stringer) (any, error) {
	q.counts.Add(refreshCategory, 1)
	entry := q.getEntry(wkey)

	newCtx, cancel := context.WithTimeout(ctx, sourceTimeout)
	defer cancel()
	result, err := q.query(newCtx, entry)

	entry.mutex.Lock()
	defer entry.mutex.Unlock()
	entry.lastQueryTime = time.Now()
	q.store(entry, result, err, newCtx.Err() == context.DeadlineExceeded)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// store records the outcome of a query. The entry lock must be held.
func (q *resilientQuery) store(entry *queryEntry, result any, err error, timedOut bool) {
	if err == nil {
		// save the value we got and the current time in the cache
		entry.insertionTime = time.Now()
		// Avoid a tiny race if TTL == refresh time (the default)
		entry.lastQueryTime = entry.insertionTime
		entry.value = result
		entry.lastError = nil
		return
	}

	q.counts.Add(errorCategory, 1)
	switch {
	case entry.insertionTime.IsZero():
		log.Errorf("ResilientQuery(%v) failed: %v (no cached value, caching and returning error)", entry.key, err)
	case timedOut:
		log.Errorf("ResilientQuery(%v) failed: %v (request timeout), (keeping cached value)", entry.key, err)
	case entry.value != nil && time.Since(entry.insertionTime) < q.cacheTTL:
		q.counts.Add(cachedCategory, 1)
		log.Warningf("ResilientQuery(%v) failed: %v (keeping cached value)", entry.key, err)
	default:
		log.Errorf("ResilientQuery(%v) failed: %v (cached value expired)", entry.key, err)
		entry.insertionTime = time.Time{}
		entry.value = nil
	}
	entry.lastError = err
}
