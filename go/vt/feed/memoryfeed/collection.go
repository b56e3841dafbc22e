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
// Package memoryfeed is an in-memory partitioned collection. It serves the
// page requests of a feed query the way a partitioned backend does: pages
// carry continuation tokens, partitions can be split while a query runs,
// and requests can be throttled or failed on demand.
//
// A Collection implements producer.Client and srvtopo.RangeSource.
package memoryfeed

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/vt/feed/producer"
	"vitess.io/docfeed/go/vt/key"
	"vitess.io/docfeed/go/vt/vterrors"
)

type entry struct {
	epk   string
	seq   int64
	doc   json.RawMessage
	items []json.RawMessage
}

type partition struct {
	key.PartitionKeyRange
	faults   []error
	served   int
	splitAt  string
	splitDue int
}

// RequestRecord is one request the collection received.
type RequestRecord struct {
	Range        key.Range
	Token        string
	MaxItemCount int
	PartitionID  string
	Status       int
}

// Option configures a Collection.
type Option func(*Collection)

// WithPartitionKey sets the gjson path of the partition key of documents.
// The default is "id".
func WithPartitionKey(path string) Option {
	return func(c *Collection) {
		c.pkPath = path
	}
}

// WithOrderBy makes the collection answer an ordered query: documents are
// returned sorted on the values at paths, in the rewritten shape read by
// producer.RewrittenExtractor.
func WithOrderBy(order producer.SortOrder, paths ...string) Option {
	return func(c *Collection) {
		c.orderPaths = paths
		c.order = order
	}
}

// WithRateLimit throttles requests beyond limit per second with the given
// burst. Throttled requests are told how long to wait.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Collection) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithLatency delays every request.
func WithLatency(d time.Duration) Option {
	return func(c *Collection) {
		c.latency = d
	}
}

// Collection is an in-memory partitioned collection. It is safe for
// concurrent use.
type Collection struct {
	name       string
	pkPath     string
	orderPaths []string
	order      producer.SortOrder
	limiter    *rate.Limiter
	latency    time.Duration

	mu         sync.Mutex
	partitions []*partition
	entries    []entry
	nextID     int
	nextSeq    int64
	requests   []RequestRecord
}

// New returns an empty collection with n partitions of equal width.
func New(name string, n int, opts ...Option) *Collection {
	c := &Collection{name: name, pkPath: "id"}
	for _, opt := range opts {
		opt(c)
	}
	n = max(1, min(n, 255))
	bounds := make([]string, n+1)
	bounds[0], bounds[n] = key.MinKey, key.MaxKey
	for i := 1; i < n; i++ {
		bounds[i] = fmt.Sprintf("%02X", i*255/n)
	}
	for i := range n {
		c.partitions = append(c.partitions, &partition{PartitionKeyRange: key.PartitionKeyRange{
			ID:  fmt.Sprint(i),
			Min: bounds[i],
			Max: bounds[i+1],
		}})
	}
	c.nextID = n
	return c
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// EffectivePartitionKey returns the key a partition key value is stored
// under. Keys are 16 hex digits below MaxKey.
func EffectivePartitionKey(pk []byte) string {
	h := xxhash.Sum64(pk)
	return fmt.Sprintf("%02X%014X", byte(h>>56)%0xFF, h&(1<<56-1))
}

// Insert stores documents under the hash of their partition key.
func (c *Collection) Insert(docs ...json.RawMessage) error {
	for _, doc := range docs {
		if !gjson.ValidBytes(doc) {
			return vterrors.Errorf(codes.InvalidArgument, "invalid document %.64s", doc)
		}
		pk := gjson.GetBytes(doc, c.pkPath)
		if !pk.Exists() {
			return vterrors.Errorf(codes.InvalidArgument, "document %.64s has no partition key %s", doc, c.pkPath)
		}
		if err := c.InsertAt(EffectivePartitionKey([]byte(pk.Raw)), doc); err != nil {
			return err
		}
	}
	return nil
}

// InsertAt stores a document under an explicit effective partition key.
func (c *Collection) InsertAt(epk string, doc json.RawMessage) error {
	if !key.FullRange().Contains(epk) {
		return vterrors.Errorf(codes.InvalidArgument, "effective partition key %q is outside of the key space", epk)
	}
	e := entry{epk: epk, doc: slices.Clone(doc)}
	if len(c.orderPaths) > 0 {
		for _, p := range c.orderPaths {
			if v := gjson.GetBytes(doc, p); v.Exists() {
				e.items = append(e.items, json.RawMessage(v.Raw))
			} else {
				e.items = append(e.items, nil)
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e.seq = c.nextSeq
	c.nextSeq++
	i, _ := slices.BinarySearchFunc(c.entries, e, comparePosition)
	c.entries = slices.Insert(c.entries, i, e)
	return nil
}

func comparePosition(a, b entry) int {
	if c := strings.Compare(a.epk, b.epk); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

// Len returns the number of documents.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Ranges returns the current partition key ranges in key order.
func (c *Collection) Ranges() []key.PartitionKeyRange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rangesLocked()
}

func (c *Collection) rangesLocked() []key.PartitionKeyRange {
	out := make([]key.PartitionKeyRange, 0, len(c.partitions))
	for _, p := range c.partitions {
		out = append(out, p.PartitionKeyRange)
	}
	key.SortRanges(out)
	return out
}

// Split replaces partition id by two partitions split at the given key and
// returns them. Requests for the old range fail with a partition gone error
// from now on.
func (c *Collection) Split(id, at string) ([]key.PartitionKeyRange, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.splitLocked(id, at)
}

func (c *Collection) splitLocked(id, at string) ([]key.PartitionKeyRange, error) {
	i := slices.IndexFunc(c.partitions, func(p *partition) bool { return p.ID == id })
	if i < 0 {
		return nil, vterrors.Errorf(codes.NotFound, "no partition %s in %s", id, c.name)
	}
	p := c.partitions[i]
	if at <= p.Min || at >= p.Max {
		return nil, vterrors.Errorf(codes.InvalidArgument, "cannot split %v at %q", p.PartitionKeyRange, at)
	}
	children := []*partition{
		{PartitionKeyRange: key.PartitionKeyRange{ID: fmt.Sprint(c.nextID), Min: p.Min, Max: at, Parents: []string{p.ID}}},
		{PartitionKeyRange: key.PartitionKeyRange{ID: fmt.Sprint(c.nextID + 1), Min: at, Max: p.Max, Parents: []string{p.ID}}},
	}
	c.nextID += 2
	c.partitions = slices.Replace(c.partitions, i, i+1, children...)
	return []key.PartitionKeyRange{children[0].PartitionKeyRange, children[1].PartitionKeyRange}, nil
}

// SplitAfter splits partition id at the given key once it served n more
// requests, so that a split lands in the middle of a running query.
func (c *Collection) SplitAfter(id, at string, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.partitions {
		if p.ID == id {
			p.splitAt = at
			p.splitDue = p.served + n
			return nil
		}
	}
	return vterrors.Errorf(codes.NotFound, "no partition %s in %s", id, c.name)
}

// InjectFaults makes the next requests served by partition id fail with
// errs, in order.
func (c *Collection) InjectFaults(id string, errs ...error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.partitions {
		if p.ID == id {
			p.faults = append(p.faults, errs...)
			return nil
		}
	}
	return vterrors.Errorf(codes.NotFound, "no partition %s in %s", id, c.name)
}

// Requests returns the requests received so far.
func (c *Collection) Requests() []RequestRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.requests)
}
