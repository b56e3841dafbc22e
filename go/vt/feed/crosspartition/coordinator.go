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

// Package crosspartition runs a query over many partition key ranges and
// returns one stream of pages.
//
// Each active range is read by a producer.DocumentProducer. Unordered
// queries return the pages of the ranges one range after the other, in key
// order, while the next page of every other range is fetched in the
// background. Ordered queries buffer one page per range and merge the rows
// of all ranges by their sort keys. Both modes can drop duplicate rows and
// stop after a number of rows.
//
// A query can be stopped after any page and resumed, possibly by another
// process, from the continuation token returned with that page. The token
// holds one entry per range that still has rows. Ranges that were split
// since the token was written are repaired by the producers on their first
// request.
package crosspartition

import (
	"context"
	"encoding/json"
	"io"
	"slices"
	"sync"

	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/stats"
	"vitess.io/docfeed/go/vt/feed/continuation"
	"vitess.io/docfeed/go/vt/feed/distinct"
	"vitess.io/docfeed/go/vt/feed/producer"
	"vitess.io/docfeed/go/vt/key"
	"vitess.io/docfeed/go/vt/log"
	"vitess.io/docfeed/go/vt/vterrors"
)

var (
	queriesStarted = stats.NewCounter("CrossPartitionQueries", "Cross-partition queries started")
	pagesReturned  = stats.NewCounter("CrossPartitionPages", "Pages returned by cross-partition queries")
	queryErrors    = stats.NewCountersWithSingleLabel("CrossPartitionErrors", "Cross-partition queries that failed, by error code", "Code")
)

// Query describes a query over the partitions of a collection.
type Query struct {
	Collection string
	Client     producer.Client
	// Routing resolves the ranges of the collection. It finds the ranges
	// to read when neither Ranges nor ContinuationToken is set, and the
	// ranges that replace a split one.
	Routing producer.RoutingCache
	// Ranges restricts a new query to these ranges. Empty reads the whole
	// collection.
	Ranges []key.Range

	// OrderBy holds one direction per sort key. An empty OrderBy returns
	// the pages of the ranges unmerged.
	OrderBy producer.SortOrder
	// SortKeys reads the sort keys of a row. Nil reads the rewritten query
	// shape, see producer.RewrittenExtractor.
	SortKeys producer.SortKeyExtractor
	Distinct distinct.Type
	// Top is the most rows the query returns. Zero or less is no limit.
	Top int
	// ChangeFeed ends a range on a not-modified response.
	ChangeFeed bool

	// ContinuationToken resumes a query from a token returned by
	// Coordinator.ContinuationToken.
	ContinuationToken string
}

// Ordered returns true if the rows of the ranges are merged by sort key.
func (q *Query) Ordered() bool {
	return len(q.OrderBy) > 0
}

// Page is one page of a cross-partition query.
type Page struct {
	Documents []json.RawMessage
	// RequestCharge is the charge of all requests sent for this page.
	RequestCharge float64
	// ActivityIDs lists the backend activity of those requests.
	ActivityIDs []string
	// ContinuationToken resumes the query after this page. It is empty
	// for unordered DISTINCT queries, which cannot be resumed.
	ContinuationToken string
}

// merger is the read strategy of a query: unordered concatenation or
// ordered merge.
type merger interface {
	// nextPage returns io.EOF, with no page, once the ranges are done. It
	// may return a page and an error when the error came after rows were
	// consumed.
	nextPage(ctx context.Context) (*Page, error)
	// tokenSet returns the token set that resumes the active ranges.
	tokenSet() (string, error)
}

// Coordinator runs one cross-partition query. It is not safe for concurrent
// use, except Close.
type Coordinator struct {
	cfg   *Config
	query Query
	opts  producer.Options

	merger   merger
	distinct distinct.Map
	// top is the number of rows still to return, -1 for no limit.
	top int
	sem chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	charge      float64
	activityIDs []string
	// err, done and closed end the query; guarded by mu.
	err    error
	done   bool
	closed bool
}

var errClosed = vterrors.New(codes.Canceled, "query was closed")

// New starts query. ctx bounds the lifetime of the query, including the
// requests sent in the background between calls to Next. The ranges are
// resolved from the continuation token, query.Ranges or the routing cache,
// in that order.
func New(ctx context.Context, cfg *Config, query Query) (*Coordinator, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	if query.Client == nil {
		return nil, vterrors.New(codes.InvalidArgument, "query has no client")
	}

	c := &Coordinator{
		cfg:   cfg,
		query: query,
		top:   -1,
	}
	if query.Top > 0 {
		c.top = query.Top
	}
	if cfg.MaxConcurrency > 0 {
		c.sem = make(chan struct{}, cfg.MaxConcurrency)
	}
	c.opts = producer.Options{
		FetchOptions: producer.FetchOptions{
			MaxItemCount: cfg.MaxItemCount,
			Top:          -1,
			ChangeFeed:   query.ChangeFeed,
		},
		Collection:     query.Collection,
		RequestTimeout: cfg.RequestTimeout,
		Policy:         cfg.Policy(),
	}
	// A range never returns more rows than the query, unless rows may be
	// dropped as duplicates.
	if query.Distinct == distinct.None {
		c.opts.Top = c.top
	}

	source := query.ContinuationToken
	var lastHash *distinct.UInt128
	if query.Distinct != distinct.None {
		if source != "" {
			dt, ok := continuation.TryParseDistinct(source)
			if !ok {
				return nil, vterrors.Errorf(codes.InvalidArgument, "invalid continuation token for a DISTINCT query: %q", source)
			}
			source, lastHash = dt.SourceToken, dt.LastHash
		}
		if query.Distinct == distinct.Unordered {
			lastHash = nil
		}
		m, err := distinct.NewMap(query.Distinct, lastHash)
		if err != nil {
			return nil, err
		}
		c.distinct = m
	}

	var err error
	if query.Ordered() {
		c.merger, err = c.newOrderedMerge(ctx, source)
	} else {
		c.merger, err = c.newConcatenation(ctx, source)
	}
	if err != nil {
		return nil, err
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	if conc, ok := c.merger.(*concatenation); ok {
		conc.start()
	}
	queriesStarted.Add(1)
	return c, nil
}

// initialRanges returns the ranges of a query that starts from scratch.
func (c *Coordinator) initialRanges(ctx context.Context) ([]key.Range, error) {
	ranges := slices.Clone(c.query.Ranges)
	if len(ranges) == 0 {
		if c.query.Routing == nil {
			return nil, vterrors.New(codes.InvalidArgument, "query has neither ranges nor a routing cache")
		}
		pkrs, err := c.query.Routing.GetOverlappingRanges(ctx, c.query.Collection, key.FullRange(), false)
		if err != nil {
			return nil, vterrors.Wrapf(err, "list ranges of %s", c.query.Collection)
		}
		key.SortRanges(pkrs)
		for _, pkr := range pkrs {
			ranges = append(ranges, pkr.Range())
		}
	}
	sortRanges(ranges)
	log.V(2).Infof("query of %s starts over %d ranges", c.query.Collection, len(ranges))
	return ranges, nil
}

func sortRanges(ranges []key.Range) {
	slices.SortFunc(ranges, func(a, b key.Range) int { return a.Compare(b) })
}

func (c *Coordinator) newProducer(rng key.Range, token string) *producer.DocumentProducer {
	if c.query.Ordered() {
		return producer.NewOrderByDocumentProducer(c.query.Client, c.query.Routing, rng, token, c.opts, c.query.SortKeys)
	}
	return producer.New(c.query.Client, c.query.Routing, rng, token, c.opts)
}

// moveNext runs one producer step within the concurrency limit.
func (c *Coordinator) moveNext(ctx context.Context, dp *producer.DocumentProducer) (producer.Result, error) {
	if c.sem != nil {
		select {
		case c.sem <- struct{}{}:
		case <-ctx.Done():
			return producer.Result{}, ctx.Err()
		}
		defer func() { <-c.sem }()
	}
	res, err := dp.MoveNext(ctx)
	if res.Response != nil {
		c.record(res.Response.Page)
	}
	return res, err
}

func (c *Coordinator) record(page *producer.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.charge += page.RequestCharge
	if page.ActivityID != "" {
		c.activityIDs = append(c.activityIDs, page.ActivityID)
	}
}

func (c *Coordinator) takeCharge(page *Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	page.RequestCharge, page.ActivityIDs = c.charge, c.activityIDs
	c.charge, c.activityIDs = 0, nil
}

// accept returns the documents of docs the query returns, after dropping
// duplicates and the rows past top.
func (c *Coordinator) accept(docs []json.RawMessage) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(docs))
	for _, doc := range docs {
		if c.top == 0 {
			break
		}
		if c.distinct != nil {
			ok, err := c.distinct.Add(doc)
			if err != nil {
				return out, vterrors.Wrap(err, "hash document")
			}
			if !ok {
				continue
			}
		}
		out = append(out, doc)
		if c.top > 0 {
			c.top--
		}
	}
	return out, nil
}

// Next returns the next page. It returns io.EOF once every range is
// exhausted or Top rows were returned. After an error, every call returns
// that error; ContinuationToken still resumes the query.
func (c *Coordinator) Next(ctx context.Context) (*Page, error) {
	if err := c.finished(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	page, err := c.merger.nextPage(ctx)
	switch {
	case err == io.EOF:
		c.mu.Lock()
		c.done = true
		c.mu.Unlock()
		return nil, io.EOF
	case err != nil:
		err = c.fail(err)
		if page == nil || len(page.Documents) == 0 {
			return nil, err
		}
	}
	c.takeCharge(page)
	if token, err := c.ContinuationToken(); err == nil {
		page.ContinuationToken = token
	}
	pagesReturned.Add(1)
	return page, nil
}

// Drain returns the documents of all remaining pages.
func (c *Coordinator) Drain(ctx context.Context) ([]json.RawMessage, error) {
	var docs []json.RawMessage
	for {
		page, err := c.Next(ctx)
		if err == io.EOF {
			return docs, nil
		}
		if err != nil {
			return docs, err
		}
		docs = append(docs, page.Documents...)
	}
}

// ContinuationToken returns the token that resumes the query after the last
// page returned by Next. A finished query returns the token of an empty
// range set.
func (c *Coordinator) ContinuationToken() (string, error) {
	set := "[]"
	if c.top != 0 {
		var err error
		if set, err = c.merger.tokenSet(); err != nil {
			return "", err
		}
	}
	if c.distinct == nil {
		return set, nil
	}
	dt := continuation.DistinctToken{SourceToken: set}
	switch c.query.Distinct {
	case distinct.Unordered:
		if set != "[]" {
			return "", vterrors.New(codes.FailedPrecondition, "an unordered DISTINCT query cannot be resumed")
		}
	default:
		dt.LastHash = c.distinct.LastHash()
	}
	return dt.String(), nil
}

// Close stops the requests in flight and waits for them to return. Next
// fails after Close.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// goBackground runs fn in a goroutine that Close waits for. It returns
// false, without running fn, once Close was called.
func (c *Coordinator) goBackground(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
	return true
}

// finished returns the error that every later Next returns, io.EOF or nil.
func (c *Coordinator) finished() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.err != nil:
		return c.err
	case c.done:
		return io.EOF
	case c.closed:
		return errClosed
	}
	return nil
}

// fail makes err the result of every later Next and stops the requests in
// flight. The first error wins and is returned.
func (c *Coordinator) fail(err error) error {
	c.mu.Lock()
	if c.err != nil {
		err = c.err
		c.mu.Unlock()
		return err
	}
	c.err = err
	c.mu.Unlock()

	c.cancel()
	queryErrors.Add(vterrors.Code(err).String(), 1)
	log.Warningf("query of %s failed: %v", c.query.Collection, err)
	return err
}
