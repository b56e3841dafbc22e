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
	"io"
	"iter"
	"time"

	"github.com/gammazero/deque"
	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/timer"
	"vitess.io/docfeed/go/vt/feed/retry"
	"vitess.io/docfeed/go/vt/key"
	"vitess.io/docfeed/go/vt/log"
	"vitess.io/docfeed/go/vt/vterrors"
)

// State is the lifecycle state of a DocumentProducer.
type State int

const (
	// Active producers have more pages to return.
	Active State = iota
	// Exhausted producers returned their last page.
	Exhausted
	// SplitDetected producers were replaced by their children and send no
	// more requests.
	SplitDetected
	// Failed producers returned an error.
	Failed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Exhausted:
		return "exhausted"
	case SplitDetected:
		return "split"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Options configure a DocumentProducer. Children of a split share the options
// of their parent.
type Options struct {
	FetchOptions

	// Collection is the name routing lookups are made for.
	Collection string
	// RequestTimeout bounds each request. Zero means no timeout.
	RequestTimeout time.Duration
	// Policy bounds the retries of throttled requests.
	Policy retry.Policy
	// SortKeys is set for producers of ordered queries.
	SortKeys SortKeyExtractor

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Result is the outcome of one MoveNext step: either a page or the children
// that replace the producer after a split.
type Result struct {
	Response *FeedResponse
	Children []*DocumentProducer
}

// DocumentProducer returns the pages of one feed range. It is not safe for
// concurrent use: a caller runs at most one MoveNext at a time.
type DocumentProducer struct {
	client   Client
	resolver *SplitResolver
	opts     Options
	rng      key.Range
	fetcher  *Fetcher

	state    State
	err      error
	produced bool
}

// New returns a producer reading rng from token. An empty token starts at the
// first page of rng.
func New(client Client, routing RoutingCache, rng key.Range, token string, opts Options) *DocumentProducer {
	if opts.Policy == nil {
		opts.Policy = retry.DefaultThrottlingPolicy()
	}
	if opts.sleep == nil {
		opts.sleep = timer.SleepContext
	}
	return &DocumentProducer{
		client:   client,
		resolver: NewSplitResolver(routing, opts.Collection),
		opts:     opts,
		rng:      rng,
		fetcher:  NewFetcher(client, rng, token, opts.FetchOptions),
	}
}

// NewOrderByDocumentProducer returns a producer for an ordered query. Each
// response carries the rows of its page with their sort key values. A nil
// extractor reads the rewritten query shape, see RewrittenExtractor.
func NewOrderByDocumentProducer(client Client, routing RoutingCache, rng key.Range, token string, opts Options, extractor SortKeyExtractor) *DocumentProducer {
	if extractor == nil {
		extractor = RewrittenExtractor
	}
	opts.SortKeys = extractor
	return New(client, routing, rng, token, opts)
}

// FeedRange returns the range of the producer.
func (dp *DocumentProducer) FeedRange() key.Range {
	return dp.rng
}

// Token returns the continuation token that resumes the producer: the last
// token it observed, or its initial token.
func (dp *DocumentProducer) Token() string {
	return dp.fetcher.Token()
}

// State returns the lifecycle state.
func (dp *DocumentProducer) State() State {
	return dp.state
}

// IsOrdered returns true for producers of ordered queries.
func (dp *DocumentProducer) IsOrdered() bool {
	return dp.opts.SortKeys != nil
}

// Fetcher returns the page state of the producer.
func (dp *DocumentProducer) Fetcher() *Fetcher {
	return dp.fetcher
}

// MoveNext sends requests until it has a page or the children that replace
// the producer. It returns io.EOF once the range is exhausted. Throttled
// requests are sent again, unchanged, within the retry budget.
func (dp *DocumentProducer) MoveNext(ctx context.Context) (Result, error) {
	switch dp.state {
	case Exhausted:
		return Result{}, io.EOF
	case SplitDetected:
		return Result{}, vterrors.Errorf(codes.FailedPrecondition, "range %v was replaced by its children", dp.rng)
	case Failed:
		return Result{}, dp.err
	}
	if !dp.fetcher.ShouldFetchMore() {
		dp.state = Exhausted
		return Result{}, io.EOF
	}

	budget := dp.opts.Policy.Begin()
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, dp.fail(err)
		}
		token := dp.fetcher.Token()
		page, err := dp.nextPage(ctx)
		if err == nil {
			resp, err := dp.response(page, token)
			if err != nil {
				return Result{}, dp.fail(err)
			}
			return Result{Response: resp}, nil
		}

		d := retry.Classify(err)
		switch d.Kind {
		case retry.Throttled:
			wait, berr := budget.Next(d, err)
			if berr != nil {
				retriesExhausted.Add(1)
				return Result{}, dp.fail(vterrors.Wrapf(berr, "range %v", dp.rng))
			}
			throttleRetries.Add(1)
			if log.V(2) {
				log.Infof("range %v throttled, sending token %q again in %v", dp.rng, token, wait)
			} else {
				throttleLog.Warningf("range %v throttled, retrying in %v", dp.rng, wait)
			}
			if err := dp.opts.sleep(ctx, wait); err != nil {
				return Result{}, dp.fail(err)
			}
		case retry.PartitionGone:
			children, err := dp.split(ctx)
			if err != nil {
				return Result{}, dp.fail(err)
			}
			return Result{Children: children}, nil
		default:
			return Result{}, dp.fail(err)
		}
	}
}

func (dp *DocumentProducer) nextPage(ctx context.Context) (*Page, error) {
	defer requestLatency.Record(time.Now())
	if dp.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dp.opts.RequestTimeout)
		defer cancel()
	}
	return dp.fetcher.NextPage(ctx)
}

func (dp *DocumentProducer) response(page *Page, token string) (*FeedResponse, error) {
	pagesFetched.Add(1)
	documentsFetched.Add(int64(len(page.Documents)))
	if !dp.fetcher.ShouldFetchMore() {
		dp.state = Exhausted
	}
	resp := &FeedResponse{
		Page:         page,
		FeedRange:    dp.rng,
		RequestToken: token,
	}
	if dp.opts.SortKeys == nil {
		return resp, nil
	}
	resp.Rows = make([]Row, 0, len(page.Documents))
	for _, doc := range page.Documents {
		payload, items, err := dp.opts.SortKeys.Extract(doc)
		if err != nil {
			return nil, vterrors.Wrapf(err, "range %v", dp.rng)
		}
		resp.Rows = append(resp.Rows, Row{Document: payload, OrderByItems: items, FeedRange: dp.rng})
	}
	return resp, nil
}

// split replaces the producer by one child per replacement range. Children
// start from the parent's current token and may return what the parent
// still could. A range that the refreshed routing map still lists as is
// fails the producer.
func (dp *DocumentProducer) split(ctx context.Context) ([]*DocumentProducer, error) {
	ranges, err := dp.resolver.Resolve(ctx, dp.rng)
	if err != nil {
		return nil, err
	}
	// A child for the same range would be sent the same token and be gone
	// again.
	if len(ranges) == 1 && ranges[0] == dp.rng {
		return nil, vterrors.Errorf(codes.Unavailable, "range %v of %s is gone but the routing map still serves it unchanged", dp.rng, dp.opts.Collection)
	}
	splitsDetected.Add(1)
	log.Infof("range %v of %s is gone, replaced by %v from token %q", dp.rng, dp.opts.Collection, ranges, dp.fetcher.Token())

	opts := dp.opts
	opts.Top = dp.fetcher.Remaining()
	children := make([]*DocumentProducer, 0, len(ranges))
	for _, rng := range ranges {
		child := New(dp.client, dp.resolver.routing, rng, dp.fetcher.Token(), opts)
		children = append(children, child)
	}
	dp.state = SplitDetected
	return children, nil
}

func (dp *DocumentProducer) fail(err error) error {
	requestErrors.Add(vterrors.Code(err).String(), 1)
	log.Warningf("range %v failed: %v", dp.rng, err)
	dp.state = Failed
	dp.err = err
	return err
}

// Produce returns the pages of the producer and, after a split, of its
// descendants in key order. The split tree is walked with an explicit stack.
// The sequence stops after the first error and can be ranged over only once.
func (dp *DocumentProducer) Produce(ctx context.Context) iter.Seq2[*FeedResponse, error] {
	return func(yield func(*FeedResponse, error) bool) {
		if dp.produced {
			yield(nil, vterrors.Errorf(codes.FailedPrecondition, "pages of range %v were already produced", dp.rng))
			return
		}
		dp.produced = true

		remaining := dp.fetcher.Remaining()
		var stack deque.Deque[*DocumentProducer]
		stack.PushBack(dp)
		for stack.Len() > 0 && remaining != 0 {
			cur := stack.Back()
			cur.fetcher.LimitRemaining(remaining)
			res, err := cur.MoveNext(ctx)
			switch {
			case err == io.EOF:
				stack.PopBack()
				continue
			case err != nil:
				yield(nil, err)
				return
			}
			if res.Children != nil {
				stack.PopBack()
				for i := len(res.Children) - 1; i >= 0; i-- {
					stack.PushBack(res.Children[i])
				}
				continue
			}
			if remaining > 0 {
				remaining -= len(res.Response.Page.Documents)
			}
			if !yield(res.Response, nil) {
				return
			}
		}
	}
}
