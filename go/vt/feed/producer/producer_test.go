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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/vt/feed/retry"
	"vitess.io/docfeed/go/vt/key"
	"vitess.io/docfeed/go/vt/vterrors"
)

var (
	fullRange  = key.FullRange()
	leftRange  = key.NewRange("", "EE")
	rightRange = key.NewRange("EE", "FF")
	splitMap   = []key.PartitionKeyRange{
		{ID: "1", Min: "", Max: "EE", Parents: []string{"0"}},
		{ID: "2", Min: "EE", Max: "FF", Parents: []string{"0"}},
	}
)

// collect ranges over the producer and returns the documents and the
// ranges they came from.
func collect(t *testing.T, ctx context.Context, dp *DocumentProducer) ([]json.RawMessage, []key.Range, error) {
	t.Helper()
	var (
		all    []json.RawMessage
		ranges []key.Range
	)
	for resp, err := range dp.Produce(ctx) {
		if err != nil {
			return all, ranges, err
		}
		all = append(all, resp.Documents()...)
		ranges = append(ranges, resp.FeedRange)
	}
	return all, ranges, nil
}

// scriptPages scripts n pages for rng. Page i returns token prefix-i, the
// last page an empty token. Zero pages is a single empty last page.
func scriptPages(fc *fakeClient, rng key.Range, prefix string, n int, last bool) (tokens []string, all []json.RawMessage) {
	if n == 0 && last {
		fc.script(rng, page("", nil))
		return nil, nil
	}
	for i := 1; i <= n; i++ {
		token := fmt.Sprintf("%s-%d", prefix, i)
		if last && i == n {
			token = ""
		}
		d := docs(fmt.Sprintf("%s%d", prefix, i), 2)
		fc.script(rng, page(token, d))
		all = append(all, d...)
		tokens = append(tokens, token)
	}
	return tokens, all
}

func TestSplit(t *testing.T) {
	for _, before := range []int{0, 1, 3} {
		for _, left := range []int{0, 1, 2} {
			for _, right := range []int{0, 1, 2} {
				t.Run(fmt.Sprintf("before=%d/left=%d/right=%d", before, left, right), func(t *testing.T) {
					ctx := context.Background()
					fc := newFakeClient()
					routing := &fakeRouting{ranges: splitMap}

					parentTokens, want := scriptPages(fc, fullRange, "p", before, false)
					fc.script(fullRange, gone())
					leftTokens, leftDocs := scriptPages(fc, leftRange, "l", left, true)
					rightTokens, rightDocs := scriptPages(fc, rightRange, "r", right, true)
					want = append(want, leftDocs...)
					want = append(want, rightDocs...)

					opts, _ := testOptions(10)
					dp := New(fc, routing, fullRange, "", opts)
					got, _, err := collect(t, ctx, dp)
					require.NoError(t, err)
					assert.Equal(t, want, got)

					// The children start where the parent stopped.
					inherited := ""
					if before > 0 {
						inherited = parentTokens[before-1]
					}
					assert.Equal(t, append([]string{""}, parentTokens...), fc.sentTokens(fullRange))
					wantLeft := append([]string{inherited}, leftTokens...)
					wantRight := append([]string{inherited}, rightTokens...)
					assert.Equal(t, wantLeft[:max(left, 1)], fc.sentTokens(leftRange))
					assert.Equal(t, wantRight[:max(right, 1)], fc.sentTokens(rightRange))

					assert.Equal(t, SplitDetected, dp.State())
					assert.Equal(t, 1, routing.lookups)
					assert.Equal(t, 1, routing.forced)
				})
			}
		}
	}
}

func TestSplitMoveNext(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient().
		script(fullRange, page("p-1", docs("p", 1)), gone())
	routing := &fakeRouting{ranges: splitMap}
	opts, _ := testOptions(10)
	opts.Top = 5
	dp := New(fc, routing, fullRange, "start", opts)

	res, err := dp.MoveNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.Response)
	assert.Equal(t, "start", res.Response.RequestToken)
	assert.Equal(t, "p-1", res.Response.ContinuationToken())
	assert.Equal(t, fullRange, res.Response.FeedRange)

	res, err = dp.MoveNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, res.Response)
	require.Len(t, res.Children, 2)
	for i, child := range res.Children {
		assert.Equal(t, []key.Range{leftRange, rightRange}[i], child.FeedRange())
		assert.Equal(t, "p-1", child.Token())
		assert.Equal(t, 4, child.Fetcher().Remaining())
		assert.Equal(t, Active, child.State())
	}

	_, err = dp.MoveNext(ctx)
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, vterrors.Code(err))
}

func TestSplitClipsChildren(t *testing.T) {
	ctx := context.Background()
	parent := key.NewRange("40", "C0")
	fc := newFakeClient().
		script(parent, gone()).
		script(key.NewRange("40", "80"), page("", docs("x", 1))).
		script(key.NewRange("80", "C0"), page("", docs("y", 1)))
	routing := &fakeRouting{ranges: []key.PartitionKeyRange{
		{ID: "5", Min: "", Max: "80"},
		{ID: "6", Min: "80", Max: "FF"},
	}}
	opts, _ := testOptions(10)
	got, ranges, err := collect(t, ctx, New(fc, routing, parent, "", opts))
	require.NoError(t, err)
	assert.Equal(t, append(docs("x", 1), docs("y", 1)...), got)
	assert.Equal(t, []key.Range{key.NewRange("40", "80"), key.NewRange("80", "C0")}, ranges)
}

func TestNestedSplit(t *testing.T) {
	ctx := context.Background()
	a, b, c := key.NewRange("", "40"), key.NewRange("40", "80"), key.NewRange("80", "FF")
	fc := newFakeClient().
		script(fullRange, page("p-1", docs("p", 1)), gone()).
		script(key.NewRange("", "80"), page("l-1", docs("l", 1)), gone()).
		script(a, page("", docs("a", 1))).
		script(b, page("", docs("b", 1))).
		script(c, page("", docs("c", 1)))
	routing := &fakeRouting{ranges: []key.PartitionKeyRange{
		{ID: "1", Min: "", Max: "80"},
		{ID: "2", Min: "80", Max: "FF"},
	}}
	opts, _ := testOptions(10)
	dp := New(fc, routing, fullRange, "", opts)

	var got []json.RawMessage
	for resp, err := range dp.Produce(ctx) {
		require.NoError(t, err)
		got = append(got, resp.Documents()...)
		if resp.FeedRange == key.NewRange("", "80") {
			// The left child splits again after its first page.
			routing.mu.Lock()
			routing.ranges = []key.PartitionKeyRange{
				{ID: "3", Min: "", Max: "40"},
				{ID: "4", Min: "40", Max: "80"},
				{ID: "2", Min: "80", Max: "FF"},
			}
			routing.mu.Unlock()
		}
	}
	want := append(docs("p", 1), docs("l", 1)...)
	want = append(want, docs("a", 1)...)
	want = append(want, docs("b", 1)...)
	want = append(want, docs("c", 1)...)
	assert.Equal(t, want, got)
	assert.Equal(t, []string{"l-1"}, fc.sentTokens(a))
	assert.Equal(t, []string{"l-1"}, fc.sentTokens(b))
	assert.Equal(t, []string{"p-1"}, fc.sentTokens(c))
	assert.Equal(t, 2, routing.lookups)
}

func TestSplitResolveFailure(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient().script(fullRange, gone())

	routing := &fakeRouting{err: errors.New("routing service down")}
	opts, _ := testOptions(10)
	_, _, err := collect(t, ctx, New(fc, routing, fullRange, "", opts))
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, vterrors.Code(err))

	// A routing map with a hole is not a valid replacement.
	fc.script(fullRange, gone())
	routing = &fakeRouting{ranges: []key.PartitionKeyRange{{ID: "1", Min: "", Max: "80"}}}
	_, _, err = collect(t, ctx, New(fc, routing, fullRange, "", opts))
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, vterrors.Code(err))
	assert.Contains(t, err.Error(), "does not cover")

	fc.script(fullRange, gone())
	_, _, err = collect(t, ctx, New(fc, nil, fullRange, "", opts))
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, vterrors.Code(err))
}

func TestSplitToSameRange(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient().script(fullRange, page("p-1", docs("p", 1)), gone(), gone(), gone())
	routing := &fakeRouting{ranges: []key.PartitionKeyRange{{ID: "0", Min: "", Max: "FF"}}}
	opts, _ := testOptions(10)

	got, _, err := collect(t, ctx, New(fc, routing, fullRange, "", opts))
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, vterrors.Code(err))
	assert.Contains(t, err.Error(), "still serves it")
	assert.Len(t, got, 1)
	assert.Equal(t, 1, routing.forced)
	assert.Equal(t, []string{"", "p-1"}, fc.sentTokens(fullRange))

	// A clipped child of a wider range is the same range too.
	half := key.NewRange("", "80")
	fc = newFakeClient().script(half, gone(), gone())
	routing = &fakeRouting{ranges: []key.PartitionKeyRange{{ID: "0", Min: "", Max: "FF"}}}
	_, _, err = collect(t, ctx, New(fc, routing, half, "", opts))
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, vterrors.Code(err))
	assert.Equal(t, 1, routing.forced)
	assert.Equal(t, []string{""}, fc.sentTokens(half))
}

func TestThrottleRetry(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient().script(fullRange,
		page("t1", docs("a", 2)),
		throttled(20*time.Millisecond),
		throttled(0),
		page("", docs("b", 2)),
	)
	opts, rs := testOptions(10)
	got, _, err := collect(t, ctx, New(fc, nil, fullRange, "", opts))
	require.NoError(t, err)
	assert.Equal(t, append(docs("a", 2), docs("b", 2)...), got)
	// The token is sent unchanged until the request goes through.
	assert.Equal(t, []string{"", "t1", "t1", "t1"}, fc.sentTokens(fullRange))
	assert.Equal(t, []time.Duration{20 * time.Millisecond, time.Millisecond}, rs.waits)
}

func TestThrottleRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	for range 10 {
		fc.script(fullRange, throttled(0))
	}
	opts, rs := testOptions(10)
	opts.Policy = retry.ThrottlingPolicy{MaxRetries: 4, DefaultRetryAfter: time.Millisecond}
	dp := New(fc, nil, fullRange, "t0", opts)

	_, err := dp.MoveNext(ctx)
	require.Error(t, err)
	var exhausted *retry.RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 5, exhausted.Attempts)
	assert.Equal(t, codes.ResourceExhausted, vterrors.Code(err))
	assert.Equal(t, []string{"t0", "t0", "t0", "t0", "t0"}, fc.sentTokens(fullRange))
	assert.Len(t, rs.waits, 4)
	assert.Equal(t, Failed, dp.State())
	assert.Equal(t, "t0", dp.Token())

	// The error sticks.
	_, err2 := dp.MoveNext(ctx)
	assert.Equal(t, err, err2)
	assert.Len(t, fc.sentTokens(fullRange), 5)
}

func TestFatalError(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient().script(fullRange,
		page("t1", docs("a", 1)),
		fakeStep{err: retry.NewStatusError(http.StatusInternalServerError, 0, "boom")},
	)
	opts, rs := testOptions(10)
	got, _, err := collect(t, ctx, New(fc, &fakeRouting{}, fullRange, "", opts))
	require.Error(t, err)
	assert.Equal(t, codes.Internal, vterrors.Code(err))
	assert.Equal(t, docs("a", 1), got)
	assert.Empty(t, rs.waits)
}

func TestRequestTimeout(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient().script(fullRange, fakeStep{block: true})
	opts, _ := testOptions(10)
	opts.RequestTimeout = 10 * time.Millisecond
	dp := New(fc, nil, fullRange, "", opts)
	_, err := dp.MoveNext(ctx)
	require.Error(t, err)
	assert.Equal(t, codes.DeadlineExceeded, vterrors.Code(err))
	assert.Equal(t, Failed, dp.State())
}

func TestCanceledRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fc := newFakeClient().script(fullRange, throttled(time.Hour), page("", nil))
	opts, _ := testOptions(10)
	opts.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	dp := New(fc, nil, fullRange, "t0", opts)
	_, err := dp.MoveNext(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, fc.sentTokens(fullRange), 1)
	assert.Equal(t, "t0", dp.Token())
}

func TestProduceTop(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient().
		script(fullRange, page("p-1", docs("p", 2)), gone()).
		script(leftRange, page("l-1", docs("l", 2)), page("", docs("m", 2))).
		script(rightRange, page("", docs("r", 2)))
	opts, _ := testOptions(10)
	opts.Top = 5
	got, _, err := collect(t, ctx, New(fc, &fakeRouting{ranges: splitMap}, fullRange, "", opts))
	require.NoError(t, err)
	want := append(docs("p", 2), docs("l", 2)...)
	want = append(want, docs("m", 1)...)
	assert.Equal(t, want, got)
	assert.Equal(t, []int{5, 3, 3, 1}, fc.sentSizes())
	assert.Empty(t, fc.sentTokens(rightRange))
}

func TestProduceOnce(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient().script(fullRange, page("", docs("a", 1)))
	opts, _ := testOptions(10)
	dp := New(fc, nil, fullRange, "", opts)
	_, _, err := collect(t, ctx, dp)
	require.NoError(t, err)
	_, err = dp.MoveNext(ctx)
	assert.Equal(t, io.EOF, err)

	_, _, err = collect(t, ctx, dp)
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, vterrors.Code(err))
}

func TestProduceStopEarly(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient().script(fullRange, page("t1", docs("a", 1)), page("", docs("b", 1)))
	opts, _ := testOptions(10)
	dp := New(fc, nil, fullRange, "", opts)
	for range dp.Produce(ctx) {
		break
	}
	assert.Equal(t, []string{""}, fc.sentTokens(fullRange))
	assert.Equal(t, "t1", dp.Token())
}
