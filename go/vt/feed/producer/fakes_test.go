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
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/vt/feed/retry"
	"vitess.io/docfeed/go/vt/key"
	"vitess.io/docfeed/go/vt/vterrors"
)

// fakeRequest is what fakeClient builds and executes.
type fakeRequest struct {
	rng   key.Range
	token string
	size  int
}

// fakeStep is one scripted response of a range.
type fakeStep struct {
	page  *Page
	err   error
	block bool
}

// fakeClient replies to each range with its scripted steps, in order, and
// records every request.
type fakeClient struct {
	mu    sync.Mutex
	steps map[key.Range][]fakeStep
	sent  []fakeRequest
}

func newFakeClient() *fakeClient {
	return &fakeClient{steps: make(map[key.Range][]fakeStep)}
}

func (fc *fakeClient) script(rng key.Range, steps ...fakeStep) *fakeClient {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.steps[rng] = append(fc.steps[rng], steps...)
	return fc
}

func (fc *fakeClient) BuildRequest(rng key.Range, token string, maxItemCount int) (Request, error) {
	return fakeRequest{rng: rng, token: token, size: maxItemCount}, nil
}

func (fc *fakeClient) Execute(ctx context.Context, req Request) (*Page, error) {
	r := req.(fakeRequest)
	fc.mu.Lock()
	fc.sent = append(fc.sent, r)
	steps := fc.steps[r.rng]
	if len(steps) == 0 {
		fc.mu.Unlock()
		return nil, vterrors.Errorf(codes.Internal, "unexpected request for %v with token %q", r.rng, r.token)
	}
	step := steps[0]
	fc.steps[r.rng] = steps[1:]
	fc.mu.Unlock()

	if step.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if step.err != nil {
		return nil, step.err
	}
	// Copy so that truncation by the Fetcher does not change the script.
	page := *step.page
	return &page, nil
}

// sentTokens returns the tokens sent for rng, in order.
func (fc *fakeClient) sentTokens(rng key.Range) []string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	var tokens []string
	for _, r := range fc.sent {
		if r.rng == rng {
			tokens = append(tokens, r.token)
		}
	}
	return tokens
}

func (fc *fakeClient) sentSizes() []int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	var sizes []int
	for _, r := range fc.sent {
		sizes = append(sizes, r.size)
	}
	return sizes
}

// fakeRouting serves a fixed routing map and counts lookups.
type fakeRouting struct {
	mu      sync.Mutex
	ranges  []key.PartitionKeyRange
	err     error
	lookups int
	forced  int
}

func (fr *fakeRouting) GetOverlappingRanges(_ context.Context, _ string, rng key.Range, forceRefresh bool) ([]key.PartitionKeyRange, error) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.lookups++
	if forceRefresh {
		fr.forced++
	}
	if fr.err != nil {
		return nil, fr.err
	}
	return key.Overlapping(fr.ranges, rng), nil
}

func docs(prefix string, n int) []json.RawMessage {
	out := make([]json.RawMessage, n)
	for i := range out {
		out[i] = json.RawMessage(fmt.Sprintf(`{"id":"%s-%d"}`, prefix, i))
	}
	return out
}

func page(token string, documents []json.RawMessage) fakeStep {
	return fakeStep{page: &Page{Documents: documents, ContinuationToken: token, StatusCode: 200, RequestCharge: 1}}
}

func throttled(after time.Duration) fakeStep {
	return fakeStep{err: retry.NewThrottledError(after, "request rate is large")}
}

func gone() fakeStep {
	return fakeStep{err: retry.NewGoneError(retry.SubStatusPartitionKeyRangeGone, "partition key range is gone")}
}

// recordSleep replaces the retry wait and records the delays.
type recordSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (rs *recordSleep) sleep(ctx context.Context, d time.Duration) error {
	rs.mu.Lock()
	rs.waits = append(rs.waits, d)
	rs.mu.Unlock()
	return ctx.Err()
}

func testOptions(maxItemCount int) (Options, *recordSleep) {
	rs := &recordSleep{}
	return Options{
		FetchOptions: FetchOptions{MaxItemCount: maxItemCount, Top: -1},
		Collection:   "coll",
		Policy:       retry.ThrottlingPolicy{MaxRetries: 3, DefaultRetryAfter: time.Millisecond},
		sleep:        rs.sleep,
	}, rs
}
