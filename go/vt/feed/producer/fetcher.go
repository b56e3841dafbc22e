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
	"net/http"

	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/vt/key"
	"vitess.io/docfeed/go/vt/vterrors"
)

// FetchOptions bound the pages a Fetcher asks for.
type FetchOptions struct {
	// MaxItemCount is the largest page the backend is asked for.
	MaxItemCount int
	// Top is the most rows the Fetcher returns in total, -1 for no limit.
	Top int
	// ChangeFeed makes a 304 response end the fetch instead of an empty
	// continuation token.
	ChangeFeed bool
}

// Fetcher is the page state of one range: the token of the next request and
// whether there are more pages to ask for. A Fetcher is not safe for
// concurrent use and NextPage must not be called again before it returns.
type Fetcher struct {
	client Client
	rng    key.Range
	opts   FetchOptions

	token   string
	fetched int
	done    bool
}

// NewFetcher returns a Fetcher reading rng from token. An empty token starts
// from the first page.
func NewFetcher(client Client, rng key.Range, token string, opts FetchOptions) *Fetcher {
	if opts.Top < 0 {
		opts.Top = -1
	}
	return &Fetcher{
		client: client,
		rng:    rng,
		opts:   opts,
		token:  token,
	}
}

// ShouldFetchMore returns false once the range is exhausted or Top rows were
// returned.
func (f *Fetcher) ShouldFetchMore() bool {
	if f.done {
		return false
	}
	return f.opts.Top == -1 || f.fetched < f.opts.Top
}

// PageSize returns the page size of the next request.
func (f *Fetcher) PageSize() int {
	if f.opts.Top == -1 {
		return f.opts.MaxItemCount
	}
	return min(f.opts.Top-f.fetched, f.opts.MaxItemCount)
}

// Token returns the token the next request is sent with: the initial token
// until a page was returned, then the token of the last page.
func (f *Fetcher) Token() string {
	return f.token
}

// Fetched returns the number of rows returned so far.
func (f *Fetcher) Fetched() int {
	return f.fetched
}

// Remaining returns how many rows may still be returned, -1 for no limit.
func (f *Fetcher) Remaining() int {
	if f.opts.Top == -1 {
		return -1
	}
	return f.opts.Top - f.fetched
}

// LimitRemaining lowers the number of rows that may still be returned to n.
// It never raises it.
func (f *Fetcher) LimitRemaining(n int) {
	if n < 0 {
		return
	}
	if r := f.Remaining(); r == -1 || n < r {
		f.opts.Top = f.fetched + n
	}
}

// NextPage sends one request. A failed request leaves the Fetcher unchanged,
// so calling NextPage again sends the same token.
func (f *Fetcher) NextPage(ctx context.Context) (*Page, error) {
	if !f.ShouldFetchMore() {
		return nil, vterrors.Errorf(codes.FailedPrecondition, "range %v has no more pages", f.rng)
	}
	req, err := f.client.BuildRequest(f.rng, f.token, f.PageSize())
	if err != nil {
		return nil, vterrors.Wrapf(err, "build request for range %v", f.rng)
	}
	page, err := f.client.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, vterrors.Errorf(codes.Internal, "range %v: backend returned no page", f.rng)
	}

	if f.opts.ChangeFeed && page.StatusCode == http.StatusNotModified {
		f.done = true
		if page.ContinuationToken != "" {
			f.token = page.ContinuationToken
		}
		return page, nil
	}

	if r := f.Remaining(); r != -1 && len(page.Documents) > r {
		page.Documents = page.Documents[:r]
	}
	f.fetched += len(page.Documents)
	if page.ContinuationToken == "" && !f.opts.ChangeFeed {
		f.done = true
	}
	if page.ContinuationToken != "" || !f.opts.ChangeFeed {
		f.token = page.ContinuationToken
	}
	return page, nil
}
