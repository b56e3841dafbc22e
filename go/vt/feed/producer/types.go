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
// Package producer reads the pages of one feed range of a partitioned
// collection.
//
// A DocumentProducer owns a Fetcher bound to one range. When the backend
// reports that the range is gone because it was split, the producer asks the
// routing cache for the ranges that replaced it and hands back one child
// producer per replacement range. Children resume from the last continuation
// token their parent observed, so no row is skipped or read twice across the
// split.
package producer

import (
	"context"
	"encoding/json"

	"vitess.io/docfeed/go/vt/key"
)

// Request is an opaque page request built by a Client.
type Request any

// Client builds and executes page requests. Implementations wrap the
// transport and the query planner, which decides the query text a range
// receives.
type Client interface {
	// BuildRequest returns the request for the next page of rng. An empty
	// token asks for the first page.
	BuildRequest(rng key.Range, token string, maxItemCount int) (Request, error)
	// Execute sends the request. Backend failures should be returned as
	// errors carrying a status, see retry.Status.
	Execute(ctx context.Context, req Request) (*Page, error)
}

// RoutingCache returns the partition key ranges of a collection.
type RoutingCache interface {
	// GetOverlappingRanges returns, in key order, the current ranges that
	// overlap rng. forceRefresh bypasses any cached routing map.
	GetOverlappingRanges(ctx context.Context, collection string, rng key.Range, forceRefresh bool) ([]key.PartitionKeyRange, error)
}

// Page is one response of a partition backend.
type Page struct {
	Documents []json.RawMessage
	// ContinuationToken is empty when the range has no more pages.
	ContinuationToken string
	StatusCode        int
	RequestCharge     float64
	ActivityID        string
}

// Row is a document of an ordered query together with its sort key values
// and the range that returned it.
type Row struct {
	Document json.RawMessage
	// OrderByItems holds one value per sort key. A nil value is undefined.
	OrderByItems []json.RawMessage
	FeedRange    key.Range
}

// FeedResponse is a page tagged with the range that produced it.
type FeedResponse struct {
	Page *Page
	// FeedRange is the range of the producer that fetched the page.
	FeedRange key.Range
	// RequestToken is the continuation token the page was requested with.
	RequestToken string
	// Rows is set by ordered producers, in page order.
	Rows []Row
}

// Documents returns the documents of the page.
func (fr *FeedResponse) Documents() []json.RawMessage {
	if fr.Rows != nil {
		docs := make([]json.RawMessage, len(fr.Rows))
		for i, r := range fr.Rows {
			docs[i] = r.Document
		}
		return docs
	}
	return fr.Page.Documents
}

// ContinuationToken returns the token that resumes the range after this
// page. Empty when the range is exhausted.
func (fr *FeedResponse) ContinuationToken() string {
	return fr.Page.ContinuationToken
}
