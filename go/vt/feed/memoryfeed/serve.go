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
package memoryfeed

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/timer"
	"vitess.io/docfeed/go/vt/feed/producer"
	"vitess.io/docfeed/go/vt/feed/retry"
	"vitess.io/docfeed/go/vt/key"
	"vitess.io/docfeed/go/vt/vterrors"
)

// DefaultPageSize is the page size of requests that do not ask for one.
const DefaultPageSize = 100

// Request is a page request built by a Collection.
type Request struct {
	Range        key.Range
	Token        string
	MaxItemCount int
}

// cursor is the position of the last document a page returned. Positions
// do not depend on partition boundaries, so a token stays valid for the
// ranges that replace the range it was issued for.
type cursor struct {
	EPK string `json:"e"`
	Seq int64  `json:"s"`
	// Items are the raw sort key values, "" for undefined.
	Items []string `json:"k,omitempty"`
}

func encodeCursor(e entry, ordered bool) string {
	cur := cursor{EPK: e.epk, Seq: e.seq}
	if ordered {
		cur.Items = make([]string, len(e.items))
		for i, it := range e.items {
			cur.Items[i] = string(it)
		}
	}
	b, _ := json.Marshal(cur)
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeCursor(token string, ordered bool) (*entry, error) {
	if token == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	var cur cursor
	if err := json.Unmarshal(b, &cur); err != nil {
		return nil, err
	}
	e := &entry{epk: cur.EPK, seq: cur.Seq}
	if ordered {
		for _, it := range cur.Items {
			if it == "" {
				e.items = append(e.items, nil)
			} else {
				e.items = append(e.items, json.RawMessage(it))
			}
		}
	}
	return e, nil
}

// BuildRequest implements producer.Client.
func (c *Collection) BuildRequest(rng key.Range, token string, maxItemCount int) (producer.Request, error) {
	if rng.IsEmpty() {
		return nil, vterrors.Errorf(codes.InvalidArgument, "empty range %v", rng)
	}
	return &Request{Range: rng, Token: token, MaxItemCount: maxItemCount}, nil
}

// GetPartitionKeyRanges implements srvtopo.RangeSource.
func (c *Collection) GetPartitionKeyRanges(ctx context.Context, collection string) ([]key.PartitionKeyRange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if collection != c.name {
		return nil, vterrors.Errorf(codes.NotFound, "collection %s does not exist", collection)
	}
	return c.Ranges(), nil
}

// Execute implements producer.Client.
func (c *Collection) Execute(ctx context.Context, req producer.Request) (*producer.Page, error) {
	r, ok := req.(*Request)
	if !ok {
		return nil, vterrors.Errorf(codes.InvalidArgument, "unexpected request type %T", req)
	}
	if err := timer.SleepContext(ctx, c.latency); err != nil {
		return nil, err
	}
	if c.limiter != nil && !c.limiter.Allow() {
		res := c.limiter.Reserve()
		delay := res.Delay()
		res.Cancel()
		c.record(r, "", http.StatusTooManyRequests)
		return nil, retry.NewThrottledError(delay, fmt.Sprintf("request rate to %s is too large", c.name))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.routeLocked(r.Range)
	if p == nil {
		c.recordLocked(r, "", http.StatusGone)
		return nil, retry.NewGoneError(retry.SubStatusPartitionKeyRangeGone, fmt.Sprintf("range %v of %s is not served by a single partition", r.Range, c.name))
	}
	if len(p.faults) > 0 {
		err := p.faults[0]
		p.faults = p.faults[1:]
		status := http.StatusInternalServerError
		var st retry.Status
		if errors.As(err, &st) {
			status = st.StatusCode()
		}
		c.recordLocked(r, p.ID, status)
		return nil, err
	}

	ordered := len(c.orderPaths) > 0
	after, err := decodeCursor(r.Token, ordered)
	if err != nil {
		c.recordLocked(r, p.ID, http.StatusBadRequest)
		return nil, retry.NewStatusError(http.StatusBadRequest, 0, fmt.Sprintf("invalid continuation token %q: %v", r.Token, err))
	}

	size := r.MaxItemCount
	if size <= 0 {
		size = DefaultPageSize
	}
	var candidates []entry
	for _, e := range c.entries {
		if r.Range.Contains(e.epk) && (after == nil || c.compare(e, *after) > 0) {
			candidates = append(candidates, e)
		}
	}
	if ordered {
		slices.SortFunc(candidates, c.compare)
	}

	page := &producer.Page{StatusCode: http.StatusOK}
	n := min(size, len(candidates))
	for _, e := range candidates[:n] {
		doc := e.doc
		if ordered {
			doc = rewrite(e)
		}
		page.Documents = append(page.Documents, doc)
	}
	if n < len(candidates) {
		page.ContinuationToken = encodeCursor(candidates[n-1], ordered)
	}
	page.ActivityID = uuid.NewString()
	page.RequestCharge = 1 + 0.5*float64(n)

	c.recordLocked(r, p.ID, http.StatusOK)
	p.served++
	if p.splitAt != "" && p.served >= p.splitDue {
		at := p.splitAt
		p.splitAt = ""
		if _, err := c.splitLocked(p.ID, at); err != nil {
			return nil, err
		}
	}
	return page, nil
}

// routeLocked returns the partition that contains rng, nil if none does.
func (c *Collection) routeLocked(rng key.Range) *partition {
	for _, p := range c.partitions {
		if p.Range().Intersect(rng) == rng {
			return p
		}
	}
	return nil
}

// compare orders entries by sort key for ordered collections, then by
// position.
func (c *Collection) compare(a, b entry) int {
	if len(c.orderPaths) > 0 {
		if r := c.order.Compare(a.items, b.items); r != 0 {
			return r
		}
	}
	return comparePosition(a, b)
}

type rewrittenItem struct {
	Item json.RawMessage `json:"item,omitempty"`
}

type rewritten struct {
	OrderByItems []rewrittenItem `json:"orderByItems"`
	Payload      json.RawMessage `json:"payload"`
}

func rewrite(e entry) json.RawMessage {
	rw := rewritten{Payload: e.doc}
	for _, it := range e.items {
		rw.OrderByItems = append(rw.OrderByItems, rewrittenItem{Item: it})
	}
	b, _ := json.Marshal(rw)
	return b
}

func (c *Collection) record(r *Request, id string, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordLocked(r, id, status)
}

func (c *Collection) recordLocked(r *Request, id string, status int) {
	c.requests = append(c.requests, RequestRecord{
		Range:        r.Range,
		Token:        r.Token,
		MaxItemCount: r.MaxItemCount,
		PartitionID:  id,
		Status:       status,
	})
}
