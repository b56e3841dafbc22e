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

package crosspartition

import (
	"container/heap"
	"context"
	"encoding/json"
	"io"
	"slices"

	"golang.org/x/sync/errgroup"

	"vitess.io/docfeed/go/vt/feed/continuation"
	"vitess.io/docfeed/go/vt/feed/producer"
)

// mergeSlot is an active range of an ordered query: the rows of its current
// page not yet returned, and the position of the last row consumed.
type mergeSlot struct {
	dp   *producer.DocumentProducer
	rows []producer.Row

	// token fetched the current page. Once a row of that page was
	// consumed, lastItems is its sort key and skip counts the consumed
	// rows of the page with that key.
	token     string
	started   bool
	lastItems []json.RawMessage
	skip      int

	// resume drops the rows a previous run of the query already returned.
	// It is cleared by the first row kept.
	resume *continuation.OrderByToken
	// skipped counts the rows equal to resume's sort key dropped so far.
	skipped int
}

func (s *mergeSlot) consume(order producer.SortOrder, items []json.RawMessage) {
	if s.started && order.Compare(items, s.lastItems) == 0 {
		s.skip++
		return
	}
	s.started, s.lastItems, s.skip = true, items, 1
}

// load makes page the current page of s and drops the rows already
// returned before a resume.
func (s *mergeSlot) load(order producer.SortOrder, resp *producer.FeedResponse) {
	s.token, s.started, s.lastItems, s.skip = resp.RequestToken, false, nil, 0
	rows := resp.Rows
	for s.resume != nil && len(rows) > 0 {
		c := order.Compare(rows[0].OrderByItems, s.resume.Items())
		if c > 0 || (c == 0 && s.skipped >= s.resume.SkipCount) {
			s.resume = nil
			break
		}
		if c == 0 {
			s.skipped++
		}
		s.consume(order, rows[0].OrderByItems)
		rows = rows[1:]
	}
	s.rows = rows
}

func (s *mergeSlot) orderByToken() continuation.OrderByToken {
	if s.resume != nil {
		ot := *s.resume
		ot.CompositeToken.Range = s.dp.FeedRange()
		return ot
	}
	ot := continuation.OrderByToken{
		CompositeToken: continuation.CompositeToken{Token: s.token, Range: s.dp.FeedRange()},
	}
	if s.started {
		ot.OrderByItems = continuation.NewOrderByItems(s.lastItems)
		ot.SkipCount = s.skip
	}
	return ot
}

// slotHeap orders slots by the sort key of their first row, then by range.
type slotHeap struct {
	order producer.SortOrder
	slots []*mergeSlot
}

func (h *slotHeap) Len() int { return len(h.slots) }

func (h *slotHeap) Less(i, j int) bool {
	a, b := h.slots[i], h.slots[j]
	if c := h.order.Compare(a.rows[0].OrderByItems, b.rows[0].OrderByItems); c != 0 {
		return c < 0
	}
	return a.dp.FeedRange().Compare(b.dp.FeedRange()) < 0
}

func (h *slotHeap) Swap(i, j int) { h.slots[i], h.slots[j] = h.slots[j], h.slots[i] }

func (h *slotHeap) Push(x any) { h.slots = append(h.slots, x.(*mergeSlot)) }

func (h *slotHeap) Pop() any {
	n := len(h.slots)
	s := h.slots[n-1]
	h.slots[n-1] = nil
	h.slots = h.slots[:n-1]
	return s
}

// orderedMerge returns the rows of all ranges by sort key. Each range
// buffers one page; only the range whose page ran out is read again.
type orderedMerge struct {
	c     *Coordinator
	order producer.SortOrder
	heap  slotHeap

	// pending slots have not fetched their first page.
	pending []*mergeSlot
	// stalled slots were being read when the query failed.
	stalled []*mergeSlot
}

func (c *Coordinator) newOrderedMerge(ctx context.Context, source string) (*orderedMerge, error) {
	m := &orderedMerge{c: c, order: c.query.OrderBy, heap: slotHeap{order: c.query.OrderBy}}
	if source == "" {
		ranges, err := c.initialRanges(ctx)
		if err != nil {
			return nil, err
		}
		for _, rng := range ranges {
			m.pending = append(m.pending, &mergeSlot{dp: c.newProducer(rng, "")})
		}
		return m, nil
	}

	tokens, err := continuation.ParseOrderBySet(source)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(tokens, func(a, b continuation.OrderByToken) int {
		return a.CompositeToken.Range.Compare(b.CompositeToken.Range)
	})
	for _, ot := range tokens {
		s := &mergeSlot{
			dp:    c.newProducer(ot.CompositeToken.Range, ot.CompositeToken.Token),
			token: ot.CompositeToken.Token,
		}
		if len(ot.OrderByItems) > 0 {
			s.resume = &ot
		}
		m.pending = append(m.pending, s)
	}
	return m, nil
}

// fill reads s until it has a row. It returns the slots that replace s: s
// itself, its descendants after a split, or none once s is exhausted. On
// error the returned slots are still resumable.
func (m *orderedMerge) fill(ctx context.Context, s *mergeSlot) ([]*mergeSlot, error) {
	for len(s.rows) == 0 {
		res, err := m.c.moveNext(ctx, s.dp)
		switch {
		case err == io.EOF:
			return nil, nil
		case err != nil:
			return []*mergeSlot{s}, err
		}
		if res.Children != nil {
			// Each child applies the whole skip count. Ties of the resume key
			// that the split spread over several children may be dropped.
			children := make([]*mergeSlot, 0, len(res.Children))
			for _, dp := range res.Children {
				child := &mergeSlot{dp: dp, token: dp.Token(), resume: s.resume, skipped: s.skipped}
				children = append(children, child)
			}
			return m.fillAll(ctx, children)
		}
		s.load(m.order, res.Response)
	}
	return []*mergeSlot{s}, nil
}

// fillAll fills slots concurrently.
func (m *orderedMerge) fillAll(ctx context.Context, slots []*mergeSlot) ([]*mergeSlot, error) {
	g, gctx := errgroup.WithContext(ctx)
	if m.c.cfg.MaxConcurrency > 0 {
		g.SetLimit(m.c.cfg.MaxConcurrency)
	}
	filled := make([][]*mergeSlot, len(slots))
	for i, s := range slots {
		g.Go(func() error {
			var err error
			filled[i], err = m.fill(gctx, s)
			return err
		})
	}
	err := g.Wait()
	return slices.Concat(filled...), err
}

func (m *orderedMerge) nextPage(ctx context.Context) (*Page, error) {
	c := m.c
	if m.pending != nil {
		slots, err := m.fillAll(ctx, m.pending)
		m.pending = nil
		if err != nil {
			m.stalled = slots
			return nil, err
		}
		m.heap.slots = slots
		heap.Init(&m.heap)
	}

	if m.heap.Len() == 0 || c.top == 0 {
		return nil, io.EOF
	}
	page := &Page{}
	for len(page.Documents) < c.cfg.MaxItemCount && m.heap.Len() > 0 && c.top != 0 {
		s := m.heap.slots[0]
		row := s.rows[0]
		s.rows = s.rows[1:]
		s.consume(m.order, row.OrderByItems)
		docs, err := c.accept([]json.RawMessage{row.Document})
		page.Documents = append(page.Documents, docs...)
		if err != nil {
			return page, err
		}
		if len(s.rows) > 0 {
			heap.Fix(&m.heap, 0)
			continue
		}

		heap.Pop(&m.heap)
		if c.top == 0 {
			break
		}
		slots, err := m.fill(ctx, s)
		if err != nil {
			m.stalled = append(m.stalled, slots...)
			return page, err
		}
		for _, ns := range slots {
			heap.Push(&m.heap, ns)
		}
	}
	return page, nil
}

func (m *orderedMerge) tokenSet() (string, error) {
	slots := slices.Concat(m.pending, m.heap.slots, m.stalled)
	slices.SortFunc(slots, func(a, b *mergeSlot) int { return a.dp.FeedRange().Compare(b.dp.FeedRange()) })
	tokens := make([]continuation.OrderByToken, 0, len(slots))
	for _, s := range slots {
		tokens = append(tokens, s.orderByToken())
	}
	return continuation.EncodeOrderBySet(tokens)
}
