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
	"context"
	"io"
	"slices"

	"github.com/gammazero/deque"

	"vitess.io/docfeed/go/vt/feed/continuation"
	"vitess.io/docfeed/go/vt/feed/producer"
)

// rangeSlot is an active range of an unordered query with the result of its
// request in flight.
type rangeSlot struct {
	dp *producer.DocumentProducer
	// resume is the token after the last page returned to the caller.
	resume string

	done chan struct{}
	res  producer.Result
	err  error
}

// concatenation returns the pages of the ranges in key order. Every range
// has one request in flight; the head range is the one being returned.
type concatenation struct {
	c     *Coordinator
	slots deque.Deque[*rangeSlot]
}

func (c *Coordinator) newConcatenation(ctx context.Context, source string) (*concatenation, error) {
	conc := &concatenation{c: c}
	if source == "" {
		ranges, err := c.initialRanges(ctx)
		if err != nil {
			return nil, err
		}
		for _, rng := range ranges {
			conc.slots.PushBack(&rangeSlot{dp: c.newProducer(rng, "")})
		}
		return conc, nil
	}

	tokens, err := continuation.ParseCompositeSet(source)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(tokens, func(a, b continuation.CompositeToken) int { return a.Range.Compare(b.Range) })
	for _, ct := range tokens {
		conc.slots.PushBack(&rangeSlot{dp: c.newProducer(ct.Range, ct.Token), resume: ct.Token})
	}
	return conc, nil
}

// start sends the first request of every range.
func (conc *concatenation) start() {
	for i := 0; i < conc.slots.Len(); i++ {
		conc.fetch(conc.slots.At(i))
	}
}

// fetch sends the next request of s in the background.
func (conc *concatenation) fetch(s *rangeSlot) {
	c := conc.c
	s.done = make(chan struct{})
	s.res, s.err = producer.Result{}, nil
	started := c.goBackground(func() {
		defer close(s.done)
		s.res, s.err = c.moveNext(c.ctx, s.dp)
	})
	if !started {
		s.err = errClosed
		close(s.done)
	}
}

func (conc *concatenation) nextPage(ctx context.Context) (*Page, error) {
	c := conc.c
	var page *Page
	for conc.slots.Len() > 0 && c.top != 0 {
		s := conc.slots.Front()
		select {
		case <-s.done:
		case <-ctx.Done():
			return page, ctx.Err()
		}
		switch {
		case s.err == io.EOF:
			conc.slots.PopFront()
			continue
		case s.err != nil:
			return page, s.err
		}

		if children := s.res.Children; children != nil {
			conc.slots.PopFront()
			for i := len(children) - 1; i >= 0; i-- {
				child := &rangeSlot{dp: children[i], resume: children[i].Token()}
				conc.slots.PushFront(child)
				conc.fetch(child)
			}
			continue
		}

		resp := s.res.Response
		s.resume = resp.ContinuationToken()
		if s.dp.State() == producer.Exhausted {
			conc.slots.PopFront()
		} else {
			conc.fetch(s)
		}
		if page == nil {
			page = &Page{}
		}
		docs, err := c.accept(resp.Documents())
		page.Documents = append(page.Documents, docs...)
		if err != nil {
			return page, err
		}
		if len(page.Documents) > 0 {
			return page, nil
		}
	}
	if page == nil {
		return nil, io.EOF
	}
	return page, nil
}

func (conc *concatenation) tokenSet() (string, error) {
	tokens := make([]continuation.CompositeToken, 0, conc.slots.Len())
	for i := 0; i < conc.slots.Len(); i++ {
		s := conc.slots.At(i)
		tokens = append(tokens, continuation.CompositeToken{Token: s.resume, Range: s.dp.FeedRange()})
	}
	return continuation.EncodeCompositeSet(tokens)
}
