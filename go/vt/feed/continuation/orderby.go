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
package continuation

import (
	"encoding/json"
)

// OrderByItem is one sort key value of a row. A nil Item is an undefined
// value and is left out of the JSON form.
type OrderByItem struct {
	Item json.RawMessage `json:"item,omitempty"`
}

// OrderByToken is the resume point of one range of an ordered query: the
// range's cursor, the sort key of the last row returned, and how many rows
// with that same sort key the range already returned.
type OrderByToken struct {
	CompositeToken CompositeToken `json:"compositeToken"`
	OrderByItems   []OrderByItem  `json:"orderByItems,omitempty"`
	SkipCount      int            `json:"skipCount"`
}

// Items returns the sort key values.
func (ot OrderByToken) Items() []json.RawMessage {
	items := make([]json.RawMessage, len(ot.OrderByItems))
	for i, it := range ot.OrderByItems {
		items[i] = it.Item
	}
	return items
}

// NewOrderByItems wraps sort key values, nil meaning undefined.
func NewOrderByItems(items []json.RawMessage) []OrderByItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]OrderByItem, len(items))
	for i, it := range items {
		out[i] = OrderByItem{Item: it}
	}
	return out
}
