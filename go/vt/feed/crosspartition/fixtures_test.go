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
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"vitess.io/docfeed/go/vt/feed/memoryfeed"
	"vitess.io/docfeed/go/vt/srvtopo"
)

// seededDoc is a document inserted by seed.
type seededDoc struct {
	id  string
	n   int64
	epk string
}

// seed inserts count documents {"id":"doc-NNN","n":i%mod}.
func seed(t *testing.T, c *memoryfeed.Collection, count, mod int) []seededDoc {
	t.Helper()
	docs := make([]seededDoc, 0, count)
	for i := range count {
		id := fmt.Sprintf("doc-%03d", i)
		require.NoError(t, c.Insert(json.RawMessage(fmt.Sprintf(`{"id":%q,"n":%d}`, id, i%mod))))
		docs = append(docs, seededDoc{
			id:  id,
			n:   int64(i % mod),
			epk: memoryfeed.EffectivePartitionKey([]byte(fmt.Sprintf("%q", id))),
		})
	}
	return docs
}

// keyOrder returns the ids in the order an unordered query returns them.
func keyOrder(docs []seededDoc) []string {
	docs = slices.Clone(docs)
	slices.SortFunc(docs, func(a, b seededDoc) int { return strings.Compare(a.epk, b.epk) })
	return idsOf(docs)
}

// sortOrder returns the ids by n, ties in key order; desc reverses n.
func sortOrder(docs []seededDoc, desc bool) []string {
	docs = slices.Clone(docs)
	slices.SortFunc(docs, func(a, b seededDoc) int {
		c := cmp.Compare(a.n, b.n)
		if desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.epk, b.epk)
	})
	return idsOf(docs)
}

func idsOf(docs []seededDoc) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.id
	}
	return ids
}

func ids(docs []json.RawMessage) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = gjson.GetBytes(d, "id").String()
	}
	return out
}

func testConfig(pageSize int) *Config {
	cfg := NewDefaultConfig()
	cfg.MaxItemCount = pageSize
	cfg.ThrottleDefaultRetryAfter = time.Millisecond
	return cfg
}

func testQuery(c *memoryfeed.Collection) Query {
	return Query{
		Collection: c.Name(),
		Client:     c,
		Routing:    srvtopo.NewRoutingCache(c, ""),
	}
}

// readPages returns the documents of up to n pages, and the continuation
// token after the last one.
func readPages(t *testing.T, ctx context.Context, co *Coordinator, n int) ([]json.RawMessage, string) {
	t.Helper()
	var docs []json.RawMessage
	token := ""
	for range n {
		page, err := co.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		docs = append(docs, page.Documents...)
		token = page.ContinuationToken
	}
	return docs, token
}
