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

package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/vt/feed/producer"
	"vitess.io/docfeed/go/vt/vterrors"
)

func writeFixture(t *testing.T, header string, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("documents:\n")
	for i := range n {
		fmt.Fprintf(&b, "- {id: doc-%02d, total: %d}\n", i, (i*7)%n)
	}
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := New()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func lines(s string) []string {
	return strings.Fields(s)
}

func totals(docs []string) []int64 {
	out := make([]int64, len(docs))
	for i, d := range docs {
		out[i] = gjson.Get(d, "total").Int()
	}
	return out
}

func TestUnorderedQuery(t *testing.T) {
	fixture := writeFixture(t, "collection: orders\npartitions: 3\n", 20)
	stdout, stderr, err := execute(t, "--fixture", fixture, "--max-item-count", "4")
	require.NoError(t, err)
	docs := lines(stdout)
	assert.Len(t, docs, 20)
	assert.NotContains(t, stderr, "continuation:")
}

func TestOrderedQueryResume(t *testing.T) {
	fixture := writeFixture(t, `collection: orders
partitions: 3
orderBy:
- path: total
  descending: true
splits:
- partition: "1"
  at: "80"
  afterRequests: 1
`, 30)

	stdout, stderr, err := execute(t, "--fixture", fixture, "--max-item-count", "4", "--pages", "2")
	require.NoError(t, err)
	first := lines(stdout)
	require.Len(t, first, 8)
	_, token, ok := strings.Cut(strings.TrimSpace(stderr), "continuation: ")
	require.True(t, ok, stderr)

	// The fixture is loaded again, so the split happens in this run.
	stdout, stderr, err = execute(t, "--fixture", fixture, "--max-item-count", "4", "--continuation", token)
	require.NoError(t, err)
	assert.NotContains(t, stderr, "continuation:")
	all := append(first, lines(stdout)...)
	require.Len(t, all, 30)
	got := totals(all)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1], got[i])
	}
}

func TestTopAndDistinct(t *testing.T) {
	fixture := writeFixture(t, "collection: orders\npartitions: 2\norderBy:\n- path: total\n", 12)
	stdout, _, err := execute(t, "--fixture", fixture, "--top", "5")
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, totals(lines(stdout)))

	_, _, err = execute(t, "--fixture", fixture, "--distinct", "sometimes")
	assert.ErrorContains(t, err, "unknown distinct type")
}

func TestConfigFile(t *testing.T) {
	fixture := writeFixture(t, "collection: orders\npartitions: 2\n", 10)
	config := filepath.Join(t.TempDir(), "feedquery.yaml")
	require.NoError(t, os.WriteFile(config, []byte(fmt.Sprintf("fixture: %s\nmax-item-count: 3\npages: 1\n", fixture)), 0o644))

	stdout, stderr, err := execute(t, "--config", config)
	require.NoError(t, err)
	assert.Len(t, lines(stdout), 3)
	assert.Contains(t, stderr, "continuation:")

	// The command line wins over the config file.
	stdout, _, err = execute(t, "--config", config, "--pages", "0")
	require.NoError(t, err)
	assert.Len(t, lines(stdout), 10)

	t.Setenv("FEEDQUERY_MAX_ITEM_COUNT", "0")
	_, _, err = execute(t, "--config", config)
	assert.ErrorContains(t, err, "--max-item-count must be >= 1")
}

func TestMissingFixture(t *testing.T) {
	_, _, err := execute(t)
	assert.ErrorContains(t, err, "--fixture is required")
}

func TestParseFixture(t *testing.T) {
	fx, err := ParseFixture([]byte(`
collection: orders
orderBy:
- path: a
- path: b
  descending: true
latency: 1ms
documents:
- {id: x, a: 1, b: [1, 2]}
`))
	require.NoError(t, err)
	assert.Equal(t, 1, fx.Partitions)
	assert.Equal(t, producer.SortOrder{producer.Ascending, producer.Descending}, fx.SortOrder())
	assert.JSONEq(t, `{"id":"x","a":1,"b":[1,2]}`, string(fx.Documents[0]))
	c, err := fx.Build()
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	for _, in := range []string{
		"partitions: 2\n",
		"collection: orders\nunknown: 1\n",
		"collection: orders\npartitions: -1\n",
		"collection: orders\norderBy:\n- descending: true\n",
	} {
		_, err := ParseFixture([]byte(in))
		require.Error(t, err, in)
		assert.Equal(t, codes.InvalidArgument, vterrors.Code(err), in)
	}

	fx, err = ParseFixture([]byte("collection: orders\nlatency: soon\n"))
	require.NoError(t, err)
	_, err = fx.Build()
	assert.ErrorContains(t, err, "invalid fixture latency")
}
