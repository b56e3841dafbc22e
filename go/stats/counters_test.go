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

package stats

import (
	"expvar"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounter(t *testing.T) {
	v := NewCounter("", "help")
	v.Add(1)
	assert.Equal(t, int64(1), v.Get())
	assert.Equal(t, "1", v.String())
	v.Reset()
	assert.Equal(t, int64(0), v.Get())
	assert.Equal(t, "help", v.Help())
	assert.Panics(t, func() { v.Add(-1) })
}

func TestGauge(t *testing.T) {
	v := NewGauge("", "help")
	v.Set(5)
	v.Add(-2)
	assert.Equal(t, int64(3), v.Get())
}

func TestCountersWithSingleLabel(t *testing.T) {
	c := NewCountersWithSingleLabel("", "help", "Range", "[,FF)")
	assert.Equal(t, map[string]int64{"[,FF)": 0}, c.Counts())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Add("[,EE)", 2)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(20), c.Counts()["[,EE)"])
	assert.Equal(t, "Range", c.Label())

	c.ResetAll()
	assert.Empty(t, c.Counts())
}

func TestGaugesWithSingleLabel(t *testing.T) {
	g := NewGaugesWithSingleLabel("", "help", "Collection")
	g.Set("orders", 4)
	g.Add("orders", -1)
	assert.Equal(t, int64(3), g.Counts()["orders"])
	assert.Equal(t, `{"orders": 3}`, g.String())
}

func TestPublishHook(t *testing.T) {
	vg := varGroup{vars: make(map[string]expvar.Var)}
	v := &Counter{help: "early"}
	vg.vars["Early"] = v

	var seen []string
	vg.register(func(name string, _ expvar.Var) {
		seen = append(seen, name)
	})
	assert.Equal(t, []string{"Early"}, seen)
	assert.Nil(t, vg.vars)
	assert.Panics(t, func() { vg.register(func(string, expvar.Var) {}) })
}

func TestToSnakeCase(t *testing.T) {
	var snakeCaseTest = []struct{ input, output string }{
		{"Camel", "camel"},
		{"CamelCase", "camel_case"},
		{"FeedPagesFetched", "feed_pages_fetched"},
		{"CCamel", "c_camel"},
		{"camel-case", "camel_case"},
		{"0.0", "0_0"},
	}

	for _, tt := range snakeCaseTest {
		if got, want := toSnakeCase(tt.input), tt.output; got != want {
			t.Errorf("want '%s', got '%s'", want, got)
		}
	}
}
