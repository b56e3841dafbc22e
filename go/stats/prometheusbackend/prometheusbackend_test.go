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
package prometheusbackend

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"vitess.io/docfeed/go/stats"
)

func TestPublishCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	be := New("docfeed", reg)

	c := stats.NewCounter("", "Pages fetched")
	c.Add(3)
	be.publishPrometheusMetric("FeedPagesFetched", c)

	labeled := stats.NewCountersWithSingleLabel("", "Requests failed", "Code")
	labeled.Add("Unavailable", 2)
	be.publishPrometheusMetric("FeedRequestErrors", labeled)

	expected := `
# HELP docfeed_feed_pages_fetched Pages fetched
# TYPE docfeed_feed_pages_fetched counter
docfeed_feed_pages_fetched 3
# HELP docfeed_feed_request_errors Requests failed
# TYPE docfeed_feed_request_errors counter
docfeed_feed_request_errors{code="Unavailable"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
}

func TestPublishHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	be := New("docfeed", reg)

	h := stats.NewHistogram("", "Request latency in milliseconds", []int64{10, 100})
	h.Add(5)
	h.Add(50)
	h.Add(500)
	be.publishPrometheusMetric("FeedRequestLatency", h)

	expected := `
# HELP docfeed_feed_request_latency Request latency in milliseconds
# TYPE docfeed_feed_request_latency histogram
docfeed_feed_request_latency_bucket{le="10"} 1
docfeed_feed_request_latency_bucket{le="100"} 2
docfeed_feed_request_latency_bucket{le="+Inf"} 3
docfeed_feed_request_latency_sum 555
docfeed_feed_request_latency_count 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
}

func TestBuildPromName(t *testing.T) {
	be := New("docfeed", prometheus.NewRegistry())
	require.Equal(t, "docfeed_splits_detected", be.buildPromName("SplitsDetected"))
	require.Equal(t, "docfeed_splits_detected", be.buildPromName("docfeed_SplitsDetected"))
}
