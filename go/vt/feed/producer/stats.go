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
	"time"

	"vitess.io/docfeed/go/stats"
	"vitess.io/docfeed/go/vt/logutil"
)

var (
	pagesFetched     = stats.NewCounter("FeedPagesFetched", "Pages returned by partition backends")
	documentsFetched = stats.NewCounter("FeedDocumentsFetched", "Documents returned by partition backends")
	splitsDetected   = stats.NewCounter("FeedSplitsDetected", "Feed ranges replaced by their children after a split")
	throttleRetries  = stats.NewCounter("FeedThrottleRetries", "Throttled page requests that were sent again")
	retriesExhausted = stats.NewCounter("FeedRetriesExhausted", "Page requests that were still throttled after their retry budget")
	requestErrors    = stats.NewCountersWithSingleLabel("FeedRequestErrors", "Page requests that failed the query, by error code", "Code")
	requestLatency   = stats.NewHistogram("FeedRequestLatency", "Page request latency in milliseconds", []int64{1, 5, 10, 50, 100, 500, 1000, 5000})

	throttleLog = logutil.NewThrottledLogger("FeedThrottle", 5*time.Second)
)
