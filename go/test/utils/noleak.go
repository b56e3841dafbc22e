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

package utils

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// Goroutines that outlive tests: glog flushing and the throttled
// logger's reset timer.
var ignoredGoroutines = []goleak.Option{
	goleak.IgnoreTopFunction("github.com/golang/glog.(*fileSink).flushDaemon"),
	goleak.IgnoreTopFunction("github.com/golang/glog.(*loggingT).flushDaemon"),
	goleak.IgnoreTopFunction("vitess.io/docfeed/go/vt/logutil.(*ThrottledLogger).log.func1"),
	goleak.IgnoreTopFunction("testing.tRunner.func1"),
}

// LeakCheckContext returns a Context that is cancelled when the test ends.
// A test that passed then fails if goroutines it started, such as the
// background requests of a feed query, are still running shortly after.
func LeakCheckContext(t testing.TB) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		if t.Failed() {
			return
		}
		if err := findLeaks(5, 100*time.Millisecond); err != nil {
			t.Fatal(err)
		}
	})
	return ctx
}

// findLeaks looks for leaked goroutines up to attempts times, waiting
// between attempts for goroutines that are still returning.
func findLeaks(attempts int, wait time.Duration) error {
	var err error
	for range attempts {
		if err = goleak.Find(ignoredGoroutines...); err == nil {
			return nil
		}
		time.Sleep(wait)
	}
	return err
}
