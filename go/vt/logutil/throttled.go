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

package logutil

import (
	"fmt"
	"sync"
	"time"

	"vitess.io/docfeed/go/vt/log"
)

// ThrottledLogger will allow logging of messages but won't spam the
// logs. Messages dropped inside an interval are counted and the count is
// reported with the next message that gets through.
type ThrottledLogger struct {
	// set at construction
	name        string
	maxInterval time.Duration

	// mu protects the following members
	mu           sync.Mutex
	lastlogTime  time.Time
	skippedCount int

	// now is replaced in tests.
	now func() time.Time
}

// NewThrottledLogger will create a ThrottledLogger with the given
// name and throttling interval.
func NewThrottledLogger(name string, maxInterval time.Duration) *ThrottledLogger {
	return &ThrottledLogger{
		name:        name,
		maxInterval: maxInterval,
		now:         time.Now,
	}
}

type logFunc func(string, ...any)

// log emits the message if the interval has passed and reports whether it did.
func (tl *ThrottledLogger) log(logF logFunc, format string, v ...any) bool {
	now := tl.now()

	tl.mu.Lock()
	defer tl.mu.Unlock()
	if now.Sub(tl.lastlogTime) < tl.maxInterval {
		tl.skippedCount++
		return false
	}
	tl.lastlogTime = now
	msg := fmt.Sprintf(format, v...)
	if tl.skippedCount > 0 {
		logF("%v: %v (skipped %v log messages)", tl.name, msg, tl.skippedCount)
		tl.skippedCount = 0
		return true
	}
	logF("%v: %v", tl.name, msg)
	return true
}

// Infof logs an info if not throttled.
func (tl *ThrottledLogger) Infof(format string, v ...any) bool {
	return tl.log(log.Infof, format, v...)
}

// Warningf logs a warning if not throttled.
func (tl *ThrottledLogger) Warningf(format string, v ...any) bool {
	return tl.log(log.Warningf, format, v...)
}

// Errorf logs an error if not throttled.
func (tl *ThrottledLogger) Errorf(format string, v ...any) bool {
	return tl.log(log.Errorf, format, v...)
}
