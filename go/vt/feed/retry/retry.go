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
// Package retry decides what happens to a page request that failed: it is
// sent again after a delay, it is handed to split handling, or it fails the
// query.
package retry

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/grpc/codes"
)

// Kind is the class of a failed request.
type Kind int

const (
	// Fatal errors fail the query.
	Fatal Kind = iota
	// Throttled requests are sent again, unchanged, after a delay.
	Throttled
	// PartitionGone requests were routed to a range that was split. They are
	// never retried as is: the range is replaced by its children.
	PartitionGone
)

func (k Kind) String() string {
	switch k {
	case Fatal:
		return "fatal"
	case Throttled:
		return "throttled"
	case PartitionGone:
		return "partition_gone"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Decision is the classification of an error.
type Decision struct {
	Kind Kind
	// RetryAfter is the delay asked for by the backend of a throttled
	// request. Zero if it gave none.
	RetryAfter time.Duration
}

// Status is implemented by errors that carry a backend status.
type Status interface {
	StatusCode() int
	SubStatusCode() int
	RetryAfter() time.Duration
}

// Classify returns the decision for err. Only the status and sub-status
// codes are looked at, never the message.
func Classify(err error) Decision {
	var st Status
	if err == nil || !errors.As(err, &st) {
		return Decision{Kind: Fatal}
	}
	switch st.StatusCode() {
	case http.StatusTooManyRequests:
		return Decision{Kind: Throttled, RetryAfter: st.RetryAfter()}
	case http.StatusGone:
		if IsPartitionGone(st.SubStatusCode()) {
			return Decision{Kind: PartitionGone}
		}
	}
	return Decision{Kind: Fatal}
}

// IsPartitionGone returns true for the sub-status codes that come with a
// 410 when the range was split or moved.
func IsPartitionGone(subStatus int) bool {
	switch subStatus {
	case SubStatusPartitionKeyRangeGone, SubStatusCompletingSplit, SubStatusCompletingPartitionMigration:
		return true
	}
	return false
}

// Policy bounds how long throttled requests are retried. A Policy is shared
// by the producers of a query; every logical request gets its own Budget.
type Policy interface {
	Begin() Budget
}

// Budget tracks the retries of one logical request.
type Budget interface {
	// Next is called after each throttled attempt. It returns how long to
	// wait before the next attempt, or a *RetriesExhaustedError.
	Next(d Decision, cause error) (time.Duration, error)
}

// ThrottlingPolicy retries throttled requests up to MaxRetries times as long
// as the total delay stays within MaxWaitTime. A zero MaxWaitTime does not
// bound the delay. DefaultRetryAfter is used when the backend gave no delay.
type ThrottlingPolicy struct {
	MaxRetries        int
	MaxWaitTime       time.Duration
	DefaultRetryAfter time.Duration
}

// DefaultThrottlingPolicy returns the policy used when none is configured.
func DefaultThrottlingPolicy() ThrottlingPolicy {
	return ThrottlingPolicy{
		MaxRetries:        9,
		MaxWaitTime:       30 * time.Second,
		DefaultRetryAfter: 5 * time.Millisecond,
	}
}

// Begin implements Policy.
func (p ThrottlingPolicy) Begin() Budget {
	return &throttleBudget{policy: p}
}

type throttleBudget struct {
	policy   ThrottlingPolicy
	attempts int
	waited   time.Duration
}

func (b *throttleBudget) Next(d Decision, cause error) (time.Duration, error) {
	b.attempts++
	wait := d.RetryAfter
	if wait <= 0 {
		wait = b.policy.DefaultRetryAfter
	}
	if b.attempts > b.policy.MaxRetries ||
		(b.policy.MaxWaitTime > 0 && b.waited+wait > b.policy.MaxWaitTime) {
		return 0, &RetriesExhaustedError{Attempts: b.attempts, Waited: b.waited, Cause: cause}
	}
	b.waited += wait
	return wait, nil
}

// RetriesExhaustedError is returned when a request was still throttled after
// its retry budget was spent. It wraps the last throttling error.
type RetriesExhaustedError struct {
	Attempts int
	Waited   time.Duration
	Cause    error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts and %v of waiting: %v", e.Attempts, e.Waited, e.Cause)
}

// Unwrap returns the last throttling error.
func (e *RetriesExhaustedError) Unwrap() error { return e.Cause }

// ErrorCode implements the vterrors code interface.
func (e *RetriesExhaustedError) ErrorCode() codes.Code { return codes.ResourceExhausted }
