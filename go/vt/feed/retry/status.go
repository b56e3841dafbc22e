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
package retry

import (
	"fmt"
	"net/http"
	"time"

	"google.golang.org/grpc/codes"
)

// Backend sub-status codes that come with http.StatusGone when the range a
// request was routed to no longer exists.
const (
	SubStatusPartitionKeyRangeGone        = 1002
	SubStatusCompletingSplit              = 1007
	SubStatusCompletingPartitionMigration = 1008
)

// StatusError is an error returned by a partition backend. It carries the
// backend status code, an optional sub-status code and, for throttled
// requests, the delay the backend asked for.
type StatusError struct {
	Status     int
	SubStatus  int
	RetryDelay time.Duration
	Message    string
}

// NewStatusError returns a StatusError.
func NewStatusError(status, subStatus int, message string) *StatusError {
	return &StatusError{Status: status, SubStatus: subStatus, Message: message}
}

// NewThrottledError returns the error of a request rejected with 429 that may
// be sent again after retryAfter.
func NewThrottledError(retryAfter time.Duration, message string) *StatusError {
	return &StatusError{Status: http.StatusTooManyRequests, RetryDelay: retryAfter, Message: message}
}

// NewGoneError returns the error of a request sent to a range that was split
// or moved.
func NewGoneError(subStatus int, message string) *StatusError {
	return &StatusError{Status: http.StatusGone, SubStatus: subStatus, Message: message}
}

func (e *StatusError) Error() string {
	if e.SubStatus != 0 {
		return fmt.Sprintf("status %d.%d: %s", e.Status, e.SubStatus, e.Message)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// StatusCode returns the backend status code.
func (e *StatusError) StatusCode() int { return e.Status }

// SubStatusCode returns the backend sub-status code, 0 if there is none.
func (e *StatusError) SubStatusCode() int { return e.SubStatus }

// RetryAfter returns the delay asked for by the backend.
func (e *StatusError) RetryAfter() time.Duration { return e.RetryDelay }

// ErrorCode maps the backend status to an error code.
func (e *StatusError) ErrorCode() codes.Code {
	switch e.Status {
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusRequestTimeout:
		return codes.DeadlineExceeded
	case http.StatusConflict:
		return codes.AlreadyExists
	case http.StatusGone, http.StatusServiceUnavailable:
		return codes.Unavailable
	case http.StatusPreconditionFailed:
		return codes.FailedPrecondition
	case http.StatusRequestEntityTooLarge:
		return codes.OutOfRange
	case http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case http.StatusInternalServerError:
		return codes.Internal
	}
	return codes.Unknown
}
