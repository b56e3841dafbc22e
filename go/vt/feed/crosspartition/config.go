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
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/vt/feed/retry"
	"vitess.io/docfeed/go/vt/vterrors"
)

// Config holds the settings shared by all queries of a process.
type Config struct {
	// MaxItemCount is the page size asked of each range, and the page size
	// of ordered queries.
	MaxItemCount int
	// MaxConcurrency caps the requests in flight for one query. Zero
	// allows one per active range.
	MaxConcurrency int
	// RequestTimeout bounds each page request. Zero means no timeout.
	RequestTimeout time.Duration

	ThrottleMaxRetries        int
	ThrottleMaxWait           time.Duration
	ThrottleDefaultRetryAfter time.Duration
}

// NewDefaultConfig returns the configuration used when no flag is set.
func NewDefaultConfig() *Config {
	policy := retry.DefaultThrottlingPolicy()
	return &Config{
		MaxItemCount:              100,
		MaxConcurrency:            0,
		RequestTimeout:            0,
		ThrottleMaxRetries:        policy.MaxRetries,
		ThrottleMaxWait:           policy.MaxWaitTime,
		ThrottleDefaultRetryAfter: policy.DefaultRetryAfter,
	}
}

// RegisterFlags binds the configuration to fs.
func (cfg *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.IntVar(&cfg.MaxItemCount, "max-item-count", cfg.MaxItemCount, "Maximum number of documents asked of a partition per request, and page size of ordered queries.")
	fs.IntVar(&cfg.MaxConcurrency, "max-concurrency", cfg.MaxConcurrency, "Maximum number of page requests in flight per query. 0 allows one per active partition range.")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Timeout of a single page request. 0 disables the timeout.")
	fs.IntVar(&cfg.ThrottleMaxRetries, "throttle-max-retries", cfg.ThrottleMaxRetries, "Number of times a throttled page request is sent again before the query fails.")
	fs.DurationVar(&cfg.ThrottleMaxWait, "throttle-max-wait", cfg.ThrottleMaxWait, "Total time a page request may wait on throttling before the query fails. 0 removes the limit.")
	fs.DurationVar(&cfg.ThrottleDefaultRetryAfter, "throttle-default-retry-after", cfg.ThrottleDefaultRetryAfter, "Wait before retrying a throttled request whose response carries no retry-after.")
}

// Verify returns an error if the configuration cannot run a query.
func (cfg *Config) Verify() error {
	if cfg.MaxItemCount < 1 {
		return vterrors.Errorf(codes.InvalidArgument, "--max-item-count must be >= 1 (specified value: %d)", cfg.MaxItemCount)
	}
	if cfg.MaxConcurrency < 0 {
		return vterrors.Errorf(codes.InvalidArgument, "--max-concurrency must be >= 0 (specified value: %d)", cfg.MaxConcurrency)
	}
	if cfg.RequestTimeout < 0 {
		return vterrors.Errorf(codes.InvalidArgument, "--request-timeout must be >= 0 (specified value: %v)", cfg.RequestTimeout)
	}
	if cfg.ThrottleMaxRetries < 0 {
		return vterrors.Errorf(codes.InvalidArgument, "--throttle-max-retries must be >= 0 (specified value: %d)", cfg.ThrottleMaxRetries)
	}
	if cfg.ThrottleMaxWait < 0 {
		return vterrors.Errorf(codes.InvalidArgument, "--throttle-max-wait must be >= 0 (specified value: %v)", cfg.ThrottleMaxWait)
	}
	if cfg.ThrottleDefaultRetryAfter < 0 {
		return vterrors.Errorf(codes.InvalidArgument, "--throttle-default-retry-after must be >= 0 (specified value: %v)", cfg.ThrottleDefaultRetryAfter)
	}
	return nil
}

// Policy returns the retry policy of throttled requests.
func (cfg *Config) Policy() retry.ThrottlingPolicy {
	return retry.ThrottlingPolicy{
		MaxRetries:        cfg.ThrottleMaxRetries,
		MaxWaitTime:       cfg.ThrottleMaxWait,
		DefaultRetryAfter: cfg.ThrottleDefaultRetryAfter,
	}
}
