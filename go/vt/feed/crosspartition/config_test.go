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
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/vt/feed/retry"
	"vitess.io/docfeed/go/vt/vterrors"
)

func TestConfigFlags(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Equal(t, retry.DefaultThrottlingPolicy(), cfg.Policy())

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--max-item-count=25",
		"--max-concurrency=4",
		"--request-timeout=2s",
		"--throttle-max-retries=3",
		"--throttle-max-wait=1s",
		"--throttle-default-retry-after=10ms",
	}))
	require.NoError(t, cfg.Verify())
	assert.Equal(t, 25, cfg.MaxItemCount)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
	assert.Equal(t, retry.ThrottlingPolicy{
		MaxRetries:        3,
		MaxWaitTime:       time.Second,
		DefaultRetryAfter: 10 * time.Millisecond,
	}, cfg.Policy())
}

func TestConfigVerify(t *testing.T) {
	testcases := []struct {
		name   string
		modify func(*Config)
		want   string
	}{{
		name:   "page size",
		modify: func(cfg *Config) { cfg.MaxItemCount = 0 },
		want:   "--max-item-count must be >= 1",
	}, {
		name:   "concurrency",
		modify: func(cfg *Config) { cfg.MaxConcurrency = -1 },
		want:   "--max-concurrency must be >= 0",
	}, {
		name:   "timeout",
		modify: func(cfg *Config) { cfg.RequestTimeout = -time.Second },
		want:   "--request-timeout must be >= 0",
	}, {
		name:   "retries",
		modify: func(cfg *Config) { cfg.ThrottleMaxRetries = -1 },
		want:   "--throttle-max-retries must be >= 0",
	}, {
		name:   "wait",
		modify: func(cfg *Config) { cfg.ThrottleMaxWait = -time.Second },
		want:   "--throttle-max-wait must be >= 0",
	}, {
		name:   "retry after",
		modify: func(cfg *Config) { cfg.ThrottleDefaultRetryAfter = -time.Millisecond },
		want:   "--throttle-default-retry-after must be >= 0",
	}}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.modify(cfg)
			err := cfg.Verify()
			require.ErrorContains(t, err, tc.want)
			assert.Equal(t, codes.InvalidArgument, vterrors.Code(err))
		})
	}
}
