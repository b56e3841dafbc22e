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
	"encoding/json"
	"os"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"sigs.k8s.io/yaml"

	"vitess.io/docfeed/go/vt/feed/memoryfeed"
	"vitess.io/docfeed/go/vt/feed/producer"
	"vitess.io/docfeed/go/vt/vterrors"
)

// Fixture describes an in-memory collection.
//
//	collection: orders
//	partitions: 3
//	orderBy:
//	- path: total
//	  descending: true
//	splits:
//	- partition: "1"
//	  at: "80"
//	  afterRequests: 2
//	documents:
//	- {id: a, total: 12}
type Fixture struct {
	Collection string `json:"collection"`
	Partitions int    `json:"partitions,omitempty"`
	// PartitionKey is the path of the partition key, "id" if empty.
	PartitionKey string `json:"partitionKey,omitempty"`
	// OrderBy makes the query ordered on these paths.
	OrderBy []OrderByField `json:"orderBy,omitempty"`
	// RateLimit throttles the collection to that many requests per second.
	RateLimit float64 `json:"rateLimit,omitempty"`
	Burst     int     `json:"burst,omitempty"`
	// Latency delays every request, e.g. "5ms".
	Latency   string            `json:"latency,omitempty"`
	Splits    []ScheduledSplit  `json:"splits,omitempty"`
	Documents []json.RawMessage `json:"documents"`
}

// OrderByField is one sort key of an ordered query.
type OrderByField struct {
	Path       string `json:"path"`
	Descending bool   `json:"descending,omitempty"`
}

// ScheduledSplit splits a partition while the query runs.
type ScheduledSplit struct {
	Partition     string `json:"partition"`
	At            string `json:"at"`
	AfterRequests int    `json:"afterRequests,omitempty"`
}

// LoadFixture reads a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, vterrors.Wrapf(err, "read fixture")
	}
	return ParseFixture(data)
}

// ParseFixture parses a YAML or JSON fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var fx Fixture
	if err := yaml.UnmarshalStrict(data, &fx); err != nil {
		return nil, vterrors.Errorf(codes.InvalidArgument, "invalid fixture: %v", err)
	}
	if fx.Collection == "" {
		return nil, vterrors.New(codes.InvalidArgument, "fixture has no collection name")
	}
	if fx.Partitions == 0 {
		fx.Partitions = 1
	}
	if fx.Partitions < 0 {
		return nil, vterrors.Errorf(codes.InvalidArgument, "fixture has %d partitions", fx.Partitions)
	}
	for _, f := range fx.OrderBy {
		if f.Path == "" {
			return nil, vterrors.New(codes.InvalidArgument, "fixture has an orderBy field without a path")
		}
	}
	return &fx, nil
}

// SortOrder returns the sort order of the query, nil for an unordered one.
func (fx *Fixture) SortOrder() producer.SortOrder {
	var order producer.SortOrder
	for _, f := range fx.OrderBy {
		if f.Descending {
			order = append(order, producer.Descending)
		} else {
			order = append(order, producer.Ascending)
		}
	}
	return order
}

// Build creates the collection and inserts the documents.
func (fx *Fixture) Build() (*memoryfeed.Collection, error) {
	var opts []memoryfeed.Option
	if fx.PartitionKey != "" {
		opts = append(opts, memoryfeed.WithPartitionKey(fx.PartitionKey))
	}
	if len(fx.OrderBy) > 0 {
		paths := make([]string, len(fx.OrderBy))
		for i, f := range fx.OrderBy {
			paths[i] = f.Path
		}
		opts = append(opts, memoryfeed.WithOrderBy(fx.SortOrder(), paths...))
	}
	if fx.RateLimit > 0 {
		opts = append(opts, memoryfeed.WithRateLimit(rate.Limit(fx.RateLimit), max(fx.Burst, 1)))
	}
	if fx.Latency != "" {
		d, err := time.ParseDuration(fx.Latency)
		if err != nil {
			return nil, vterrors.Errorf(codes.InvalidArgument, "invalid fixture latency %q: %v", fx.Latency, err)
		}
		opts = append(opts, memoryfeed.WithLatency(d))
	}

	c := memoryfeed.New(fx.Collection, fx.Partitions, opts...)
	if err := c.Insert(fx.Documents...); err != nil {
		return nil, err
	}
	for _, s := range fx.Splits {
		if err := c.SplitAfter(s.Partition, s.At, s.AfterRequests); err != nil {
			return nil, err
		}
	}
	return c, nil
}
