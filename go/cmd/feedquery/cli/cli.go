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

// Package cli is the feedquery command.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"google.golang.org/grpc/codes"

	"vitess.io/docfeed/go/stats/prometheusbackend"
	"vitess.io/docfeed/go/vt/feed/crosspartition"
	"vitess.io/docfeed/go/vt/feed/distinct"
	"vitess.io/docfeed/go/vt/log"
	"vitess.io/docfeed/go/vt/srvtopo"
	"vitess.io/docfeed/go/vt/vterrors"
)

type options struct {
	cfg *crosspartition.Config

	configFile   string
	fixture      string
	distinct     string
	top          int
	continuation string
	pages        int
	metricsAddr  string
}

// New returns the feedquery command.
func New() *cobra.Command {
	opts := &options{cfg: crosspartition.NewDefaultConfig()}
	cmd := &cobra.Command{
		Use:   "feedquery",
		Short: "feedquery runs a cross-partition query against a partitioned collection loaded from a fixture.",
		Long: "`feedquery` loads a YAML fixture into an in-memory partitioned collection and reads it the way a client reads a partitioned database: " +
			"page by page, across partition splits and throttling.\n\n" +
			"Documents are printed to stdout, one JSON document per line. " +
			"When --pages stops the query early, the continuation token is printed to stderr and can be passed back with --continuation.",
		Example: `feedquery --fixture orders.yaml --max-item-count 10 --pages 2
feedquery --fixture orders.yaml --distinct ordered --top 5 --continuation "$TOKEN"`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd.Flags(), opts.configFile); err != nil {
				return err
			}
			if err := log.Init(cmd.Flags()); err != nil {
				return err
			}
			if opts.fixture == "" {
				return vterrors.New(codes.InvalidArgument, "--fixture is required")
			}
			return opts.cfg.Verify()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
		PostRun: func(cmd *cobra.Command, args []string) {
			log.Flush()
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&opts.configFile, "config", "", "YAML or JSON file with flag values. Flags and FEEDQUERY_* environment variables take precedence.")
	fs.StringVar(&opts.fixture, "fixture", "", "YAML fixture describing the collection.")
	fs.StringVar(&opts.distinct, "distinct", "none", "Duplicate removal: none, ordered or unordered.")
	fs.IntVar(&opts.top, "top", 0, "Maximum number of documents to return. 0 returns all.")
	fs.StringVar(&opts.continuation, "continuation", "", "Continuation token to resume a previous run.")
	fs.IntVar(&opts.pages, "pages", 0, "Number of pages to read before stopping. 0 reads until the end.")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "If set, serve Prometheus metrics on this address while the query runs.")

	opts.cfg.RegisterFlags(fs)
	srvtopo.RegisterFlags(fs)
	log.RegisterFlags(fs)
	fs.AddGoFlagSet(flag.CommandLine)
	return cmd
}

// loadConfig sets the flags that were not given on the command line from
// the environment and the config file.
func loadConfig(fs *pflag.FlagSet, configFile string) error {
	v := viper.New()
	v.SetEnvPrefix("FEEDQUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return vterrors.Wrapf(err, "read config %s", configFile)
		}
	}
	if err := v.BindPFlags(fs); err != nil {
		return err
	}

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := fs.Set(f.Name, v.GetString(f.Name)); err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

func (opts *options) run(ctx context.Context, stdout, stderr io.Writer) error {
	fx, err := LoadFixture(opts.fixture)
	if err != nil {
		return err
	}
	coll, err := fx.Build()
	if err != nil {
		return err
	}
	dt, err := distinct.ParseType(opts.distinct)
	if err != nil {
		return err
	}
	if opts.metricsAddr != "" {
		stop, err := serveMetrics(opts.metricsAddr)
		if err != nil {
			return err
		}
		defer stop()
	}

	co, err := crosspartition.New(ctx, opts.cfg, crosspartition.Query{
		Collection:        coll.Name(),
		Client:            coll,
		Routing:           srvtopo.NewRoutingCache(coll, ""),
		OrderBy:           fx.SortOrder(),
		Distinct:          dt,
		Top:               opts.top,
		ContinuationToken: opts.continuation,
	})
	if err != nil {
		return err
	}
	defer co.Close()

	var (
		pages, docs int
		charge      float64
		token       string
	)
	for opts.pages == 0 || pages < opts.pages {
		page, err := co.Next(ctx)
		if err == io.EOF {
			token = ""
			break
		}
		if err != nil {
			if t, terr := co.ContinuationToken(); terr == nil {
				fmt.Fprintf(stderr, "continuation: %s\n", t)
			}
			return err
		}
		for _, doc := range page.Documents {
			fmt.Fprintf(stdout, "%s\n", doc)
		}
		pages++
		docs += len(page.Documents)
		charge += page.RequestCharge
		token = page.ContinuationToken
	}
	log.Infof("read %d documents in %d pages from %s, request charge %.1f", docs, pages, coll.Name(), charge)
	if token != "" && token != "[]" {
		fmt.Fprintf(stderr, "continuation: %s\n", token)
	}
	return nil
}

var (
	metricsOnce sync.Once
	metricsMux  *http.ServeMux
)

// serveMetrics serves /metrics on addr until the returned function is
// called.
func serveMetrics(addr string) (func(), error) {
	metricsOnce.Do(func() {
		metricsMux = http.NewServeMux()
		prometheusbackend.Init("feedquery", metricsMux)
	})
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, vterrors.Wrapf(err, "listen on %s", addr)
	}
	srv := &http.Server{Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warningf("metrics server: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
