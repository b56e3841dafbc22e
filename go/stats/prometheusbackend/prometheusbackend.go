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
// Package prometheusbackend exports the variables of the stats package
// to Prometheus.
package prometheusbackend

import (
	"expvar"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vitess.io/docfeed/go/stats"
	"vitess.io/docfeed/go/vt/log"
)

// PromBackend implements PullBackend using Prometheus as the backing metrics storage.
type PromBackend struct {
	namespace  string
	registerer prometheus.Registerer
}

// Init initializes the Prometheus backend with the given namespace and
// registers the /metrics handler on mux. A nil mux means http.DefaultServeMux.
func Init(namespace string, mux *http.ServeMux) {
	if mux == nil {
		mux = http.DefaultServeMux
	}
	mux.Handle("/metrics", promhttp.Handler())
	be := New(namespace, prometheus.DefaultRegisterer)
	stats.Register(be.publishPrometheusMetric)
}

// New returns a backend registering collectors on the given registerer.
func New(namespace string, registerer prometheus.Registerer) *PromBackend {
	return &PromBackend{namespace: namespace, registerer: registerer}
}

// publishPrometheusMetric is used to publish the metric to Prometheus.
func (be *PromBackend) publishPrometheusMetric(name string, v expvar.Var) {
	switch st := v.(type) {
	case *stats.Gauge:
		be.newMetric(st, name, prometheus.GaugeValue, func() float64 { return float64(st.Get()) })
	case *stats.Counter:
		be.newMetric(st, name, prometheus.CounterValue, func() float64 { return float64(st.Get()) })
	case *stats.GaugesWithSingleLabel:
		be.newCountersWithSingleLabel(&st.CountersWithSingleLabel, name, prometheus.GaugeValue)
	case *stats.CountersWithSingleLabel:
		be.newCountersWithSingleLabel(st, name, prometheus.CounterValue)
	case *stats.Histogram:
		be.newHistogram(st, name)
	default:
		log.Infof("Not exporting to Prometheus an unsupported metric type of %T: %s", st, name)
	}
}

func (be *PromBackend) newCountersWithSingleLabel(c *stats.CountersWithSingleLabel, name string, vt prometheus.ValueType) {
	be.registerer.MustRegister(&countersWithSingleLabelCollector{
		counters: c,
		desc: prometheus.NewDesc(
			be.buildPromName(name),
			c.Help(),
			[]string{stats.GetSnakeName(c.Label())},
			nil),
		vt: vt,
	})
}

func (be *PromBackend) newHistogram(h *stats.Histogram, name string) {
	be.registerer.MustRegister(&histogramCollector{
		h:       h,
		cutoffs: h.Cutoffs(),
		desc: prometheus.NewDesc(
			be.buildPromName(name),
			h.Help(),
			nil,
			nil),
	})
}

func (be *PromBackend) newMetric(v stats.Variable, name string, vt prometheus.ValueType, f func() float64) {
	be.registerer.MustRegister(&metricFuncCollector{
		f: f,
		desc: prometheus.NewDesc(
			be.buildPromName(name),
			v.Help(),
			nil,
			nil),
		vt: vt,
	})
}

// buildPromName specifies the namespace as a prefix to the metric name
func (be *PromBackend) buildPromName(name string) string {
	s := strings.TrimPrefix(stats.GetSnakeName(name), be.namespace+"_")
	return prometheus.BuildFQName("", be.namespace, s)
}
