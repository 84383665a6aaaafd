/*
Copyright (c) Facebook, Inc. and its affiliates.

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

package stats

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromExporter renders a Stats snapshot into a dedicated prometheus
// registry on every scrape, instead of keeping long-lived prometheus
// metric objects in sync with the counters by hand.
type PromExporter struct {
	stats    Stats
	registry *prometheus.Registry
	prefix   string
}

// NewPromExporter returns an exporter that prefixes every metric name
// with prefix (e.g. "rtprelay").
func NewPromExporter(s Stats, prefix string) *PromExporter {
	return &PromExporter{stats: s, registry: prometheus.NewRegistry(), prefix: prefix}
}

// Handler returns the http.Handler to mount at the scrape endpoint.
func (e *PromExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.registry = prometheus.NewRegistry()
		e.register(e.stats.Snapshot())
		promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

func (e *PromExporter) register(snap Snapshot) {
	e.gauge("sessions_created_total", float64(snap.SessionsCreated))
	e.gauge("active_sessions", float64(snap.ActiveSessions))
	e.gauge("task_queue_depth", float64(snap.TaskQueueDepth))
	e.gauge("reorder_drops_total", float64(snap.ReorderDrops))
	e.gauge("handshake_ok_total", float64(snap.HandshakeOK))

	e.gaugeVec("sessions_closed_total", "reason", snap.SessionsClosed)
	e.gaugeVec("handshake_fail_total", "reason", snap.HandshakeFail)
	e.gaugeVec("packets_in_total", "mm_type", snap.PacketsIn)
	e.gaugeVec("packets_out_total", "mm_type", snap.PacketsOut)
	e.gaugeVec("bytes_in_total", "mm_type", snap.BytesIn)
	e.gaugeVec("bytes_out_total", "mm_type", snap.BytesOut)
	e.gaugeVec("bucket_drops_total", "mm_type", snap.BucketDrops)
}

func (e *PromExporter) gauge(name string, v float64) {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: e.flattenKey(name)})
	g.Set(v)
	e.registry.MustRegister(g)
}

func (e *PromExporter) gaugeVec(name, label string, values map[string]int64) {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: e.flattenKey(name)}, []string{label})
	e.registry.MustRegister(vec)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vec.WithLabelValues(k).Set(float64(values[k]))
	}
}

// flattenKey joins the exporter prefix and a metric name into the
// underscore-separated form Prometheus metric names require.
func (e *PromExporter) flattenKey(name string) string {
	return strings.ReplaceAll(fmt.Sprintf("%s_%s", e.prefix, name), "-", "_")
}
