// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import "github.com/prometheus/client_golang/prometheus"

// StatsCollector exposes the relay's counter set as a
// [prometheus.Collector], so the daemon can serve the counters on a
// /metrics endpoint next to the control protocol's GET_STATS view.
type StatsCollector struct {
	stats *Stats
	descs map[string]*prometheus.Desc
}

var _ prometheus.Collector = &StatsCollector{}

// NewStatsCollector wraps the counter set into a collector. The prefix
// namespaces the metric names (e.g., "rtpproxy").
func NewStatsCollector(prefix string, stats *Stats, constLabels prometheus.Labels) *StatsCollector {
	sc := &StatsCollector{
		stats: stats,
		descs: make(map[string]*prometheus.Desc),
	}
	for _, c := range stats.Counters() {
		sc.descs[c.Name] = prometheus.NewDesc(
			prometheus.BuildFQName(prefix, "", c.Name),
			c.Descr,
			nil,
			constLabels,
		)
	}
	return sc
}

// Describe implements [prometheus.Collector].
func (sc *StatsCollector) Describe(descs chan<- *prometheus.Desc) {
	for _, d := range sc.descs {
		descs <- d
	}
}

// Collect implements [prometheus.Collector].
func (sc *StatsCollector) Collect(metrics chan<- prometheus.Metric) {
	for _, c := range sc.stats.Counters() {
		metrics <- prometheus.MustNewConstMetric(
			sc.descs[c.Name],
			prometheus.CounterValue,
			float64(c.Value()),
		)
	}
}
