/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector receives cache usage events.
type MetricsCollector interface {
	SetAmount(int)
	IncHits()
	IncMisses()
	AddEvictions(int)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	Namespace   string
	ConstLabels prometheus.Labels
}

// PrometheusMetrics implements MetricsCollector with Prometheus gauge and counters
// (<namespace>_cache_entries_amount, <namespace>_cache_{hits,misses,evictions}_total).
type PrometheusMetrics struct {
	EntriesAmount  prometheus.Gauge
	HitsTotal      prometheus.Counter
	MissesTotal    prometheus.Counter
	EvictionsTotal prometheus.Counter
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new PrometheusMetrics.
func NewPrometheusMetrics(opts PrometheusMetricsOpts) *PrometheusMetrics {
	newCounter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace, Name: name, Help: help, ConstLabels: opts.ConstLabels})
	}
	return &PrometheusMetrics{
		EntriesAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "cache_entries_amount",
			Help:        "Number of entries in the cache.",
			ConstLabels: opts.ConstLabels,
		}),
		HitsTotal:      newCounter("cache_hits_total", "Number of lookups that found the key."),
		MissesTotal:    newCounter("cache_misses_total", "Number of lookups that didn't find the key."),
		EvictionsTotal: newCounter("cache_evictions_total", "Number of entries evicted to free room for new ones."),
	}
}

func (pm *PrometheusMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{pm.EntriesAmount, pm.HitsTotal, pm.MissesTotal, pm.EvictionsTotal}
}

// MustRegister registers the metrics in the default registry and panics on error.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.collectors()...)
}

// Unregister removes the metrics from the default registry.
func (pm *PrometheusMetrics) Unregister() {
	for _, c := range pm.collectors() {
		prometheus.Unregister(c)
	}
}

// SetAmount implements MetricsCollector.
func (pm *PrometheusMetrics) SetAmount(amount int) { pm.EntriesAmount.Set(float64(amount)) }

// IncHits implements MetricsCollector.
func (pm *PrometheusMetrics) IncHits() { pm.HitsTotal.Inc() }

// IncMisses implements MetricsCollector.
func (pm *PrometheusMetrics) IncMisses() { pm.MissesTotal.Inc() }

// AddEvictions implements MetricsCollector.
func (pm *PrometheusMetrics) AddEvictions(n int) { pm.EvictionsTotal.Add(float64(n)) }

type disabledMetrics struct{}

func (disabledMetrics) SetAmount(int)    {}
func (disabledMetrics) IncHits()         {}
func (disabledMetrics) IncMisses()       {}
func (disabledMetrics) AddEvictions(int) {}
