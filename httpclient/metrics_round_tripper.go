/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector collects statistics of outgoing requests.
type MetricsCollector interface {
	// ObserveRequest observes the duration of the request. Status is "0" if no response was received.
	ObserveRequest(method, path, status string, duration time.Duration)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is prepended to all metric names.
	Namespace string

	// DurationBuckets is a list of buckets for the request duration histogram.
	DurationBuckets []float64

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics represents Prometheus metrics of outgoing requests.
type PrometheusMetrics struct {
	Durations *prometheus.HistogramVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
func NewPrometheusMetrics(opts PrometheusMetricsOpts) *PrometheusMetrics {
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	}
	return &PrometheusMetrics{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "http_client_request_duration_seconds",
			Help:        "A histogram of the HTTP client requests durations.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		}, []string{"method", "path", "status"}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.Durations)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.Durations)
}

// ObserveRequest observes the duration of the request.
func (pm *PrometheusMetrics) ObserveRequest(method, path, status string, duration time.Duration) {
	pm.Durations.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// MetricsRoundTripper measures outgoing requests.
// The daemon API has a fixed set of paths, so the URL path is a bounded label.
type MetricsRoundTripper struct {
	Delegate  http.RoundTripper
	Collector MetricsCollector
}

// NewMetricsRoundTripper creates a new MetricsRoundTripper.
func NewMetricsRoundTripper(delegate http.RoundTripper, collector MetricsCollector) *MetricsRoundTripper {
	return &MetricsRoundTripper{Delegate: delegate, Collector: collector}
}

// RoundTrip sends the request and observes its duration.
func (rt *MetricsRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	status := "0"
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	rt.Collector.ObserveRequest(r.Method, r.URL.Path, status, time.Since(start))
	return resp, err
}
