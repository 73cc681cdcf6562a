/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	httpRequestMetricsLabelMethod        = "method"
	httpRequestMetricsLabelRoutePattern  = "route_pattern"
	httpRequestMetricsLabelUserAgentType = "user_agent_type"
	httpRequestMetricsLabelStatusCode    = "status_code"
)

const (
	userAgentTypeBrowser    = "browser"
	userAgentTypeHTTPClient = "http-client"
)

// DefaultHTTPRequestDurationBuckets starts at a millisecond, throttling decisions don't take longer normally.
var DefaultHTTPRequestDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// HTTPRequestPrometheusMetricsOpts represents options for HTTPRequestPrometheusMetrics.
type HTTPRequestPrometheusMetricsOpts struct {
	Namespace string
	// DurationBuckets is DefaultHTTPRequestDurationBuckets if nil.
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
}

// HTTPRequestPrometheusMetrics contains the request duration histogram and the in-flight requests gauge.
type HTTPRequestPrometheusMetrics struct {
	Durations *prometheus.HistogramVec
	InFlight  *prometheus.GaugeVec
}

// NewHTTPRequestPrometheusMetrics creates HTTPRequestPrometheusMetrics without namespace.
func NewHTTPRequestPrometheusMetrics() *HTTPRequestPrometheusMetrics {
	return NewHTTPRequestPrometheusMetricsWithOpts(HTTPRequestPrometheusMetricsOpts{})
}

// NewHTTPRequestPrometheusMetricsWithOpts creates HTTPRequestPrometheusMetrics.
func NewHTTPRequestPrometheusMetricsWithOpts(opts HTTPRequestPrometheusMetricsOpts) *HTTPRequestPrometheusMetrics {
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = DefaultHTTPRequestDurationBuckets
	}
	labels := []string{httpRequestMetricsLabelMethod, httpRequestMetricsLabelRoutePattern, httpRequestMetricsLabelUserAgentType}
	return &HTTPRequestPrometheusMetrics{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "http_request_duration_seconds",
			Help:        "A histogram of the HTTP request durations.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		}, append(labels, httpRequestMetricsLabelStatusCode)),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "http_requests_in_flight",
			Help:        "Current number of HTTP requests being served.",
			ConstLabels: opts.ConstLabels,
		}, labels),
	}
}

// MustRegister registers the metrics in the default registry and panics on error.
func (pm *HTTPRequestPrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.Durations, pm.InFlight)
}

// Unregister removes the metrics from the default registry.
func (pm *HTTPRequestPrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.InFlight)
	prometheus.Unregister(pm.Durations)
}

// UserAgentTypeGetterFunc returns the user agent type of the request. It must return a small set of values.
type UserAgentTypeGetterFunc func(r *http.Request) string

// HTTPRequestMetricsOpts represents options for HTTPRequestMetrics middleware.
type HTTPRequestMetricsOpts struct {
	// GetUserAgentType tells browsers from other clients if nil.
	GetUserAgentType UserAgentTypeGetterFunc
	// ExcludedEndpoints are not measured (e.g. /metrics and /healthz).
	ExcludedEndpoints []string
}

type httpRequestMetricsHandler struct {
	next            http.Handler
	metrics         *HTTPRequestPrometheusMetrics
	getRoutePattern RoutePatternGetterFunc
	opts            HTTPRequestMetricsOpts
}

// HTTPRequestMetrics is a middleware that measures request durations and counts in-flight requests.
func HTTPRequestMetrics(
	metrics *HTTPRequestPrometheusMetrics, getRoutePattern RoutePatternGetterFunc,
) func(next http.Handler) http.Handler {
	return HTTPRequestMetricsWithOpts(metrics, getRoutePattern, HTTPRequestMetricsOpts{})
}

// HTTPRequestMetricsWithOpts is HTTPRequestMetrics with custom options. It panics if getRoutePattern is nil.
func HTTPRequestMetricsWithOpts(
	metrics *HTTPRequestPrometheusMetrics, getRoutePattern RoutePatternGetterFunc, opts HTTPRequestMetricsOpts,
) func(next http.Handler) http.Handler {
	if getRoutePattern == nil {
		panic("function for getting route pattern cannot be nil")
	}
	if opts.GetUserAgentType == nil {
		opts.GetUserAgentType = determineUserAgentType
	}
	return func(next http.Handler) http.Handler {
		return &httpRequestMetricsHandler{next: next, metrics: metrics, getRoutePattern: getRoutePattern, opts: opts}
	}
}

func (h *httpRequestMetricsHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if isExcludedEndpoint(r.URL.Path, h.opts.ExcludedEndpoints) {
		h.next.ServeHTTP(rw, r)
		return
	}

	startTime := GetRequestStartTimeFromContext(r.Context())
	if startTime.IsZero() {
		startTime = time.Now()
		r = r.WithContext(NewContextWithRequestStartTime(r.Context(), startTime))
	}
	userAgentType := h.opts.GetUserAgentType(r)

	// The route pattern may be incomplete before routing, the histogram takes it again afterwards.
	inFlight := h.metrics.InFlight.WithLabelValues(r.Method, h.getRoutePattern(r), userAgentType)
	inFlight.Inc()
	defer inFlight.Dec()

	wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
	defer func() {
		p := recover()
		if p == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
			panic(p)
		}
		status := wrw.Status()
		switch {
		case p != nil:
			status = http.StatusInternalServerError
		case status == 0:
			status = http.StatusOK
		}
		h.metrics.Durations.WithLabelValues(r.Method, h.getRoutePattern(r), userAgentType, strconv.Itoa(status)).
			Observe(time.Since(startTime).Seconds())
		if p != nil {
			panic(p)
		}
	}()

	h.next.ServeHTTP(wrw, r)
}

func determineUserAgentType(r *http.Request) string {
	if strings.Contains(strings.ToLower(r.UserAgent()), "mozilla") {
		return userAgentTypeBrowser
	}
	return userAgentTypeHTTPClient
}
