/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsSubsystem = "restapi"

	metricsLabelResponseErrorDomain = "domain"
	metricsLabelResponseErrorCode   = "code"
)

var (
	metricsMu             sync.RWMutex
	metricsResponseErrors *prometheus.CounterVec
)

// MustInitAndRegisterMetrics initializes and registers restapi global metrics
// (the number of error responses by domain and code, e.g. rejected throttling checks). It panics on error.
func MustInitAndRegisterMetrics(namespace string) {
	responseErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: metricsSubsystem,
		Name:      "response_errors_total",
		Help:      "The total number of REST API error responses.",
	}, []string{metricsLabelResponseErrorDomain, metricsLabelResponseErrorCode})
	prometheus.MustRegister(responseErrors)

	metricsMu.Lock()
	metricsResponseErrors = responseErrors
	metricsMu.Unlock()
}

// UnregisterMetrics unregisters restapi global metrics.
func UnregisterMetrics() {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if metricsResponseErrors != nil {
		prometheus.Unregister(metricsResponseErrors)
		metricsResponseErrors = nil
	}
}

func incResponseErrors(domain, code string) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	if metricsResponseErrors != nil {
		metricsResponseErrors.With(prometheus.Labels{
			metricsLabelResponseErrorDomain: domain,
			metricsLabelResponseErrorCode:   code,
		}).Inc()
	}
}
