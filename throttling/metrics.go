/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttling

import "github.com/prometheus/client_golang/prometheus"

// CheckOutcome is the result of a single throttling check.
type CheckOutcome string

// Check outcomes.
const (
	CheckOutcomeAccepted CheckOutcome = "accepted"
	CheckOutcomeRejected CheckOutcome = "rejected"
	CheckOutcomeDisabled CheckOutcome = "disabled"
	CheckOutcomeNoRule   CheckOutcome = "no_rule"
	CheckOutcomeInvalid  CheckOutcome = "invalid"
)

// MetricsCollector collects statistics of throttling checks.
type MetricsCollector interface {
	// IncChecks increments the number of checks with the given outcome.
	IncChecks(outcome CheckOutcome)

	// IncRejects increments the number of rejected requests for the matched rule.
	IncRejects(rule Scope)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics represents Prometheus metrics of the throttling processor.
type PrometheusMetrics struct {
	ChecksTotal  *prometheus.CounterVec
	RejectsTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
func NewPrometheusMetrics(opts PrometheusMetricsOpts) *PrometheusMetrics {
	return &PrometheusMetrics{
		ChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "throttling_checks_total",
			Help:        "Number of throttling checks by outcome.",
			ConstLabels: opts.ConstLabels,
		}, []string{"outcome"}),
		RejectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "throttling_rejects_total",
			Help:        "Number of requests rejected by throttling, by matched rule.",
			ConstLabels: opts.ConstLabels,
		}, []string{"rule"}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.ChecksTotal, pm.RejectsTotal)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.ChecksTotal)
	prometheus.Unregister(pm.RejectsTotal)
}

// IncChecks increments the number of checks with the given outcome.
func (pm *PrometheusMetrics) IncChecks(outcome CheckOutcome) {
	pm.ChecksTotal.WithLabelValues(string(outcome)).Inc()
}

// IncRejects increments the number of rejected requests for the matched rule.
func (pm *PrometheusMetrics) IncRejects(rule Scope) {
	pm.RejectsTotal.WithLabelValues(rule.String()).Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) IncChecks(CheckOutcome) {}
func (disabledMetrics) IncRejects(Scope)       {}
