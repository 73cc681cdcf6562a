/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gatherSingleMetric(t require.TestingT, c prometheus.Collector) *dto.Metric {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Len(t, families[0].GetMetric(), 1)
	return families[0].GetMetric()[0]
}

// RequireSamplesCountInHistogram asserts that passed prometheus.Histogram contains the specified number of samples.
func RequireSamplesCountInHistogram(t require.TestingT, hist prometheus.Histogram, wantSamplesCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantSamplesCount, int(gatherSingleMetric(t, hist).GetHistogram().GetSampleCount()))
}

// RequireSamplesCountInCounter asserts that passed prometheus.Counter has the specified value.
func RequireSamplesCountInCounter(t require.TestingT, counter prometheus.Counter, wantCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantCount, int(gatherSingleMetric(t, counter).GetCounter().GetValue()))
}

// RequireGaugeValue asserts that passed prometheus.Gauge has the specified value.
func RequireGaugeValue(t require.TestingT, gauge prometheus.Gauge, want float64) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, want, gatherSingleMetric(t, gauge).GetGauge().GetValue())
}
