/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestNew(t *testing.T) {
	calls := atomic.NewInt32(0)
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if calls.Inc() == 1 {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		gotUserAgent = r.UserAgent()
		rw.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cfg := NewDefaultConfig()
	cfg.Retries.Policy.Interval = 1
	cfg.Metrics.Enabled = true
	metrics := NewPrometheusMetrics(PrometheusMetricsOpts{Namespace: "test_new"})

	client, err := New(cfg, Opts{UserAgent: "throttlekit-test", MetricsCollector: metrics})
	require.NoError(t, err)
	resp, err := client.Get(server.URL + "/api/throttling/v1/check")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.EqualValues(t, 2, calls.Load())
	require.Equal(t, "throttlekit-test", gotUserAgent)

	_, err = New(cfg, Opts{})
	require.EqualError(t, err, "metrics are enabled, but metrics collector is not specified")
}
