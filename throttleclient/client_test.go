/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttleclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-throttlekit/httpserver"
	"github.com/acronis/go-throttlekit/httpserver/middleware"
	"github.com/acronis/go-throttlekit/internal/api"
	"github.com/acronis/go-throttlekit/log/logtest"
	"github.com/acronis/go-throttlekit/retry"
	"github.com/acronis/go-throttlekit/throttling"
)

func newTestProcessor(t *testing.T, disabled bool) *throttling.Processor {
	t.Helper()
	b := throttling.NewConfigurationBuilder().SetDisabled(disabled)
	require.NoError(t, b.AddRule("crm", "setActivityExt", 60, 2))
	require.NoError(t, b.AddRule("erp", throttling.Wildcard, 3600, 1000))
	counter, err := throttling.NewSlidingLogCounter(throttling.CounterOpts{})
	require.NoError(t, err)
	return throttling.NewProcessor(b.Build(), counter, logtest.NewLogger())
}

func newTestServer(t *testing.T, processor *throttling.Processor) *httptest.Server {
	t.Helper()
	router := chi.NewRouter()
	router.Handle("/healthz", httpserver.NewHealthCheckHandler(nil))
	router.Route("/api/throttling/v1", api.NewHandler(processor, api.HandlerOpts{}).Routes)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srvURL string) *Client {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.URL = srvURL
	cfg.HTTP.Retries.Enabled = false
	client, err := New(cfg, Opts{UserAgent: "throttleclient-test"})
	require.NoError(t, err)
	return client
}

func TestClient_Throttle(t *testing.T) {
	t.Run("limit exceeded", func(t *testing.T) {
		srv := newTestServer(t, newTestProcessor(t, false))
		client := newTestClient(t, srv.URL)
		scope := throttling.NewScope("crm", "setActivityExt")

		require.NoError(t, client.Throttle(scope))
		require.NoError(t, client.ThrottleContext(context.Background(), scope))

		err := client.Throttle(scope)
		require.ErrorIs(t, err, throttling.ErrExceeded)
		var exceededErr *throttling.ExceededError
		require.True(t, errors.As(err, &exceededErr))
		require.Equal(t, scope, exceededErr.Scope)
		require.Equal(t, 2, exceededErr.Limit)
		require.Equal(t, 60, exceededErr.Interval)
		require.Equal(t, 3, exceededErr.Count)

		// Other scopes are counted separately.
		require.NoError(t, client.Throttle(throttling.NewScope("erp", "getReport")))
	})

	t.Run("invalid scope", func(t *testing.T) {
		srv := newTestServer(t, newTestProcessor(t, false))
		client := newTestClient(t, srv.URL)

		err := client.Throttle(throttling.AnyScope())
		require.ErrorIs(t, err, throttling.ErrInvalidScope)
	})

	t.Run("disabled", func(t *testing.T) {
		srv := newTestServer(t, newTestProcessor(t, true))
		client := newTestClient(t, srv.URL)

		for i := 0; i < 5; i++ {
			require.NoError(t, client.Throttle(throttling.NewScope("crm", "setActivityExt")))
		}
	})

	t.Run("unexpected status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()
		client := newTestClient(t, srv.URL)

		err := client.Throttle(throttling.NewScope("crm", "setActivityExt"))
		var respErr *ResponseError
		require.True(t, errors.As(err, &respErr))
		require.Equal(t, http.StatusBadGateway, respErr.StatusCode)
		require.Nil(t, respErr.APIError)
	})

	t.Run("exceeded without error context", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rw.Header().Set("Retry-After", "30")
			rw.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()
		client := newTestClient(t, srv.URL)

		var exceededErr *throttling.ExceededError
		require.True(t, errors.As(client.Throttle(throttling.NewScope("crm", "*")), &exceededErr))
		require.Equal(t, 30, exceededErr.Interval)
	})
}

func TestClient_Rules(t *testing.T) {
	srv := newTestServer(t, newTestProcessor(t, false))
	client := newTestClient(t, srv.URL)

	disabled, rules, err := client.Rules(context.Background())
	require.NoError(t, err)
	require.False(t, disabled)
	require.Equal(t, []throttling.Rule{
		{Scope: throttling.NewScope("crm", "setActivityExt"), Props: throttling.Props{Limit: 2, Interval: 60}},
		{Scope: throttling.NewScope("erp", "*"), Props: throttling.Props{Limit: 1000, Interval: 3600}},
		{Scope: throttling.AnyScope(), Props: throttling.Props{
			Limit: throttling.DefaultLimit, Interval: throttling.DefaultInterval}},
	}, rules)
}

func TestClient_Resolve(t *testing.T) {
	t.Run("rule found", func(t *testing.T) {
		srv := newTestServer(t, newTestProcessor(t, false))
		client := newTestClient(t, srv.URL)

		rule, ok, err := client.Resolve(context.Background(), throttling.NewScope("erp", "getReport"))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, throttling.NewScope("erp", "*"), rule.Scope)
		require.Equal(t, throttling.Props{Limit: 1000, Interval: 3600}, rule.Props)
	})

	t.Run("disabled", func(t *testing.T) {
		srv := newTestServer(t, newTestProcessor(t, true))
		client := newTestClient(t, srv.URL)

		_, ok, err := client.Resolve(context.Background(), throttling.NewScope("erp", "getReport"))
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestClient_WaitReady(t *testing.T) {
	t.Run("ready after failures", func(t *testing.T) {
		calls := atomic.NewInt32(0)
		srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/healthz", r.URL.Path)
			if calls.Inc() < 3 {
				rw.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			rw.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()
		client := newTestClient(t, srv.URL)

		require.NoError(t, client.WaitReady(context.Background(), retry.NewConstantBackoffPolicy(10*time.Millisecond, 5)))
		require.Equal(t, int32(3), calls.Load())
	})

	t.Run("give up", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		client := newTestClient(t, srv.URL)

		err := client.WaitReady(context.Background(), retry.NewConstantBackoffPolicy(10*time.Millisecond, 2))
		var respErr *ResponseError
		require.True(t, errors.As(err, &respErr))
		require.Equal(t, http.StatusServiceUnavailable, respErr.StatusCode)
	})
}

func TestClient_WithThrottlingMiddleware(t *testing.T) {
	srv := newTestServer(t, newTestProcessor(t, false))
	client := newTestClient(t, srv.URL)

	served := 0
	handler := middleware.Throttling(client, "CRM")(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		served++
		rw.WriteHeader(http.StatusOK)
	}))
	for _, wantCode := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(middleware.HeaderSourceSystem, "crm")
		req.Header.Set(middleware.HeaderServiceName, "setActivityExt")
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		require.Equal(t, wantCode, resp.Code)
	}
	require.Equal(t, 2, served)
}
