/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-throttlekit/httpserver/middleware"
	"github.com/acronis/go-throttlekit/log/logtest"
	"github.com/acronis/go-throttlekit/restapi"
)

func TestHealthCheckHandler_ServeHTTP(t *testing.T) {
	makeRequest := func(ctx context.Context) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		return req.WithContext(middleware.NewContextWithLogger(ctx, logtest.NewLogger()))
	}

	t.Run("health-check returns error", func(t *testing.T) {
		h := NewHealthCheckHandler(func(ctx context.Context) (HealthCheckResult, error) {
			return nil, errors.New("rules are not loaded")
		})
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, makeRequest(context.Background()))
		require.Equal(t, http.StatusInternalServerError, resp.Code)
	})

	t.Run("nil health-check", func(t *testing.T) {
		resp := httptest.NewRecorder()
		NewHealthCheckHandler(nil).ServeHTTP(resp, makeRequest(context.Background()))
		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, restapi.ContentTypeAppJSON, resp.Header().Get("Content-Type"))
		require.JSONEq(t, `{"components":{}}`, resp.Body.String())
	})

	t.Run("health-check returns unhealthy components", func(t *testing.T) {
		h := NewHealthCheckHandler(func(ctx context.Context) (HealthCheckResult, error) {
			return HealthCheckResult{
				"throttling_rules": HealthCheckStatusOK,
				"counter":          HealthCheckStatusFail,
			}, nil
		})
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, makeRequest(context.Background()))

		require.Equal(t, http.StatusServiceUnavailable, resp.Code)
		var respData healthCheckResponseData
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &respData))
		require.Equal(t, map[string]bool{"throttling_rules": true, "counter": false}, respData.Components)
	})

	t.Run("client closed request", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		resp := httptest.NewRecorder()
		NewHealthCheckHandler(nil).ServeHTTP(resp, makeRequest(ctx))
		require.Equal(t, StatusClientClosedRequest, resp.Code)
	})
}
