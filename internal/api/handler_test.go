/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-throttlekit/httpserver/middleware"
	"github.com/acronis/go-throttlekit/log/logtest"
	"github.com/acronis/go-throttlekit/restapi"
	"github.com/acronis/go-throttlekit/testutil"
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

func newTestRouter(processor *throttling.Processor, opts HandlerOpts) http.Handler {
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(rw, r.WithContext(middleware.NewContextWithLogger(r.Context(), logtest.NewLogger())))
		})
	})
	NewHandler(processor, opts).Routes(router)
	return router
}

func doRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func newThrottleRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/throttle", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", restapi.ContentTypeAppJSON)
	return req
}

func TestHandler_Throttle(t *testing.T) {
	t.Run("limit exceeded", func(t *testing.T) {
		router := newTestRouter(newTestProcessor(t, false), HandlerOpts{})
		const body = `{"sourceSystem":"crm","serviceName":"setActivityExt"}`
		for i := 0; i < 2; i++ {
			testutil.RequireEmptyBodyInRecorder(t, doRequest(router, newThrottleRequest(body)), http.StatusNoContent)
		}
		resp := doRequest(router, newThrottleRequest(body))
		testutil.RequireErrorInRecorder(t, resp, http.StatusTooManyRequests, ErrDomain, restapi.ErrCodeTooManyRequests)
		require.Equal(t, "60", resp.Header().Get("Retry-After"))

		// Another service of the same source system is counted separately by the default rule.
		resp = doRequest(router, newThrottleRequest(`{"sourceSystem":"crm","serviceName":"getActivity"}`))
		testutil.RequireEmptyBodyInRecorder(t, resp, http.StatusNoContent)
	})

	t.Run("disabled", func(t *testing.T) {
		router := newTestRouter(newTestProcessor(t, true), HandlerOpts{})
		for i := 0; i < 5; i++ {
			resp := doRequest(router, newThrottleRequest(`{"sourceSystem":"crm","serviceName":"setActivityExt"}`))
			testutil.RequireEmptyBodyInRecorder(t, resp, http.StatusNoContent)
		}
	})

	tests := []struct {
		name        string
		body        string
		wantCode    int
		wantErrCode string
		wantMessage string
	}{
		{
			name:        "no scope",
			body:        `{"sourceSystem":"*"}`,
			wantCode:    http.StatusBadRequest,
			wantErrCode: restapi.ErrCodeBadRequest,
			wantMessage: throttling.ErrInvalidScope.Error(),
		},
		{
			name:        "empty body",
			body:        "",
			wantCode:    http.StatusBadRequest,
			wantErrCode: restapi.ErrCodeBadRequest,
			wantMessage: "Request body must not be empty.",
		},
		{
			name:        "unknown field",
			body:        `{"sourceSystem":"crm","service":"x"}`,
			wantCode:    http.StatusBadRequest,
			wantErrCode: restapi.ErrCodeBadRequest,
			wantMessage: `Request body contains unknown field "service".`,
		},
	}
	router := newTestRouter(newTestProcessor(t, false), HandlerOpts{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(router, newThrottleRequest(tt.body))
			msg := testutil.RequireErrorInRecorder(t, resp, tt.wantCode, ErrDomain, tt.wantErrCode)
			require.Equal(t, tt.wantMessage, msg)
		})
	}
}

func TestHandler_Check(t *testing.T) {
	newCheckRequest := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/check", nil)
		req.Header.Set(middleware.HeaderSourceSystem, "crm")
		req.Header.Set(middleware.HeaderServiceName, "setActivityExt")
		return req
	}

	t.Run("limit exceeded", func(t *testing.T) {
		router := newTestRouter(newTestProcessor(t, false), HandlerOpts{})
		for i := 0; i < 2; i++ {
			testutil.RequireEmptyBodyInRecorder(t, doRequest(router, newCheckRequest()), http.StatusNoContent)
		}
		resp := doRequest(router, newCheckRequest())
		testutil.RequireErrorInRecorder(t, resp, http.StatusTooManyRequests, ErrDomain, restapi.ErrCodeTooManyRequests)
	})

	t.Run("dry run", func(t *testing.T) {
		router := newTestRouter(newTestProcessor(t, false), HandlerOpts{DryRun: true})
		for i := 0; i < 4; i++ {
			testutil.RequireEmptyBodyInRecorder(t, doRequest(router, newCheckRequest()), http.StatusNoContent)
		}
	})

	t.Run("no headers", func(t *testing.T) {
		router := newTestRouter(newTestProcessor(t, false), HandlerOpts{})
		resp := doRequest(router, httptest.NewRequest(http.MethodGet, "/check", nil))
		testutil.RequireErrorInRecorder(t, resp, http.StatusBadRequest, ErrDomain, restapi.ErrCodeBadRequest)
	})
}

func TestHandler_Rules(t *testing.T) {
	for _, disabled := range []bool{false, true} {
		router := newTestRouter(newTestProcessor(t, disabled), HandlerOpts{})
		resp := doRequest(router, httptest.NewRequest(http.MethodGet, "/rules", nil))
		testutil.RequireJSONInRecorder(t, resp, http.StatusOK, &RulesResponseData{
			Disabled: disabled,
			Rules: []RuleData{
				{SourceSystem: "crm", ServiceName: "setActivityExt", Limit: 2, Interval: 60},
				{SourceSystem: "erp", ServiceName: "*", Limit: 1000, Interval: 3600},
				{SourceSystem: "*", ServiceName: "*", Limit: throttling.DefaultLimit, Interval: throttling.DefaultInterval},
			},
		}, &RulesResponseData{})
	}
}

func TestHandler_Resolve(t *testing.T) {
	router := newTestRouter(newTestProcessor(t, false), HandlerOpts{})

	tests := []struct {
		name     string
		query    string
		wantData *ResolveResponseData
	}{
		{
			name:  "exact rule",
			query: "sourceSystem=crm&serviceName=setActivityExt",
			wantData: &ResolveResponseData{
				SourceSystem: "crm", ServiceName: "setActivityExt",
				Rule: RuleData{SourceSystem: "crm", ServiceName: "setActivityExt", Limit: 2, Interval: 60},
			},
		},
		{
			name:  "source system rule",
			query: "sourceSystem=erp&serviceName=getInvoice",
			wantData: &ResolveResponseData{
				SourceSystem: "erp", ServiceName: "getInvoice",
				Rule: RuleData{SourceSystem: "erp", ServiceName: "*", Limit: 1000, Interval: 3600},
			},
		},
		{
			name:  "default rule for a single field",
			query: "serviceName=setActivityExt",
			wantData: &ResolveResponseData{
				SourceSystem: "*", ServiceName: "setActivityExt",
				Rule: RuleData{SourceSystem: "*", ServiceName: "*", Limit: 60, Interval: 60},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(router, httptest.NewRequest(http.MethodGet, "/resolve?"+tt.query, nil))
			testutil.RequireJSONInRecorder(t, resp, http.StatusOK, tt.wantData, &ResolveResponseData{})
		})
	}

	t.Run("disabled", func(t *testing.T) {
		router := newTestRouter(newTestProcessor(t, true), HandlerOpts{})
		resp := doRequest(router, httptest.NewRequest(http.MethodGet, "/resolve?sourceSystem=crm", nil))
		msg := testutil.RequireErrorInRecorder(t, resp, http.StatusNotFound, ErrDomain, restapi.ErrCodeNotFound)
		require.Equal(t, "No throttling rule applies.", msg)
	})
}
