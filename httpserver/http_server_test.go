/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-throttlekit/log/logtest"
	"github.com/acronis/go-throttlekit/restapi"
	"github.com/acronis/go-throttlekit/testutil"
)

const testErrDomain = "TestThrottling"

func startTestServer(t *testing.T, cfg *Config, opts Opts) *HTTPServer {
	t.Helper()
	srv := New(cfg, logtest.NewLogger(), opts)
	fatalErr := make(chan error, 1)
	go srv.Start(fatalErr)
	t.Cleanup(func() {
		require.NoError(t, srv.Stop(true))
		select {
		case err := <-fatalErr:
			require.NoError(t, err)
		default:
		}
	})
	return srv
}

func TestHTTPServer(t *testing.T) {
	addr := testutil.GetLocalAddrWithFreeTCPPort()
	cfg := NewDefaultConfig()
	cfg.Address = addr
	cfg.Limits.MaxBodySize = 16

	srv := startTestServer(t, cfg, Opts{
		ServiceNameInURL: "throttling",
		ErrorDomain:      testErrDomain,
		APIRoutes: map[APIVersion]APIRoute{
			1: func(router chi.Router) {
				router.Get("/ping", func(rw http.ResponseWriter, r *http.Request) {
					restapi.RespondJSON(rw, map[string]string{"pong": "ok"}, nil)
				})
				router.Post("/echo", func(rw http.ResponseWriter, r *http.Request) {
					var body map[string]string
					if err := restapi.DecodeRequestJSON(r, &body); err != nil {
						restapi.RespondMalformedRequestOrInternalError(rw, testErrDomain, err, nil)
						return
					}
					restapi.RespondJSON(rw, body, nil)
				})
			},
		},
	})
	require.NoError(t, testutil.WaitListeningServer(addr, 3*time.Second))
	require.Equal(t, "http://"+addr, srv.URL)
	require.Equal(t, addr, fmt.Sprintf("127.0.0.1:%d", srv.GetPort()))

	doRequest := func(method, path, body string) (*http.Response, string) {
		req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		if body != "" {
			req.Header.Set("Content-Type", restapi.ContentTypeAppJSON)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer func() { require.NoError(t, resp.Body.Close()) }()
		respBody, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, string(respBody)
	}

	t.Run("api route", func(t *testing.T) {
		resp, body := doRequest(http.MethodGet, "/api/throttling/v1/ping", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.JSONEq(t, `{"pong":"ok"}`, body)
		require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	})

	t.Run("health check", func(t *testing.T) {
		resp, body := doRequest(http.MethodGet, "/healthz", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.JSONEq(t, `{"components":{}}`, body)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, _ := doRequest(http.MethodGet, "/metrics", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("not found", func(t *testing.T) {
		resp, body := doRequest(http.MethodGet, "/api/throttling/v2/ping", "")
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		require.JSONEq(t,
			`{"error":{"domain":"TestThrottling","code":"notFound","message":"Not found."}}`, body)
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp, _ := doRequest(http.MethodDelete, "/api/throttling/v1/ping", "")
		require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("body limit", func(t *testing.T) {
		resp, _ := doRequest(http.MethodPost, "/api/throttling/v1/echo", `{"a":"b"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = doRequest(http.MethodPost, "/api/throttling/v1/echo", `{"sourceSystem":"crm"}`)
		require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})
}

func TestHTTPServer_UnixSocket(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.UnixSocketPath = filepath.Join(t.TempDir(), "throttled.sock")

	srv := startTestServer(t, cfg, Opts{ErrorDomain: testErrDomain})
	network, addr := srv.NetworkAndAddr()
	require.Equal(t, "unix", network)
	require.Equal(t, cfg.UnixSocketPath, addr)
	require.Equal(t, "http://localhost", srv.URL)
}

func TestHTTPServer_StartFailed(t *testing.T) {
	addr := testutil.GetLocalAddrWithFreeTCPPort()
	cfg := NewDefaultConfig()
	cfg.Address = addr

	first := startTestServer(t, cfg, Opts{})
	require.NoError(t, testutil.WaitListeningServer(addr, 3*time.Second))
	require.Greater(t, first.GetPort(), 0)

	second := New(cfg, logtest.NewLogger(), Opts{})
	fatalErr := make(chan error, 1)
	second.Start(fatalErr)
	require.Error(t, <-fatalErr)
}
