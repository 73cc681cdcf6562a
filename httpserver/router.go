/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/go-throttlekit/httpserver/middleware"
	"github.com/acronis/go-throttlekit/log"
	"github.com/acronis/go-throttlekit/restapi"
)

// Endpoints excluded from HTTP request metrics.
var systemEndpoints = []string{"/metrics", "/healthz"}

// newRouter builds the router: the middleware chain first, then system endpoints and API routes.
// Middlewares run in this order: start time, request id, logging, recovery, metrics, body limit.
func newRouter(
	cfg *Config, logger log.FieldLogger, opts *Opts, promMetrics *middleware.HTTPRequestPrometheusMetrics,
) chi.Router {
	router := chi.NewRouter()

	router.Use(requestStartTime)
	router.Use(middleware.RequestID())
	router.Use(middleware.LoggingWithOpts(logger, loggingOptsFromConfig(&cfg.Log)))
	router.Use(middleware.Recovery(opts.ErrorDomain))

	getRoutePattern := opts.HTTPRequestMetrics.GetRoutePattern
	if getRoutePattern == nil {
		getRoutePattern = GetChiRoutePattern
	}
	router.Use(middleware.HTTPRequestMetricsWithOpts(promMetrics, getRoutePattern,
		middleware.HTTPRequestMetricsOpts{ExcludedEndpoints: systemEndpoints}))

	if cfg.Limits.MaxBodySize > 0 {
		router.Use(middleware.RequestBodyLimit(uint64(cfg.Limits.MaxBodySize), opts.ErrorDomain))
	}

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, "/metrics", metricsHandler)
	router.Method(http.MethodGet, "/healthz", NewHealthCheckHandler(opts.HealthCheck))

	if len(opts.APIRoutes) > 0 {
		router.Route("/api/"+opts.ServiceNameInURL, func(apiRouter chi.Router) {
			for version, routes := range opts.APIRoutes {
				apiRouter.Route(fmt.Sprintf("/v%d", version), routes)
			}
		})
	}

	router.NotFound(errorHandler(http.StatusNotFound,
		restapi.NewError(opts.ErrorDomain, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound), logger))
	router.MethodNotAllowed(errorHandler(http.StatusMethodNotAllowed,
		restapi.NewError(opts.ErrorDomain, restapi.ErrCodeMethodNotAllowed, restapi.ErrMessageMethodNotAllowed), logger))

	return router
}

func requestStartTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(rw, r.WithContext(middleware.NewContextWithRequestStartTime(r.Context(), time.Now())))
	})
}

func errorHandler(status int, apiErr *restapi.Error, logger log.FieldLogger) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		restapi.RespondError(rw, status, apiErr, logger)
	}
}

// loggingOptsFromConfig maps request header names to log field keys (X-Source-System -> req_header_x_source_system).
func loggingOptsFromConfig(cfg *LogConfig) middleware.LoggingOpts {
	headers := make(map[string]string, len(cfg.RequestHeaders))
	for _, name := range cfg.RequestHeaders {
		headers[name] = "req_header_" + strings.ToLower(strings.ReplaceAll(name, "-", "_"))
	}
	return middleware.LoggingOpts{
		RequestStart:           cfg.RequestStart,
		RequestHeaders:         headers,
		ExcludedEndpoints:      cfg.ExcludedEndpoints,
		AddRequestInfoToLogger: cfg.AddRequestInfoToLogger,
		SlowRequestThreshold:   time.Duration(cfg.SlowRequestThreshold),
	}
}

// GetChiRoutePattern returns the chi route pattern of the request ("/api/throttling/v1/throttle").
// The pattern is looked up again if the route context doesn't have it yet,
// which is the case for middlewares mounted before the routes.
func GetChiRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	path := r.URL.RawPath
	if path == "" {
		path = r.URL.Path
	}
	matchCtx := chi.NewRouteContext()
	if !rctx.Routes.Match(matchCtx, r.Method, path) {
		return ""
	}
	return matchCtx.RoutePattern()
}
