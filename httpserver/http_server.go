/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpserver provides the HTTP server of the throttling daemon: chi router with request id, logging,
// recovery, metrics and request body limit middlewares, /metrics and /healthz endpoints
// and versioned API routes under /api/<service>/v<N>.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/acronis/go-throttlekit/httpserver/middleware"
	"github.com/acronis/go-throttlekit/log"
	"github.com/acronis/go-throttlekit/service"
)

const (
	networkTCP  = "tcp"
	networkUnix = "unix"
)

// APIVersion is a major version of the API ("v1" in URL).
type APIVersion = int

// APIRoute registers the routes of a single API version.
type APIRoute = func(router chi.Router)

// HTTPRequestMetricsOpts configures HTTP request metrics of the server.
type HTTPRequestMetricsOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
	GetRoutePattern middleware.RoutePatternGetterFunc
}

// Opts represents options for creating HTTPServer.
type Opts struct {
	// ServiceNameInURL is the API prefix, routes are served under /api/<ServiceNameInURL>/v<APIVersion>.
	ServiceNameInURL string
	APIRoutes        map[APIVersion]APIRoute
	// ErrorDomain is set in error responses produced by the server itself (404, 405, 413, 500).
	ErrorDomain string
	HealthCheck HealthCheck
	// MetricsHandler serves /metrics, promhttp.Handler() if nil.
	MetricsHandler     http.Handler
	HTTPRequestMetrics HTTPRequestMetricsOpts
	// Listener is used instead of listening on the configured address (e.g. socket activation).
	Listener net.Listener
}

// HTTPServer serves the throttling API. It implements service.Unit and service.MetricsRegisterer.
type HTTPServer struct {
	URL             string
	HTTPServer      *http.Server
	UnixSocketPath  string
	TLS             TLSConfig
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener    net.Listener
	port        atomic.Int32
	started     atomic.Bool
	serveDone   chan struct{}
	promMetrics *middleware.HTTPRequestPrometheusMetrics
}

var _ service.Unit = (*HTTPServer)(nil)
var _ service.MetricsRegisterer = (*HTTPServer)(nil)

// New creates a new HTTPServer.
func New(cfg *Config, logger log.FieldLogger, opts Opts) *HTTPServer { //nolint:gocritic // hugeParam: opts is passed once
	promMetrics := middleware.NewHTTPRequestPrometheusMetricsWithOpts(middleware.HTTPRequestPrometheusMetricsOpts{
		Namespace:       opts.HTTPRequestMetrics.Namespace,
		DurationBuckets: opts.HTTPRequestMetrics.DurationBuckets,
		ConstLabels:     opts.HTTPRequestMetrics.ConstLabels,
	})
	router := newRouter(cfg, logger, &opts, promMetrics)

	// The host part is ignored when dialing a unix socket.
	host := cfg.Address
	if cfg.UnixSocketPath != "" {
		host = "localhost"
	}
	scheme := "http"
	if cfg.TLS.Enabled {
		scheme = "https"
	}

	return &HTTPServer{
		URL: scheme + "://" + host,
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			WriteTimeout:      time.Duration(cfg.Timeouts.Write),
			ReadTimeout:       time.Duration(cfg.Timeouts.Read),
			ReadHeaderTimeout: time.Duration(cfg.Timeouts.ReadHeader),
			IdleTimeout:       time.Duration(cfg.Timeouts.Idle),
		},
		UnixSocketPath:  cfg.UnixSocketPath,
		TLS:             cfg.TLS,
		HTTPRouter:      router,
		Logger:          logger,
		ShutdownTimeout: time.Duration(cfg.Timeouts.Shutdown),
		listener:        opts.Listener,
		serveDone:       make(chan struct{}),
		promMetrics:     promMetrics,
	}
}

// Start serves requests until Stop is called. It blocks, so it's run in a separate goroutine.
// An error that prevents serving is sent to fatalError.
func (s *HTTPServer) Start(fatalError chan<- error) {
	s.started.Store(true)
	defer close(s.serveDone)

	network, addr := s.NetworkAndAddr()
	logger := s.Logger.With(
		log.String("network", network),
		log.String("address", addr),
		log.Bool("tls", s.TLS.Enabled),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)

	if err := s.listen(network, addr); err != nil {
		logger.Error("throttling API server failed to listen", log.Error(err))
		fatalError <- err
		return
	}
	logger.Info("throttling API server is listening", log.Int("port", s.GetPort()))

	var err error
	if s.TLS.Enabled {
		err = s.HTTPServer.ServeTLS(s.listener, s.TLS.Certificate, s.TLS.Key)
	} else {
		err = s.HTTPServer.Serve(s.listener)
	}
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("throttling API server closed")
		return
	}
	logger.Error("throttling API server failed", log.Error(err))
	fatalError <- err
}

func (s *HTTPServer) listen(network, addr string) error {
	if s.listener == nil {
		if network == networkUnix {
			if err := os.Remove(addr); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove stale unix socket %q: %w", addr, err)
			}
		}
		ln, err := net.Listen(network, addr)
		if err != nil {
			return err
		}
		s.listener = ln
	}
	if tcpAddr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		s.port.Store(int32(tcpAddr.Port)) //nolint:gosec // port fits int32
	}
	return nil
}

// Stop stops the server. Graceful stop waits for in-flight requests up to ShutdownTimeout.
func (s *HTTPServer) Stop(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing throttling API server")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("throttling API server closing failed", log.Error(err))
			return err
		}
		s.waitServeDone()
		return nil
	}

	s.Logger.Info("shutting down throttling API server", log.Duration("timeout", s.ShutdownTimeout))
	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("throttling API server shutdown failed", log.Error(err))
		return err
	}
	s.waitServeDone()
	s.Logger.Info("throttling API server shut down")
	return nil
}

func (s *HTTPServer) waitServeDone() {
	if s.started.Load() {
		<-s.serveDone
	}
}

// MustRegisterMetrics registers HTTP request metrics and panics on error.
func (s *HTTPServer) MustRegisterMetrics() {
	s.promMetrics.MustRegister()
}

// UnregisterMetrics unregisters HTTP request metrics.
func (s *HTTPServer) UnregisterMetrics() {
	s.promMetrics.Unregister()
}

// NetworkAndAddr returns "unix" and the socket path if the unix socket is configured, "tcp" and the address otherwise.
func (s *HTTPServer) NetworkAndAddr() (network string, addr string) {
	if s.UnixSocketPath != "" {
		return networkUnix, s.UnixSocketPath
	}
	return networkTCP, s.HTTPServer.Addr
}

// GetPort returns the TCP port the server listens on. It is 0 until the server has started listening.
func (s *HTTPServer) GetPort() int {
	return int(s.port.Load())
}
