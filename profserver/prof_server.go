/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver provides an optional HTTP server exposing pprof endpoints under /debug/pprof/.
// It listens separately from the throttling API so that profiling is never reachable through the public address.
package profserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/acronis/go-throttlekit/httpserver/middleware"
	"github.com/acronis/go-throttlekit/log"
	"github.com/acronis/go-throttlekit/service"
)

const readHeaderTimeout = 5 * time.Second

// ProfServer serves pprof. It implements service.Unit.
type ProfServer struct {
	URL        string
	HTTPServer *http.Server
	Logger     log.FieldLogger

	done chan struct{}
}

var _ service.Unit = (*ProfServer)(nil)

// New creates a new ProfServer. Every profiling request is logged at start, since profiles may take long.
func New(cfg *Config, logger log.FieldLogger) *ProfServer {
	logger = logger.With(log.String("server", "profiling"))

	router := chi.NewRouter()
	router.Use(middleware.RequestID())
	router.Use(middleware.LoggingWithOpts(logger, middleware.LoggingOpts{RequestStart: true}))
	router.Mount("/debug", chimiddleware.Profiler())

	return &ProfServer{
		URL:        "http://" + cfg.Address,
		HTTPServer: &http.Server{Addr: cfg.Address, Handler: router, ReadHeaderTimeout: readHeaderTimeout},
		Logger:     logger,
		done:       make(chan struct{}),
	}
}

// Start serves pprof until Stop is called. It blocks, so it's run in a separate goroutine.
func (s *ProfServer) Start(fatalError chan<- error) {
	defer close(s.done)

	logger := s.Logger.With(log.String("address", s.HTTPServer.Addr))
	logger.Info("profiling HTTP server is starting")
	err := s.HTTPServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("profiling HTTP server closed")
		return
	}
	logger.Error("profiling HTTP server failed", log.Error(err))
	fatalError <- err
}

// Stop closes the server right away even if gracefully is true: CPU profiles and traces last for seconds.
func (s *ProfServer) Stop(_ bool) error {
	if err := s.HTTPServer.Close(); err != nil {
		s.Logger.Error("profiling HTTP server closing failed", log.Error(err))
		return err
	}
	<-s.done
	return nil
}
