/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient provides the HTTP transport for calling the throttling daemon.
// The transport is a chain of round trippers (retries, request ID propagation, User-Agent,
// client-side rate limiting, metrics and logging) configured by Config.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/go-throttlekit/log"
)

// Opts represents options for New.
type Opts struct {
	// UserAgent is set in requests without User-Agent header.
	UserAgent string

	// Delegate is the innermost round tripper. A clone of http.DefaultTransport is used if it's nil.
	Delegate http.RoundTripper

	// LoggerProvider returns a logger for the request context.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// MetricsCollector is required if metrics are enabled in the configuration.
	MetricsCollector MetricsCollector
}

// New creates an HTTP client with the round trippers enabled in the configuration.
func New(cfg *Config, opts Opts) (*http.Client, error) {
	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}

	if cfg.Log.Enabled {
		delegate = NewLoggingRoundTripper(delegate, LoggingRoundTripperOpts{
			Mode:                 cfg.Log.Mode,
			SlowRequestThreshold: time.Duration(cfg.Log.SlowRequestThreshold),
			LoggerProvider:       opts.LoggerProvider,
		})
	}

	if cfg.Metrics.Enabled {
		if opts.MetricsCollector == nil {
			return nil, fmt.Errorf("metrics are enabled, but metrics collector is not specified")
		}
		delegate = NewMetricsRoundTripper(delegate, opts.MetricsCollector)
	}

	if cfg.RateLimits.Enabled {
		var err error
		if delegate, err = NewRateLimitingRoundTripper(delegate, cfg.RateLimits.Limit, RateLimitingRoundTripperOpts{
			Burst:       cfg.RateLimits.Burst,
			WaitTimeout: time.Duration(cfg.RateLimits.WaitTimeout),
		}); err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
	}

	if opts.UserAgent != "" {
		delegate = NewUserAgentRoundTripper(delegate, opts.UserAgent)
	}

	delegate = NewRequestIDRoundTripper(delegate)

	if cfg.Retries.Enabled {
		policy, err := cfg.Retries.BackoffPolicy()
		if err != nil {
			return nil, fmt.Errorf("create retry policy: %w", err)
		}
		delegate = NewRetryableRoundTripper(delegate, RetryableRoundTripperOpts{
			BackoffPolicy:  policy,
			LoggerProvider: opts.LoggerProvider,
		})
	}

	return &http.Client{Transport: delegate, Timeout: time.Duration(cfg.Timeout)}, nil
}
