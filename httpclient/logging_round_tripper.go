/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/go-throttlekit/httpserver/middleware"
	"github.com/acronis/go-throttlekit/log"
)

// LoggingMode selects which requests are logged.
type LoggingMode string

// Logging modes.
const (
	// LoggingModeAll logs every request.
	LoggingModeAll LoggingMode = "all"
	// LoggingModeFailed logs failed requests (errors and 5xx) and slow ones.
	// 429 is the expected answer of the throttling daemon, so it's not a failure.
	LoggingModeFailed LoggingMode = "failed"
)

// LoggingRoundTripperOpts represents options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// Mode is LoggingModeFailed if it's empty.
	Mode LoggingMode

	// SlowRequestThreshold makes requests taking longer be logged at warn level in any mode.
	SlowRequestThreshold time.Duration

	// LoggerProvider returns a logger for the request context.
	// A logger from the request context (see middleware.GetLoggerFromContext) is used if it's nil.
	LoggerProvider func(ctx context.Context) log.FieldLogger
}

// LoggingRoundTripper logs outgoing requests.
// If the request is made while serving an incoming one, the elapsed time is added to its log entry
// as the external_request_throttling_ms field.
type LoggingRoundTripper struct {
	Delegate http.RoundTripper
	opts     LoggingRoundTripperOpts
}

// NewLoggingRoundTripper creates a new LoggingRoundTripper.
func NewLoggingRoundTripper(delegate http.RoundTripper, opts LoggingRoundTripperOpts) *LoggingRoundTripper {
	if opts.Mode == "" {
		opts.Mode = LoggingModeFailed
	}
	return &LoggingRoundTripper{Delegate: delegate, opts: opts}
}

// RoundTrip sends the request and logs its outcome.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx := r.Context()
	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	if lp := middleware.GetLoggingParamsFromContext(ctx); lp != nil {
		lp.ExtendFields(log.Int64("external_request_throttling_ms", elapsed.Milliseconds()))
	}

	slow := rt.opts.SlowRequestThreshold > 0 && elapsed >= rt.opts.SlowRequestThreshold
	failed := err != nil || (resp != nil && resp.StatusCode >= http.StatusInternalServerError)
	if rt.opts.Mode == LoggingModeFailed && !failed && !slow {
		return resp, err
	}

	fields := []log.Field{
		log.String("method", r.Method),
		log.String("uri", r.URL.String()),
		log.DurationIn(elapsed, time.Millisecond),
	}
	if resp != nil {
		fields = append(fields, log.Int("status", resp.StatusCode))
	}
	if reqID := middleware.GetRequestIDFromContext(ctx); reqID != "" {
		fields = append(fields, log.String("request_id", reqID))
	}
	msg := fmt.Sprintf("client HTTP request %s %s", r.Method, r.URL.Path)
	logger := loggerFromProvider(ctx, rt.opts.LoggerProvider)
	switch {
	case failed:
		logger.Error(msg+" failed", append(fields, log.Error(err))...)
	case slow:
		logger.Warn(msg+" is slow", fields...)
	default:
		logger.Info(msg+" done", fields...)
	}
	return resp, err
}

func loggerFromProvider(ctx context.Context, provider func(ctx context.Context) log.FieldLogger) log.FieldLogger {
	if provider != nil {
		if logger := provider(ctx); logger != nil {
			return logger
		}
	}
	if logger := middleware.GetLoggerFromContext(ctx); logger != nil {
		return logger
	}
	return log.NewDisabledLogger()
}
