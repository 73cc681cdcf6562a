/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"time"

	"github.com/acronis/go-throttlekit/log"
	"github.com/acronis/go-throttlekit/throttling"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyInternalRequestID
	ctxKeyLogger
	ctxKeyLoggingParams
	ctxKeyRequestStartTime
	ctxKeyThrottleScope
)

func valueFromContext[T any](ctx context.Context, key ctxKey) (T, bool) {
	v, ok := ctx.Value(key).(T)
	return v, ok
}

// NewContextWithRequestID returns a context carrying the request id (X-Request-ID).
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// GetRequestIDFromContext returns the request id (X-Request-ID) or "".
func GetRequestIDFromContext(ctx context.Context) string {
	id, _ := valueFromContext[string](ctx, ctxKeyRequestID)
	return id
}

// NewContextWithInternalRequestID returns a context carrying the id generated by the daemon for the request.
func NewContextWithInternalRequestID(ctx context.Context, internalRequestID string) context.Context {
	return context.WithValue(ctx, ctxKeyInternalRequestID, internalRequestID)
}

// GetInternalRequestIDFromContext returns the internal request id or "".
func GetInternalRequestIDFromContext(ctx context.Context) string {
	id, _ := valueFromContext[string](ctx, ctxKeyInternalRequestID)
	return id
}

// NewContextWithLogger returns a context carrying the request-scoped logger.
func NewContextWithLogger(ctx context.Context, logger log.FieldLogger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, logger)
}

// GetLoggerFromContext returns the request-scoped logger or nil.
func GetLoggerFromContext(ctx context.Context) log.FieldLogger {
	logger, _ := valueFromContext[log.FieldLogger](ctx, ctxKeyLogger)
	return logger
}

// NewContextWithLoggingParams returns a context carrying the params added to the "response completed" entry.
func NewContextWithLoggingParams(ctx context.Context, loggingParams *LoggingParams) context.Context {
	return context.WithValue(ctx, ctxKeyLoggingParams, loggingParams)
}

// GetLoggingParamsFromContext returns the logging params or nil.
func GetLoggingParamsFromContext(ctx context.Context) *LoggingParams {
	lp, _ := valueFromContext[*LoggingParams](ctx, ctxKeyLoggingParams)
	return lp
}

// NewContextWithRequestStartTime returns a context carrying the time the server started handling the request.
func NewContextWithRequestStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyRequestStartTime, startTime)
}

// GetRequestStartTimeFromContext returns the request start time or the zero time.
func GetRequestStartTimeFromContext(ctx context.Context) time.Time {
	startTime, _ := valueFromContext[time.Time](ctx, ctxKeyRequestStartTime)
	return startTime
}

// NewContextWithThrottleScope returns a context carrying the throttle scope of the request.
func NewContextWithThrottleScope(ctx context.Context, scope throttling.Scope) context.Context {
	return context.WithValue(ctx, ctxKeyThrottleScope, scope)
}

// GetThrottleScopeFromContext returns the throttle scope of the request, if the throttling middleware has resolved it.
func GetThrottleScopeFromContext(ctx context.Context) (throttling.Scope, bool) {
	return valueFromContext[throttling.Scope](ctx, ctxKeyThrottleScope)
}
