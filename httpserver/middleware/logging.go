/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/acronis/go-throttlekit/log"
)

const (
	userAgentLogFieldKey = "user_agent"

	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

const defaultSlowRequestThreshold = time.Second

// LoggingOpts represents options for Logging middleware.
type LoggingOpts struct {
	// RequestStart enables the "request started" entry.
	RequestStart bool
	// RequestHeaders maps request header names to log field keys.
	RequestHeaders map[string]string
	// ExcludedEndpoints are logged only if the response status is 4xx or 5xx.
	ExcludedEndpoints []string
	// AddRequestInfoToLogger makes the logger in the request context carry the request fields (method, uri, etc.),
	// otherwise it carries only request ids.
	AddRequestInfoToLogger bool
	// SlowRequestThreshold raises "response completed" to the warn level. It's 1s if zero.
	SlowRequestThreshold time.Duration
}

type loggingHandler struct {
	next   http.Handler
	logger log.FieldLogger
	opts   LoggingOpts
}

// Logging is a middleware that logs completed requests and puts the request-scoped logger
// and LoggingParams into the request context.
func Logging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return LoggingWithOpts(logger, LoggingOpts{})
}

// LoggingWithOpts is Logging with custom options.
func LoggingWithOpts(logger log.FieldLogger, opts LoggingOpts) func(next http.Handler) http.Handler {
	if opts.SlowRequestThreshold == 0 {
		opts.SlowRequestThreshold = defaultSlowRequestThreshold
	}
	return func(next http.Handler) http.Handler {
		return &loggingHandler{next: next, logger: logger, opts: opts}
	}
}

func (h *loggingHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := GetRequestStartTimeFromContext(ctx)
	if startTime.IsZero() {
		startTime = time.Now()
		ctx = NewContextWithRequestStartTime(ctx, startTime)
	}

	idsLogger := h.logger.With(
		log.String("request_id", GetRequestIDFromContext(ctx)),
		log.String("int_request_id", GetInternalRequestIDFromContext(ctx)),
	)
	reqLogger := idsLogger.With(h.requestFields(r)...)
	ctxLogger := idsLogger
	if h.opts.AddRequestInfoToLogger {
		ctxLogger = reqLogger
	}

	excluded := isExcludedEndpoint(r.URL.Path, h.opts.ExcludedEndpoints)
	if h.opts.RequestStart && !excluded {
		reqLogger.Info("request started")
	}

	lp := &LoggingParams{}
	wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
	h.next.ServeHTTP(wrw, r.WithContext(NewContextWithLoggingParams(NewContextWithLogger(ctx, ctxLogger), lp)))

	status := wrw.Status()
	if status == 0 {
		status = http.StatusOK
	}
	if excluded && status < http.StatusBadRequest {
		return
	}
	h.logCompleted(reqLogger, time.Since(startTime), status, wrw.BytesWritten(), lp.getFields())
}

func (h *loggingHandler) requestFields(r *http.Request) []log.Field {
	fields := make([]log.Field, 0, 6+len(h.opts.RequestHeaders))
	fields = append(fields,
		log.String("method", r.Method),
		log.String("uri", r.RequestURI),
		log.String("remote_addr", r.RemoteAddr),
		log.Int64("content_length", r.ContentLength),
		log.String(userAgentLogFieldKey, r.UserAgent()),
	)
	if originAddr := getOriginAddr(r); originAddr != "" {
		fields = append(fields, log.String("origin_addr", originAddr))
	}
	for headerName, fieldKey := range h.opts.RequestHeaders {
		fields = append(fields, log.String(fieldKey, r.Header.Get(headerName)))
	}
	return fields
}

func (h *loggingHandler) logCompleted(
	logger log.FieldLogger, duration time.Duration, status, bytesSent int, extraFields []log.Field,
) {
	fields := append([]log.Field{
		log.Int64("duration_ms", duration.Milliseconds()),
		log.Int("status", status),
		log.Int("bytes_sent", bytesSent),
	}, extraFields...)
	msg := fmt.Sprintf("response completed in %.3fs", duration.Seconds())
	if duration < h.opts.SlowRequestThreshold {
		logger.Info(msg, fields...)
		return
	}
	logger.Warn(msg, append(fields, log.Bool("slow_request", true))...)
}

// getOriginAddr returns the first X-Forwarded-For address or X-Real-IP.
func getOriginAddr(r *http.Request) string {
	if forwardedFor := r.Header.Get(headerForwardedFor); forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		return strings.TrimSpace(first)
	}
	return strings.TrimSpace(r.Header.Get(headerRealIP))
}
