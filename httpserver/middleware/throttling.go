/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/acronis/go-throttlekit/log"
	"github.com/acronis/go-throttlekit/restapi"
	"github.com/acronis/go-throttlekit/throttling"
)

// Request headers that identify the caller and the called service.
const (
	HeaderSourceSystem = "X-Source-System"
	HeaderServiceName  = "X-Service-Name"
)

// Log field keys added by the Throttling middleware.
const (
	ThrottlingSourceSystemLogFieldKey = "source_system"
	ThrottlingServiceNameLogFieldKey  = "service_name"
)

// Throttler decides whether a request of the scope may proceed.
// It's implemented by *throttling.Processor.
type Throttler interface {
	Throttle(scope throttling.Scope) error
}

// ContextThrottler is a Throttler that makes blocking calls (e.g. to a remote throttling daemon).
// The middleware passes the request context to it, so the call is canceled together with the request.
type ContextThrottler interface {
	Throttler
	ThrottleContext(ctx context.Context, scope throttling.Scope) error
}

// ThrottlingParams contains data for rejecting the HTTP request.
type ThrottlingParams struct {
	ErrDomain string
	Scope     throttling.Scope
	// Err is *throttling.ExceededError, throttling.ErrInvalidScope or an unexpected error.
	Err error
}

// ThrottlingGetScopeFunc returns the throttle scope of the request.
type ThrottlingGetScopeFunc func(r *http.Request) throttling.Scope

// ThrottlingOnRejectFunc is called for rejecting the HTTP request.
type ThrottlingOnRejectFunc func(
	rw http.ResponseWriter, r *http.Request, params ThrottlingParams, next http.Handler, logger log.FieldLogger)

// ThrottlingOpts represents options for the Throttling middleware.
type ThrottlingOpts struct {
	// GetScope returns the throttle scope. By default, it's built from X-Source-System and X-Service-Name headers,
	// a missing or "*" header means a wildcard.
	GetScope ThrottlingGetScopeFunc
	// OnReject is DefaultThrottlingOnReject by default.
	OnReject ThrottlingOnRejectFunc
	// DryRun makes the middleware only log exceeded limits and serve the request anyway.
	DryRun bool
}

type throttlingHandler struct {
	next      http.Handler
	throttler Throttler
	errDomain string
	opts      ThrottlingOpts
}

// Throttling is a middleware that counts requests per (source system, service name) scope
// and rejects them with 429 when the configured limit is exceeded.
func Throttling(throttler Throttler, errDomain string) func(next http.Handler) http.Handler {
	return ThrottlingWithOpts(throttler, errDomain, ThrottlingOpts{})
}

// ThrottlingWithOpts is a more configurable version of Throttling middleware.
func ThrottlingWithOpts(throttler Throttler, errDomain string, opts ThrottlingOpts) func(next http.Handler) http.Handler {
	if opts.GetScope == nil {
		opts.GetScope = GetThrottleScopeFromHeaders
	}
	if opts.OnReject == nil {
		opts.OnReject = DefaultThrottlingOnReject
	}
	return func(next http.Handler) http.Handler {
		return &throttlingHandler{next: next, throttler: throttler, errDomain: errDomain, opts: opts}
	}
}

func (h *throttlingHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	scope := h.opts.GetScope(r)
	r = r.WithContext(NewContextWithThrottleScope(r.Context(), scope))
	if lp := GetLoggingParamsFromContext(r.Context()); lp != nil {
		lp.ExtendFields(
			log.String(ThrottlingSourceSystemLogFieldKey, scope.SourceSystem.String()),
			log.String(ThrottlingServiceNameLogFieldKey, scope.ServiceName.String()),
		)
	}

	var err error
	if ctxThrottler, ok := h.throttler.(ContextThrottler); ok {
		err = ctxThrottler.ThrottleContext(r.Context(), scope)
	} else {
		err = h.throttler.Throttle(scope)
	}
	if err == nil {
		h.next.ServeHTTP(rw, r)
		return
	}

	logger := GetLoggerFromContext(r.Context())
	if h.opts.DryRun && errors.Is(err, throttling.ErrExceeded) {
		if logger != nil {
			logger.Warn("throttling limit exceeded, serving will be continued because of dry run mode",
				log.Error(err), log.String(userAgentLogFieldKey, r.UserAgent()))
		}
		h.next.ServeHTTP(rw, r)
		return
	}
	h.opts.OnReject(rw, r, ThrottlingParams{ErrDomain: h.errDomain, Scope: scope, Err: err}, h.next, logger)
}

// GetThrottleScopeFromHeaders builds the throttle scope from X-Source-System and X-Service-Name request headers.
func GetThrottleScopeFromHeaders(r *http.Request) throttling.Scope {
	return throttling.NewScope(r.Header.Get(HeaderSourceSystem), r.Header.Get(HeaderServiceName))
}

// DefaultThrottlingOnReject responds with 429 (and Retry-After equal to the rule interval) when the limit is exceeded,
// with 400 for a scope without any concrete field and with 500 otherwise.
func DefaultThrottlingOnReject(
	rw http.ResponseWriter, r *http.Request, params ThrottlingParams, _ http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger = logger.With(log.String(userAgentLogFieldKey, r.UserAgent()))
	}

	var exceededErr *throttling.ExceededError
	switch {
	case errors.As(params.Err, &exceededErr):
		rw.Header().Set("Retry-After", strconv.Itoa(exceededErr.Interval))
		apiErr := restapi.NewError(params.ErrDomain, restapi.ErrCodeTooManyRequests, restapi.ErrMessageTooManyRequests).
			AddContext("sourceSystem", exceededErr.Scope.SourceSystem.String()).
			AddContext("serviceName", exceededErr.Scope.ServiceName.String()).
			AddContext("limit", exceededErr.Limit).
			AddContext("interval", exceededErr.Interval).
			AddContext("count", exceededErr.Count)
		restapi.RespondError(rw, http.StatusTooManyRequests, apiErr, logger)

	case errors.Is(params.Err, throttling.ErrInvalidScope):
		apiErr := restapi.NewError(params.ErrDomain, restapi.ErrCodeBadRequest, params.Err.Error())
		restapi.RespondError(rw, http.StatusBadRequest, apiErr, logger)

	default:
		if logger != nil {
			logger.Error("throttling failed", log.Error(params.Err))
		}
		restapi.RespondInternalError(rw, params.ErrDomain, logger)
	}
}
