/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/acronis/go-throttlekit/log"
	"github.com/acronis/go-throttlekit/restapi"
)

// RecoveryDefaultStackSize is the number of stack bytes logged on panic by default.
const RecoveryDefaultStackSize = 8192

// RecoveryOpts represents options for Recovery middleware.
type RecoveryOpts struct {
	// StackSize is the number of stack bytes to log, 0 disables stack logging.
	StackSize int
}

type recoveryHandler struct {
	next        http.Handler
	errorDomain string
	opts        RecoveryOpts
}

// Recovery is a middleware that turns a panic in the handler into 500 with the internalError body.
// The panic value and the stack are logged with the request-scoped logger.
func Recovery(errDomain string) func(next http.Handler) http.Handler {
	return RecoveryWithOpts(errDomain, RecoveryOpts{StackSize: RecoveryDefaultStackSize})
}

// RecoveryWithOpts is Recovery with custom options.
func RecoveryWithOpts(errDomain string, opts RecoveryOpts) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &recoveryHandler{next: next, errorDomain: errDomain, opts: opts}
	}
}

func (h *recoveryHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	defer func() {
		if p := recover(); p != nil {
			h.handlePanic(rw, r, p)
		}
	}()
	h.next.ServeHTTP(rw, r)
}

func (h *recoveryHandler) handlePanic(rw http.ResponseWriter, r *http.Request, p interface{}) {
	logger := GetLoggerFromContext(r.Context())

	// http.Server handles http.ErrAbortHandler itself and doesn't log it.
	if p == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
		if logger != nil {
			logger.Warn("request has been aborted", log.Error(http.ErrAbortHandler))
		}
		panic(p)
	}

	if logger != nil {
		logger.Error(fmt.Sprintf("Panic: %+v", p), h.stackFields()...)
	}
	restapi.RespondInternalError(rw, h.errorDomain, logger)
}

func (h *recoveryHandler) stackFields() []log.Field {
	if h.opts.StackSize <= 0 {
		return nil
	}
	buf := make([]byte, h.opts.StackSize)
	return []log.Field{log.String("stack", string(buf[:runtime.Stack(buf, false)]))}
}
