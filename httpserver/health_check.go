/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/acronis/go-throttlekit/httpserver/middleware"
	"github.com/acronis/go-throttlekit/log"
	"github.com/acronis/go-throttlekit/restapi"
)

// StatusClientClosedRequest is the nginx status for requests the client closed before the response was sent.
const StatusClientClosedRequest = 499

// HealthCheckComponentName is a name of the checked component (e.g. "throttling").
type HealthCheckComponentName = string

// HealthCheckStatus is a status of a single component.
type HealthCheckStatus int

// Health-check statuses.
const (
	HealthCheckStatusOK HealthCheckStatus = iota
	HealthCheckStatusFail
)

// HealthCheckResult maps components to their statuses.
type HealthCheckResult = map[HealthCheckComponentName]HealthCheckStatus

// HealthCheck checks components of the daemon.
type HealthCheck = func(ctx context.Context) (HealthCheckResult, error)

type healthCheckResponseData struct {
	Components map[string]bool `json:"components"`
}

// HealthCheckHandler serves /healthz: 200 if all components are healthy, 503 otherwise.
// A failed check gives 500, and a request closed by the client gives 499.
type HealthCheckHandler struct {
	check HealthCheck
}

// NewHealthCheckHandler creates a new HealthCheckHandler. Nil check reports no components.
func NewHealthCheckHandler(check HealthCheck) *HealthCheckHandler {
	if check == nil {
		check = func(ctx context.Context) (HealthCheckResult, error) {
			return HealthCheckResult{}, ctx.Err()
		}
	}
	return &HealthCheckHandler{check: check}
}

func (h *HealthCheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLoggerFromContext(ctx)

	result, err := h.check(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			rw.WriteHeader(StatusClientClosedRequest)
			return
		}
		if logger != nil {
			logger.Error("health check failed", log.Error(err))
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	respData := healthCheckResponseData{Components: make(map[string]bool, len(result))}
	for name, componentStatus := range result {
		healthy := componentStatus == HealthCheckStatusOK
		respData.Components[name] = healthy
		if !healthy {
			status = http.StatusServiceUnavailable
		}
	}
	restapi.RespondCodeAndJSON(rw, status, respData, logger)
}
