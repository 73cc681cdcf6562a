/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package api implements the HTTP API of the throttling daemon (mounted at /api/throttling/v1).
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-throttlekit/httpserver/middleware"
	"github.com/acronis/go-throttlekit/log"
	"github.com/acronis/go-throttlekit/restapi"
	"github.com/acronis/go-throttlekit/throttling"
)

// ErrDomain is the domain of errors returned by the API.
const ErrDomain = "Throttling"

// ServiceNameInURL is the service part of the API path.
const ServiceNameInURL = "throttling"

// Version is the API version.
const Version = 1

// Query parameters of the resolve endpoint.
const (
	QueryParamSourceSystem = "sourceSystem"
	QueryParamServiceName  = "serviceName"
)

// ThrottleRequestData is the body of POST /throttle.
// A missing or "*" field means the request is not attributed to a particular source system (or service).
type ThrottleRequestData struct {
	SourceSystem string `json:"sourceSystem"`
	ServiceName  string `json:"serviceName"`
}

// RuleData is a throttling rule in API responses.
type RuleData struct {
	SourceSystem string `json:"sourceSystem"`
	ServiceName  string `json:"serviceName"`
	Limit        int    `json:"limit"`
	Interval     int    `json:"interval"`
}

// RulesResponseData is the body of the GET /rules response.
type RulesResponseData struct {
	Disabled bool       `json:"disabled"`
	Rules    []RuleData `json:"rules"`
}

// ResolveResponseData is the body of the GET /resolve response.
type ResolveResponseData struct {
	SourceSystem string   `json:"sourceSystem"`
	ServiceName  string   `json:"serviceName"`
	Rule         RuleData `json:"rule"`
}

// Handler serves the throttling API on top of the processor.
type Handler struct {
	processor *throttling.Processor
	dryRun    bool
}

// HandlerOpts represents options for the Handler.
type HandlerOpts struct {
	// DryRun makes GET /check serve exceeded requests anyway (exceeding is only logged).
	DryRun bool
}

// NewHandler creates a new Handler.
func NewHandler(processor *throttling.Processor, opts HandlerOpts) *Handler {
	return &Handler{processor: processor, dryRun: opts.DryRun}
}

// Routes registers the API endpoints in the router.
func (h *Handler) Routes(router chi.Router) {
	router.Post("/throttle", h.throttle)
	router.With(middleware.ThrottlingWithOpts(h.processor, ErrDomain, middleware.ThrottlingOpts{DryRun: h.dryRun})).
		Get("/check", func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(http.StatusNoContent)
		})
	router.Get("/rules", h.rules)
	router.Get("/resolve", h.resolve)
}

// throttle counts the request of the scope from the body.
// 204 means the request may proceed, 429 means the limit is exceeded.
func (h *Handler) throttle(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	var reqData ThrottleRequestData
	if err := restapi.DecodeRequestJSON(r, &reqData); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, ErrDomain, err, logger)
		return
	}
	scope := throttling.NewScope(reqData.SourceSystem, reqData.ServiceName)
	if lp := middleware.GetLoggingParamsFromContext(r.Context()); lp != nil {
		lp.ExtendFields(
			log.String(middleware.ThrottlingSourceSystemLogFieldKey, scope.SourceSystem.String()),
			log.String(middleware.ThrottlingServiceNameLogFieldKey, scope.ServiceName.String()),
		)
	}

	if err := h.processor.Throttle(scope); err != nil {
		middleware.DefaultThrottlingOnReject(rw, r,
			middleware.ThrottlingParams{ErrDomain: ErrDomain, Scope: scope, Err: err}, nil, logger)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rules(rw http.ResponseWriter, r *http.Request) {
	cfg := h.processor.Configuration()
	respData := RulesResponseData{Disabled: cfg.Disabled(), Rules: []RuleData{}}
	for _, rule := range cfg.Rules() {
		respData.Rules = append(respData.Rules, makeRuleData(rule))
	}
	restapi.RespondJSON(rw, respData, middleware.GetLoggerFromContext(r.Context()))
}

// resolve returns the rule that applies to the scope from the query without counting anything.
func (h *Handler) resolve(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	query := r.URL.Query()
	scope := throttling.NewScope(query.Get(QueryParamSourceSystem), query.Get(QueryParamServiceName))

	rule, ok := h.processor.Configuration().ResolveRule(scope)
	if !ok {
		apiErr := restapi.NewError(ErrDomain, restapi.ErrCodeNotFound, "No throttling rule applies.").
			AddContext(QueryParamSourceSystem, scope.SourceSystem.String()).
			AddContext(QueryParamServiceName, scope.ServiceName.String())
		restapi.RespondError(rw, http.StatusNotFound, apiErr, logger)
		return
	}
	restapi.RespondJSON(rw, ResolveResponseData{
		SourceSystem: scope.SourceSystem.String(),
		ServiceName:  scope.ServiceName.String(),
		Rule:         makeRuleData(rule),
	}, logger)
}

func makeRuleData(rule throttling.Rule) RuleData {
	return RuleData{
		SourceSystem: rule.Scope.SourceSystem.String(),
		ServiceName:  rule.Scope.ServiceName.String(),
		Limit:        rule.Props.Limit,
		Interval:     rule.Props.Interval,
	}
}
