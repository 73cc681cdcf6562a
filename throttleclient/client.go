/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package throttleclient provides a client of the throttling daemon HTTP API.
// Client implements middleware.Throttler, so services can throttle their incoming requests
// with a shared daemon instead of an in-process processor:
//
//	client, err := throttleclient.New(cfg, throttleclient.Opts{UserAgent: "crm-service"})
//	...
//	router.Use(middleware.Throttling(client, "CRM"))
package throttleclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/acronis/go-throttlekit/httpclient"
	"github.com/acronis/go-throttlekit/httpserver/middleware"
	"github.com/acronis/go-throttlekit/internal/api"
	"github.com/acronis/go-throttlekit/log"
	"github.com/acronis/go-throttlekit/restapi"
	"github.com/acronis/go-throttlekit/retry"
	"github.com/acronis/go-throttlekit/throttling"
)

// ResponseError is returned when the daemon responds with an unexpected status code.
type ResponseError struct {
	StatusCode int
	// APIError is nil if the response body is not a REST API error.
	APIError *restapi.Error
}

func (e *ResponseError) Error() string {
	if e.APIError == nil {
		return fmt.Sprintf("throttling daemon responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("throttling daemon responded with status %d (%s: %s)",
		e.StatusCode, e.APIError.Code, e.APIError.Message)
}

// Opts represents options for the Client.
type Opts struct {
	// UserAgent is set in requests to the daemon.
	UserAgent string

	// LoggerProvider returns a logger for the request context.
	// A logger from the request context (see middleware.GetLoggerFromContext) is used if it's nil.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// MetricsCollector is required if metrics are enabled in the HTTP configuration.
	MetricsCollector httpclient.MetricsCollector

	// Transport is the innermost round tripper. A clone of http.DefaultTransport is used if it's nil.
	Transport http.RoundTripper
}

// Client calls the throttling daemon. It's safe for concurrent use.
type Client struct {
	baseURL    string
	apiURL     string
	httpClient *http.Client
}

var _ middleware.Throttler = (*Client)(nil)
var _ middleware.ContextThrottler = (*Client)(nil)

// New creates a new Client.
func New(cfg *Config, opts Opts) (*Client, error) {
	httpCfg := cfg.HTTP
	if httpCfg == nil {
		httpCfg = httpclient.NewDefaultConfig()
	}
	httpClient, err := httpclient.New(httpCfg, httpclient.Opts{
		UserAgent:        opts.UserAgent,
		Delegate:         opts.Transport,
		LoggerProvider:   opts.LoggerProvider,
		MetricsCollector: opts.MetricsCollector,
	})
	if err != nil {
		return nil, fmt.Errorf("create HTTP client: %w", err)
	}
	baseURL := strings.TrimRight(cfg.URL, "/")
	return &Client{
		baseURL:    baseURL,
		apiURL:     fmt.Sprintf("%s/api/%s/v%d", baseURL, api.ServiceNameInURL, api.Version),
		httpClient: httpClient,
	}, nil
}

// Throttle is ThrottleContext with the background context.
func (c *Client) Throttle(scope throttling.Scope) error {
	return c.ThrottleContext(context.Background(), scope)
}

// ThrottleContext counts the request of the scope in the daemon.
// Errors match the ones of throttling.Processor: *throttling.ExceededError if the limit is exceeded
// and throttling.ErrInvalidScope if neither field of the scope is concrete.
func (c *Client) ThrottleContext(ctx context.Context, scope throttling.Scope) error {
	reqBody, err := json.Marshal(api.ThrottleRequestData{
		SourceSystem: scope.SourceSystem.String(),
		ServiceName:  scope.ServiceName.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal throttle request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/throttle", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create throttle request: %w", err)
	}
	req.Header.Set("Content-Type", restapi.ContentTypeAppJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send throttle request: %w", err)
	}
	defer closeResponseBody(resp)

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusTooManyRequests:
		return makeExceededError(scope, resp)
	}
	respErr := readResponseError(resp)
	if resp.StatusCode == http.StatusBadRequest && respErr.APIError != nil &&
		respErr.APIError.Message == throttling.ErrInvalidScope.Error() {
		return throttling.ErrInvalidScope
	}
	return respErr
}

// Rules returns the global switch and the rules currently applied by the daemon,
// from the most to the least specific.
func (c *Client) Rules(ctx context.Context) (disabled bool, rules []throttling.Rule, err error) {
	var respData api.RulesResponseData
	if err = c.getJSON(ctx, c.apiURL+"/rules", &respData); err != nil {
		return false, nil, err
	}
	rules = make([]throttling.Rule, 0, len(respData.Rules))
	for _, r := range respData.Rules {
		rules = append(rules, makeRule(r))
	}
	return respData.Disabled, rules, nil
}

// Resolve returns the rule the daemon applies to the scope. Nothing is counted.
// It returns false if throttling is disabled or no rule matches.
func (c *Client) Resolve(ctx context.Context, scope throttling.Scope) (throttling.Rule, bool, error) {
	query := url.Values{}
	query.Set(api.QueryParamSourceSystem, scope.SourceSystem.String())
	query.Set(api.QueryParamServiceName, scope.ServiceName.String())

	var respData api.ResolveResponseData
	err := c.getJSON(ctx, c.apiURL+"/resolve?"+query.Encode(), &respData)
	if err != nil {
		var respErr *ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return throttling.Rule{}, false, nil
		}
		return throttling.Rule{}, false, err
	}
	return makeRule(respData.Rule), true, nil
}

// WaitReady polls the daemon health check until it reports healthy,
// the policy gives up or ctx is done.
func (c *Client) WaitReady(ctx context.Context, policy retry.Policy) error {
	return retry.DoWithRetry(ctx, policy, nil, nil, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer closeResponseBody(resp)
		if resp.StatusCode != http.StatusOK {
			return readResponseError(resp)
		}
		return nil
	})
}

func (c *Client) getJSON(ctx context.Context, reqURL string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer closeResponseBody(resp)
	if resp.StatusCode != http.StatusOK {
		return readResponseError(resp)
	}
	if err = json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// makeExceededError restores the error from the 429 response context.
// The interval falls back to Retry-After header if the context is missing.
func makeExceededError(scope throttling.Scope, resp *http.Response) *throttling.ExceededError {
	exceededErr := &throttling.ExceededError{Scope: scope}
	exceededErr.Interval, _ = strconv.Atoi(resp.Header.Get("Retry-After"))
	respErr := readResponseError(resp)
	if respErr.APIError == nil {
		return exceededErr
	}
	errCtx := respErr.APIError.Context
	if v, ok := errCtx["interval"]; ok {
		exceededErr.Interval = cast.ToInt(v)
	}
	exceededErr.Limit = cast.ToInt(errCtx["limit"])
	exceededErr.Count = cast.ToInt(errCtx["count"])
	return exceededErr
}

func readResponseError(resp *http.Response) *ResponseError {
	respErr := &ResponseError{StatusCode: resp.StatusCode}
	var respData restapi.ErrorResponseData
	if err := json.NewDecoder(resp.Body).Decode(&respData); err == nil && respData.Err != nil {
		respErr.APIError = respData.Err
	}
	return respErr
}

func makeRule(r api.RuleData) throttling.Rule {
	return throttling.Rule{
		Scope: throttling.NewScope(r.SourceSystem, r.ServiceName),
		Props: throttling.Props{Limit: r.Limit, Interval: r.Interval},
	}
}

func closeResponseBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
