/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acronis/go-throttlekit/log"
	"github.com/acronis/go-throttlekit/retry"
)

// RetryAttemptNumberHeader is an HTTP header containing the serial number of the retry attempt.
const RetryAttemptNumberHeader = "X-Retry-Attempt"

// CheckRetryFunc tells whether the request should be sent again after the attempt
// that ended with the response or the error.
type CheckRetryFunc func(req *http.Request, resp *http.Response, roundTripErr error) bool

// RetryableRoundTripperOpts represents options for RetryableRoundTripper.
type RetryableRoundTripperOpts struct {
	// BackoffPolicy computes delays between attempts and decides when to give up.
	// Exponential backoff with the default parameters and 3 retries is used if it's nil.
	BackoffPolicy retry.Policy

	// CheckRetry is DefaultCheckRetry if it's nil.
	CheckRetry CheckRetryFunc

	// IgnoreRetryAfter makes the round tripper use BackoffPolicy even if the response has Retry-After header.
	IgnoreRetryAfter bool

	// LoggerProvider returns a logger for the request context.
	// A logger from the request context (see middleware.GetLoggerFromContext) is used if it's nil.
	LoggerProvider func(ctx context.Context) log.FieldLogger
}

// RetryableRoundTripper repeats requests that failed transiently.
// The throttling verdict (429) is never retried: it's a decision, not a failure.
type RetryableRoundTripper struct {
	Delegate http.RoundTripper
	opts     RetryableRoundTripperOpts
}

// NewRetryableRoundTripper creates a new RetryableRoundTripper.
func NewRetryableRoundTripper(delegate http.RoundTripper, opts RetryableRoundTripperOpts) *RetryableRoundTripper {
	if opts.BackoffPolicy == nil {
		opts.BackoffPolicy = retry.NewExponentialBackoffPolicy(retry.DefaultExponentialInitialInterval, 3)
	}
	if opts.CheckRetry == nil {
		opts.CheckRetry = DefaultCheckRetry
	}
	return &RetryableRoundTripper{Delegate: delegate, opts: opts}
}

// RoundTrip sends the request and repeats it while CheckRetry allows and the backoff policy doesn't stop.
func (rt *RetryableRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	logger := loggerFromProvider(ctx, rt.opts.LoggerProvider)

	rewindBody := func(*http.Request) error { return nil }
	if req.Body != nil && req.Body != http.NoBody {
		origBody := req.Body
		defer func() { _ = origBody.Close() }() // Per RoundTripper contract.
		var err error
		if rewindBody, err = makeRequestBodyRewindable(req); err != nil {
			return nil, fmt.Errorf("retryable round trip: %w", err)
		}
	}

	bf := rt.opts.BackoffPolicy.NewBackOff()
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			req = req.Clone(ctx) // Per RoundTripper contract.
			req.Header.Set(RetryAttemptNumberHeader, strconv.Itoa(attempt))
			if err := rewindBody(req); err != nil {
				return nil, fmt.Errorf("retryable round trip: %w", err)
			}
		}

		resp, err := rt.Delegate.RoundTrip(req)
		if !rt.opts.CheckRetry(req, resp, err) {
			return resp, err
		}

		delay, ok := rt.nextDelay(bf, resp)
		if !ok {
			logger.Warn(fmt.Sprintf("giving up retrying %s %s, %d request(s) done", req.Method, req.URL.Path, attempt+1))
			return resp, err
		}
		if resp != nil {
			drainResponseBody(resp, logger)
		}
		logger.Info(fmt.Sprintf("retrying %s %s in %s", req.Method, req.URL.Path, delay),
			log.Int("attempt", attempt+1), log.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (rt *RetryableRoundTripper) nextDelay(bf backoff.BackOff, resp *http.Response) (time.Duration, bool) {
	delay := bf.NextBackOff()
	if delay == backoff.Stop {
		return 0, false
	}
	if resp != nil && !rt.opts.IgnoreRetryAfter {
		if retryAfter, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			return retryAfter, true
		}
	}
	return delay, true
}

// DefaultCheckRetry retries connection failures of any request, since the daemon hasn't counted it yet,
// and server-side failures (502, 503, 504) or broken connections of idempotent requests only.
// Counting requests (POST) are not idempotent: repeating one that might have reached the daemon
// could count it twice.
func DefaultCheckRetry(req *http.Request, resp *http.Response, roundTripErr error) bool {
	if roundTripErr != nil {
		if errors.Is(roundTripErr, context.Canceled) || errors.Is(roundTripErr, context.DeadlineExceeded) {
			return false
		}
		var opErr *net.OpError
		if errors.As(roundTripErr, &opErr) && opErr.Op == "dial" {
			return true
		}
		return isIdempotent(req) &&
			(errors.Is(roundTripErr, io.EOF) || errors.Is(roundTripErr, io.ErrUnexpectedEOF) || isTemporary(roundTripErr))
	}
	if resp == nil {
		return false
	}
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return isIdempotent(req)
	}
	return false
}

func isIdempotent(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func isTemporary(err error) bool {
	var tErr interface{ Temporary() bool }
	return errors.As(err, &tErr) && tErr.Temporary()
}

// parseRetryAfter parses Retry-After header value in seconds or HTTP-date form.
func parseRetryAfter(val string) (time.Duration, bool) {
	if val == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(val); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	t, err := http.ParseTime(val)
	if err != nil {
		return 0, false
	}
	if d := time.Until(t); d > 0 {
		return d, true
	}
	return 0, true
}
