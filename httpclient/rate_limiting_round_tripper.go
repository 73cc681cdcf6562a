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

	"golang.org/x/time/rate"
)

// Default parameter values for RateLimitingRoundTripper.
const (
	DefaultRateLimitingBurst       = 1
	DefaultRateLimitingWaitTimeout = 15 * time.Second
)

// RateLimitingRoundTripperOpts represents options for RateLimitingRoundTripper.
type RateLimitingRoundTripperOpts struct {
	// Burst is DefaultRateLimitingBurst if it's 0.
	Burst int
	// WaitTimeout is DefaultRateLimitingWaitTimeout if it's 0.
	WaitTimeout time.Duration
}

// RateLimitingRoundTripper limits the rate of outgoing requests (token bucket),
// so a burst of callers doesn't overload the throttling daemon itself.
// Requests wait for a token at most WaitTimeout.
type RateLimitingRoundTripper struct {
	Delegate    http.RoundTripper
	limiter     *rate.Limiter
	waitTimeout time.Duration
}

// NewRateLimitingRoundTripper creates a new RateLimitingRoundTripper allowing rateLimit requests per second.
func NewRateLimitingRoundTripper(
	delegate http.RoundTripper, rateLimit int, opts RateLimitingRoundTripperOpts,
) (*RateLimitingRoundTripper, error) {
	if rateLimit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive")
	}
	if opts.Burst < 0 {
		return nil, fmt.Errorf("burst must be positive")
	}
	if opts.Burst == 0 {
		opts.Burst = DefaultRateLimitingBurst
	}
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = DefaultRateLimitingWaitTimeout
	}
	return &RateLimitingRoundTripper{
		Delegate:    delegate,
		limiter:     rate.NewLimiter(rate.Limit(rateLimit), opts.Burst),
		waitTimeout: opts.WaitTimeout,
	}, nil
}

// RoundTrip waits for the rate limiter and sends the request.
func (rt *RateLimitingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(r.Context(), rt.waitTimeout)
	defer cancel()
	if err := rt.limiter.Wait(ctx); err != nil {
		if r.Body != nil {
			_ = r.Body.Close() // Per RoundTripper contract.
		}
		if r.Context().Err() != nil {
			return nil, r.Context().Err()
		}
		return nil, &RateLimitingWaitError{Inner: err}
	}
	return rt.Delegate.RoundTrip(r)
}

// RateLimitingWaitError is returned when the request could not get a token within the wait timeout.
type RateLimitingWaitError struct {
	Inner error
}

func (e *RateLimitingWaitError) Error() string {
	return fmt.Sprintf("wait due to client side rate limiting: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RateLimitingWaitError) Unwrap() error {
	return e.Inner
}
