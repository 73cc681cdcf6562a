/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package retry provides backoff policies and a helper for repeating operations that may fail transiently,
// e.g. calls to a throttling daemon that is restarting.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff strategies.
const (
	StrategyExponential = "exponential"
	StrategyConstant    = "constant"
)

// Default parameters of backoff policies.
const (
	DefaultExponentialInitialInterval = 100 * time.Millisecond
	DefaultExponentialMultiplier      = 2
	DefaultConstantInterval           = time.Second
)

// IsRetryable tells if the error is transient. A nil IsRetryable treats any error as transient.
type IsRetryable func(error) bool

// RetryableFunc is a unit of work that may be repeated.
type RetryableFunc func(ctx context.Context) error

// Policy creates a fresh backoff for every sequence of attempts.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// PolicyFunc is an adapter to allow the use of ordinary functions as Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// DoWithRetry calls fn until it succeeds, returns a non-retryable error, the policy gives up or ctx is done.
// notify (may be nil) is called before every wait with the error and the delay.
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify backoff.Notify, fn RetryableFunc) error {
	bctx := backoff.WithContext(p.NewBackOff(), ctx)
	return backoff.RetryNotify(func() error {
		err := fn(bctx.Context())
		if err != nil && isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bctx, notify)
}

// ExponentialBackoffPolicy waits InitialInterval before the first retry and multiplies the delay
// by Multiplier (with jitter) before every next one. MaxAttempts limits the number of retries, 0 means no limit.
type ExponentialBackoffPolicy struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxAttempts     int
}

// NewExponentialBackoffPolicy returns an exponential backoff policy with the default multiplier.
func NewExponentialBackoffPolicy(initialInterval time.Duration, maxAttempts int) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{
		InitialInterval: initialInterval,
		Multiplier:      DefaultExponentialMultiplier,
		MaxAttempts:     maxAttempts,
	}
}

// NewBackOff implements Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	if p.Multiplier > 1 {
		eb.Multiplier = p.Multiplier
	}
	eb.MaxElapsedTime = 0
	return withMaxAttempts(eb, p.MaxAttempts)
}

// ConstantBackoffPolicy waits Interval between attempts.
// MaxAttempts limits the number of retries, 0 means no limit.
type ConstantBackoffPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// NewConstantBackoffPolicy returns a constant backoff policy.
func NewConstantBackoffPolicy(interval time.Duration, maxAttempts int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{Interval: interval, MaxAttempts: maxAttempts}
}

// NewBackOff implements Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	return withMaxAttempts(backoff.NewConstantBackOff(p.Interval), p.MaxAttempts)
}

func withMaxAttempts(b backoff.BackOff, maxAttempts int) backoff.BackOff {
	if maxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(maxAttempts))
	}
	b.Reset()
	return b
}

// NewPolicy creates a policy by the strategy name. Zero durations and multiplier are replaced by defaults.
func NewPolicy(strategy string, interval time.Duration, multiplier float64, maxAttempts int) (Policy, error) {
	switch strategy {
	case StrategyExponential, "":
		if interval == 0 {
			interval = DefaultExponentialInitialInterval
		}
		if multiplier == 0 {
			multiplier = DefaultExponentialMultiplier
		}
		return ExponentialBackoffPolicy{InitialInterval: interval, Multiplier: multiplier, MaxAttempts: maxAttempts}, nil
	case StrategyConstant:
		if interval == 0 {
			interval = DefaultConstantInterval
		}
		return ConstantBackoffPolicy{Interval: interval, MaxAttempts: maxAttempts}, nil
	}
	return nil, fmt.Errorf("unknown backoff strategy %q, should be one of [%s, %s]",
		strategy, StrategyExponential, StrategyConstant)
}
