/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttling

import (
	"errors"
	"fmt"
)

// ErrInvalidScope is returned when a request scope has neither source system nor service name.
var ErrInvalidScope = errors.New("throttle scope must define source system or service name (one of them at least)")

// ErrExceeded matches every *ExceededError via errors.Is.
var ErrExceeded = errors.New("throttling limit exceeded")

// ErrConfig matches every *ConfigError via errors.Is.
var ErrConfig = errors.New("invalid throttling configuration")

// ExceededError is returned when the number of requests for a scope within the interval exceeds the limit.
type ExceededError struct {
	Scope    Scope
	Interval int // seconds
	Limit    int
	Count    int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("Actual count of requests for source system '%s' and service '%s' "+
		"exceeded limit (interval=%dsec, limit=%d, actual count=%d)",
		e.Scope.SourceSystem, e.Scope.ServiceName, e.Interval, e.Limit, e.Count)
}

// Is makes errors.Is(err, ErrExceeded) work.
func (e *ExceededError) Is(target error) bool {
	return target == ErrExceeded
}

// ConfigError describes a malformed rule or reserved key in the throttling configuration.
type ConfigError struct {
	Key   string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("throttling property %q: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("throttling property %q (value %q): %v", e.Key, e.Value, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrConfig) work.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}
