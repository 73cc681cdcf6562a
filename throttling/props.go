/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttling

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Built-in values of the default rule.
const (
	DefaultInterval = 60 // seconds
	DefaultLimit    = 60
)

const propsValueSeparator = "/"

// Props means "at most Limit requests per Interval seconds".
type Props struct {
	Limit    int `json:"limit"`
	Interval int `json:"interval"` // seconds
}

// NewProps creates Props and checks that both limit and interval are positive.
func NewProps(limit, interval int) (Props, error) {
	if limit <= 0 {
		return Props{}, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if interval <= 0 {
		return Props{}, fmt.Errorf("interval must be positive, got %d", interval)
	}
	return Props{Limit: limit, Interval: interval}, nil
}

// ParseProps parses the "limit[/interval]" form. If interval is omitted, defaultInterval is used.
// Empty parts are skipped ("5/" is "5") and parts after the interval are ignored ("5/60/1" is "5/60").
func ParseProps(value string, defaultInterval int) (Props, error) {
	parts := strings.FieldsFunc(value, func(r rune) bool { return r == '/' })
	if len(parts) == 0 {
		parts = []string{value}
	}
	limit, err := parsePositiveInt(parts[0])
	if err != nil {
		return Props{}, fmt.Errorf("parse limit: %w", err)
	}
	interval := defaultInterval
	if len(parts) > 1 {
		if interval, err = parsePositiveInt(parts[1]); err != nil {
			return Props{}, fmt.Errorf("parse interval: %w", err)
		}
	}
	return NewProps(limit, interval)
}

// IntervalDuration returns the interval as time.Duration.
func (p Props) IntervalDuration() time.Duration {
	return time.Duration(p.Interval) * time.Second
}

// String returns the "limit/interval" form.
func (p Props) String() string {
	return strconv.Itoa(p.Limit) + propsValueSeparator + strconv.Itoa(p.Interval)
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", strings.TrimSpace(s))
	}
	if n <= 0 {
		return 0, fmt.Errorf("%d is not positive", n)
	}
	return n, nil
}
