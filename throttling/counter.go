/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttling

import (
	"fmt"
	"sync"
	"time"

	"github.com/acronis/go-throttlekit/lrucache"
)

// CounterAlg is a counting algorithm. It is chosen once per process.
type CounterAlg string

// Counting algorithms.
const (
	// CounterAlgSlidingLog counts exactly: every observation is kept until it leaves the window.
	CounterAlgSlidingLog CounterAlg = "sliding_log"

	// CounterAlgSlidingWindow approximates the trailing window by two fixed windows
	// with the previous one weighted by its overlap. Memory per scope is constant.
	CounterAlgSlidingWindow CounterAlg = "sliding_window"
)

// DefaultMaxScopes is the default number of scopes whose counting state is kept in memory.
const DefaultMaxScopes = 100000

// Counter records an observation for a scope and returns the number of observations
// within the trailing interval (in seconds) including the one just recorded.
// Implementations must be safe for concurrent use and must not lose observations of the same scope.
type Counter interface {
	Count(scope Scope, interval int) int
	Reset()
}

// CounterOpts represents options for counters.
type CounterOpts struct {
	// MaxScopes limits the number of scopes with counting state. The least recently used scope
	// is evicted when the limit is reached, so its next observation starts from zero.
	// DefaultMaxScopes is used if it's 0.
	MaxScopes int

	// Now returns the current time. time.Now is used if it's nil.
	Now func() time.Time

	// CacheMetrics collects statistics of the per-scope state storage. May be nil.
	CacheMetrics lrucache.MetricsCollector
}

// NewCounter creates a counter for the given algorithm.
func NewCounter(alg CounterAlg, opts CounterOpts) (Counter, error) {
	switch alg {
	case CounterAlgSlidingLog, "":
		return NewSlidingLogCounter(opts)
	case CounterAlgSlidingWindow:
		return NewSlidingWindowCounter(opts)
	}
	return nil, fmt.Errorf("unknown counter algorithm %q", alg)
}

func (o CounterOpts) withDefaults() CounterOpts {
	if o.MaxScopes == 0 {
		o.MaxScopes = DefaultMaxScopes
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// SlidingLogCounter keeps timestamps of observations per scope.
// An observation made at t is inside the window ending at now iff now-t < interval.
// Expired timestamps are dropped when the scope is accessed.
type SlidingLogCounter struct {
	scopes *lrucache.LRUCache[Scope, *scopeLog]
	now    func() time.Time
}

// NewSlidingLogCounter creates a new SlidingLogCounter.
func NewSlidingLogCounter(opts CounterOpts) (*SlidingLogCounter, error) {
	opts = opts.withDefaults()
	scopes, err := lrucache.New[Scope, *scopeLog](opts.MaxScopes, opts.CacheMetrics)
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for scopes: %w", err)
	}
	return &SlidingLogCounter{scopes: scopes, now: opts.Now}, nil
}

// Count records an observation and returns the number of observations within the interval.
// The cache lock is released before the scope is locked, so a hot scope doesn't block other scopes.
func (c *SlidingLogCounter) Count(scope Scope, interval int) int {
	l, _ := c.scopes.GetOrAdd(scope, func() *scopeLog { return &scopeLog{} })
	return l.observe(c.now, time.Duration(interval)*time.Second)
}

// Reset drops the state of all scopes.
func (c *SlidingLogCounter) Reset() {
	c.scopes.Purge()
}

type scopeLog struct {
	mu     sync.Mutex
	stamps []int64 // unix nanoseconds
	head   int     // index of the oldest in-window stamp
}

func (l *scopeLog) observe(nowFn func() time.Time, window time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Read the clock under the lock to keep stamps ordered.
	now := nowFn().UnixNano()
	for l.head < len(l.stamps) && now-l.stamps[l.head] >= int64(window) {
		l.head++
	}
	if l.head > 0 && l.head >= len(l.stamps)/2 {
		n := copy(l.stamps, l.stamps[l.head:])
		l.stamps = l.stamps[:n]
		l.head = 0
	}
	l.stamps = append(l.stamps, now)
	return len(l.stamps) - l.head
}
