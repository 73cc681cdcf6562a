/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttling

import (
	"fmt"
	"sync"
	"time"

	"github.com/RussellLuo/slidingwindow"

	"github.com/acronis/go-throttlekit/lrucache"
)

// SlidingWindowCounter approximates the trailing window with two fixed windows of interval size.
// The result is the count of the current window plus the count of the previous one
// weighted by the part of it that still overlaps the trailing window.
// It may under-count by at most the previous window's share, in exchange for constant memory per scope.
type SlidingWindowCounter struct {
	scopes *lrucache.LRUCache[Scope, *scopeWindow]
	now    func() time.Time
}

// NewSlidingWindowCounter creates a new SlidingWindowCounter.
func NewSlidingWindowCounter(opts CounterOpts) (*SlidingWindowCounter, error) {
	opts = opts.withDefaults()
	scopes, err := lrucache.New[Scope, *scopeWindow](opts.MaxScopes, opts.CacheMetrics)
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for scopes: %w", err)
	}
	return &SlidingWindowCounter{scopes: scopes, now: opts.Now}, nil
}

// Count records an observation and returns the approximate number of observations within the interval.
func (c *SlidingWindowCounter) Count(scope Scope, interval int) int {
	w, _ := c.scopes.GetOrAdd(scope, newScopeWindow)
	return w.observe(c.now, time.Duration(interval)*time.Second)
}

// Reset drops the state of all scopes.
func (c *SlidingWindowCounter) Reset() {
	c.scopes.Purge()
}

type scopeWindow struct {
	mu   sync.Mutex
	size time.Duration
	curr *slidingwindow.LocalWindow
	prev *slidingwindow.LocalWindow
}

func newScopeWindow() *scopeWindow {
	// Local windows don't run background goroutines, so their stop functions are no-ops.
	curr, _ := slidingwindow.NewLocalWindow()
	prev, _ := slidingwindow.NewLocalWindow()
	return &scopeWindow{curr: curr, prev: prev}
}

func (w *scopeWindow) observe(nowFn func() time.Time, size time.Duration) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := nowFn()
	if w.size != size {
		// Interval of the matched rule has changed (e.g. after reload), start over.
		start := now.Truncate(size)
		w.curr.Reset(start, 0)
		w.prev.Reset(start.Add(-size), 0)
		w.size = size
	} else {
		w.advance(now)
	}

	w.curr.AddCount(1)
	elapsed := now.Sub(w.curr.Start())
	weight := float64(size-elapsed) / float64(size)
	return int(weight*float64(w.prev.Count())) + int(w.curr.Count())
}

func (w *scopeWindow) advance(now time.Time) {
	newCurrStart := now.Truncate(w.size)
	diff := newCurrStart.Sub(w.curr.Start()) / w.size
	if diff < 1 {
		return
	}
	var newPrevCount int64
	if diff == 1 {
		newPrevCount = w.curr.Count()
	}
	w.prev.Reset(newCurrStart.Add(-w.size), newPrevCount)
	w.curr.Reset(newCurrStart, 0)
}
