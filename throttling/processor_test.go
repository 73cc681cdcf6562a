/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttling

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-throttlekit/log"
	"github.com/acronis/go-throttlekit/log/logtest"
	"github.com/acronis/go-throttlekit/testutil"
)

type spyCounter struct {
	delegate Counter
	calls    atomic.Int32
	resets   atomic.Int32
}

func (c *spyCounter) Count(scope Scope, interval int) int {
	c.calls.Inc()
	return c.delegate.Count(scope, interval)
}

func (c *spyCounter) Reset() {
	c.resets.Inc()
	c.delegate.Reset()
}

func newTestProcessor(t *testing.T, cfg *Configuration, opts ...ProcessorOption) (*Processor, *spyCounter, *fakeClock, *logtest.Recorder) {
	t.Helper()
	clock := newFakeClock()
	counter, err := NewSlidingLogCounter(CounterOpts{Now: clock.Now})
	require.NoError(t, err)
	spy := &spyCounter{delegate: counter}
	logRecorder := logtest.NewRecorder()
	return NewProcessor(cfg, spy, logRecorder, opts...), spy, clock, logRecorder
}

func newTestConfiguration(t *testing.T, props map[string]string) *Configuration {
	t.Helper()
	cfg, err := NewConfigurationFromProperties(props)
	require.NoError(t, err)
	return cfg
}

func TestProcessor_Throttle(t *testing.T) {
	metrics := NewPrometheusMetrics(PrometheusMetricsOpts{})
	cfg := newTestConfiguration(t, map[string]string{"throttling.crm.setActivityExt": "3/60"})
	p, _, clock, logRecorder := newTestProcessor(t, cfg, WithMetricsCollector(metrics))

	for i := 0; i < 3; i++ {
		require.NoError(t, p.ThrottleRequest("crm", "setActivityExt"))
		clock.Advance(10e9)
	}

	err := p.ThrottleRequest("crm", "setActivityExt")
	require.ErrorIs(t, err, ErrExceeded)
	var exceededErr *ExceededError
	require.True(t, errors.As(err, &exceededErr))
	require.Equal(t, ExceededError{
		Scope: ConcreteScope("crm", "setActivityExt"), Interval: 60, Limit: 3, Count: 4,
	}, *exceededErr)
	require.EqualError(t, err, "Actual count of requests for source system 'crm' and service 'setActivityExt' "+
		"exceeded limit (interval=60sec, limit=3, actual count=4)")

	logEntry, found := logRecorder.FindEntry(err.Error())
	require.True(t, found)
	require.Equal(t, log.LevelWarn, logEntry.Level)
	countField, found := logEntry.FindField("count")
	require.True(t, found)
	require.EqualValues(t, 4, countField.Int)

	// Rejected attempts are counted as well.
	require.ErrorIs(t, p.ThrottleRequest("crm", "setActivityExt"), ErrExceeded)

	// The first call leaves the window 60s after it was made.
	clock.Advance(31e9)
	require.ErrorIs(t, p.ThrottleRequest("crm", "setActivityExt"), ErrExceeded)

	// Other scopes fall back to the default rule.
	require.NoError(t, p.ThrottleRequest("erp", "setActivityExt"))

	testutil.RequireSamplesCountInCounter(t, metrics.ChecksTotal.WithLabelValues("accepted"), 4)
	testutil.RequireSamplesCountInCounter(t, metrics.ChecksTotal.WithLabelValues("rejected"), 3)
	testutil.RequireSamplesCountInCounter(t, metrics.RejectsTotal.WithLabelValues("crm.setActivityExt"), 3)
}

func TestProcessor_ThrottleWindowExpiry(t *testing.T) {
	cfg := newTestConfiguration(t, map[string]string{"throttling.crm.*": "2/60"})
	p, _, clock, _ := newTestProcessor(t, cfg)

	require.NoError(t, p.ThrottleRequest("crm", "getUser"))
	require.NoError(t, p.ThrottleRequest("crm", "getUser"))
	require.ErrorIs(t, p.ThrottleRequest("crm", "getUser"), ErrExceeded)

	clock.Advance(61e9)
	require.NoError(t, p.ThrottleRequest("crm", "getUser"))
	require.NoError(t, p.ThrottleRequest("crm", "getUser"))
	require.ErrorIs(t, p.ThrottleRequest("crm", "getUser"), ErrExceeded)
}

func TestProcessor_ThrottleConcurrent(t *testing.T) {
	const limit, goroutines = 25, 200

	for _, alg := range []CounterAlg{CounterAlgSlidingLog, CounterAlgSlidingWindow} {
		t.Run(string(alg), func(t *testing.T) {
			clock := newFakeClock()
			counter, err := NewCounter(alg, CounterOpts{Now: clock.Now})
			require.NoError(t, err)
			cfg := newTestConfiguration(t, map[string]string{"throttling.crm.setActivityExt": "25/60"})
			p := NewProcessor(cfg, counter, nil)

			var accepted, rejected atomic.Int32
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < goroutines; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					switch err := p.ThrottleRequest("crm", "setActivityExt"); {
					case err == nil:
						accepted.Inc()
					case errors.Is(err, ErrExceeded):
						rejected.Inc()
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			close(start)
			wg.Wait()

			require.EqualValues(t, limit, accepted.Load())
			require.EqualValues(t, goroutines-limit, rejected.Load())
			require.Equal(t, goroutines+1, counter.Count(ConcreteScope("crm", "setActivityExt"), 60))
		})
	}
}

func TestProcessor_ThrottleDisabled(t *testing.T) {
	metrics := NewPrometheusMetrics(PrometheusMetricsOpts{})
	p, spy, _, _ := newTestProcessor(t, NewDisabledConfiguration(), WithMetricsCollector(metrics))

	for i := 0; i < 100; i++ {
		require.NoError(t, p.ThrottleRequest("crm", "setActivityExt"))
	}
	// Even invalid scopes are not validated.
	require.NoError(t, p.Throttle(AnyScope()))
	require.Zero(t, spy.calls.Load())
	testutil.RequireSamplesCountInCounter(t, metrics.ChecksTotal.WithLabelValues("disabled"), 101)
}

func TestProcessor_Reload(t *testing.T) {
	enabled := newTestConfiguration(t, map[string]string{"throttling.crm.setActivityExt": "2/60"})
	p, spy, _, logRecorder := newTestProcessor(t, enabled)

	require.NoError(t, p.ThrottleRequest("crm", "setActivityExt"))
	require.NoError(t, p.ThrottleRequest("crm", "setActivityExt"))
	require.ErrorIs(t, p.ThrottleRequest("crm", "setActivityExt"), ErrExceeded)

	// Swapping enabled configurations keeps counting state.
	relaxed := newTestConfiguration(t, map[string]string{"throttling.crm.setActivityExt": "4/60"})
	p.Reload(relaxed)
	require.Same(t, relaxed, p.Configuration())
	require.NoError(t, p.ThrottleRequest("crm", "setActivityExt"))
	require.ErrorIs(t, p.ThrottleRequest("crm", "setActivityExt"), ErrExceeded)
	require.Zero(t, spy.resets.Load())

	// Re-enabling starts from a clean counter state.
	p.Reload(NewDisabledConfiguration())
	require.NoError(t, p.ThrottleRequest("crm", "setActivityExt"))
	p.Reload(enabled)
	require.EqualValues(t, 1, spy.resets.Load())
	require.NoError(t, p.ThrottleRequest("crm", "setActivityExt"))
	require.NoError(t, p.ThrottleRequest("crm", "setActivityExt"))
	require.ErrorIs(t, p.ThrottleRequest("crm", "setActivityExt"), ErrExceeded)

	_, found := logRecorder.FindEntry("throttling configuration reloaded")
	require.True(t, found)
}

func TestProcessor_ThrottleInvalidScope(t *testing.T) {
	metrics := NewPrometheusMetrics(PrometheusMetricsOpts{})
	p, spy, _, _ := newTestProcessor(t, newTestConfiguration(t, nil), WithMetricsCollector(metrics))

	require.ErrorIs(t, p.ThrottleRequest("*", "*"), ErrInvalidScope)
	require.ErrorIs(t, p.ThrottleRequest("", ""), ErrInvalidScope)
	require.Zero(t, spy.calls.Load())
	testutil.RequireSamplesCountInCounter(t, metrics.ChecksTotal.WithLabelValues("invalid"), 2)

	// A single wildcarded field is allowed.
	require.NoError(t, p.ThrottleRequest("crm", ""))
	require.EqualValues(t, 1, spy.calls.Load())
}

func TestProcessor_ThrottleNoRule(t *testing.T) {
	// Configurations built via the builder always have the default rule, so construct an empty one directly.
	p, spy, _, logRecorder := newTestProcessor(t, &Configuration{rules: map[Scope]Props{}})

	require.NoError(t, p.ThrottleRequest("crm", "setActivityExt"))
	require.Zero(t, spy.calls.Load())

	logEntry, found := logRecorder.FindEntry("no throttling for input request")
	require.True(t, found)
	require.Equal(t, log.LevelWarn, logEntry.Level)
	scopeField, found := logEntry.FindField("scope")
	require.True(t, found)
	require.Equal(t, "crm.setActivityExt", string(scopeField.Bytes))
}

func TestNewProcessor_NilConfiguration(t *testing.T) {
	p, spy, _, _ := newTestProcessor(t, nil)
	require.True(t, p.Configuration().Disabled())
	require.NoError(t, p.ThrottleRequest("crm", "setActivityExt"))
	require.Zero(t, spy.calls.Load())
}
