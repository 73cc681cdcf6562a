/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttling

import (
	"go.uber.org/atomic"

	"github.com/acronis/go-throttlekit/log"
)

// Processor decides whether a request may proceed.
// It is safe for concurrent use; the configuration may be replaced at any time with Reload.
type Processor struct {
	cfg     *atomic.Pointer[Configuration]
	counter Counter
	logger  log.FieldLogger
	metrics MetricsCollector
}

// ProcessorOption is a functional option for NewProcessor.
type ProcessorOption func(p *Processor)

// WithMetricsCollector sets a collector of throttling metrics.
func WithMetricsCollector(mc MetricsCollector) ProcessorOption {
	return func(p *Processor) {
		p.metrics = mc
	}
}

// NewProcessor creates a new Processor.
// A nil configuration means throttling is disabled, a nil logger means nothing is logged.
func NewProcessor(cfg *Configuration, counter Counter, logger log.FieldLogger, opts ...ProcessorOption) *Processor {
	if cfg == nil {
		cfg = NewDisabledConfiguration()
	}
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	p := &Processor{
		cfg:     atomic.NewPointer(cfg),
		counter: counter,
		logger:  logger,
		metrics: disabledMetrics{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = disabledMetrics{}
	}
	return p
}

// ThrottleRequest is a shortcut for Throttle(NewScope(sourceSystem, serviceName)).
func (p *Processor) ThrottleRequest(sourceSystem, serviceName string) error {
	return p.Throttle(NewScope(sourceSystem, serviceName))
}

// Throttle counts the request and checks it against the most specific rule for the scope.
//
// It returns nil when throttling is disabled (nothing is counted), when no rule matches (a warning is logged)
// or when the number of requests within the interval doesn't exceed the limit.
// ErrInvalidScope is returned if neither source system nor service name is specified.
// *ExceededError is returned if the limit is exceeded. Rejected requests are counted too.
func (p *Processor) Throttle(scope Scope) error {
	cfg := p.cfg.Load()
	if cfg.Disabled() {
		p.metrics.IncChecks(CheckOutcomeDisabled)
		return nil
	}

	if !scope.IsValidQuery() {
		p.metrics.IncChecks(CheckOutcomeInvalid)
		return ErrInvalidScope
	}

	rule, ok := cfg.ResolveRule(scope)
	if !ok {
		p.metrics.IncChecks(CheckOutcomeNoRule)
		p.logger.Warn("no throttling for input request", log.String("scope", scope.String()))
		return nil
	}

	count := p.counter.Count(scope, rule.Props.Interval)
	if count <= rule.Props.Limit {
		p.metrics.IncChecks(CheckOutcomeAccepted)
		return nil
	}

	p.metrics.IncChecks(CheckOutcomeRejected)
	p.metrics.IncRejects(rule.Scope)
	err := &ExceededError{Scope: scope, Interval: rule.Props.Interval, Limit: rule.Props.Limit, Count: count}
	p.logger.Warn(err.Error(),
		log.String("source_system", scope.SourceSystem.String()),
		log.String("service_name", scope.ServiceName.String()),
		log.String("rule", rule.Scope.String()),
		log.Int("interval_sec", err.Interval),
		log.Int("limit", err.Limit),
		log.Int("count", err.Count),
	)
	return err
}

// Reload atomically replaces the configuration. Checks in progress finish with the previous one.
// Counting state is dropped when throttling is switched from disabled to enabled.
func (p *Processor) Reload(cfg *Configuration) {
	if cfg == nil {
		cfg = NewDisabledConfiguration()
	}
	prev := p.cfg.Swap(cfg)
	if prev.Disabled() && !cfg.Disabled() {
		p.counter.Reset()
	}
	p.logger.Info("throttling configuration reloaded",
		log.Bool("disabled", cfg.Disabled()), log.Int("rules", len(cfg.rules)))
}

// Configuration returns the current configuration snapshot.
func (p *Processor) Configuration() *Configuration {
	return p.cfg.Load()
}
