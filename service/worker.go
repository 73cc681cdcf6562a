/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/acronis/go-throttlekit/log"
)

// ErrPeriodicWorkerStop may be returned by a worker to interrupt the PeriodicWorker's loop.
var ErrPeriodicWorkerStop = errors.New("stop periodic worker")

// Worker performs some (usually long-running) work.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter to allow the use of ordinary functions as Worker.
type WorkerFunc func(ctx context.Context) error

// Run implements Worker.
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorkerOpts contains optional parameters for PeriodicWorker.
type PeriodicWorkerOpts struct {
	InitialDelay time.Duration
	// IntervalDelayFunc returns the delay before the next run depending on the result of the previous one.
	IntervalDelayFunc func(worker Worker, err error) time.Duration
}

// PeriodicWorker runs the underlying worker with a delay between runs until the context is done.
// Errors of the underlying worker are logged and don't stop the loop (except ErrPeriodicWorkerStop).
type PeriodicWorker struct {
	worker        Worker
	logger        log.FieldLogger
	intervalDelay time.Duration
	opts          PeriodicWorkerOpts
}

// NewPeriodicWorker creates a new PeriodicWorker with a constant delay.
func NewPeriodicWorker(worker Worker, intervalDelay time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return NewPeriodicWorkerWithOpts(worker, intervalDelay, logger, PeriodicWorkerOpts{})
}

// NewPeriodicWorkerWithOpts is a more configurable version of NewPeriodicWorker.
func NewPeriodicWorkerWithOpts(
	worker Worker, intervalDelay time.Duration, logger log.FieldLogger, opts PeriodicWorkerOpts,
) *PeriodicWorker {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &PeriodicWorker{worker: worker, logger: logger, intervalDelay: intervalDelay, opts: opts}
}

// Run runs the loop. It returns nil when the context is done or the worker asks to stop.
func (pw *PeriodicWorker) Run(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			const maxStackSize = 8192
			stack := make([]byte, maxStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			pw.logger.Error(fmt.Sprintf("panic: %+v", p), log.String("stack", string(stack)))
			panic(p)
		}
		if err != nil {
			pw.logger.Error("periodic worker stopped with error", log.Error(err))
			return
		}
		pw.logger.Info("periodic worker stopped")
	}()

	pw.logger.Info("running periodic worker",
		log.Duration("initial_delay", pw.opts.InitialDelay), log.Duration("interval_delay", pw.intervalDelay))

	timer := time.NewTimer(pw.opts.InitialDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		runErr := pw.worker.Run(ctx)
		if runErr != nil {
			if errors.Is(runErr, ErrPeriodicWorkerStop) {
				return nil
			}
			pw.logger.Error("periodic worker run failed", log.Error(runErr))
		}

		delay := pw.intervalDelay
		if pw.opts.IntervalDelayFunc != nil {
			delay = pw.opts.IntervalDelayFunc(pw.worker, runErr)
		}
		timer.Reset(delay)
	}
}
