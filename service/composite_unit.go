/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"strings"
	"sync"
)

// CompositeUnit starts and stops several units together.
type CompositeUnit struct {
	Units []Unit
}

var _ MetricsRegisterer = (*CompositeUnit)(nil)

// NewCompositeUnit creates a new composite unit.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units}
}

// Start starts all units concurrently and waits until every Start call returns.
// If any unit fails, the rest are stopped non-gracefully and a *CompositeUnitError
// with the start and stop errors is sent to fatalErr.
func (cu *CompositeUnit) Start(fatalErr chan<- error) {
	startErrs := make(chan error, len(cu.Units))
	var wg sync.WaitGroup
	for _, u := range cu.Units {
		wg.Add(1)
		go func(u Unit) {
			defer wg.Done()
			unitErr := make(chan error, 1)
			u.Start(unitErr)
			select {
			case err := <-unitErr:
				startErrs <- err
			default:
			}
		}(u)
	}

	allStarted := make(chan struct{})
	go func() {
		wg.Wait()
		close(allStarted)
	}()

	var errs []error
	select {
	case err := <-startErrs:
		errs = append(errs, err)
	case <-allStarted:
		select {
		case err := <-startErrs:
			errs = append(errs, err)
		default:
			return
		}
	}

	if stopErr := cu.Stop(false); stopErr != nil {
		errs = append(errs, stopErr.(*CompositeUnitError).UnitErrors...)
	}
	fatalErr <- &CompositeUnitError{UnitErrors: errs}
}

// Stop stops all units concurrently and collects their errors into a single *CompositeUnitError.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	var mu sync.Mutex
	var errs []error
	var wg sync.WaitGroup
	for _, u := range cu.Units {
		wg.Add(1)
		go func(u Unit) {
			defer wg.Done()
			if err := u.Stop(gracefully); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(u)
	}
	wg.Wait()
	if len(errs) != 0 {
		return &CompositeUnitError{UnitErrors: errs}
	}
	return nil
}

// MustRegisterMetrics registers metrics of all units that have them.
func (cu *CompositeUnit) MustRegisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.MustRegisterMetrics()
		}
	}
}

// UnregisterMetrics unregisters metrics of all units that have them.
func (cu *CompositeUnit) UnregisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.UnregisterMetrics()
		}
	}
}

// CompositeUnitError is returned by CompositeUnit's methods.
type CompositeUnitError struct {
	UnitErrors []error
}

func (cue *CompositeUnitError) Error() string {
	msgs := make([]string, 0, len(cue.UnitErrors))
	for _, err := range cue.UnitErrors {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap allows errors.Is and errors.As to look into unit errors.
func (cue *CompositeUnitError) Unwrap() []error {
	return cue.UnitErrors
}
