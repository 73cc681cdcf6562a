/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs the long-living parts of the throttling daemon (HTTP server, rules reloader)
// as units with a common lifecycle and stops them on OS signals.
package service

// Unit is a component of the service with its own lifecycle.
type Unit interface {
	// Start runs the unit. It may return immediately or block for the unit's lifetime.
	// A fatal error is written to fatalErr at most once and only before Start returns.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called even if Start failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units that own Prometheus metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
