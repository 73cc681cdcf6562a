/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil contains assertion helpers shared by tests of HTTP handlers, middlewares and Prometheus metrics.
package testutil

type tHelper interface {
	Helper()
}
