/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest provides log.FieldLogger implementations for tests:
// a debug-level JSON logger and a Recorder that keeps entries for later inspection.
package logtest
