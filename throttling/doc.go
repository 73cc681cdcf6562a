/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package throttling implements request admission control keyed by (source system, service name) scopes.
//
// A Configuration holds immutable rules of the form "at most Limit requests per Interval seconds"
// attached to scopes that may be wildcarded in either field. A Counter records observations per scope
// over a trailing window. A Processor ties them together: for every incoming request it resolves
// the most specific rule, counts the request and rejects it with an *ExceededError when the limit is exceeded.
//
// Rules are usually described in a flat key/value namespace (e.g. a .properties file):
//
//	throttling.defaultInterval = 60
//	throttling.defaultLimit = 60
//	throttling.crm.setActivityExt = 10/30
//	throttling.*.setActivityExt = 100
//	throttling.erp.* = 1000/3600
package throttling
