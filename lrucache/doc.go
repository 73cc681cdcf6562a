/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package lrucache provides a bounded in-memory map with LRU eviction and Prometheus metrics.
// It keeps per-key state (e.g. per-scope throttling counters) without letting memory grow unboundedly.
package lrucache
