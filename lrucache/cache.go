/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"container/list"
	"fmt"
	"sync"
)

type entry[K comparable, V any] struct {
	key   K
	value V
}

// LRUCache is a map limited by the number of entries. Adding to a full cache evicts the least recently used entry.
// Get, GetOrAdd and Add mark the entry as recently used. It's safe for concurrent use.
type LRUCache[K comparable, V any] struct {
	maxEntries int
	metrics    MetricsCollector

	mu      sync.Mutex
	order   *list.List // front is the most recently used, element values are *entry[K, V]
	entries map[K]*list.Element
}

// New creates a new LRUCache. Nil metrics disables metrics collecting.
func New[K comparable, V any](maxEntries int, metrics MetricsCollector) (*LRUCache[K, V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be greater than 0")
	}
	if metrics == nil {
		metrics = disabledMetrics{}
	}
	return &LRUCache[K, V]{
		maxEntries: maxEntries,
		metrics:    metrics,
		order:      list.New(),
		entries:    make(map[K]*list.Element, maxEntries),
	}, nil
}

// Get returns the value of the key.
func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(key)
}

// Add sets the value of the key.
func (c *LRUCache[K, V]) Add(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*entry[K, V]).value = value
		return
	}
	c.insert(key, value)
}

// GetOrAdd returns the value of the key, or stores and returns newValue() if the key is missing.
// newValue runs under the cache lock and must not use the cache.
func (c *LRUCache[K, V]) GetOrAdd(key K, newValue func() V) (value V, exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value, exists = c.lookup(key); !exists {
		value = newValue()
		c.insert(key, value)
	}
	return value, exists
}

// Remove deletes the key and reports whether it was present.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if ok {
		c.unlink(elem)
		c.metrics.SetAmount(len(c.entries))
	}
	return ok
}

// Purge deletes all entries. They are not counted as evicted.
func (c *LRUCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[K]*list.Element, c.maxEntries)
	c.metrics.SetAmount(0)
}

// Len returns the number of entries.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns all keys from the most to the least recently used.
func (c *LRUCache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]K, 0, len(c.entries))
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*entry[K, V]).key)
	}
	return keys
}

func (c *LRUCache[K, V]) lookup(key K) (value V, ok bool) {
	elem, ok := c.entries[key]
	if !ok {
		c.metrics.IncMisses()
		return value, false
	}
	c.metrics.IncHits()
	c.order.MoveToFront(elem)
	return elem.Value.(*entry[K, V]).value, true
}

func (c *LRUCache[K, V]) insert(key K, value V) {
	c.entries[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
	if len(c.entries) > c.maxEntries {
		c.unlink(c.order.Back())
		c.metrics.AddEvictions(1)
	}
	c.metrics.SetAmount(len(c.entries))
}

func (c *LRUCache[K, V]) unlink(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.entries, elem.Value.(*entry[K, V]).key)
}
