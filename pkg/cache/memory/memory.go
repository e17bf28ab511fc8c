/*
 * Copyright 2021 The Thumbcache Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package memory is the in-memory tier of the thumbnail cache: a bounded
// least-recently-used map with a fixed item-count capacity. It is not safe
// for concurrent use by itself; the coordinator serializes access.
package memory

import "container/list"

// Cache is a bounded LRU map from cache key to value
type Cache[V any] struct {
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front is most recently used
}

type item[V any] struct {
	key   string
	value V
}

// New returns a Cache bounded to the provided item capacity.
// Capacities below 1 are clamped to 1.
func New[V any](capacity int) *Cache[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache[V]{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the value for the provided key and marks it most recently used
func (c *Cache[V]) Get(key string) (V, bool) {
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*item[V]).value, true
	}
	var zero V
	return zero, false
}

// Put inserts or replaces the value for the provided key, evicting the
// least-recently-used entry if the capacity is exceeded
func (c *Cache[V]) Put(key string, value V) {
	if el, ok := c.entries[key]; ok {
		el.Value.(*item[V]).value = value
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&item[V]{key: key, value: value})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*item[V]).key)
		}
	}
}

// Delete removes the entry for the provided key, reporting whether it was present
func (c *Cache[V]) Delete(key string) bool {
	el, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.entries, key)
	return true
}

// Clear removes all entries and returns the count removed
func (c *Cache[V]) Clear() int {
	n := len(c.entries)
	c.entries = make(map[string]*list.Element, c.capacity)
	c.order.Init()
	return n
}

// Len returns the number of entries currently held
func (c *Cache[V]) Len() int {
	return len(c.entries)
}

// Capacity returns the configured item capacity
func (c *Cache[V]) Capacity() int {
	return c.capacity
}
