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

package cache

import "sync"

// Statistics is a snapshot of the coordinator's running counters. A memory
// miss that becomes a disk hit is not a total miss; total misses equal disk
// misses.
type Statistics struct {
	MemoryHits   int64
	MemoryMisses int64
	DiskHits     int64
	DiskMisses   int64
}

// TotalHits returns hits across both tiers
func (s Statistics) TotalHits() int64 {
	return s.MemoryHits + s.DiskHits
}

// TotalMisses returns overall lookup misses
func (s Statistics) TotalMisses() int64 {
	return s.DiskMisses
}

// TotalLookups returns the number of lookups recorded
func (s Statistics) TotalLookups() int64 {
	return s.TotalHits() + s.TotalMisses()
}

// statistics guards the running counters with a lightweight lock separate
// from the coordinator mutex, so statistics reads never contend with I/O
type statistics struct {
	mu sync.Mutex
	s  Statistics
}

func (st *statistics) memoryHit() {
	st.mu.Lock()
	st.s.MemoryHits++
	st.mu.Unlock()
}

func (st *statistics) memoryMiss() {
	st.mu.Lock()
	st.s.MemoryMisses++
	st.mu.Unlock()
}

func (st *statistics) diskHit() {
	st.mu.Lock()
	st.s.DiskHits++
	st.mu.Unlock()
}

func (st *statistics) diskMiss() {
	st.mu.Lock()
	st.s.DiskMisses++
	st.mu.Unlock()
}

func (st *statistics) snapshot() Statistics {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s
}

func (st *statistics) reset() {
	st.mu.Lock()
	st.s = Statistics{}
	st.mu.Unlock()
}

// Statistics returns a snapshot of the running counters
func (c *Cache) Statistics() Statistics {
	return c.stats.snapshot()
}

// ResetStatistics zeroes the running counters
func (c *Cache) ResetStatistics() {
	c.stats.reset()
}
