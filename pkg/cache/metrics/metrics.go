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

// Package metrics provides convenience helpers for observing cache operations
package metrics

import "github.com/pixframe/thumbcache/pkg/observability/metrics"

// ObserveCacheOperation increments counters as cache operations occur
func ObserveCacheOperation(tier, operation, status string, bytes float64) {
	metrics.CacheObjectOperations.WithLabelValues(tier, operation, status).Inc()
	if bytes > 0 {
		metrics.CacheByteOperations.WithLabelValues(tier, operation, status).Add(bytes)
	}
}

// ObserveCacheMiss records a cache miss event for the provided tier
func ObserveCacheMiss(tier string) {
	ObserveCacheOperation(tier, "get", "miss", 0)
}

// ObserveCacheEvent increments counters as cache events occur
func ObserveCacheEvent(tier, event, reason string) {
	metrics.CacheEvents.WithLabelValues(tier, event, reason).Inc()
}

// ObserveCacheSizeChange adjusts gauges as the cache size changes due to
// object operations
func ObserveCacheSizeChange(tier string, byteCount, objectCount int64) {
	metrics.CacheObjects.WithLabelValues(tier).Set(float64(objectCount))
	metrics.CacheBytes.WithLabelValues(tier).Set(float64(byteCount))
}
