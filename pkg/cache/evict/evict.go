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

// Package evict enforces the disk tier's size budget by removing the
// least-recently-accessed entries in batches. This is a batch policy, not
// strict per-write enforcement; the budget may be transiently exceeded
// between cleanup triggers.
package evict

import (
	"sort"

	"github.com/pixframe/thumbcache/pkg/cache/disk"
	"github.com/pixframe/thumbcache/pkg/cache/metadata"
	"github.com/pixframe/thumbcache/pkg/cache/metrics"
	"github.com/pixframe/thumbcache/pkg/observability/logging"
	"github.com/pixframe/thumbcache/pkg/observability/logging/logger"
)

// Manager enforces a size budget on the disk tier
type Manager struct {
	// MaxSizeBytes is the budget; 0 disables eviction
	MaxSizeBytes int64
}

// CheckAndCleanup computes the disk tier's total size and, if it is over
// budget, removes the oldest-by-access-time entries in batches of a quarter
// of the index (at least one) until the total is within budget, removing
// both the disk file and the metadata entry for each, then persists the
// updated index. It returns the number of entries removed.
func (m *Manager) CheckAndCleanup(idx metadata.Index, files *disk.Store, meta *metadata.Store) int {
	if m.MaxSizeBytes <= 0 {
		return 0
	}
	total := idx.TotalSize()
	if total <= m.MaxSizeBytes {
		return 0
	}

	logger.Debug("max cache size reached, evicting least-recently-accessed entries",
		logging.Pairs{"cacheSizeBytes": total, "maxSizeBytes": m.MaxSizeBytes})

	var removed int
	for total > m.MaxSizeBytes && idx.Len() > 0 {
		entries := idx.Entries()
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].LastAccess < entries[j].LastAccess
		})
		batch := len(entries) / 4
		if batch < 1 {
			batch = 1
		}
		for _, e := range entries[:batch] {
			if err := files.Remove(e.Key); err != nil {
				logger.Debug("eviction file removal failed",
					logging.Pairs{"key": e.Key, "detail": err.Error()})
			}
			idx.Remove(e.Key)
			total -= e.FileSizeBytes
			removed++
		}
	}

	metrics.ObserveCacheEvent("disk", "eviction", "size_bytes")
	metrics.ObserveCacheSizeChange("disk", idx.TotalSize(), int64(idx.Len()))

	if err := meta.Save(idx); err != nil {
		logger.Warn("unable to persist cache index after eviction",
			logging.Pairs{"detail": err.Error()})
	}

	logger.Debug("size-based cache eviction completed",
		logging.Pairs{"removed": removed,
			"cacheSizeBytes": idx.TotalSize(), "maxSizeBytes": m.MaxSizeBytes})

	return removed
}
