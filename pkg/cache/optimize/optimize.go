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

// Package optimize detects and removes redundant cache entries: entries
// sharing a content signature (source identity plus target size, excluding
// the quality-version component of the cache key), of which only the most
// recently accessed should be retained. It runs offline and must not run
// concurrently with coordinator writes against the same store.
package optimize

import (
	"sort"

	"github.com/opencontainers/go-digest"

	"github.com/pixframe/thumbcache/pkg/cache/disk"
	"github.com/pixframe/thumbcache/pkg/cache/key"
	"github.com/pixframe/thumbcache/pkg/cache/metadata"
	"github.com/pixframe/thumbcache/pkg/cache/metrics"
	"github.com/pixframe/thumbcache/pkg/observability/logging"
	"github.com/pixframe/thumbcache/pkg/observability/logging/logger"
)

// Group describes one redundancy group: a set of entries sharing a content
// signature but differing only in quality version
type Group struct {
	Signature  digest.Digest
	SourcePath string
	Width      int
	Height     int
	// KeepKey is the key of the most recently accessed entry, which is retained
	KeepKey string
	// RedundantKeys are the keys of the entries to remove, oldest access first
	RedundantKeys []string
	// RedundantBytes is the disk space recoverable by removing the redundant entries
	RedundantBytes int64
}

// Report summarizes a redundancy analysis without mutating anything
type Report struct {
	TotalEntries     int
	RedundancyGroups int
	RedundantEntries int
	ReclaimableBytes int64
	Groups           []Group
}

// Result reports the outcome of an optimization pass. A dry run carries
// statistics identical to a real run's, with no side effects.
type Result struct {
	Report
	RemovedEntries int
	FreedBytes     int64
	DryRun         bool
}

// Analyze groups the index's entries by content signature and reports the
// redundancy found. The index is not mutated.
func Analyze(idx metadata.Index) Report {
	r := Report{TotalEntries: idx.Len()}

	groups := make(map[digest.Digest][]*metadata.Entry)
	for _, e := range idx {
		sig := key.Signature(e.SourcePath, e.TargetWidth, e.TargetHeight)
		groups[sig] = append(groups[sig], e)
	}

	for sig, members := range groups {
		if len(members) < 2 {
			continue
		}
		// most recently accessed last; key order breaks ties deterministically
		sort.Slice(members, func(i, j int) bool {
			if members[i].LastAccess != members[j].LastAccess {
				return members[i].LastAccess < members[j].LastAccess
			}
			return members[i].Key < members[j].Key
		})
		keep := members[len(members)-1]
		g := Group{
			Signature:  sig,
			SourcePath: keep.SourcePath,
			Width:      keep.TargetWidth,
			Height:     keep.TargetHeight,
			KeepKey:    keep.Key,
		}
		for _, e := range members[:len(members)-1] {
			g.RedundantKeys = append(g.RedundantKeys, e.Key)
			g.RedundantBytes += e.FileSizeBytes
		}
		r.RedundancyGroups++
		r.RedundantEntries += len(g.RedundantKeys)
		r.ReclaimableBytes += g.RedundantBytes
		r.Groups = append(r.Groups, g)
	}

	sort.Slice(r.Groups, func(i, j int) bool {
		return r.Groups[i].Signature < r.Groups[j].Signature
	})

	return r
}

// Optimize removes the redundant entries found by Analyze, deleting both
// the disk files and the metadata entries, then persists the index. When
// dryRun is true the same computation runs and identical statistics are
// returned, but nothing is mutated.
func Optimize(idx metadata.Index, files *disk.Store, meta *metadata.Store, dryRun bool) (Result, error) {
	r := Analyze(idx)
	res := Result{
		Report:         r,
		RemovedEntries: r.RedundantEntries,
		FreedBytes:     r.ReclaimableBytes,
		DryRun:         dryRun,
	}
	if dryRun || r.RedundantEntries == 0 {
		return res, nil
	}

	for _, g := range r.Groups {
		for _, k := range g.RedundantKeys {
			if err := files.Remove(k); err != nil {
				logger.Debug("redundant file removal failed",
					logging.Pairs{"key": k, "detail": err.Error()})
			}
			idx.Remove(k)
		}
	}

	metrics.ObserveCacheEvent("disk", "optimize", "redundancy")
	metrics.ObserveCacheSizeChange("disk", idx.TotalSize(), int64(idx.Len()))

	if err := meta.Save(idx); err != nil {
		return res, err
	}

	logger.Info("redundant cache entries removed",
		logging.Pairs{"groups": r.RedundancyGroups,
			"removed": res.RemovedEntries, "freedBytes": res.FreedBytes})

	return res, nil
}
