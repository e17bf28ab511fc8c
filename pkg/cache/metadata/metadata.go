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

// Package metadata maintains the durable index of the disk tier: the map of
// cache key to entry that is the single source of truth for what is "in"
// the cache. The Store owns load/save and corruption recovery; loading
// falls back from the primary index file to a rotating backup, then to a
// reconstruction by directory scan, and never raises to the caller.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pixframe/thumbcache/pkg/cache/disk"
	"github.com/pixframe/thumbcache/pkg/cache/metrics"
	"github.com/pixframe/thumbcache/pkg/observability/logging"
	"github.com/pixframe/thumbcache/pkg/observability/logging/logger"
)

const (
	// IndexFile is the filename of the primary metadata index
	IndexFile = "cache_index.json"
	// BackupFile is the filename of the rotating index backup
	BackupFile = "cache_index.json.bak"
)

// Entry contains metadata about one item in the disk tier
type Entry struct {
	// Key is the cache key naming the entry and its disk file
	Key string `json:"key"`
	// SourcePath is the path of the source image the entry was rendered from
	SourcePath string `json:"source_path"`
	// SourceModTime is the source file's modification time at render time,
	// as a Unix-seconds float
	SourceModTime float64 `json:"source_modified_time"`
	// CacheCreated is the time the entry was created
	CacheCreated float64 `json:"cache_created_time"`
	// LastAccess is the time the entry was last returned on a hit
	LastAccess float64 `json:"last_access_time"`
	// TargetWidth and TargetHeight are the thumbnail dimensions
	TargetWidth  int `json:"target_width"`
	TargetHeight int `json:"target_height"`
	// Category and Variant carry the descriptor's display identity
	Category string `json:"category"`
	Variant  int    `json:"variant"`
	// FileSizeBytes is the size of the entry's disk file
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// UnixTime converts a time.Time to the Unix-seconds float representation
// used throughout the index
func UnixTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FromUnix converts a Unix-seconds float back to a time.Time
func FromUnix(f float64) time.Time {
	return time.Unix(0, int64(f*1e9))
}

// ModTime returns the recorded source modification time
func (e *Entry) ModTime() time.Time {
	return FromUnix(e.SourceModTime)
}

// AccessTime returns the recorded last access time
func (e *Entry) AccessTime() time.Time {
	return FromUnix(e.LastAccess)
}

// Touch refreshes the entry's last access time
func (e *Entry) Touch(t time.Time) {
	e.LastAccess = UnixTime(t)
}

// Index is the full map of cache key to Entry
type Index map[string]*Entry

// NewIndex returns an empty Index
func NewIndex() Index {
	return make(Index)
}

// Get returns the Entry for the provided key, or nil
func (idx Index) Get(key string) *Entry {
	return idx[key]
}

// Update inserts or replaces the provided Entry
func (idx Index) Update(e *Entry) {
	if e == nil || e.Key == "" {
		return
	}
	idx[e.Key] = e
}

// Remove deletes the Entry for the provided key, reporting whether it was present
func (idx Index) Remove(key string) bool {
	if _, ok := idx[key]; !ok {
		return false
	}
	delete(idx, key)
	return true
}

// Len returns the number of entries in the Index
func (idx Index) Len() int {
	return len(idx)
}

// TotalSize returns the sum of all entries' file sizes
func (idx Index) TotalSize() int64 {
	var n int64
	for _, e := range idx {
		n += e.FileSizeBytes
	}
	return n
}

// Entries returns the entries of the Index as a slice, in map order
func (idx Index) Entries() []*Entry {
	out := make([]*Entry, 0, len(idx))
	for _, e := range idx {
		out = append(out, e)
	}
	return out
}

// Store owns the durable form of an Index, kept in the cache directory
// alongside the disk tier's image files
type Store struct {
	dir string
}

// NewStore returns a Store for the cache directory at dir
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// IndexPath returns the path of the primary index file
func (s *Store) IndexPath() string {
	return filepath.Join(s.dir, IndexFile)
}

// BackupPath returns the path of the index backup file
func (s *Store) BackupPath() string {
	return filepath.Join(s.dir, BackupFile)
}

// Load reads the Index from durable storage. It never raises to the caller:
// a corrupt primary falls back to the backup (restoring the primary from it
// on success), a corrupt backup falls back to a reconstruction by directory
// scan, and a failed scan resolves to a full reset to an empty, valid cache.
// A brand-new cache directory with neither index file is not a repair; it
// loads quietly as an empty index.
func (s *Store) Load() Index {
	cleanStart := true
	data, err := os.ReadFile(s.IndexPath())
	if err == nil {
		cleanStart = false
		idx, perr := parseIndex(data)
		if perr == nil {
			return idx
		}
		logger.Warn("cache index is corrupt, trying backup",
			logging.Pairs{"indexPath": s.IndexPath(), "detail": perr.Error()})
		metrics.ObserveCacheEvent("disk", "repair", "index_corrupt")
	} else if !os.IsNotExist(err) {
		cleanStart = false
		logger.Warn("cache index is unreadable, trying backup",
			logging.Pairs{"indexPath": s.IndexPath(), "detail": err.Error()})
		metrics.ObserveCacheEvent("disk", "repair", "index_corrupt")
	}

	bdata, berr := os.ReadFile(s.BackupPath())
	if berr == nil {
		cleanStart = false
		if idx, perr := parseIndex(bdata); perr == nil {
			// the backup is good; restore the primary from it
			if werr := os.WriteFile(s.IndexPath(), bdata, 0o644); werr != nil {
				logger.Warn("unable to restore cache index from backup",
					logging.Pairs{"indexPath": s.IndexPath(), "detail": werr.Error()})
			} else {
				logger.Warn("cache index restored from backup",
					logging.Pairs{"indexPath": s.IndexPath(), "entries": idx.Len()})
			}
			metrics.ObserveCacheEvent("disk", "repair", "backup_restore")
			return idx
		}
		logger.Warn("cache index backup is corrupt, rebuilding from disk",
			logging.Pairs{"backupPath": s.BackupPath()})
	}

	idx, rerr := s.RebuildFromDisk()
	if rerr == nil {
		// a first run finds no index files and no cache files; only a scan
		// that follows lost or corrupt index files is a repair
		if !cleanStart || idx.Len() > 0 {
			logger.Warn("cache index rebuilt from disk scan",
				logging.Pairs{"cacheDir": s.dir, "entries": idx.Len()})
			metrics.ObserveCacheEvent("disk", "repair", "rebuild")
		}
		return idx
	}

	// catastrophic corruption: both index files and the directory scan are
	// unusable, so discard everything and start from an empty, valid cache
	logger.Error("cache unrecoverable, resetting",
		logging.Pairs{"cacheDir": s.dir, "detail": rerr.Error()})
	metrics.ObserveCacheEvent("disk", "repair", "reset")
	if err := s.Reset(); err != nil {
		logger.Error("cache reset failed", logging.Pairs{"cacheDir": s.dir, "detail": err.Error()})
	}
	return NewIndex()
}

// RebuildFromDisk scans the cache directory for stored image files and
// synthesizes a minimal Entry per file from the file's own size and
// modification time. Descriptor and variant information is lost, which is
// acceptable: the result is accurate enough for eviction and validity
// checks but not for display.
func (s *Store) RebuildFromDisk() (Index, error) {
	ents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	idx := NewIndex()
	for _, de := range ents {
		if de.IsDir() {
			continue
		}
		k, ok := disk.KeyFromFilename(de.Name())
		if !ok {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		mod := UnixTime(fi.ModTime())
		idx[k] = &Entry{
			Key:           k,
			SourceModTime: mod,
			CacheCreated:  mod,
			LastAccess:    mod,
			FileSizeBytes: fi.Size(),
		}
	}
	return idx, nil
}

// Save writes the Index to durable storage. The previous primary is first
// copied to the backup location (best effort), the new content is written
// to a temporary file in the same directory and re-parsed to confirm it is
// valid, and only then renamed over the primary. The primary is therefore
// never observed in a half-written state, and a prior good backup exists
// before a new primary is committed.
func (s *Store) Save(idx Index) error {
	if idx == nil {
		return errors.New("nil index")
	}

	if prev, err := os.ReadFile(s.IndexPath()); err == nil {
		if err := os.WriteFile(s.BackupPath(), prev, 0o644); err != nil {
			logger.Warn("unable to rotate cache index backup",
				logging.Pairs{"backupPath": s.BackupPath(), "detail": err.Error()})
		}
	}

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "index-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// re-parse the temp file to confirm a valid index is about to be committed
	written, err := os.ReadFile(tmpPath)
	if err == nil {
		_, err = parseIndex(written)
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("index validation before commit failed: %w", err)
	}

	return os.Rename(tmpPath, s.IndexPath())
}

// Reset discards all disk-tier files and both index files, then commits a
// fresh empty index. This is the only path that discards user-visible
// cached content.
func (s *Store) Reset() error {
	ents, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, de := range ents {
		if de.IsDir() {
			continue
		}
		if _, ok := disk.KeyFromFilename(de.Name()); ok {
			os.Remove(filepath.Join(s.dir, de.Name()))
		}
	}
	os.Remove(s.BackupPath())
	os.Remove(s.IndexPath())
	return s.Save(NewIndex())
}

// parseIndex decodes and validates index file content. The file must be a
// well-formed mapping; individual entries that do not minimally contain an
// access timestamp are discarded rather than failing the whole index.
func parseIndex(data []byte) (Index, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	idx := NewIndex()
	for k, msg := range raw {
		var e Entry
		if err := json.Unmarshal(msg, &e); err != nil {
			logger.Debug("discarding malformed cache index entry", logging.Pairs{"key": k})
			continue
		}
		if e.LastAccess <= 0 {
			logger.Debug("discarding cache index entry without access time", logging.Pairs{"key": k})
			continue
		}
		if e.Key == "" {
			e.Key = k
		}
		idx[e.Key] = &e
	}
	return idx, nil
}
