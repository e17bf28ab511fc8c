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

// Package cache provides the two-tier thumbnail cache coordinator. A lookup
// probes the memory tier, then the disk tier, promoting disk hits into
// memory; writes go through both tiers. A cache failure is never worse than
// a recomputed thumbnail: soft I/O errors become misses, and only contract
// violations surface as errors.
package cache

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pixframe/thumbcache/pkg/cache/disk"
	"github.com/pixframe/thumbcache/pkg/cache/evict"
	"github.com/pixframe/thumbcache/pkg/cache/key"
	"github.com/pixframe/thumbcache/pkg/cache/memory"
	"github.com/pixframe/thumbcache/pkg/cache/metadata"
	"github.com/pixframe/thumbcache/pkg/cache/metrics"
	"github.com/pixframe/thumbcache/pkg/config"
	"github.com/pixframe/thumbcache/pkg/observability/logging"
	"github.com/pixframe/thumbcache/pkg/observability/logging/logger"
)

// Contract errors. These indicate misuse by the caller rather than an
// environmental condition, and are the only errors the coordinator raises.
var (
	ErrInvalidDimensions = errors.New("invalid target dimensions")
	ErrEmptySourcePath   = errors.New("source path required")
	ErrNilImage          = errors.New("nil image")
)

// persistInterval is the number of writes between index persists and size
// checks. Persistence is eventually consistent by design; the index is also
// recoverable from a directory scan.
const persistInterval = 16

// Options configures a Cache
type Options struct {
	// Dir is the cache directory holding the disk tier and metadata index
	Dir string
	// MaxSizeBytes is the disk tier's size budget
	MaxSizeBytes int64
	// RawMemoryEntries is the item capacity of the raw decoded-image pool
	RawMemoryEntries int
	// ScaledMemoryEntries is the item capacity of the scaled-thumbnail pool
	ScaledMemoryEntries int
	// QualityVersion is the current quality-version tag for key derivation
	QualityVersion string
}

// OptionsFromConfig maps a cache configuration section to Options
func OptionsFromConfig(c *config.CacheConfig) Options {
	return Options{
		Dir:                 c.CachePath,
		MaxSizeBytes:        c.MaxSizeBytes,
		RawMemoryEntries:    c.RawMemoryEntries,
		ScaledMemoryEntries: c.ScaledMemoryEntries,
		QualityVersion:      c.QualityVersion,
	}
}

// Cache is the thumbnail cache coordinator. It owns the memory pools, the
// metadata index, and the disk store, and serializes all mutation behind a
// single mutex. Construct one per application and pass it to consumers;
// there is no process-wide instance.
type Cache struct {
	mu      sync.Mutex
	opts    Options
	raw     *memory.Cache[image.Image]
	scaled  *memory.Cache[image.Image]
	meta    *metadata.Store
	files   *disk.Store
	idx     metadata.Index
	evictor *evict.Manager
	stats   statistics
	writes  int
	flight  singleflight.Group
}

// New returns a connected Cache for the provided Options, loading (or
// recovering) the metadata index from the cache directory
func New(opts Options) (*Cache, error) {
	if opts.QualityVersion == "" {
		opts.QualityVersion = config.DefaultQualityVersion
	}
	files, err := disk.New(opts.Dir)
	if err != nil {
		return nil, err
	}
	meta := metadata.NewStore(opts.Dir)
	c := &Cache{
		opts:    opts,
		raw:     memory.New[image.Image](opts.RawMemoryEntries),
		scaled:  memory.New[image.Image](opts.ScaledMemoryEntries),
		meta:    meta,
		files:   files,
		idx:     meta.Load(),
		evictor: &evict.Manager{MaxSizeBytes: opts.MaxSizeBytes},
	}
	logger.Info("thumbnail cache setup", logging.Pairs{
		"cacheDir": opts.Dir, "entries": c.idx.Len(),
		"maxSizeBytes": opts.MaxSizeBytes, "qualityVersion": opts.QualityVersion})
	metrics.ObserveCacheSizeChange("disk", c.idx.TotalSize(), int64(c.idx.Len()))
	return c, nil
}

// Get returns the cached thumbnail for the provided descriptor and target
// dimensions, or false on a miss. Stale entries (source newer than the
// recorded modification time) and entries whose disk file is unreadable are
// invalidated on encounter.
func (c *Cache) Get(d key.Descriptor, width, height int) (image.Image, bool) {
	fi, err := os.Stat(d.SourcePath)
	if err != nil {
		// unreadable source is an immediate miss, not an error
		c.stats.diskMiss()
		metrics.ObserveCacheMiss("disk")
		return nil, false
	}
	curMod := metadata.UnixTime(fi.ModTime())
	k := key.Derive(d, width, height, curMod, c.opts.QualityVersion).String()

	c.mu.Lock()
	defer c.mu.Unlock()

	if img, ok := c.scaled.Get(k); ok {
		c.stats.memoryHit()
		metrics.ObserveCacheOperation("memory", "get", "hit", 0)
		if e := c.idx.Get(k); e != nil {
			e.Touch(time.Now())
		}
		return img, true
	}
	c.stats.memoryMiss()
	metrics.ObserveCacheMiss("memory")

	e := c.idx.Get(k)
	if e == nil {
		// a file without an index entry is invalid; purge it on encounter
		if _, serr := os.Stat(c.files.Path(k)); serr == nil {
			logger.Debug("removing orphaned cache file", logging.Pairs{"key": k})
			c.files.Remove(k)
		}
		c.stats.diskMiss()
		metrics.ObserveCacheMiss("disk")
		return nil, false
	}

	if curMod > e.SourceModTime {
		logger.Debug("cache entry stale, invalidating",
			logging.Pairs{"key": k, "sourcePath": d.SourcePath})
		c.invalidateLocked(k)
		c.stats.diskMiss()
		metrics.ObserveCacheMiss("disk")
		return nil, false
	}

	data, err := c.files.Read(k)
	if err != nil {
		c.invalidateLocked(k)
		c.stats.diskMiss()
		metrics.ObserveCacheMiss("disk")
		return nil, false
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		logger.Warn("cache file undecodable, invalidating",
			logging.Pairs{"key": k, "detail": err.Error()})
		c.invalidateLocked(k)
		c.stats.diskMiss()
		metrics.ObserveCacheMiss("disk")
		return nil, false
	}

	e.Touch(time.Now())
	c.scaled.Put(k, img)
	c.stats.diskHit()
	metrics.ObserveCacheOperation("disk", "get", "hit", float64(len(data)))
	return img, true
}

// Put writes a rendered thumbnail through both tiers. The image is encoded
// losslessly; caching never degrades quality. The index is persisted and
// the size budget checked periodically rather than on every write. The
// returned error is non-nil only for contract violations; I/O failures
// return false without raising.
func (c *Cache) Put(d key.Descriptor, width, height int, img image.Image) (bool, error) {
	if width < 1 || height < 1 {
		return false, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if d.SourcePath == "" {
		return false, ErrEmptySourcePath
	}
	if img == nil {
		return false, ErrNilImage
	}

	fi, err := os.Stat(d.SourcePath)
	if err != nil {
		logger.Debug("cache put skipped, source unreadable",
			logging.Pairs{"sourcePath": d.SourcePath, "detail": err.Error()})
		return false, nil
	}
	mod := metadata.UnixTime(fi.ModTime())
	k := key.Derive(d, width, height, mod, c.opts.QualityVersion).String()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		logger.Warn("thumbnail encode failed", logging.Pairs{"key": k, "detail": err.Error()})
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.files.Write(k, buf.Bytes()); err != nil {
		logger.Warn("cache file write failed", logging.Pairs{"key": k, "detail": err.Error()})
		return false, nil
	}

	now := metadata.UnixTime(time.Now())
	c.idx.Update(&metadata.Entry{
		Key:           k,
		SourcePath:    d.SourcePath,
		SourceModTime: mod,
		CacheCreated:  now,
		LastAccess:    now,
		TargetWidth:   width,
		TargetHeight:  height,
		Category:      d.Category,
		Variant:       d.Variant,
		FileSizeBytes: int64(buf.Len()),
	})
	c.scaled.Put(k, img)
	metrics.ObserveCacheOperation("disk", "set", "none", float64(buf.Len()))

	c.writes++
	if c.writes >= persistInterval {
		c.writes = 0
		if err := c.meta.Save(c.idx); err != nil {
			logger.Warn("unable to persist cache index", logging.Pairs{"detail": err.Error()})
		}
		c.evictor.CheckAndCleanup(c.idx, c.files, c.meta)
	}
	return true, nil
}

// Fetch returns the cached thumbnail, rendering and caching it via the
// provided render func on a miss. Concurrent fetches for the same logical
// request share a single render.
func (c *Cache) Fetch(d key.Descriptor, width, height int,
	render func() (image.Image, error)) (image.Image, error) {
	if img, ok := c.Get(d, width, height); ok {
		return img, nil
	}
	id := fmt.Sprintf("%s|%s|%d|%dx%d", d.SourcePath, d.Category, d.Variant, width, height)
	v, err, _ := c.flight.Do(id, func() (any, error) {
		// another flight may have populated the cache while this one queued
		if img, ok := c.Get(d, width, height); ok {
			return img, nil
		}
		img, err := render()
		if err != nil {
			return nil, err
		}
		if img == nil {
			return nil, ErrNilImage
		}
		if _, err := c.Put(d, width, height, img); err != nil {
			return nil, err
		}
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}

// Invalidate removes the entry for the provided key from all tiers
func (c *Cache) Invalidate(k key.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(k.String())
}

func (c *Cache) invalidateLocked(k string) {
	c.scaled.Delete(k)
	if err := c.files.Remove(k); err != nil && !os.IsNotExist(err) {
		logger.Debug("cache file removal failed", logging.Pairs{"key": k, "detail": err.Error()})
	}
	c.idx.Remove(k)
	metrics.ObserveCacheOperation("disk", "del", "none", 0)
}

// Clear removes every entry from both tiers and persists the empty index,
// returning the number of disk entries removed
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.idx.Len()
	for _, e := range c.idx.Entries() {
		c.files.Remove(e.Key)
	}
	c.idx = metadata.NewIndex()
	c.raw.Clear()
	c.scaled.Clear()
	c.writes = 0
	if err := c.meta.Save(c.idx); err != nil {
		logger.Warn("unable to persist cache index after clear",
			logging.Pairs{"detail": err.Error()})
	}
	metrics.ObserveCacheSizeChange("disk", 0, 0)
	logger.Info("thumbnail cache cleared", logging.Pairs{"removed": n})
	return n
}

// Repair performs a full reset of the metadata store and reloads the index,
// reporting whether the reset succeeded
func (c *Cache) Repair() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := true
	if err := c.meta.Reset(); err != nil {
		logger.Error("cache repair failed", logging.Pairs{"detail": err.Error()})
		ok = false
	}
	c.idx = c.meta.Load()
	c.raw.Clear()
	c.scaled.Clear()
	c.writes = 0
	return ok
}

// ClearEntriesWithoutVersionTag purges entries whose key was not derived
// under the provided quality-version tag, forcing a re-render for all
// future requests without touching source files. It returns the number of
// entries removed.
func (c *Cache) ClearEntriesWithoutVersionTag(currentVersion string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed int
	for _, e := range c.idx.Entries() {
		d := key.Descriptor{SourcePath: e.SourcePath, Category: e.Category, Variant: e.Variant}
		expected := key.Derive(d, e.TargetWidth, e.TargetHeight, e.SourceModTime, currentVersion)
		if expected.String() != e.Key {
			c.invalidateLocked(e.Key)
			removed++
		}
	}
	if removed > 0 {
		if err := c.meta.Save(c.idx); err != nil {
			logger.Warn("unable to persist cache index after version purge",
				logging.Pairs{"detail": err.Error()})
		}
		logger.Info("purged cache entries from prior quality versions",
			logging.Pairs{"removed": removed, "qualityVersion": currentVersion})
	}
	return removed
}

// RawImage returns a decoded source image from the raw memory pool. The
// raw pool is independent of the scaled-thumbnail pool and is populated by
// the external decode pipeline via StoreRawImage.
func (c *Cache) RawImage(sourcePath string) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	img, ok := c.raw.Get(sourcePath)
	if ok {
		c.stats.memoryHit()
		metrics.ObserveCacheOperation("raw", "get", "hit", 0)
	}
	return img, ok
}

// StoreRawImage places a decoded source image in the raw memory pool
func (c *Cache) StoreRawImage(sourcePath string, img image.Image) {
	if sourcePath == "" || img == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw.Put(sourcePath, img)
}

// EntryCount returns the number of entries in the disk tier
func (c *Cache) EntryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idx.Len()
}

// TotalSize returns the disk tier's total size in bytes
func (c *Cache) TotalSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idx.TotalSize()
}

// Flush persists the metadata index immediately, for use at host shutdown
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = 0
	return c.meta.Save(c.idx)
}
