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

package evict

import (
	"fmt"
	"os"
	"testing"

	"github.com/pixframe/thumbcache/pkg/cache/disk"
	"github.com/pixframe/thumbcache/pkg/cache/metadata"
	"github.com/pixframe/thumbcache/pkg/observability/logging"
	"github.com/pixframe/thumbcache/pkg/observability/logging/level"
	"github.com/pixframe/thumbcache/pkg/observability/logging/logger"
)

func init() {
	logger.SetLogger(logging.ConsoleLogger(level.Error))
}

// populate writes n entries of size bytes each, with ascending access times
// so entry 0 is the coldest
func populate(t *testing.T, files *disk.Store, n int, size int64) metadata.Index {
	t.Helper()
	idx := metadata.NewIndex()
	payload := make([]byte, size)
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("key%03d", i)
		if err := files.Write(k, payload); err != nil {
			t.Fatal(err)
		}
		idx.Update(&metadata.Entry{
			Key:           k,
			LastAccess:    float64(1600000000 + i),
			FileSizeBytes: size,
		})
	}
	return idx
}

func TestCheckAndCleanupWithinBudget(t *testing.T) {
	dir := t.TempDir()
	files, err := disk.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	meta := metadata.NewStore(dir)
	idx := populate(t, files, 4, 100)

	m := &Manager{MaxSizeBytes: 1000}
	if n := m.CheckAndCleanup(idx, files, meta); n != 0 {
		t.Errorf("expected 0 removals got %d", n)
	}
	if idx.Len() != 4 {
		t.Errorf("expected 4 entries got %d", idx.Len())
	}
}

func TestCheckAndCleanupDisabled(t *testing.T) {
	dir := t.TempDir()
	files, err := disk.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	meta := metadata.NewStore(dir)
	idx := populate(t, files, 4, 1000)

	m := &Manager{MaxSizeBytes: 0}
	if n := m.CheckAndCleanup(idx, files, meta); n != 0 {
		t.Errorf("expected 0 removals with eviction disabled got %d", n)
	}
}

func TestCheckAndCleanupEvictsColdest(t *testing.T) {
	dir := t.TempDir()
	files, err := disk.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	meta := metadata.NewStore(dir)
	idx := populate(t, files, 8, 100)

	// 800 bytes total against a 700-byte budget; one quarter batch (2
	// entries) brings it to 600
	m := &Manager{MaxSizeBytes: 700}
	if n := m.CheckAndCleanup(idx, files, meta); n != 2 {
		t.Errorf("expected 2 removals got %d", n)
	}
	if idx.Get("key000") != nil || idx.Get("key001") != nil {
		t.Error("expected the two coldest entries removed")
	}
	if idx.Get("key002") == nil || idx.Get("key007") == nil {
		t.Error("expected warmer entries retained")
	}
	for _, k := range []string{"key000", "key001"} {
		if _, err := os.Stat(files.Path(k)); err == nil {
			t.Errorf("expected disk file for %s removed", k)
		}
	}
	if _, err := os.Stat(files.Path("key002")); err != nil {
		t.Error("expected disk file for key002 retained")
	}
}

func TestCheckAndCleanupRepeatsBatches(t *testing.T) {
	dir := t.TempDir()
	files, err := disk.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	meta := metadata.NewStore(dir)
	idx := populate(t, files, 8, 100)

	// a 250-byte budget needs multiple quarter batches
	m := &Manager{MaxSizeBytes: 250}
	m.CheckAndCleanup(idx, files, meta)
	if total := idx.TotalSize(); total > 250 {
		t.Errorf("expected total within budget got %d", total)
	}
	if idx.Len() == 0 {
		t.Error("expected some entries retained")
	}
	// the retained entries are the most recently accessed
	if idx.Get("key007") == nil {
		t.Error("expected hottest entry retained")
	}
}

func TestCheckAndCleanupPersistsIndex(t *testing.T) {
	dir := t.TempDir()
	files, err := disk.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	meta := metadata.NewStore(dir)
	idx := populate(t, files, 4, 100)

	m := &Manager{MaxSizeBytes: 300}
	m.CheckAndCleanup(idx, files, meta)

	loaded := meta.Load()
	if loaded.Len() != idx.Len() {
		t.Errorf("expected persisted index with %d entries got %d", idx.Len(), loaded.Len())
	}
	if loaded.Get("key000") != nil {
		t.Error("expected evicted entry absent from persisted index")
	}
}
