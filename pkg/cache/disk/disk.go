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

// Package disk is the filesystem tier of the thumbnail cache: a flat
// directory of encoded image files named by cache key. The store performs
// no validity checking itself; staleness is the coordinator's concern.
package disk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Extension is the fixed filename extension of stored cache files
const Extension = ".png"

// Store manages the on-disk directory of encoded image files
type Store struct {
	dir string
}

// New returns a Store rooted at dir, creating the directory if needed and
// verifying it is writeable
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("cache directory required")
	}
	if err := makeDirectory(dir); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path that stores the object for the provided key
func (s *Store) Path(cacheKey string) string {
	return filepath.Join(s.dir, cacheKey+Extension)
}

// KeyFromFilename returns the cache key encoded in a store filename,
// or false if the filename is not a store file
func KeyFromFilename(name string) (string, bool) {
	if !strings.HasSuffix(name, Extension) {
		return "", false
	}
	return strings.TrimSuffix(name, Extension), true
}

// Read returns the stored bytes for the provided key
func (s *Store) Read(cacheKey string) ([]byte, error) {
	return os.ReadFile(s.Path(cacheKey))
}

// Write stores the provided bytes under the provided key. The write is
// atomic: data lands in a temp file in the same directory and is renamed
// over the final path, so a reader never observes a partial file.
func (s *Store) Write(cacheKey string, data []byte) error {
	if cacheKey == "" {
		return errors.New("cacheKey required")
	}
	tmp, err := os.CreateTemp(s.dir, "obj-*")
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
	if err := os.Rename(tmpPath, s.Path(cacheKey)); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Remove deletes the stored file for the provided key
func (s *Store) Remove(cacheKey string) error {
	return os.Remove(s.Path(cacheKey))
}

// makeDirectory creates a directory on the filesystem and returns an error
// in the event of a failure, verifying writability by touching a test file
func makeDirectory(path string) error {
	err := os.MkdirAll(path, 0o755)
	if err == nil {
		tf := filepath.Join(path, ".test."+strconv.FormatInt(time.Now().Unix(), 10))
		err = os.WriteFile(tf, []byte(""), 0o600)
		if err == nil {
			os.Remove(tf)
		}
	}
	if err != nil {
		return fmt.Errorf("[%s] directory is not writeable by thumbcache: %w", path, err)
	}
	return nil
}
