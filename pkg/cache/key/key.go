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

// Package key provides deterministic cache key derivation from a logical
// thumbnail request. Keys are fixed-length hex digests; two requests with
// identical inputs always produce the same key, and changing the
// quality-version tag invalidates all previously derived keys.
package key

import (
	"crypto/md5"
	"fmt"
	"strconv"
	"time"

	"github.com/opencontainers/go-digest"
)

// Descriptor identifies the logical image request independent of target
// size and quality version
type Descriptor struct {
	// SourcePath is the path of the source image on the local filesystem
	SourcePath string
	// Category is an opaque logical name used for display and redundancy grouping
	Category string
	// Variant is the variation index within the Category
	Variant int
}

// Key is an opaque fixed-length digest identifying one cached artifact
type Key string

func (k Key) String() string {
	return string(k)
}

// Derive returns the cache Key for the provided descriptor, target
// dimensions, source modification time (as a Unix-seconds float, matching
// the persisted metadata representation), and quality-version tag. It is a
// pure function and never fails.
func Derive(d Descriptor, width, height int, sourceModUnix float64, qualityVersion string) Key {
	s := fmt.Sprintf("%s|%s|%d|%dx%d|%s|%s",
		d.SourcePath, d.Category, d.Variant, width, height,
		strconv.FormatFloat(sourceModUnix, 'f', -1, 64), qualityVersion)
	return Key(fmt.Sprintf("%x", md5.Sum([]byte(s))))
}

// DeriveFallback returns a Key for a request whose source modification time
// could not be read. The wall clock is folded into the derivation so the
// resulting key deliberately cannot hit any existing entry; this is a
// conservative cache-miss fallback, not an error.
func DeriveFallback(d Descriptor, width, height int, qualityVersion string) Key {
	return Derive(d, width, height, float64(time.Now().UnixNano())/1e9, qualityVersion)
}

// Signature returns the content signature used for redundancy grouping.
// It is derived from the source identity and target dimensions only,
// explicitly excluding the quality-version tag and the source modification
// time, so entries produced under different quality versions for the same
// logical content group together.
func Signature(sourcePath string, width, height int) digest.Digest {
	return digest.FromString(fmt.Sprintf("%s|%dx%d", sourcePath, width, height))
}
