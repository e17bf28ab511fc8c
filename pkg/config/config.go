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

// Package config provides thumbcache configuration abilities, including
// parsing configuration files and environment variables, as well as
// default values and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Defaults
const (
	// DefaultMaxSizeBytes is the default size budget for the disk tier
	DefaultMaxSizeBytes = 512 * 1024 * 1024
	// DefaultRawMemoryEntries is the default capacity of the raw-image memory pool
	DefaultRawMemoryEntries = 8
	// DefaultScaledMemoryEntries is the default capacity of the scaled-thumbnail memory pool
	DefaultScaledMemoryEntries = 256
	// DefaultQualityVersion is the quality-version tag embedded in cache keys;
	// bumping it invalidates all previously derived keys
	DefaultQualityVersion = "q2"
	// DefaultLogLevel is the default logging level
	DefaultLogLevel = "info"
)

// Config is the running configuration for thumbcache
type Config struct {
	Main    *MainConfig    `toml:"main"`
	Cache   *CacheConfig   `toml:"cache"`
	Logging *LoggingConfig `toml:"logging"`
	Metrics *MetricsConfig `toml:"metrics"`
}

// MainConfig is the main subsection of the running configuration
type MainConfig struct {
	// InstanceID distinguishes multiple processes sharing one config while
	// logging to their own files
	InstanceID int `toml:"instance_id"`
}

// CacheConfig is the cache subsection of the running configuration
type CacheConfig struct {
	// CachePath is the directory holding the disk tier and its metadata index
	CachePath string `toml:"cache_path"`
	// MaxSizeBytes is the size budget enforced on the disk tier
	MaxSizeBytes int64 `toml:"max_size_bytes"`
	// RawMemoryEntries is the item capacity of the raw decoded-image pool
	RawMemoryEntries int `toml:"raw_memory_entries"`
	// ScaledMemoryEntries is the item capacity of the scaled-thumbnail pool
	ScaledMemoryEntries int `toml:"scaled_memory_entries"`
	// QualityVersion is the current quality-version tag for key derivation
	QualityVersion string `toml:"quality_version"`
}

// LoggingConfig is the logging subsection of the running configuration
type LoggingConfig struct {
	// LogFile provides the filepath to the instance's logfile; empty logs to console
	LogFile string `toml:"log_file"`
	// LogLevel provides the most granular level (e.g., debug) to log
	LogLevel string `toml:"log_level"`
}

// MetricsConfig is the metrics subsection of the running configuration
type MetricsConfig struct {
	// ListenPort is the port the application's metrics server listens on;
	// 0 disables the listener
	ListenPort int `toml:"listen_port"`
}

// NewConfig returns a Config with default values
func NewConfig() *Config {
	return &Config{
		Main: &MainConfig{},
		Cache: &CacheConfig{
			CachePath:           defaultCachePath(),
			MaxSizeBytes:        DefaultMaxSizeBytes,
			RawMemoryEntries:    DefaultRawMemoryEntries,
			ScaledMemoryEntries: DefaultScaledMemoryEntries,
			QualityVersion:      DefaultQualityVersion,
		},
		Logging: &LoggingConfig{LogLevel: DefaultLogLevel},
		Metrics: &MetricsConfig{},
	}
}

func defaultCachePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "thumbcache")
	}
	return filepath.Join(os.TempDir(), "thumbcache")
}

// Load returns the application configuration, starting with a default config,
// then overriding with any provided config file, then environment variables
func Load(path string) (*Config, error) {
	c := NewConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, err
		}
	}
	c.loadEnvVars()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Environment variable names recognized by loadEnvVars
const (
	evCachePath      = "THC_CACHE_PATH"
	evMaxSizeBytes   = "THC_MAX_SIZE_BYTES"
	evQualityVersion = "THC_QUALITY_VERSION"
	evLogFile        = "THC_LOG_FILE"
	evLogLevel       = "THC_LOG_LEVEL"
)

func (c *Config) loadEnvVars() {
	if v := os.Getenv(evCachePath); v != "" {
		c.Cache.CachePath = v
	}
	if v := os.Getenv(evMaxSizeBytes); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Cache.MaxSizeBytes = n
		}
	}
	if v := os.Getenv(evQualityVersion); v != "" {
		c.Cache.QualityVersion = v
	}
	if v := os.Getenv(evLogFile); v != "" {
		c.Logging.LogFile = v
	}
	if v := os.Getenv(evLogLevel); v != "" {
		c.Logging.LogLevel = v
	}
}

// Validate confirms the configuration is internally consistent
func (c *Config) Validate() error {
	if c.Cache == nil || c.Cache.CachePath == "" {
		return fmt.Errorf("cache_path required")
	}
	if c.Cache.MaxSizeBytes <= 0 {
		return fmt.Errorf("invalid max_size_bytes: %d", c.Cache.MaxSizeBytes)
	}
	if c.Cache.RawMemoryEntries <= 0 {
		return fmt.Errorf("invalid raw_memory_entries: %d", c.Cache.RawMemoryEntries)
	}
	if c.Cache.ScaledMemoryEntries <= 0 {
		return fmt.Errorf("invalid scaled_memory_entries: %d", c.Cache.ScaledMemoryEntries)
	}
	if c.Cache.QualityVersion == "" {
		return fmt.Errorf("quality_version required")
	}
	return nil
}
