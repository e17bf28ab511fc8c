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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewConfigDefaults(t *testing.T) {
	c := NewConfig()
	if c.Cache.CachePath == "" {
		t.Error("expected a default cache path")
	}
	if c.Cache.MaxSizeBytes != DefaultMaxSizeBytes {
		t.Errorf("expected %d got %d", DefaultMaxSizeBytes, c.Cache.MaxSizeBytes)
	}
	if c.Cache.RawMemoryEntries != DefaultRawMemoryEntries {
		t.Errorf("expected %d got %d", DefaultRawMemoryEntries, c.Cache.RawMemoryEntries)
	}
	if c.Cache.ScaledMemoryEntries != DefaultScaledMemoryEntries {
		t.Errorf("expected %d got %d", DefaultScaledMemoryEntries, c.Cache.ScaledMemoryEntries)
	}
	if c.Cache.QualityVersion != DefaultQualityVersion {
		t.Errorf("expected %s got %s", DefaultQualityVersion, c.Cache.QualityVersion)
	}
	if c.Logging.LogLevel != DefaultLogLevel {
		t.Errorf("expected %s got %s", DefaultLogLevel, c.Logging.LogLevel)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("expected default config to validate: %s", err)
	}
}

func TestLoadFile(t *testing.T) {
	content := `
[main]
instance_id = 3

[cache]
cache_path = "/tmp/thumbcache-test"
max_size_bytes = 1048576
scaled_memory_entries = 32
quality_version = "q9"

[logging]
log_level = "debug"

[metrics]
listen_port = 9090
`
	path := filepath.Join(t.TempDir(), "thumbcache.conf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Main.InstanceID != 3 {
		t.Errorf("expected instance id 3 got %d", c.Main.InstanceID)
	}
	if c.Cache.CachePath != "/tmp/thumbcache-test" {
		t.Errorf("expected configured cache path got %s", c.Cache.CachePath)
	}
	if c.Cache.MaxSizeBytes != 1048576 {
		t.Errorf("expected 1048576 got %d", c.Cache.MaxSizeBytes)
	}
	if c.Cache.ScaledMemoryEntries != 32 {
		t.Errorf("expected 32 got %d", c.Cache.ScaledMemoryEntries)
	}
	// unset keys retain their defaults
	if c.Cache.RawMemoryEntries != DefaultRawMemoryEntries {
		t.Errorf("expected default raw entries got %d", c.Cache.RawMemoryEntries)
	}
	if c.Cache.QualityVersion != "q9" {
		t.Errorf("expected q9 got %s", c.Cache.QualityVersion)
	}
	if c.Logging.LogLevel != "debug" {
		t.Errorf("expected debug got %s", c.Logging.LogLevel)
	}
	if c.Metrics.ListenPort != 9090 {
		t.Errorf("expected 9090 got %d", c.Metrics.ListenPort)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nonexistent.conf")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadEnvVars(t *testing.T) {
	t.Setenv(evCachePath, "/tmp/thumbcache-env")
	t.Setenv(evMaxSizeBytes, "2097152")
	t.Setenv(evQualityVersion, "q7")
	t.Setenv(evLogLevel, "warn")

	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Cache.CachePath != "/tmp/thumbcache-env" {
		t.Errorf("expected env cache path got %s", c.Cache.CachePath)
	}
	if c.Cache.MaxSizeBytes != 2097152 {
		t.Errorf("expected 2097152 got %d", c.Cache.MaxSizeBytes)
	}
	if c.Cache.QualityVersion != "q7" {
		t.Errorf("expected q7 got %s", c.Cache.QualityVersion)
	}
	if c.Logging.LogLevel != "warn" {
		t.Errorf("expected warn got %s", c.Logging.LogLevel)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	content := `
[cache]
cache_path = "/tmp/from-file"
`
	path := filepath.Join(t.TempDir(), "thumbcache.conf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(evCachePath, "/tmp/from-env")

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Cache.CachePath != "/tmp/from-env" {
		t.Errorf("expected env to win got %s", c.Cache.CachePath)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty cache path", func(c *Config) { c.Cache.CachePath = "" }},
		{"zero max size", func(c *Config) { c.Cache.MaxSizeBytes = 0 }},
		{"negative max size", func(c *Config) { c.Cache.MaxSizeBytes = -1 }},
		{"zero raw entries", func(c *Config) { c.Cache.RawMemoryEntries = 0 }},
		{"zero scaled entries", func(c *Config) { c.Cache.ScaledMemoryEntries = 0 }},
		{"empty quality version", func(c *Config) { c.Cache.QualityVersion = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewConfig()
			tc.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
