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

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pixframe/thumbcache/pkg/config"
	"github.com/pixframe/thumbcache/pkg/observability/logging/level"
)

func TestStreamLogger(t *testing.T) {
	var buf bytes.Buffer
	l := StreamLogger(&buf, level.Info)
	l.Info("test event", Pairs{"testKey": "testVal"})

	out := buf.String()
	if !strings.Contains(out, "event=\"test event\"") {
		t.Errorf("expected event in output, got %s", out)
	}
	if !strings.Contains(out, "testKey=testVal") {
		t.Errorf("expected pair in output, got %s", out)
	}
	if !strings.Contains(out, "level=info") {
		t.Errorf("expected level in output, got %s", out)
	}
	if !strings.Contains(out, "app=thumbcache") {
		t.Errorf("expected app name in output, got %s", out)
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := StreamLogger(&buf, level.Warn)

	l.Debug("quiet", nil)
	l.Info("quiet", nil)
	if buf.Len() > 0 {
		t.Errorf("expected debug and info suppressed, got %s", buf.String())
	}

	l.Warn("loud", nil)
	l.Error("loud", nil)
	if n := strings.Count(buf.String(), "event=loud"); n != 2 {
		t.Errorf("expected 2 events got %d: %s", n, buf.String())
	}
}

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	l := StreamLogger(&buf, level.Error)
	if l.Level() != level.Error {
		t.Errorf("expected error got %s", l.Level())
	}

	l.Info("quiet", nil)
	if buf.Len() > 0 {
		t.Errorf("expected info suppressed, got %s", buf.String())
	}

	l.SetLogLevel(level.Debug)
	l.Debug("loud", nil)
	if !strings.Contains(buf.String(), "event=loud") {
		t.Errorf("expected debug emitted after level change, got %s", buf.String())
	}

	// an unknown level resolves to info
	l.SetLogLevel(level.Level("bogus"))
	if l.Level() != level.Info {
		t.Errorf("expected info got %s", l.Level())
	}
}

func TestLogDispatch(t *testing.T) {
	var buf bytes.Buffer
	l := StreamLogger(&buf, level.Debug)
	for _, lv := range []level.Level{level.Debug, level.Info, level.Warn, level.Error} {
		l.Log(lv, "dispatched", nil)
	}
	for _, want := range []string{"level=debug", "level=info", "level=warn", "level=error"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("expected %s in output, got %s", want, buf.String())
		}
	}
}

func TestFatal(t *testing.T) {
	var buf bytes.Buffer
	l := StreamLogger(&buf, level.Info).(*logger)
	var code int
	l.exitFunc = func(c int) { code = c }

	l.Fatal(3, "unrecoverable", Pairs{"detail": "boom"})
	if code != 3 {
		t.Errorf("expected exit code 3 got %d", code)
	}
	if !strings.Contains(buf.String(), "level=fatal") {
		t.Errorf("expected fatal level in output, got %s", buf.String())
	}
}

func TestNewFileLogger(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "thumbcache.log")
	l := New(&config.LoggingConfig{LogFile: logFile, LogLevel: "info"}, 0)
	l.Info("written to file", Pairs{"testKey": "testVal"})
	l.Close()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "event=\"written to file\"") {
		t.Errorf("expected event in log file, got %s", data)
	}
}

func TestNewFileLoggerInstanceID(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "thumbcache.log")
	l := New(&config.LoggingConfig{LogFile: logFile, LogLevel: "info"}, 2)
	l.Info("instanced", nil)
	l.Close()

	if _, err := os.Stat(filepath.Join(dir, "thumbcache.2.log")); err != nil {
		t.Errorf("expected instance-suffixed log file: %s", err)
	}
}

func TestNoopLogger(t *testing.T) {
	l := NoopLogger()
	l.Error("discarded", nil)
	if l.Level() != level.Error {
		t.Errorf("expected error level got %s", l.Level())
	}
}
