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

// Package logging provides structured event logging for the thumbnail cache,
// with an event/Pairs interface over logfmt output
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"

	kitlog "github.com/go-kit/log"
	kitlevel "github.com/go-kit/log/level"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/pixframe/thumbcache/pkg/config"
	"github.com/pixframe/thumbcache/pkg/observability/logging/level"
)

// Pairs represents a key=value pair that helps to describe a log event
type Pairs map[string]any

// Logger is the interface for the application logger
type Logger interface {
	SetLogLevel(level.Level)
	Level() level.Level
	Close()
	Log(logLevel level.Level, event string, detail Pairs)
	Debug(event string, detail Pairs)
	Info(event string, detail Pairs)
	Warn(event string, detail Pairs)
	Error(event string, detail Pairs)
	Fatal(code int, event string, detail Pairs)
}

type logger struct {
	base     kitlog.Logger
	filtered kitlog.Logger
	closer   io.Closer
	lvl      level.Level
	exitFunc func(int)
}

// New returns a Logger for the provided logging configuration. The returned
// Logger will write to files distinguished from other instances by the
// instance id.
func New(conf *config.LoggingConfig, instanceID int) Logger {
	var wr io.Writer = os.Stdout
	var closer io.Closer
	if conf.LogFile != "" {
		logFile := conf.LogFile
		if instanceID > 0 {
			logFile = strings.Replace(logFile, ".log",
				"."+strconv.Itoa(instanceID)+".log", 1)
		}
		lj := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    256,  // megabytes
			MaxBackups: 80,   // 256 megs @ 80 backups is 20GB of Logs
			MaxAge:     7,    // days
			Compress:   true, // Compress Rolled Backups
		}
		wr = lj
		closer = lj
	}
	l := newLogger(wr, level.Normalize(conf.LogLevel))
	l.closer = closer
	return l
}

// ConsoleLogger returns a Logger that prints log events to the console
func ConsoleLogger(logLevel level.Level) Logger {
	return newLogger(os.Stdout, logLevel)
}

// StreamLogger returns a Logger that writes log events to the provided
// io.Writer, primarily for use in tests
func StreamLogger(w io.Writer, logLevel level.Level) Logger {
	return newLogger(w, logLevel)
}

// NoopLogger returns a Logger that discards all log events
func NoopLogger() Logger {
	return newLogger(io.Discard, level.Error)
}

func newLogger(w io.Writer, logLevel level.Level) *logger {
	base := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(w))
	base = kitlog.With(base,
		"time", kitlog.DefaultTimestampUTC,
		"app", "thumbcache",
	)
	l := &logger{base: base, exitFunc: os.Exit}
	l.SetLogLevel(logLevel)
	return l
}

// SetLogLevel sets the minimum Level of log events that will be written
func (l *logger) SetLogLevel(logLevel level.Level) {
	if level.GetID(logLevel) == 0 {
		logLevel = level.Info
	}
	l.lvl = logLevel
	var opt kitlevel.Option
	switch logLevel {
	case level.Debug:
		opt = kitlevel.AllowDebug()
	case level.Warn:
		opt = kitlevel.AllowWarn()
	case level.Error, level.Fatal:
		opt = kitlevel.AllowError()
	default:
		opt = kitlevel.AllowInfo()
	}
	l.filtered = kitlevel.NewFilter(l.base, opt)
}

// Level returns the configured minimum log Level
func (l *logger) Level() level.Level {
	return l.lvl
}

// Log sends an event of the provided Level to the Logger
func (l *logger) Log(logLevel level.Level, event string, detail Pairs) {
	switch logLevel {
	case level.Debug:
		l.Debug(event, detail)
	case level.Warn:
		l.Warn(event, detail)
	case level.Error:
		l.Error(event, detail)
	case level.Fatal:
		l.Fatal(1, event, detail)
	default:
		l.Info(event, detail)
	}
}

// Debug sends a "DEBUG" event to the Logger
func (l *logger) Debug(event string, detail Pairs) {
	kitlevel.Debug(l.filtered).Log(mapToArray(event, detail)...)
}

// Info sends an "INFO" event to the Logger
func (l *logger) Info(event string, detail Pairs) {
	kitlevel.Info(l.filtered).Log(mapToArray(event, detail)...)
}

// Warn sends a "WARN" event to the Logger
func (l *logger) Warn(event string, detail Pairs) {
	kitlevel.Warn(l.filtered).Log(mapToArray(event, detail)...)
}

// Error sends an "ERROR" event to the Logger
func (l *logger) Error(event string, detail Pairs) {
	kitlevel.Error(l.filtered).Log(mapToArray(event, detail)...)
}

// Fatal sends a "FATAL" event to the Logger and exits the program with the
// provided exit code. go-kit/log/level does not support Fatal, so it is
// implemented separately here.
func (l *logger) Fatal(code int, event string, detail Pairs) {
	if detail == nil {
		detail = Pairs{}
	}
	detail["level"] = "fatal"
	l.base.Log(mapToArray(event, detail)...)
	l.Close()
	l.exitFunc(code)
}

// Close closes any opened file handles that were used for logging
func (l *logger) Close() {
	if l.closer != nil {
		l.closer.Close()
	}
}

func mapToArray(event string, detail Pairs) []any {
	a := make([]any, 0, (len(detail)*2)+2)
	a = append(a, "event", event)
	for k, v := range detail {
		a = append(a, k, v)
	}
	return a
}
