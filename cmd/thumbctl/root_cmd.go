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

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pixframe/thumbcache/pkg/config"
	"github.com/pixframe/thumbcache/pkg/observability/logging"
	"github.com/pixframe/thumbcache/pkg/observability/logging/level"
	"github.com/pixframe/thumbcache/pkg/observability/logging/logger"
	"github.com/pixframe/thumbcache/pkg/observability/metrics"
)

type rootOpts struct {
	ConfigPath string
	CacheDir   string
	Verbose    bool
}

func newRoot() *rootOpts {
	return &rootOpts{}
}

var rootLongHelp = strings.TrimSpace(`
thumbctl inspects and optimizes the thumbnail cache while the host
application is not running.

Workflow:
  thumbctl stats --cache-dir ~/.cache/thumbcache             # What is in the cache?
  thumbctl analyze --cache-dir ~/.cache/thumbcache           # What space could be recovered?
  thumbctl optimize --cache-dir ~/.cache/thumbcache          # Preview the optimization (dry run)
  thumbctl optimize --apply --cache-dir ~/.cache/thumbcache  # Remove redundant entries
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               applicationName,
		Long:              rootLongHelp,
		Version:           applicationVersion,
		SilenceUsage:      true,
		PersistentPreRunE: opts.PersistentPreRunE,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "",
		"path of a thumbcache configuration file")
	cmd.PersistentFlags().StringVar(&opts.CacheDir, "cache-dir", "",
		fmt.Sprintf("path of the cache directory; you can also set the environment variable %s", "THC_CACHE_PATH"))
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false,
		"verbose output, including per-group detail and debug logging")

	cmd.AddCommand(
		newAnalyze(opts).Command(),
		newOptimize(opts).Command(),
		newStats(opts).Command(),
	)

	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	conf, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	if conf.Logging.LogFile != "" {
		logger.SetLogger(logging.New(conf.Logging, conf.Main.InstanceID))
	} else {
		lvl := level.Error
		if opts.Verbose {
			lvl = level.Debug
		}
		logger.SetLogger(logging.ConsoleLogger(lvl))
	}

	if conf.Metrics.ListenPort > 0 {
		go func() {
			if err := metrics.ListenAndServe(conf.Metrics.ListenPort); err != nil {
				logger.Error("metrics http endpoint failed",
					logging.Pairs{"detail": err.Error()})
			}
		}()
	}

	if opts.CacheDir == "" {
		opts.CacheDir = conf.Cache.CachePath
	}
	fi, err := os.Stat(opts.CacheDir)
	if err != nil {
		return fmt.Errorf("cache directory unavailable: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("not a directory: %s", opts.CacheDir)
	}
	return nil
}
