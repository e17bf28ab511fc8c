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

	"github.com/spf13/cobra"

	"github.com/pixframe/thumbcache/pkg/cache/disk"
	"github.com/pixframe/thumbcache/pkg/cache/metadata"
	"github.com/pixframe/thumbcache/pkg/cache/optimize"
)

type optimizeOpts struct {
	*rootOpts
	Apply bool
}

func newOptimize(parent *rootOpts) *optimizeOpts {
	return &optimizeOpts{rootOpts: parent}
}

func (opts *optimizeOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Remove redundant cache entries (dry run unless --apply)",
		RunE:  opts.RunE,
	}
	cmd.Flags().BoolVar(&opts.Apply, "apply", false,
		"actually remove redundant entries; without this flag the run is a dry run")
	return cmd
}

func (opts *optimizeOpts) RunE(cmd *cobra.Command, _ []string) error {
	files, err := disk.New(opts.CacheDir)
	if err != nil {
		return err
	}
	meta := metadata.NewStore(opts.CacheDir)
	idx := meta.Load()

	res, err := optimize.Optimize(idx, files, meta, !opts.Apply)
	if err != nil {
		return err
	}

	mode := "dry run"
	if opts.Apply {
		mode = "applied"
	}
	fmt.Printf("mode:               %s\n", mode)
	fmt.Printf("entries:            %d\n", res.TotalEntries)
	fmt.Printf("redundancy groups:  %d\n", res.RedundancyGroups)
	fmt.Printf("removed entries:    %d\n", res.RemovedEntries)
	fmt.Printf("freed bytes:        %d\n", res.FreedBytes)

	if opts.Verbose {
		for _, g := range res.Groups {
			fmt.Printf("\ngroup %s (%dx%d) source=%s\n",
				g.Signature.Encoded()[:12], g.Width, g.Height, g.SourcePath)
			fmt.Printf("  kept:    %s\n", g.KeepKey)
			for _, k := range g.RedundantKeys {
				fmt.Printf("  removed: %s\n", k)
			}
		}
	}
	return nil
}
