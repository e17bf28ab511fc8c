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

	"github.com/pixframe/thumbcache/pkg/cache/metadata"
	"github.com/pixframe/thumbcache/pkg/cache/optimize"
)

type analyzeOpts struct {
	*rootOpts
}

func newAnalyze(parent *rootOpts) *analyzeOpts {
	return &analyzeOpts{rootOpts: parent}
}

func (opts *analyzeOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Report redundant cache entries without modifying anything",
		RunE:  opts.RunE,
	}
}

func (opts *analyzeOpts) RunE(cmd *cobra.Command, _ []string) error {
	idx := metadata.NewStore(opts.CacheDir).Load()
	r := optimize.Analyze(idx)

	fmt.Printf("entries:            %d\n", r.TotalEntries)
	fmt.Printf("redundancy groups:  %d\n", r.RedundancyGroups)
	fmt.Printf("redundant entries:  %d\n", r.RedundantEntries)
	fmt.Printf("reclaimable bytes:  %d\n", r.ReclaimableBytes)

	if opts.Verbose {
		for _, g := range r.Groups {
			fmt.Printf("\ngroup %s (%dx%d) source=%s\n",
				g.Signature.Encoded()[:12], g.Width, g.Height, g.SourcePath)
			fmt.Printf("  keep:   %s\n", g.KeepKey)
			for _, k := range g.RedundantKeys {
				fmt.Printf("  remove: %s\n", k)
			}
		}
	}
	return nil
}
