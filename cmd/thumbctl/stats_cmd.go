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
	"sort"

	"github.com/spf13/cobra"

	"github.com/pixframe/thumbcache/pkg/cache/metadata"
)

type statsOpts struct {
	*rootOpts
}

func newStats(parent *rootOpts) *statsOpts {
	return &statsOpts{rootOpts: parent}
}

func (opts *statsOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print entry counts and sizes from the cache metadata index",
		RunE:  opts.RunE,
	}
}

func (opts *statsOpts) RunE(cmd *cobra.Command, _ []string) error {
	idx := metadata.NewStore(opts.CacheDir).Load()

	fmt.Printf("entries:      %d\n", idx.Len())
	fmt.Printf("total bytes:  %d\n", idx.TotalSize())

	type dim struct{ w, h int }
	counts := make(map[dim]int)
	for _, e := range idx {
		counts[dim{e.TargetWidth, e.TargetHeight}]++
	}
	dims := make([]dim, 0, len(counts))
	for d := range counts {
		dims = append(dims, d)
	}
	sort.Slice(dims, func(i, j int) bool {
		if dims[i].w != dims[j].w {
			return dims[i].w < dims[j].w
		}
		return dims[i].h < dims[j].h
	})
	for _, d := range dims {
		fmt.Printf("  %dx%d: %d\n", d.w, d.h, counts[d])
	}
	return nil
}
