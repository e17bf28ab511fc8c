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

// Package main is the main package for the thumbctl application, the
// offline analysis and optimization tool for the thumbnail cache
package main

import "os"

const (
	applicationName    = "thumbctl"
	applicationVersion = "1.2.0"
)

func main() {
	if err := newRoot().Command().Execute(); err != nil {
		os.Exit(1)
	}
}
