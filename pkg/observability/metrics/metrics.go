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

// Package metrics implements prometheus metrics for the thumbnail cache
package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pixframe/thumbcache/pkg/observability/logging"
	"github.com/pixframe/thumbcache/pkg/observability/logging/logger"
)

const (
	metricNamespace = "thumbcache"
	cacheSubsystem  = "cache"
)

// CacheObjectOperations is a Counter of operations (in # of objects) performed on the cache
var CacheObjectOperations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricNamespace,
		Subsystem: cacheSubsystem,
		Name:      "operation_objects_total",
		Help:      "Count of objects on which cache operations were performed.",
	},
	[]string{"tier", "operation", "status"},
)

// CacheByteOperations is a Counter of bytes on which cache operations were performed
var CacheByteOperations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricNamespace,
		Subsystem: cacheSubsystem,
		Name:      "operation_bytes_total",
		Help:      "Count of bytes on which cache operations were performed.",
	},
	[]string{"tier", "operation", "status"},
)

// CacheEvents is a Counter of events performed on the cache (e.g., eviction, repair)
var CacheEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricNamespace,
		Subsystem: cacheSubsystem,
		Name:      "events_total",
		Help:      "Count of events performed on the cache.",
	},
	[]string{"tier", "event", "reason"},
)

// CacheObjects is a Gauge representing the number of objects in the cache
var CacheObjects = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Subsystem: cacheSubsystem,
		Name:      "usage_objects",
		Help:      "Number of objects in the cache.",
	},
	[]string{"tier"},
)

// CacheBytes is a Gauge representing the number of bytes in the cache
var CacheBytes = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Subsystem: cacheSubsystem,
		Name:      "usage_bytes",
		Help:      "Number of bytes in the cache.",
	},
	[]string{"tier"},
)

var registerOnce sync.Once

// Init registers the cache collectors with the default prometheus registerer
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(CacheObjectOperations)
		prometheus.MustRegister(CacheByteOperations)
		prometheus.MustRegister(CacheEvents)
		prometheus.MustRegister(CacheObjects)
		prometheus.MustRegister(CacheBytes)
	})
}

// ListenAndServe serves the prometheus metrics endpoint on the provided port.
// It blocks, and is intended to be run in a goroutine by the host application
// when a metrics port is configured.
func ListenAndServe(port int) error {
	Init()
	logger.Info("metrics http endpoint starting", logging.Pairs{"port": port})
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
