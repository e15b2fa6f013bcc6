// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry exposes Prometheus metrics for the engagement core. All
// collectors are registered eagerly; if no /metrics endpoint is exposed the
// registration is harmless. Label sets are small and fixed; never key on
// entity or user ids (unbounded cardinality).
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ViewIncrements = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engagement_view_increments_total",
		Help: "Total buffered view increments accepted on the hot path",
	})
	LikeToggles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_like_toggles_total",
		Help: "Total like toggles by outcome (on, off, conflict)",
	}, []string{"outcome"})
	FlushKeys = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_flush_keys_total",
		Help: "Buffer keys flushed to durable storage, by counter kind",
	}, []string{"kind"})
	FlushErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_flush_errors_total",
		Help: "Per-key flush failures (logged and skipped), by counter kind",
	}, []string{"kind"})
	FlushDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "engagement_flush_duration_seconds",
		Help:    "Duration of one full reconciliation cycle",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	PublishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engagement_publish_failures_total",
		Help: "Best-effort relay publishes that failed (event lost, operation unaffected)",
	})
	NotificationsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engagement_notifications_sent_total",
		Help: "Notification records appended and published during fan-out",
	})
	FanoutErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engagement_fanout_errors_total",
		Help: "Per-recipient fan-out failures (logged, fan-out continues)",
	})
)

func init() {
	prometheus.MustRegister(
		ViewIncrements, LikeToggles,
		FlushKeys, FlushErrors, FlushDuration,
		PublishFailures, NotificationsSent, FanoutErrors,
	)
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler { return promhttp.Handler() }

// Serve starts a dedicated /metrics server on addr. Use it when the process
// has no other HTTP surface; otherwise mount Handler() yourself.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
