// Copyright 2016 The Sandpass Authors
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

package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"zombiezen.com/go/kdbxd/pkg/keepass"
)

// metrics holds the server's Prometheus collectors.
type metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	dbOperations    *prometheus.CounterVec
	dbDuration      *prometheus.HistogramVec
	failedUnlocks   prometheus.Counter
	sessions        prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kdbxd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kdbxd_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		dbOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kdbxd_database_operations_total",
				Help: "Total number of database loads and saves",
			},
			[]string{"operation", "result"},
		),
		dbDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kdbxd_database_operation_duration_seconds",
				Help:    "Duration of database loads and saves, including key derivation",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		failedUnlocks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kdbxd_failed_unlocks_total",
				Help: "Total number of unlock attempts with an invalid key",
			},
		),
		sessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kdbxd_sessions",
				Help: "Number of unlocked sessions",
			},
		),
	}
}

// observeRequest records a finished request.
func (m *metrics) observeRequest(r *http.Request, status int, d time.Duration) {
	route := "unknown"
	if cr := mux.CurrentRoute(r); cr != nil {
		if tmpl, err := cr.GetPathTemplate(); err == nil {
			route = tmpl
		}
	}
	m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(r.Method, route).Observe(d.Seconds())
}

// observeDB records a database load or save that started at start.
func (m *metrics) observeDB(op string, start time.Time, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, keepass.ErrInvalidKey):
		result = "invalid_key"
		m.failedUnlocks.Inc()
	default:
		result = "error"
	}
	m.dbOperations.WithLabelValues(op, result).Inc()
	m.dbDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
