// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics records per-request latency and outcome for the load
// generator, labeled by templated endpoint rather than raw path so
// that per-room and per-event identifiers do not explode cardinality.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder aggregates request observations. A nil *Recorder is valid
// and records nothing, so callers never need to branch.
type Recorder struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
}

// New creates a Recorder and registers its collectors with the given
// registerer.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "matrix_locust",
			Name:      "request_duration_seconds",
			Help:      "Latency of Matrix client-server API requests, by templated endpoint.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"method", "endpoint"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrix_locust",
			Name:      "requests_total",
			Help:      "Matrix client-server API requests, by templated endpoint and HTTP status.",
		}, []string{"method", "endpoint", "status"}),
	}
	reg.MustRegister(r.duration, r.outcomes)
	return r
}

// Observe records one completed request. The endpoint must already be
// templated (query stripped, identifier segments collapsed); the
// protocol client's EndpointLabel produces that form. status is the
// HTTP status code, or 0 when the request never received a response.
func (r *Recorder) Observe(method, endpoint string, status int, seconds float64) {
	if r == nil {
		return
	}
	r.duration.WithLabelValues(method, endpoint).Observe(seconds)
	r.outcomes.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}
