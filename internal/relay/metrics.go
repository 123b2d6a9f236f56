// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relay

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "kurukshetram"
	relaySubsystem   = "relay"
)

// Metrics holds the Prometheus metrics for relayed traffic.
//
// All operations are thread-safe via Prometheus's internal locking.
type Metrics struct {
	// RequestsTotal counts relayed requests.
	// Labels: method, status (HTTP status code)
	RequestsTotal *prometheus.CounterVec

	// UpstreamLatencySeconds measures the round trip to the upstream.
	// Labels: method
	UpstreamLatencySeconds *prometheus.HistogramVec

	// RateLimited counts requests shed by the rate limiter.
	RateLimited prometheus.Counter
}

// NewMetrics registers the relay metrics on a registerer. Pass
// prometheus.DefaultRegisterer in main; tests use a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: relaySubsystem,
			Name:      "requests_total",
			Help:      "Relayed requests by method and upstream status.",
		}, []string{"method", "status"}),
		UpstreamLatencySeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: relaySubsystem,
			Name:      "upstream_latency_seconds",
			Help:      "Upstream round-trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: relaySubsystem,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}
}

// Observe records one relayed request.
func (m *Metrics) Observe(method string, status int, latency time.Duration) {
	m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.UpstreamLatencySeconds.WithLabelValues(method).Observe(latency.Seconds())
}
