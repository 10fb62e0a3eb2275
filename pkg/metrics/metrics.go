// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-walletcore.
//
// go-walletcore is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for go-walletcore.
// It exposes device session, signing, migration and exchange counters
// together with process resource gauges.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all walletcore metrics
	Namespace = "walletcore"

	// Label names
	LabelKind       = "kind"
	LabelStatus     = "status"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Device session outcomes
	StatusOpened        = "opened"
	StatusClosed        = "closed"
	StatusNotFound      = "not_found"
	StatusHandshakeFail = "handshake_failed"

	// Signature outcomes
	StatusSigned    = "signed"
	StatusDenied    = "denied"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
	StatusBusy      = "busy"
	StatusBadReply  = "bad_reply"

	// Migration outcomes
	StatusImported        = "imported"
	StatusNothingToImport = "nothing_to_import"
	StatusAuthFailed      = "auth_failed"

	// Exchange link outcomes
	StatusRejected = "rejected"
	StatusThrottle = "throttled"
)

var (
	// DeviceSessionsTotal tracks device session lifecycle events by kind and status.
	DeviceSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "device",
			Name:      "sessions_total",
			Help:      "Total number of device session events by kind and status",
		},
		[]string{LabelKind, LabelStatus},
	)

	// DeviceSessionsActive tracks the number of sessions that are not yet closed.
	DeviceSessionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "device",
			Name:      "sessions_active",
			Help:      "Number of open device sessions by kind",
		},
		[]string{LabelKind},
	)

	// DeviceSignaturesTotal tracks signature requests by kind and outcome.
	DeviceSignaturesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "device",
			Name:      "signatures_total",
			Help:      "Total number of signature requests by kind and outcome",
		},
		[]string{LabelKind, LabelStatus},
	)

	// DeviceHandshakeDuration tracks handshake latency in seconds.
	DeviceHandshakeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "device",
			Name:      "handshake_duration_seconds",
			Help:      "Duration of device handshakes in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{LabelKind},
	)

	// MigrationsTotal tracks extension import attempts by outcome.
	MigrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "migrations_total",
			Help:      "Total number of extension vault imports by outcome",
		},
		[]string{LabelStatus},
	)

	// MigrationDuration tracks the wall time of extension imports, including
	// the time spent waiting on passphrase prompts.
	MigrationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "migration_duration_seconds",
			Help:      "Duration of extension vault imports in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// ExchangeLinksTotal tracks exchange account link attempts by outcome.
	ExchangeLinksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "exchange",
			Name:      "links_total",
			Help:      "Total number of exchange link attempts by outcome",
		},
		[]string{LabelStatus},
	)

	// ExchangeRequestsTotal tracks outbound exchange HTTP requests.
	ExchangeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "exchange",
			Name:      "requests_total",
			Help:      "Total number of exchange HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// ExchangeRequestDuration tracks outbound exchange HTTP latency.
	ExchangeRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "exchange",
			Name:      "request_duration_seconds",
			Help:      "Duration of exchange HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// Goroutines tracks the current number of goroutines.
	// Updated periodically by the resource collector.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// MemoryAllocBytes tracks the current bytes of allocated heap objects.
	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Current bytes of allocated heap objects",
		},
	)

	// Uptime tracks seconds since the engine started.
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "uptime_seconds",
			Help:      "Engine uptime in seconds since startup",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordDeviceSession records a session lifecycle event and keeps the
// active gauge in step with opened and closed events.
func RecordDeviceSession(kind, status string) {
	if !enabled.Load() {
		return
	}
	DeviceSessionsTotal.WithLabelValues(kind, status).Inc()
	switch status {
	case StatusOpened:
		DeviceSessionsActive.WithLabelValues(kind).Inc()
	case StatusClosed:
		DeviceSessionsActive.WithLabelValues(kind).Dec()
	}
}

// RecordHandshake records a completed handshake and its latency.
func RecordHandshake(kind string, duration float64) {
	if !enabled.Load() {
		return
	}
	DeviceHandshakeDuration.WithLabelValues(kind).Observe(duration)
}

// RecordSignature records the outcome of a signature request.
func RecordSignature(kind, status string) {
	if !enabled.Load() {
		return
	}
	DeviceSignaturesTotal.WithLabelValues(kind, status).Inc()
}

// RecordMigration records an import outcome and its duration in seconds.
func RecordMigration(status string, duration float64) {
	if !enabled.Load() {
		return
	}
	MigrationsTotal.WithLabelValues(status).Inc()
	MigrationDuration.Observe(duration)
}

// RecordExchangeLink records an exchange link outcome.
func RecordExchangeLink(status string) {
	if !enabled.Load() {
		return
	}
	ExchangeLinksTotal.WithLabelValues(status).Inc()
}

// RecordExchangeRequest records an outbound HTTP request to the exchange.
func RecordExchangeRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	ExchangeRequestsTotal.WithLabelValues(method, statusCode).Inc()
	ExchangeRequestDuration.WithLabelValues(method).Observe(duration)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
