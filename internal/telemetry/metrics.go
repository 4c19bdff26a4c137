/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics and OpenTelemetry tracing.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SchedulerTicks counts schedule evaluations.
	SchedulerTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signage_scheduler_ticks_total",
		Help: "Number of schedule evaluations performed.",
	})

	// SchedulerTransitions counts resolved target changes.
	SchedulerTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signage_scheduler_transitions_total",
		Help: "Number of times the resolved target changed.",
	})

	// TargetApplications counts targets actually applied to the display.
	TargetApplications = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signage_target_applications_total",
		Help: "Number of targets applied to the display.",
	})

	// DisplayRestarts counts renderer relaunches after unexpected exits.
	DisplayRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signage_display_restarts_total",
		Help: "Number of renderer relaunches after crashes.",
	})

	// DisplayFaults counts content abandoned after repeated crashes.
	DisplayFaults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signage_display_faults_total",
		Help: "Number of targets marked faulted.",
	})

	// WebsocketClients tracks connected event stream clients.
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signage_websocket_clients",
		Help: "Connected websocket clients.",
	})

	// MediaIndexItems tracks the size of the media index.
	MediaIndexItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signage_media_index_items",
		Help: "Files in the current media index snapshot.",
	})

	// APIRequestsTotal counts API requests by method, endpoint and status.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signage_api_requests_total",
		Help: "Total API requests.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes API request latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signage_api_request_duration_seconds",
		Help:    "API request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections tracks in-flight API requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signage_api_active_connections",
		Help: "In-flight API requests.",
	})
)
