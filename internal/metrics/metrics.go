// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

// Package metrics exposes Prometheus instrumentation for the messaging
// service: HTTP traffic, the chat store, websocket connections and fan-out.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusnet_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campusnet_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campusnet_api_active_requests",
			Help: "Number of API requests currently being served",
		},
	)

	// Chat Metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusnet_chat_messages_sent_total",
			Help: "Total number of messages appended",
		},
		[]string{"type"},
	)

	ConversationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusnet_chat_conversations_created_total",
			Help: "Total number of conversations created",
		},
		[]string{"kind"}, // "direct", "group"
	)

	StoreConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campusnet_chat_store_conflicts_total",
			Help: "Total number of store transactions retried after a write conflict",
		},
	)

	StoreTxnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campusnet_chat_store_txn_duration_seconds",
			Help:    "Duration of store transactions including retries",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"kind"}, // "update", "view"
	)

	// WebSocket Metrics
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campusnet_ws_connections_active",
			Help: "Current number of websocket connections on this instance",
		},
	)

	WSRoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campusnet_ws_rooms_active",
			Help: "Current number of rooms with at least one local member",
		},
	)

	WSEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusnet_ws_events_received_total",
			Help: "Total number of client events received",
		},
		[]string{"event", "result"}, // result: "ok", "rejected", "throttled"
	)

	WSSendDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campusnet_ws_send_dropped_total",
			Help: "Total number of frames dropped because a client send buffer was full",
		},
	)

	// Fan-out Metrics
	FanoutPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusnet_fanout_published_total",
			Help: "Total number of fan-out envelopes published to the backplane",
		},
		[]string{"event", "status"}, // status: "ok", "error"
	)

	FanoutDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusnet_fanout_delivered_total",
			Help: "Total number of frames written to local connections",
		},
		[]string{"event"},
	)

	BackplaneBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campusnet_backplane_breaker_state",
			Help: "Backplane circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)

// RecordAPIRequest records one completed HTTP request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordStoreTxn records a store transaction's duration.
func RecordStoreTxn(kind string, duration time.Duration) {
	StoreTxnDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordFanoutPublish records the outcome of one backplane publish.
func RecordFanoutPublish(event string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	FanoutPublished.WithLabelValues(event, status).Inc()
}
