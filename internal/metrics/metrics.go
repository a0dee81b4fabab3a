// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

// Package metrics defines the Prometheus instrumentation for SMS Archive:
// sync runs, provider API traffic, attachment transfers, the shared request
// queue, the conversation store and the admin API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync Metrics
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sms_sync_duration_seconds",
			Help:    "Duration of message sync runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	SyncMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_sync_messages_total",
			Help: "Messages handled by sync runs",
		},
		[]string{"outcome"}, // fetched, duplicate, synced, skipped
	)

	SyncConversationsUpdated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sms_sync_conversations_updated_total",
			Help: "Conversations created or updated by sync runs",
		},
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_sync_errors_total",
			Help: "Sync runs that ended without success, by stage",
		},
		[]string{"stage"}, // locked, schema, auth, fetch
	)

	SyncPartial = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sms_sync_partial_total",
			Help: "Sync runs whose message listing stopped before the last page",
		},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sms_sync_last_success_timestamp",
			Help: "Unix timestamp of the last successful sync run",
		},
	)

	// Provider API Metrics
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Requests sent to the telephony provider",
		},
		[]string{"endpoint", "status"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Telephony provider request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	ProviderThrottleWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_throttle_waits_total",
			Help: "Times a caller waited for the provider call budget or a 429 back-off",
		},
		[]string{"reason"}, // budget, rate_limited
	)

	ProviderTokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_token_refreshes_total",
			Help: "Access token exchanges with the provider",
		},
		[]string{"result"},
	)

	// Attachment Metrics
	AttachmentTransfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachment_transfers_total",
			Help: "Attachment download and upload outcomes",
		},
		[]string{"result"}, // uploaded, failed, rejected
	)

	AttachmentBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attachment_uploaded_bytes_total",
			Help: "Bytes uploaded to blob storage",
		},
	)

	AttachmentRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attachment_retries_total",
			Help: "Attachment transfer attempts that were retried",
		},
	)

	// Request Queue Metrics
	QueueLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "request_queue_length",
			Help: "Tasks waiting in a rate-limited request queue",
		},
		[]string{"queue"},
	)

	QueueWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_queue_wait_seconds",
			Help:    "Pacing delay applied before a queued task ran",
			Buckets: []float64{0.01, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"queue"},
	)

	// Conversation Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversation_store_duration_seconds",
			Help:    "Conversation store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_store_errors_total",
			Help: "Conversation store operation failures",
		},
		[]string{"operation"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Event Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Events published to NATS",
		},
		[]string{"subject", "result"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of admin API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Admin API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Admin API requests currently being served",
		},
	)
)

// SyncSummary is the subset of a sync result the metrics layer records.
type SyncSummary struct {
	Fetched              int
	Duplicates           int
	Synced               int
	Skipped              int
	ConversationsUpdated int
	Partial              bool
}

// RecordSyncOperation records a completed sync run. failedStage is empty on success.
func RecordSyncOperation(duration time.Duration, s SyncSummary, failedStage string) {
	SyncDuration.Observe(duration.Seconds())
	SyncMessages.WithLabelValues("fetched").Add(float64(s.Fetched))
	SyncMessages.WithLabelValues("duplicate").Add(float64(s.Duplicates))
	SyncMessages.WithLabelValues("synced").Add(float64(s.Synced))
	SyncMessages.WithLabelValues("skipped").Add(float64(s.Skipped))
	SyncConversationsUpdated.Add(float64(s.ConversationsUpdated))
	if s.Partial {
		SyncPartial.Inc()
	}

	if failedStage != "" {
		SyncErrors.WithLabelValues(failedStage).Inc()
		return
	}
	SyncLastSuccess.Set(float64(time.Now().Unix()))
}

// RecordProviderRequest records a provider API call. status is 0 for transport errors.
func RecordProviderRequest(endpoint string, status int, duration time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	ProviderRequests.WithLabelValues(endpoint, label).Inc()
	ProviderRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordAttachment records the outcome of one attachment transfer.
func RecordAttachment(result string, size int) {
	AttachmentTransfers.WithLabelValues(result).Inc()
	if result == "success" {
		AttachmentBytes.Add(float64(size))
	}
}

// RecordStoreOperation records a conversation store call.
func RecordStoreOperation(operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreErrors.WithLabelValues(operation).Inc()
	}
}

// RecordEventPublish records a NATS publish attempt.
func RecordEventPublish(subject string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	EventsPublished.WithLabelValues(subject, result).Inc()
}

// RecordAPIRequest records an admin API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight admin API request gauge.
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
		return
	}
	APIActiveRequests.Dec()
}
