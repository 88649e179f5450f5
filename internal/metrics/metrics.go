// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

// Package metrics provides Prometheus instrumentation for the suggestion
// pipeline: provider fan-out latency and failures, rate-limiter waits,
// circuit breaker state, cache efficiency, and end-to-end pipeline timing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Provider metrics
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldtrip_provider_requests_total",
			Help: "Total provider search requests by outcome",
		},
		[]string{"provider", "status"}, // status: "success", "failure", "skipped"
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldtrip_provider_request_duration_seconds",
			Help:    "Duration of provider search requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	ProviderEventsReturned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldtrip_provider_events_total",
			Help: "Total normalized events returned by each provider",
		},
		[]string{"provider"},
	)

	// Rate limiter metrics
	RateLimiterWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldtrip_ratelimiter_wait_seconds",
			Help:    "Time spent waiting for a rate-limiter token",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fieldtrip_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldtrip_circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldtrip_cache_hits_total",
			Help: "Total aggregation cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldtrip_cache_misses_total",
			Help: "Total aggregation cache misses",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldtrip_cache_entries",
			Help: "Current number of cache entries",
		},
	)

	// Durable store metrics
	StoreFallbackQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldtrip_store_fallback_queries_total",
			Help: "Durable store fallback queries by outcome",
		},
		[]string{"status"},
	)

	// Refresh queue metrics
	RefreshJobsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldtrip_refresh_jobs_enqueued_total",
			Help: "Region refresh jobs handed off to the ingestion queue",
		},
	)

	RefreshJobsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldtrip_refresh_jobs_suppressed_total",
			Help: "Region refresh jobs suppressed as duplicates",
		},
	)

	// Pipeline metrics
	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fieldtrip_pipeline_duration_seconds",
			Help:    "End-to-end suggestion pipeline duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PipelineRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldtrip_pipeline_requests_total",
			Help: "Suggestion pipeline requests by outcome",
		},
		[]string{"status"}, // "ok", "invalid", "error"
	)

	CandidatesScored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldtrip_candidates_scored_total",
			Help: "Candidates successfully scored by the rank engine",
		},
	)

	CandidatesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldtrip_candidates_skipped_total",
			Help: "Candidates dropped by the rank engine due to scoring errors",
		},
	)
)

// ObserveProviderRequest records the outcome and latency of one provider call.
func ObserveProviderRequest(provider, status string, d time.Duration) {
	ProviderRequests.WithLabelValues(provider, status).Inc()
	if status != "skipped" {
		ProviderRequestDuration.WithLabelValues(provider).Observe(d.Seconds())
	}
}

// ObservePipeline records the outcome and latency of one suggestion request.
func ObservePipeline(status string, d time.Duration) {
	PipelineRequests.WithLabelValues(status).Inc()
	PipelineDuration.Observe(d.Seconds())
}
