// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

package providers

import (
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/fieldtrip-app/fieldtrip/internal/logging"
	"github.com/fieldtrip-app/fieldtrip/internal/metrics"
	"github.com/fieldtrip-app/fieldtrip/internal/models"
)

// newBreaker builds the circuit breaker shared by all adapters' remote
// calls. Opens after a 60% failure rate over at least 10 requests, resets
// counts every minute while closed, and waits two minutes before probing
// again. The breaker guards the upstream API, not the caller: a tripped
// breaker surfaces as a ProviderError and costs that provider one
// aggregation pass.
func newBreaker(name string) *gobreaker.CircuitBreaker[[]models.UnifiedEvent] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker[[]models.UnifiedEvent](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("circuit breaker state transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
	})
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
