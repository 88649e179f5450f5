// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

// Package providers contains the connector contract and the four external
// source adapters (Ticketmaster, Eventbrite, Meetup, Google Places). Each
// adapter normalizes its source-specific payload into models.UnifiedEvent,
// owns a private token bucket sized to the source's documented quota, and
// runs its HTTP calls behind a circuit breaker. Adapters never retry;
// transport and parse failures surface as *ProviderError and are handled
// by the aggregator.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fieldtrip-app/fieldtrip/internal/models"
	"github.com/fieldtrip-app/fieldtrip/internal/ratelimit"
)

// SearchParams describe one fan-out query. StartTime and EndTime are
// optional; adapters that have no date filtering ignore them.
type SearchParams struct {
	Lat          float64
	Lon          float64
	RadiusMeters int
	StartTime    *time.Time
	EndTime      *time.Time
}

// Connector is the capability contract every source adapter implements.
//
// Search on an unconfigured connector returns an empty result immediately;
// missing credentials are a configuration state, not an error.
type Connector interface {
	// Name returns the stable provider identifier used in UnifiedEvent,
	// cache provenance, and metrics labels.
	Name() string

	// IsConfigured reports whether credentials for the source are present.
	IsConfigured() bool

	// Search queries the source for events near (Lat, Lon) within
	// RadiusMeters and maps the response into the unified shape.
	Search(ctx context.Context, params SearchParams) ([]models.UnifiedEvent, error)
}

// ProviderError wraps any transport, quota, or parse failure from one
// source. The aggregator logs it and drops that source's contribution.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderError reports whether err is (or wraps) a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// httpTimeout bounds every adapter's remote call.
const httpTimeout = 10 * time.Second

// newBucket builds an adapter's token bucket, falling back to the quota
// defaults when no override is configured.
func newBucket(name string, capacity int, refill float64, defaultCapacity int, defaultRefill float64) *ratelimit.Bucket {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if refill <= 0 {
		refill = defaultRefill
	}
	return ratelimit.New(name, capacity, refill)
}

// clampScore caps a popularity heuristic at 1.
func clampScore(score float64) float64 {
	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}

// lowercase normalizes a source category tag.
func lowercase(s string) string {
	return strings.ToLower(s)
}
