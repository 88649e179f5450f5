// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

// Package ratelimit provides per-provider token-bucket throttling for
// outbound API calls, built on golang.org/x/time/rate.
//
// Each provider adapter owns exactly one Bucket sized to that source's
// documented quota; buckets are never shared across providers. Acquire
// throttles but never rejects: a caller either gets a token (possibly
// after suspending until the next refill) or observes its context
// expiring.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/fieldtrip-app/fieldtrip/internal/metrics"
)

// Bucket is a token bucket with capacity C refilled at r tokens/second.
type Bucket struct {
	name    string
	limiter *rate.Limiter
}

// New creates a bucket named after its owning provider with the given
// capacity and refill rate in tokens per second.
func New(name string, capacity int, refillPerSecond float64) *Bucket {
	if capacity < 1 {
		capacity = 1
	}
	return &Bucket{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(refillPerSecond), capacity),
	}
}

// Acquire consumes one token, suspending the caller until one is
// available. It returns an error only when ctx is cancelled or its
// deadline would pass before the next refill.
func (b *Bucket) Acquire(ctx context.Context) error {
	start := time.Now()
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	metrics.RateLimiterWaitDuration.WithLabelValues(b.name).Observe(time.Since(start).Seconds())
	return nil
}

// Tokens returns the number of tokens currently available. Snapshot only;
// the value may be stale by the time the caller acts on it.
func (b *Bucket) Tokens() float64 {
	return b.limiter.Tokens()
}

// Name returns the owning provider's name.
func (b *Bucket) Name() string {
	return b.name
}
