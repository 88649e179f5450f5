// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

// Package models defines the unified event shapes shared across the
// suggestion pipeline. Every provider adapter normalizes its source-specific
// payload into UnifiedEvent; the rank engine decorates UnifiedEvent into
// ScoredEvent. Both are ephemeral, created per request and never mutated
// after creation.
package models

import (
	"fmt"
	"time"
)

// DefaultPopularity is the neutral popularity assigned when a source
// provides no popularity signal.
const DefaultPopularity = 0.5

// Venue describes where an event takes place or where a place is located.
type Venue struct {
	Name    string  `json:"name,omitempty"`
	Address string  `json:"address,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// UnifiedEvent is the normalized shape all provider adapters produce.
//
// Identity is the (Provider, ProviderID) pair; the aggregator guarantees
// the pair is unique within any result set it returns. Popularity is a
// pointer so that "source reported 0" and "source reported nothing" remain
// distinguishable; use PopularityOrDefault for scoring.
type UnifiedEvent struct {
	Provider    string     `json:"provider"`
	ProviderID  string     `json:"providerId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    []string   `json:"category"`
	StartAt     *time.Time `json:"startAt,omitempty"`
	EndAt       *time.Time `json:"endAt,omitempty"`
	Venue       *Venue     `json:"venue,omitempty"`
	URL         string     `json:"url,omitempty"`
	Popularity  *float64   `json:"popularity,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Key returns the identity key used for deduplication and durable storage.
func (e *UnifiedEvent) Key() string {
	return fmt.Sprintf("%s:%s", e.Provider, e.ProviderID)
}

// PopularityOrDefault returns the source popularity clamped to [0,1],
// or DefaultPopularity when the source reported none.
func (e *UnifiedEvent) PopularityOrDefault() float64 {
	if e.Popularity == nil {
		return DefaultPopularity
	}
	p := *e.Popularity
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// ScoreBreakdown exposes the four sub-scores behind a composite score so
// callers can see why an item ranked where it did.
type ScoreBreakdown struct {
	Relevance  float64 `json:"relevance"`
	Proximity  float64 `json:"proximity"`
	TimeFit    float64 `json:"timeFit"`
	Popularity float64 `json:"popularity"`
}

// ScoredEvent is a UnifiedEvent decorated with ranking output.
type ScoredEvent struct {
	UnifiedEvent
	Score           float64        `json:"score"`
	ScoreBreakdown  ScoreBreakdown `json:"scoreBreakdown"`
	DistanceMeters  int            `json:"distanceMeters"`
	DurationMinutes int            `json:"durationMinutes"`
}
