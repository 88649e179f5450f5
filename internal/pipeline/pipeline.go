// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

// Package pipeline composes the suggestion flow: validate the request,
// resolve the location, collect candidates from every source, score and
// order them, and return the top results with request metadata.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fieldtrip-app/fieldtrip/internal/aggregate"
	"github.com/fieldtrip-app/fieldtrip/internal/geo"
	"github.com/fieldtrip-app/fieldtrip/internal/metrics"
	"github.com/fieldtrip-app/fieldtrip/internal/models"
	"github.com/fieldtrip-app/fieldtrip/internal/providers"
	"github.com/fieldtrip-app/fieldtrip/internal/rank"
	"github.com/fieldtrip-app/fieldtrip/internal/validation"
)

// eventLookahead bounds how far into the future sources are queried.
const eventLookahead = 24 * time.Hour

// Request is one suggestion query. Zero RadiusMeters and Limit take the
// configured defaults before validation.
type Request struct {
	Lat              float64  `json:"lat" validate:"latitude"`
	Lon              float64  `json:"lon" validate:"longitude"`
	MinutesAvailable int      `json:"minutesAvailable" validate:"min=15,max=360"`
	Interests        []string `json:"interests" validate:"max=20,dive,min=1,max=64"`
	RadiusMeters     int      `json:"radiusMeters" validate:"gt=0"`
	Limit            int      `json:"limit" validate:"min=1"`
	// Now overrides the reference time for the source query window.
	// Nil means wall clock.
	Now *time.Time `json:"now,omitempty"`
}

// Metadata describes how a response was produced.
type Metadata struct {
	RequestID        string   `json:"requestId"`
	TotalFound       int      `json:"totalFound"`
	Providers        []string `json:"providers"`
	Cached           bool     `json:"cached"`
	Fallback         bool     `json:"fallback,omitempty"`
	ProcessingTimeMS int64    `json:"processingTimeMs"`
}

// Response carries the ranked suggestions plus location and metadata.
type Response struct {
	Suggestions []models.ScoredEvent `json:"suggestions"`
	Location    models.GeoResolution `json:"location"`
	Metadata    Metadata             `json:"metadata"`
}

// Config holds request defaults and the end-to-end deadline.
type Config struct {
	DefaultRadiusMeters int
	DefaultLimit        int
	MaxLimit            int
	Timeout             time.Duration
}

// Pipeline wires the resolver, aggregator, and rank engine together.
type Pipeline struct {
	resolver   *geo.Resolver
	aggregator *aggregate.Aggregator
	ranker     *rank.Engine
	cfg        Config
	logger     zerolog.Logger
}

// New creates a pipeline.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(resolver *geo.Resolver, aggregator *aggregate.Aggregator, ranker *rank.Engine, cfg Config, logger zerolog.Logger) (*Pipeline, error) {
	if resolver == nil || aggregator == nil || ranker == nil {
		return nil, fmt.Errorf("pipeline requires resolver, aggregator, and rank engine")
	}
	if cfg.DefaultRadiusMeters <= 0 || cfg.DefaultLimit <= 0 || cfg.MaxLimit <= 0 {
		return nil, fmt.Errorf("pipeline defaults must be positive")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("pipeline timeout must be positive")
	}
	return &Pipeline{
		resolver:   resolver,
		aggregator: aggregator,
		ranker:     ranker,
		cfg:        cfg,
		logger:     logger.With().Str("component", "pipeline").Logger(),
	}, nil
}

// Suggest runs one query end to end under the configured deadline.
func (p *Pipeline) Suggest(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	requestID := uuid.NewString()
	logger := p.logger.With().Str("request_id", requestID).Logger()

	p.applyDefaults(&req)
	if err := validation.ValidateStruct(&req); err != nil {
		metrics.ObservePipeline("invalid", time.Since(start))
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if req.Limit > p.cfg.MaxLimit {
		req.Limit = p.cfg.MaxLimit
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	// Location resolution is best effort: the bounding box and center
	// are computed analytically even when the geocoder is down.
	location := p.resolver.Resolve(ctx, req.Lat, req.Lon, req.RadiusMeters)

	// Sources are asked for the next day of events regardless of the
	// requester's budget, so the aggregation cache stays shareable
	// across requests with different time budgets. Time fit is scored,
	// not filtered.
	windowStart := time.Now()
	if req.Now != nil {
		windowStart = *req.Now
	}
	windowEnd := windowStart.Add(eventLookahead)
	result, err := p.aggregator.Collect(ctx, providers.SearchParams{
		Lat:          req.Lat,
		Lon:          req.Lon,
		RadiusMeters: req.RadiusMeters,
		StartTime:    &windowStart,
		EndTime:      &windowEnd,
	})
	if err != nil {
		metrics.ObservePipeline("error", time.Since(start))
		return nil, fmt.Errorf("collect events: %w", err)
	}

	scored := p.ranker.Rank(result.Events, rank.Request{
		Lat:              req.Lat,
		Lon:              req.Lon,
		Interests:        req.Interests,
		MinutesAvailable: req.MinutesAvailable,
	})

	totalFound := len(scored)
	if len(scored) > req.Limit {
		scored = scored[:req.Limit]
	}

	elapsed := time.Since(start)
	metrics.ObservePipeline("ok", elapsed)
	logger.Info().
		Int("total_found", totalFound).
		Int("returned", len(scored)).
		Bool("cached", result.Cached).
		Bool("fallback", result.Fallback).
		Dur("elapsed", elapsed).
		Msg("suggestion query complete")

	return &Response{
		Suggestions: scored,
		Location:    location,
		Metadata: Metadata{
			RequestID:        requestID,
			TotalFound:       totalFound,
			Providers:        result.Providers,
			Cached:           result.Cached,
			Fallback:         result.Fallback,
			ProcessingTimeMS: elapsed.Milliseconds(),
		},
	}, nil
}

// maxRadiusMeters bounds how far a single query may reach. Any positive
// radius is valid input; oversized radii are capped, not rejected.
const maxRadiusMeters = 50000

// applyDefaults fills unset optional fields before validation.
func (p *Pipeline) applyDefaults(req *Request) {
	if req.RadiusMeters == 0 {
		req.RadiusMeters = p.cfg.DefaultRadiusMeters
	}
	if req.RadiusMeters > maxRadiusMeters {
		req.RadiusMeters = maxRadiusMeters
	}
	if req.Limit == 0 {
		req.Limit = p.cfg.DefaultLimit
	}
}
