// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

// Package main is the Fieldtrip command line entry point.
//
// Fieldtrip answers one question: given a location and a block of free
// time, what is happening nearby right now that is worth going to? It
// pulls candidates from Ticketmaster, Eventbrite, Meetup, and a local
// place source concurrently, normalizes them into one shape, and ranks
// them against the requester's interests, distance, and time budget.
//
// # Usage
//
// One-shot query mode prints ranked suggestions as JSON and exits:
//
//	export FIELDTRIP_TICKETMASTER_API_KEY=...
//	export FIELDTRIP_EVENTBRITE_TOKEN=...
//	fieldtrip -lat 37.7749 -lon -122.4194 -minutes 120 -interests music,food
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - FIELDTRIP_-prefixed environment variables
//   - Config file (config.yaml, or FIELDTRIP_CONFIG_PATH)
//   - Built-in defaults
//
// # Optional tiers
//
// With FIELDTRIP_STORE_ENABLED=true results are persisted to BadgerDB
// and served as a fallback when every live source is down. With
// FIELDTRIP_QUEUE_ENABLED=true an empty fan-out publishes a region
// refresh job over NATS JetStream for background workers.
//
// With FIELDTRIP_METRICS_ENABLED=true a Prometheus endpoint is served
// on FIELDTRIP_METRICS_LISTEN_ADDR for the duration of the query.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldtrip-app/fieldtrip/internal/aggregate"
	"github.com/fieldtrip-app/fieldtrip/internal/cache"
	"github.com/fieldtrip-app/fieldtrip/internal/config"
	"github.com/fieldtrip-app/fieldtrip/internal/geo"
	"github.com/fieldtrip-app/fieldtrip/internal/logging"
	"github.com/fieldtrip-app/fieldtrip/internal/pipeline"
	"github.com/fieldtrip-app/fieldtrip/internal/providers"
	"github.com/fieldtrip-app/fieldtrip/internal/queue"
	"github.com/fieldtrip-app/fieldtrip/internal/rank"
	"github.com/fieldtrip-app/fieldtrip/internal/store"
)

func main() {
	lat := flag.Float64("lat", 0, "latitude of the requester")
	lon := flag.Float64("lon", 0, "longitude of the requester")
	minutes := flag.Int("minutes", 120, "minutes of free time available")
	interests := flag.String("interests", "", "comma-separated interest tags")
	radius := flag.Int("radius", 0, "search radius in meters (0 = configured default)")
	limit := flag.Int("limit", 0, "maximum suggestions to return (0 = configured default)")
	now := flag.String("now", "", "RFC 3339 reference time override (empty = wall clock)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Strs("providers", cfg.ConfiguredProviders()).
		Bool("store", cfg.Store.Enabled).
		Bool("queue", cfg.Queue.Enabled).
		Msg("Starting Fieldtrip")

	if len(cfg.ConfiguredProviders()) == 0 {
		logging.Warn().Msg("No provider credentials configured; only the fallback store can serve results")
	}

	p, cleanup, err := buildPipeline(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build pipeline")
	}
	defer cleanup()

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.ListenAddr)
	}

	req := pipeline.Request{
		Lat:              *lat,
		Lon:              *lon,
		MinutesAvailable: *minutes,
		Interests:        splitInterests(*interests),
		RadiusMeters:     *radius,
		Limit:            *limit,
	}
	if *now != "" {
		ref, err := time.Parse(time.RFC3339, *now)
		if err != nil {
			logging.Fatal().Err(err).Str("now", *now).Msg("Invalid -now value")
		}
		req.Now = &ref
	}

	resp, err := p.Suggest(context.Background(), req)
	if err != nil {
		logging.Error().Err(err).Msg("Query failed")
		cleanup()
		os.Exit(1)
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to encode response")
	}
	fmt.Println(string(out))
}

// buildPipeline wires every tier from configuration. The returned
// cleanup closes the cache, the optional store, and the optional queue
// in reverse construction order.
func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, func(), error) {
	logger := logging.Logger()

	resolver := geo.NewResolver(geo.Config{
		BaseURL:   cfg.Geocoder.BaseURL,
		UserAgent: cfg.Geocoder.UserAgent,
		Timeout:   cfg.Geocoder.Timeout,
	}, logger)

	conns := []providers.Connector{
		providers.NewTicketmaster(providers.TicketmasterConfig{
			APIKey:       cfg.Providers.Ticketmaster.APIKey,
			RateCapacity: cfg.Providers.Ticketmaster.Rate.Capacity,
			RateRefill:   cfg.Providers.Ticketmaster.Rate.Refill,
		}, logger),
		providers.NewEventbrite(providers.EventbriteConfig{
			APIToken:     cfg.Providers.Eventbrite.Token,
			RateCapacity: cfg.Providers.Eventbrite.Rate.Capacity,
			RateRefill:   cfg.Providers.Eventbrite.Rate.Refill,
		}, logger),
		providers.NewMeetup(providers.MeetupConfig{
			APIKey:       cfg.Providers.Meetup.Token,
			RateCapacity: cfg.Providers.Meetup.Rate.Capacity,
			RateRefill:   cfg.Providers.Meetup.Rate.Refill,
		}, logger),
		providers.NewGooglePlaces(providers.GooglePlacesConfig{
			APIKey:       cfg.Providers.Places.APIKey,
			RateCapacity: cfg.Providers.Places.Rate.Capacity,
			RateRefill:   cfg.Providers.Places.Rate.Refill,
		}, logger),
	}

	resultCache := cache.NewMemory(cfg.Cache.CleanupInterval)
	closers := []func(){resultCache.Close}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var fallback aggregate.FallbackStore
	if cfg.Store.Enabled {
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open fallback store: %w", err)
		}
		closers = append(closers, func() {
			if err := s.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing fallback store")
			}
		})
		fallback = s
	}

	var enqueuer aggregate.RefreshEnqueuer
	if cfg.Queue.Enabled {
		pub, err := queue.NewNATSPublisher(cfg.Queue, queue.NewLoggerAdapter(logger))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect refresh queue: %w", err)
		}
		enq := queue.NewEnqueuer(pub, cfg.Queue.Topic, cfg.Queue.DedupWindow)
		closers = append(closers, func() {
			if err := enq.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing refresh queue")
			}
		})
		enqueuer = enq
	}

	agg, err := aggregate.New(conns, resultCache, fallback, enqueuer, aggregate.Config{
		TTLMin:            cfg.Cache.TTLMin,
		TTLMax:            cfg.Cache.TTLMax,
		JitterMin:         cfg.Pipeline.JitterMin,
		JitterMax:         cfg.Pipeline.JitterMax,
		FallbackFreshness: cfg.Store.Freshness,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("build aggregator: %w", err)
	}

	rankCfg := rank.DefaultConfig()
	rankCfg.WeightRelevance = cfg.Rank.WeightRelevance
	rankCfg.WeightProximity = cfg.Rank.WeightProximity
	rankCfg.WeightTimeFit = cfg.Rank.WeightTimeFit
	rankCfg.WeightPopularity = cfg.Rank.WeightPopularity
	ranker, err := rank.NewEngine(rankCfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("build rank engine: %w", err)
	}

	p, err := pipeline.New(resolver, agg, ranker, pipeline.Config{
		DefaultRadiusMeters: cfg.Pipeline.DefaultRadiusMeters,
		DefaultLimit:        cfg.Pipeline.DefaultLimit,
		MaxLimit:            cfg.Pipeline.MaxLimit,
		Timeout:             cfg.Pipeline.Timeout,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("build pipeline: %w", err)
	}

	return p, cleanup, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logging.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Error().Err(err).Msg("Metrics server stopped")
	}
}

func splitInterests(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
