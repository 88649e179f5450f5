// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

// Package aggregate fans a region query out to every configured source
// concurrently, merges and deduplicates the results, and caches the
// merged set. Source failures are isolated: one provider erroring or
// timing out never fails the query. When every live source comes back
// empty the aggregator falls back to the durable store and enqueues a
// background refresh job for the region.
package aggregate

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/fieldtrip-app/fieldtrip/internal/cache"
	"github.com/fieldtrip-app/fieldtrip/internal/geo"
	"github.com/fieldtrip-app/fieldtrip/internal/models"
	"github.com/fieldtrip-app/fieldtrip/internal/providers"
)

// FallbackStore is the durable tier consulted when live sources return
// nothing. Implemented by store.Store.
type FallbackStore interface {
	QueryRegion(ctx context.Context, bbox models.BoundingBox, freshness time.Duration) ([]models.UnifiedEvent, error)
	Upsert(ctx context.Context, events []models.UnifiedEvent) error
}

// RefreshEnqueuer publishes a background refresh job for a region.
// Implemented by queue.Enqueuer.
type RefreshEnqueuer interface {
	Enqueue(ctx context.Context, lat, lon float64, radiusMeters int) (bool, error)
}

// Config holds aggregation tuning.
type Config struct {
	// TTLMin/TTLMax bound the randomized cache TTL.
	TTLMin time.Duration
	TTLMax time.Duration
	// JitterMin/JitterMax bound the random delay before each source
	// request so fan-out does not hit every upstream at once.
	JitterMin time.Duration
	JitterMax time.Duration
	// FallbackFreshness is how recent a stored event must be to serve
	// as fallback.
	FallbackFreshness time.Duration
}

// Aggregator merges events from every configured source for a region.
type Aggregator struct {
	connectors []providers.Connector
	cache      cache.Store
	fallback   FallbackStore   // may be nil
	enqueuer   RefreshEnqueuer // may be nil
	cfg        Config
	logger     zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// Result is the merged outcome of one region query.
type Result struct {
	Events    []models.UnifiedEvent `json:"events"`
	Providers []string              `json:"providers"`
	Cached    bool                  `json:"-"`
	Fallback  bool                  `json:"-"`
}

// New creates an aggregator over the given connectors. Connectors that
// report themselves unconfigured are dropped up front. fallback and
// enqueuer may be nil to disable those tiers.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(connectors []providers.Connector, c cache.Store, fallback FallbackStore, enqueuer RefreshEnqueuer, cfg Config, logger zerolog.Logger) (*Aggregator, error) {
	if cfg.TTLMin <= 0 || cfg.TTLMax < cfg.TTLMin {
		return nil, fmt.Errorf("invalid cache TTL bounds: min %v, max %v", cfg.TTLMin, cfg.TTLMax)
	}
	if cfg.JitterMin < 0 || cfg.JitterMax < cfg.JitterMin {
		return nil, fmt.Errorf("invalid jitter bounds: min %v, max %v", cfg.JitterMin, cfg.JitterMax)
	}

	active := make([]providers.Connector, 0, len(connectors))
	for _, conn := range connectors {
		if conn.IsConfigured() {
			active = append(active, conn)
		} else {
			logger.Info().Str("provider", conn.Name()).Msg("source unconfigured, skipping")
		}
	}

	return &Aggregator{
		connectors: active,
		cache:      c,
		fallback:   fallback,
		enqueuer:   enqueuer,
		cfg:        cfg,
		logger:     logger.With().Str("component", "aggregate").Logger(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Providers returns the names of active sources in registration order.
func (a *Aggregator) Providers() []string {
	names := make([]string, len(a.connectors))
	for i, conn := range a.connectors {
		names[i] = conn.Name()
	}
	return names
}

// emptyRegionTTL bounds how long an empty-region result is cached. Much
// shorter than the regular TTL so newly listed events surface quickly.
const emptyRegionTTL = 2 * time.Minute

// cacheKey collapses nearby coordinates onto a ~11m grid so adjacent
// lookups share an entry.
func cacheKey(lat, lon float64, radiusMeters int) string {
	return fmt.Sprintf("events:%.4f:%.4f:%d", lat, lon, radiusMeters)
}

// Collect returns the merged, deduplicated events for a region, serving
// from cache when possible.
func (a *Aggregator) Collect(ctx context.Context, params providers.SearchParams) (*Result, error) {
	key := cacheKey(params.Lat, params.Lon, params.RadiusMeters)

	if payload, ok := a.cache.Get(key); ok {
		var cached Result
		if err := json.Unmarshal(payload, &cached); err == nil {
			cached.Cached = true
			return &cached, nil
		}
		// Unreadable entries are dropped, not fatal.
		a.logger.Warn().Str("key", key).Msg("dropping unreadable cache entry")
		a.cache.Delete(key)
	}

	result := a.fanOut(ctx, params)

	if len(result.Events) > 0 {
		a.writeBack(ctx, key, result)
		return result, nil
	}

	final, err := a.recover(ctx, params, result)

	// A genuinely empty region (sources answered, nothing there, nothing
	// stored) is cached briefly so repeat lookups do not re-fan-out
	// against rate-limited sources. Total source failure is never cached;
	// the next request retries live.
	if err == nil && len(final.Events) == 0 && len(result.Providers) > 0 {
		if payload, merr := json.Marshal(result); merr == nil {
			a.cache.SetWithTTL(key, payload, emptyRegionTTL)
		}
	}
	return final, err
}

// fanOut queries every active source concurrently and merges the
// results in registration order, so the merged set is deterministic
// regardless of which goroutine finishes first.
func (a *Aggregator) fanOut(ctx context.Context, params providers.SearchParams) *Result {
	type sourceResult struct {
		events []models.UnifiedEvent
		err    error
	}
	results := make([]sourceResult, len(a.connectors))

	var wg sync.WaitGroup
	for i, conn := range a.connectors {
		wg.Add(1)
		go func(i int, conn providers.Connector) {
			defer wg.Done()

			if err := a.jitterSleep(ctx); err != nil {
				results[i] = sourceResult{err: err}
				return
			}
			events, err := conn.Search(ctx, params)
			results[i] = sourceResult{events: events, err: err}
		}(i, conn)
	}
	wg.Wait()

	merged := &Result{}
	seen := make(map[string]struct{})
	for i, res := range results {
		name := a.connectors[i].Name()
		if res.err != nil {
			a.logger.Warn().Err(res.err).Str("provider", name).Msg("source failed, continuing without it")
			continue
		}
		merged.Providers = append(merged.Providers, name)
		for _, ev := range res.events {
			if _, dup := seen[ev.Key()]; dup {
				continue
			}
			seen[ev.Key()] = struct{}{}
			merged.Events = append(merged.Events, ev)
		}
	}
	return merged
}

// writeBack caches the merged set under a randomized TTL and feeds the
// durable store. Both are best effort.
func (a *Aggregator) writeBack(ctx context.Context, key string, result *Result) {
	if payload, err := json.Marshal(result); err == nil {
		a.cache.SetWithTTL(key, payload, a.randomTTL())
	} else {
		a.logger.Warn().Err(err).Str("key", key).Msg("failed to marshal result for cache")
	}

	if a.fallback != nil {
		if err := a.fallback.Upsert(ctx, result.Events); err != nil {
			a.logger.Warn().Err(err).Msg("failed to persist events to fallback store")
		}
	}
}

// recover serves the durable fallback tier after an empty fan-out and
// asks for a background refresh of the region.
func (a *Aggregator) recover(ctx context.Context, params providers.SearchParams, result *Result) (*Result, error) {
	if a.enqueuer != nil {
		if _, err := a.enqueuer.Enqueue(ctx, params.Lat, params.Lon, params.RadiusMeters); err != nil {
			a.logger.Warn().Err(err).Msg("failed to enqueue region refresh")
		}
	}

	if a.fallback == nil {
		return result, nil
	}

	bbox := geo.BoundingBoxFor(params.Lat, params.Lon, params.RadiusMeters)
	stored, err := a.fallback.QueryRegion(ctx, bbox, a.cfg.FallbackFreshness)
	if err != nil {
		a.logger.Warn().Err(err).Msg("fallback store query failed")
		return result, nil
	}
	if len(stored) == 0 {
		return result, nil
	}

	a.logger.Info().Int("events", len(stored)).Msg("serving events from fallback store")
	return &Result{
		Events:    stored,
		Providers: providersOf(stored),
		Fallback:  true,
	}, nil
}

// jitterSleep waits a random duration inside the configured bounds,
// honoring cancellation.
func (a *Aggregator) jitterSleep(ctx context.Context) error {
	span := a.cfg.JitterMax - a.cfg.JitterMin
	d := a.cfg.JitterMin
	if span > 0 {
		a.mu.Lock()
		d += time.Duration(a.rng.Int63n(int64(span)))
		a.mu.Unlock()
	}
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// randomTTL draws a TTL uniformly from the configured bounds so a burst
// of lookups for one area does not expire in a single wave.
func (a *Aggregator) randomTTL() time.Duration {
	span := a.cfg.TTLMax - a.cfg.TTLMin
	if span <= 0 {
		return a.cfg.TTLMin
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.TTLMin + time.Duration(a.rng.Int63n(int64(span)))
}

// providersOf lists the distinct providers present in events, sorted.
func providersOf(events []models.UnifiedEvent) []string {
	set := make(map[string]struct{})
	for _, ev := range events {
		set[ev.Provider] = struct{}{}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
