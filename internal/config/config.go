// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

// Package config defines the application configuration and loads it from
// layered sources: built-in defaults, an optional YAML file, and
// FIELDTRIP_-prefixed environment variables, in ascending precedence.
package config

import (
	"fmt"
	"math"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Providers ProvidersConfig `koanf:"providers"`
	Geocoder  GeocoderConfig  `koanf:"geocoder"`
	Cache     CacheConfig     `koanf:"cache"`
	Store     StoreConfig     `koanf:"store"`
	Queue     QueueConfig     `koanf:"queue"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Rank      RankConfig      `koanf:"rank"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ProvidersConfig holds per-source credentials. A source with an empty
// credential is treated as unconfigured and silently skipped at query
// time; it is not an error.
type ProvidersConfig struct {
	Ticketmaster TicketmasterConfig `koanf:"ticketmaster"`
	Eventbrite   EventbriteConfig   `koanf:"eventbrite"`
	Meetup       MeetupConfig       `koanf:"meetup"`
	Places       PlacesConfig       `koanf:"places"`
}

// RateConfig overrides a source's token bucket. Zero values keep the
// bucket sized to the source's published quota.
type RateConfig struct {
	Capacity int     `koanf:"capacity"`
	Refill   float64 `koanf:"refill"`
}

type TicketmasterConfig struct {
	APIKey string     `koanf:"api_key"`
	Rate   RateConfig `koanf:"rate"`
}

type EventbriteConfig struct {
	Token string     `koanf:"token"`
	Rate  RateConfig `koanf:"rate"`
}

type MeetupConfig struct {
	Token string     `koanf:"token"`
	Rate  RateConfig `koanf:"rate"`
}

type PlacesConfig struct {
	APIKey string     `koanf:"api_key"`
	Rate   RateConfig `koanf:"rate"`
}

// GeocoderConfig configures the reverse-geocoding client.
type GeocoderConfig struct {
	BaseURL   string        `koanf:"base_url"`
	UserAgent string        `koanf:"user_agent"`
	Timeout   time.Duration `koanf:"timeout"`
}

// CacheConfig configures the in-memory result cache. Entry TTLs are
// drawn uniformly from [TTLMin, TTLMax] so a burst of lookups for the
// same area does not expire in one synchronized wave.
type CacheConfig struct {
	TTLMin          time.Duration `koanf:"ttl_min"`
	TTLMax          time.Duration `koanf:"ttl_max"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// StoreConfig configures the durable event store used as a fallback when
// every live source fails.
type StoreConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
	// Freshness is how recently a stored event must have been updated to
	// be served as fallback.
	Freshness time.Duration `koanf:"freshness"`
}

// QueueConfig configures background refresh-job publishing over NATS.
type QueueConfig struct {
	Enabled     bool          `koanf:"enabled"`
	URL         string        `koanf:"url"`
	Topic       string        `koanf:"topic"`
	DedupWindow time.Duration `koanf:"dedup_window"`
}

// PipelineConfig holds request defaults and the end-to-end deadline.
type PipelineConfig struct {
	DefaultRadiusMeters int           `koanf:"default_radius_meters"`
	DefaultLimit        int           `koanf:"default_limit"`
	MaxLimit            int           `koanf:"max_limit"`
	Timeout             time.Duration `koanf:"timeout"`
	// JitterMin/JitterMax bound the random delay inserted before each
	// source request so fan-out does not hit every upstream at once.
	JitterMin time.Duration `koanf:"jitter_min"`
	JitterMax time.Duration `koanf:"jitter_max"`
}

// RankConfig holds the scoring weights applied to each candidate. The
// split is a deployment-wide policy knob; changing it reorders results
// for every requester, so treat it like a schema change.
type RankConfig struct {
	WeightRelevance  float64 `koanf:"weight_relevance"`
	WeightProximity  float64 `koanf:"weight_proximity"`
	WeightTimeFit    float64 `koanf:"weight_time_fit"`
	WeightPopularity float64 `koanf:"weight_popularity"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `koanf:"enabled"`
	ListenAddr string `koanf:"listen_addr"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks cross-field invariants that struct tags cannot express.
func (c *Config) Validate() error {
	if c.Geocoder.BaseURL == "" {
		return fmt.Errorf("geocoder.base_url must not be empty")
	}
	if c.Geocoder.Timeout <= 0 {
		return fmt.Errorf("geocoder.timeout must be positive")
	}
	if c.Cache.TTLMin <= 0 || c.Cache.TTLMax <= 0 {
		return fmt.Errorf("cache TTL bounds must be positive")
	}
	if c.Cache.TTLMin > c.Cache.TTLMax {
		return fmt.Errorf("cache.ttl_min %v exceeds cache.ttl_max %v", c.Cache.TTLMin, c.Cache.TTLMax)
	}
	if c.Store.Enabled && c.Store.Path == "" {
		return fmt.Errorf("store.path must be set when the store is enabled")
	}
	if c.Store.Enabled && c.Store.Freshness <= 0 {
		return fmt.Errorf("store.freshness must be positive")
	}
	if c.Queue.Enabled && c.Queue.URL == "" {
		return fmt.Errorf("queue.url must be set when the queue is enabled")
	}
	if c.Queue.Enabled && c.Queue.Topic == "" {
		return fmt.Errorf("queue.topic must be set when the queue is enabled")
	}
	if c.Pipeline.DefaultRadiusMeters <= 0 {
		return fmt.Errorf("pipeline.default_radius_meters must be positive")
	}
	if c.Pipeline.DefaultLimit <= 0 || c.Pipeline.MaxLimit <= 0 {
		return fmt.Errorf("pipeline limits must be positive")
	}
	if c.Pipeline.DefaultLimit > c.Pipeline.MaxLimit {
		return fmt.Errorf("pipeline.default_limit %d exceeds pipeline.max_limit %d",
			c.Pipeline.DefaultLimit, c.Pipeline.MaxLimit)
	}
	if c.Pipeline.Timeout <= 0 {
		return fmt.Errorf("pipeline.timeout must be positive")
	}
	if c.Pipeline.JitterMin < 0 || c.Pipeline.JitterMax < c.Pipeline.JitterMin {
		return fmt.Errorf("pipeline jitter bounds invalid: min %v, max %v",
			c.Pipeline.JitterMin, c.Pipeline.JitterMax)
	}
	for name, r := range map[string]RateConfig{
		"ticketmaster": c.Providers.Ticketmaster.Rate,
		"eventbrite":   c.Providers.Eventbrite.Rate,
		"meetup":       c.Providers.Meetup.Rate,
		"places":       c.Providers.Places.Rate,
	} {
		if r.Capacity < 0 || r.Refill < 0 {
			return fmt.Errorf("providers.%s.rate overrides must be non-negative", name)
		}
	}
	for _, w := range []float64{c.Rank.WeightRelevance, c.Rank.WeightProximity, c.Rank.WeightTimeFit, c.Rank.WeightPopularity} {
		if w < 0 {
			return fmt.Errorf("rank weights must be non-negative")
		}
	}
	sum := c.Rank.WeightRelevance + c.Rank.WeightProximity + c.Rank.WeightTimeFit + c.Rank.WeightPopularity
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("rank weights must sum to 1, got %v", sum)
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr must be set when metrics are enabled")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// ConfiguredProviders returns the names of sources that carry credentials.
// The place source needs a key like the rest; only it returns points of
// interest rather than timed events.
func (c *Config) ConfiguredProviders() []string {
	var names []string
	if c.Providers.Ticketmaster.APIKey != "" {
		names = append(names, "ticketmaster")
	}
	if c.Providers.Eventbrite.Token != "" {
		names = append(names, "eventbrite")
	}
	if c.Providers.Meetup.Token != "" {
		names = append(names, "meetup")
	}
	if c.Providers.Places.APIKey != "" {
		names = append(names, "places")
	}
	return names
}
