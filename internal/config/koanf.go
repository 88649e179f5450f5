// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/fieldtrip/config.yaml",
	"/etc/fieldtrip/config.yml",
}

// ConfigPathEnvVar overrides the config file search entirely.
const ConfigPathEnvVar = "FIELDTRIP_CONFIG_PATH"

// envPrefix is stripped from environment variables before mapping.
const envPrefix = "FIELDTRIP_"

// Default returns a Config with all default values applied. These are
// overridden by the config file and then by environment variables.
func Default() *Config {
	return &Config{
		Providers: ProvidersConfig{},
		Geocoder: GeocoderConfig{
			BaseURL:   "https://nominatim.openstreetmap.org",
			UserAgent: "fieldtrip/1.0 (https://github.com/fieldtrip-app/fieldtrip)",
			Timeout:   5 * time.Second,
		},
		Cache: CacheConfig{
			TTLMin:          10 * time.Minute,
			TTLMax:          30 * time.Minute,
			CleanupInterval: 5 * time.Minute,
		},
		Store: StoreConfig{
			Enabled:   false,
			Path:      "/data/fieldtrip/store",
			Freshness: 24 * time.Hour,
		},
		Queue: QueueConfig{
			Enabled:     false,
			URL:         "nats://127.0.0.1:4222",
			Topic:       "region.refresh",
			DedupWindow: 10 * time.Minute,
		},
		Pipeline: PipelineConfig{
			DefaultRadiusMeters: 5000,
			DefaultLimit:        20,
			MaxLimit:            100,
			Timeout:             20 * time.Second,
			JitterMin:           50 * time.Millisecond,
			JitterMax:           200 * time.Millisecond,
		},
		Rank: RankConfig{
			WeightRelevance:  0.4,
			WeightProximity:  0.3,
			WeightTimeFit:    0.2,
			WeightPopularity: 0.1,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Defaults: built-in values
//  2. Config file: optional YAML (first match in DefaultConfigPaths, or
//     FIELDTRIP_CONFIG_PATH)
//  3. Environment variables: FIELDTRIP_-prefixed, highest priority
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first readable config file path, or empty.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envMappings maps stripped, lower-cased environment variable names to
// koanf config paths. Variables not in this table are ignored, so stray
// FIELDTRIP_-prefixed variables cannot corrupt nested keys.
var envMappings = map[string]string{
	"ticketmaster_api_key": "providers.ticketmaster.api_key",
	"eventbrite_token":     "providers.eventbrite.token",
	"meetup_token":         "providers.meetup.token",
	"places_api_key":       "providers.places.api_key",

	"ticketmaster_rate_capacity": "providers.ticketmaster.rate.capacity",
	"ticketmaster_rate_refill":   "providers.ticketmaster.rate.refill",
	"eventbrite_rate_capacity":   "providers.eventbrite.rate.capacity",
	"eventbrite_rate_refill":     "providers.eventbrite.rate.refill",
	"meetup_rate_capacity":       "providers.meetup.rate.capacity",
	"meetup_rate_refill":         "providers.meetup.rate.refill",
	"places_rate_capacity":       "providers.places.rate.capacity",
	"places_rate_refill":         "providers.places.rate.refill",

	"geocoder_base_url":   "geocoder.base_url",
	"geocoder_user_agent": "geocoder.user_agent",
	"geocoder_timeout":    "geocoder.timeout",

	"cache_ttl_min":          "cache.ttl_min",
	"cache_ttl_max":          "cache.ttl_max",
	"cache_cleanup_interval": "cache.cleanup_interval",

	"store_enabled":   "store.enabled",
	"store_path":      "store.path",
	"store_freshness": "store.freshness",

	"queue_enabled":      "queue.enabled",
	"queue_url":          "queue.url",
	"queue_topic":        "queue.topic",
	"queue_dedup_window": "queue.dedup_window",

	"default_radius_meters": "pipeline.default_radius_meters",
	"default_limit":         "pipeline.default_limit",
	"max_limit":             "pipeline.max_limit",
	"pipeline_timeout":      "pipeline.timeout",
	"jitter_min":            "pipeline.jitter_min",
	"jitter_max":            "pipeline.jitter_max",

	"rank_weight_relevance":  "rank.weight_relevance",
	"rank_weight_proximity":  "rank.weight_proximity",
	"rank_weight_time_fit":   "rank.weight_time_fit",
	"rank_weight_popularity": "rank.weight_popularity",

	"metrics_enabled":     "metrics.enabled",
	"metrics_listen_addr": "metrics.listen_addr",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps FIELDTRIP_TICKETMASTER_API_KEY to
// providers.ticketmaster.api_key and so on. Returning an empty string
// tells koanf to skip the variable.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if path, ok := envMappings[key]; ok {
		return path
	}
	return ""
}
