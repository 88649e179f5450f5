// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

// Package geo resolves a coordinate into a GeoResolution: a reverse-geocoded
// address (best effort, via Nominatim) plus an analytically computed
// bounding box for the search radius. Geocoding is enrichment only; the
// bounding box and center are always returned, even when the geocoder is
// unreachable.
package geo

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/fieldtrip-app/fieldtrip/internal/models"
)

const (
	// metersPerDegreeLat approximates one degree of latitude.
	metersPerDegreeLat = 111000.0

	// boundingBoxBuffer widens the box beyond the requested radius to give
	// callers margin at the edges.
	boundingBoxBuffer = 1.5

	// maxUsableLat guards the longitude-delta division near the poles,
	// where cos(lat) approaches zero.
	maxUsableLat = 89.9
)

// Config holds resolver settings.
type Config struct {
	// BaseURL is the Nominatim endpoint. Default: the public OSM instance.
	BaseURL string

	// UserAgent identifies this client to Nominatim, which requires one.
	UserAgent string

	// Timeout bounds the geocoding round trip. Default: 5s.
	Timeout time.Duration
}

// Resolver reverse-geocodes coordinates using a Nominatim-compatible
// service and computes search bounding boxes.
type Resolver struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewResolver creates a Resolver with the given configuration.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewResolver(cfg Config, logger zerolog.Logger) *Resolver {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Fieldtrip/1.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Resolver{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "geo").Logger(),
	}
}

// nominatimResponse is the subset of the Nominatim reverse response we use.
type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"address"`
}

// Resolve reverse-geocodes (lat, lon) and computes the bounding box for
// radiusMeters. The address fields are left empty when the geocoder call
// fails; the bounding box and center are always populated.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64, radiusMeters int) models.GeoResolution {
	res := models.GeoResolution{
		BoundingBox: BoundingBoxFor(lat, lon, radiusMeters),
		Center:      models.Coordinate{Lat: lat, Lon: lon},
	}

	geo, err := r.reverseGeocode(ctx, lat, lon)
	if err != nil {
		r.logger.Warn().Err(err).Float64("lat", lat).Float64("lon", lon).
			Msg("reverse geocoding failed, returning bounding box only")
		return res
	}

	res.Address = geo.DisplayName
	res.City = firstNonEmpty(geo.Address.City, geo.Address.Town, geo.Address.Village)
	res.State = geo.Address.State
	res.Country = geo.Address.Country
	return res
}

func (r *Resolver) reverseGeocode(ctx context.Context, lat, lon float64) (*nominatimResponse, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("geocoder returned status %d: %s", resp.StatusCode, string(body))
	}

	var out nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode geocoder response: %w", err)
	}
	return &out, nil
}

// BoundingBoxFor computes the search region around (lat, lon) analytically:
//
//	latDelta = (radius / 111000) * buffer
//	lonDelta = latDelta / cos(lat)
//
// Latitude is clamped away from the poles before the cosine division.
func BoundingBoxFor(lat, lon float64, radiusMeters int) models.BoundingBox {
	latDelta := float64(radiusMeters) / metersPerDegreeLat * boundingBoxBuffer

	clamped := lat
	if clamped > maxUsableLat {
		clamped = maxUsableLat
	} else if clamped < -maxUsableLat {
		clamped = -maxUsableLat
	}
	lonDelta := latDelta / math.Cos(clamped*math.Pi/180.0)

	return models.BoundingBox{
		MinLat: lat - latDelta,
		MaxLat: lat + latDelta,
		MinLon: lon - lonDelta,
		MaxLon: lon + lonDelta,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
