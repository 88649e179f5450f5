// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

/*
places.go - Google Places Nearby Search connector

Unlike the event sources, this adapter returns points of interest (parks,
museums, galleries). POIs have no start or end time; the rank engine
treats them as one-hour visits.

API Reference: https://developers.google.com/maps/documentation/places/web-service/search-nearby
*/

package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/fieldtrip-app/fieldtrip/internal/metrics"
	"github.com/fieldtrip-app/fieldtrip/internal/models"
	"github.com/fieldtrip-app/fieldtrip/internal/ratelimit"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	googlePlacesName    = "google-places"
	googlePlacesBaseURL = "https://maps.googleapis.com/maps/api/place"
)

// poiTypes are the place categories worth suggesting for a free block of
// time.
var poiTypes = []string{
	"museum",
	"art_gallery",
	"park",
	"amusement_park",
	"aquarium",
	"zoo",
	"tourist_attraction",
	"stadium",
	"library",
}

// GooglePlacesConfig holds the adapter's credentials and overrides.
type GooglePlacesConfig struct {
	// APIKey is the Places API key. Empty means unconfigured.
	APIKey string

	// BaseURL overrides the production endpoint, used in tests.
	BaseURL string

	// HTTPClient overrides the default 10s-timeout client.
	HTTPClient *http.Client

	// RateCapacity and RateRefill override the default bucket sizing.
	// Zero keeps the default.
	RateCapacity int
	RateRefill   float64
}

// GooglePlaces is the POI connector.
type GooglePlaces struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	bucket     *ratelimit.Bucket
	breaker    *gobreaker.CircuitBreaker[[]models.UnifiedEvent]
	logger     zerolog.Logger
}

var _ Connector = (*GooglePlaces)(nil)

// NewGooglePlaces creates the Google Places connector. The quota is
// generous; the bucket is a conservative 1 token/second.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewGooglePlaces(cfg GooglePlacesConfig, logger zerolog.Logger) *GooglePlaces {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = googlePlacesBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpTimeout}
	}
	return &GooglePlaces{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		bucket:     newBucket(googlePlacesName, cfg.RateCapacity, cfg.RateRefill, 10, 1),
		breaker:    newBreaker(googlePlacesName),
		logger:     logger.With().Str("provider", googlePlacesName).Logger(),
	}
}

// Name returns the provider identifier.
func (g *GooglePlaces) Name() string { return googlePlacesName }

// IsConfigured reports whether an API key is present.
func (g *GooglePlaces) IsConfigured() bool { return g.apiKey != "" }

// Search queries Nearby Search for POIs around the given coordinate.
// Start and end times are ignored; places are not time-bound.
func (g *GooglePlaces) Search(ctx context.Context, params SearchParams) ([]models.UnifiedEvent, error) {
	if !g.IsConfigured() {
		g.logger.Info().Msg("API key not configured, skipping")
		metrics.ObserveProviderRequest(googlePlacesName, "skipped", 0)
		return nil, nil
	}

	if err := g.bucket.Acquire(ctx); err != nil {
		return nil, &ProviderError{Provider: googlePlacesName, Op: "rate limit wait", Err: err}
	}

	start := time.Now()
	events, err := g.breaker.Execute(func() ([]models.UnifiedEvent, error) {
		return g.search(ctx, params)
	})
	if err != nil {
		metrics.ObserveProviderRequest(googlePlacesName, "failure", time.Since(start))
		return nil, &ProviderError{Provider: googlePlacesName, Op: "search", Err: err}
	}

	metrics.ObserveProviderRequest(googlePlacesName, "success", time.Since(start))
	metrics.ProviderEventsReturned.WithLabelValues(googlePlacesName).Add(float64(len(events)))
	return events, nil
}

type googlePlacesResponse struct {
	Results []googlePlace `json:"results"`
}

type googlePlace struct {
	PlaceID          string `json:"place_id"`
	Name             string `json:"name"`
	Vicinity         string `json:"vicinity"`
	URL              string `json:"url"`
	EditorialSummary *struct {
		Overview string `json:"overview"`
	} `json:"editorial_summary"`
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	Types            []string `json:"types"`
	Rating           float64  `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
	OpeningHours     *struct {
		OpenNow bool `json:"open_now"`
	} `json:"opening_hours"`
}

func (g *GooglePlaces) search(ctx context.Context, params SearchParams) ([]models.UnifiedEvent, error) {
	q := url.Values{}
	q.Set("key", g.apiKey)
	q.Set("location", fmt.Sprintf("%v,%v", params.Lat, params.Lon))
	q.Set("radius", strconv.Itoa(params.RadiusMeters))
	q.Set("type", strings.Join(poiTypes, "|"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/nearbysearch/json?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var payload googlePlacesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	events := make([]models.UnifiedEvent, 0, len(payload.Results))
	for i := range payload.Results {
		events = append(events, g.transformPlace(&payload.Results[i]))
	}
	return events, nil
}

func (g *GooglePlaces) transformPlace(place *googlePlace) models.UnifiedEvent {
	title := place.Name
	if title == "" {
		title = "Unnamed Place"
	}

	pageURL := place.URL
	if pageURL == "" {
		pageURL = "https://www.google.com/maps/place/?q=place_id:" + place.PlaceID
	}

	var description string
	if place.EditorialSummary != nil {
		description = place.EditorialSummary.Overview
	}

	popularity := g.calculatePopularity(place)
	return models.UnifiedEvent{
		Provider:    googlePlacesName,
		ProviderID:  place.PlaceID,
		Title:       title,
		Description: description,
		Category:    g.extractCategories(place),
		URL:         pageURL,
		Popularity:  &popularity,
		Venue: &models.Venue{
			Name:    place.Name,
			Address: place.Vicinity,
			Lat:     place.Geometry.Location.Lat,
			Lon:     place.Geometry.Location.Lng,
		},
	}
}

// extractCategories turns snake_case place types into readable tags.
func (g *GooglePlaces) extractCategories(place *googlePlace) []string {
	categories := make([]string, 0, len(place.Types))
	for _, t := range place.Types {
		categories = append(categories, strings.ReplaceAll(t, "_", " "))
	}
	if len(categories) == 0 {
		return []string{"point-of-interest"}
	}
	return categories
}

// calculatePopularity rewards rating strength, review volume, and being
// open right now.
func (g *GooglePlaces) calculatePopularity(place *googlePlace) float64 {
	score := models.DefaultPopularity
	if place.Rating > 0 {
		score += place.Rating / 5 * 0.3
	}
	switch {
	case place.UserRatingsTotal > 1000:
		score += 0.2
	case place.UserRatingsTotal > 100:
		score += 0.1
	}
	if place.OpeningHours != nil && place.OpeningHours.OpenNow {
		score += 0.1
	}
	return clampScore(score)
}
