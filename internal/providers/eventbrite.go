// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

/*
eventbrite.go - Eventbrite API v3 connector

API Reference: https://www.eventbrite.com/platform/api
Quota: 1000 requests/hour, bucket refills at ~0.28 tokens/second.
*/

package providers

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

	"github.com/fieldtrip-app/fieldtrip/internal/metrics"
	"github.com/fieldtrip-app/fieldtrip/internal/models"
	"github.com/fieldtrip-app/fieldtrip/internal/ratelimit"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	eventbriteName    = "eventbrite"
	eventbriteBaseURL = "https://www.eventbriteapi.com/v3"
)

// EventbriteConfig holds the adapter's credentials and overrides.
type EventbriteConfig struct {
	// APIToken is the private OAuth token. Empty means unconfigured.
	APIToken string

	// BaseURL overrides the production endpoint, used in tests.
	BaseURL string

	// HTTPClient overrides the default 10s-timeout client.
	HTTPClient *http.Client

	// RateCapacity and RateRefill override the default bucket sizing.
	// Zero keeps the default.
	RateCapacity int
	RateRefill   float64
}

// Eventbrite is the Eventbrite search connector.
type Eventbrite struct {
	apiToken   string
	baseURL    string
	httpClient *http.Client
	bucket     *ratelimit.Bucket
	breaker    *gobreaker.CircuitBreaker[[]models.UnifiedEvent]
	logger     zerolog.Logger
}

var _ Connector = (*Eventbrite)(nil)

// NewEventbrite creates the Eventbrite connector.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEventbrite(cfg EventbriteConfig, logger zerolog.Logger) *Eventbrite {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = eventbriteBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpTimeout}
	}
	return &Eventbrite{
		apiToken:   cfg.APIToken,
		baseURL:    baseURL,
		httpClient: httpClient,
		bucket:     newBucket(eventbriteName, cfg.RateCapacity, cfg.RateRefill, 10, 0.28),
		breaker:    newBreaker(eventbriteName),
		logger:     logger.With().Str("provider", eventbriteName).Logger(),
	}
}

// Name returns the provider identifier.
func (e *Eventbrite) Name() string { return eventbriteName }

// IsConfigured reports whether an API token is present.
func (e *Eventbrite) IsConfigured() bool { return e.apiToken != "" }

// Search queries the Eventbrite search endpoint near the given coordinate.
func (e *Eventbrite) Search(ctx context.Context, params SearchParams) ([]models.UnifiedEvent, error) {
	if !e.IsConfigured() {
		e.logger.Info().Msg("API token not configured, skipping")
		metrics.ObserveProviderRequest(eventbriteName, "skipped", 0)
		return nil, nil
	}

	if err := e.bucket.Acquire(ctx); err != nil {
		return nil, &ProviderError{Provider: eventbriteName, Op: "rate limit wait", Err: err}
	}

	start := time.Now()
	events, err := e.breaker.Execute(func() ([]models.UnifiedEvent, error) {
		return e.search(ctx, params)
	})
	if err != nil {
		metrics.ObserveProviderRequest(eventbriteName, "failure", time.Since(start))
		return nil, &ProviderError{Provider: eventbriteName, Op: "search", Err: err}
	}

	metrics.ObserveProviderRequest(eventbriteName, "success", time.Since(start))
	metrics.ProviderEventsReturned.WithLabelValues(eventbriteName).Add(float64(len(events)))
	return events, nil
}

type eventbriteResponse struct {
	Events []eventbriteEvent `json:"events"`
}

type eventbriteEvent struct {
	ID   string `json:"id"`
	Name struct {
		Text string `json:"text"`
	} `json:"name"`
	Description struct {
		Text string `json:"text"`
	} `json:"description"`
	URL   string `json:"url"`
	Start struct {
		UTC string `json:"utc"`
	} `json:"start"`
	End struct {
		UTC string `json:"utc"`
	} `json:"end"`
	Venue *struct {
		Name      string `json:"name"`
		Latitude  string `json:"latitude"`
		Longitude string `json:"longitude"`
		Address   struct {
			LocalizedAddressDisplay string `json:"localized_address_display"`
		} `json:"address"`
	} `json:"venue"`
	Category *struct {
		Name string `json:"name"`
	} `json:"category"`
	Subcategory *struct {
		Name string `json:"name"`
	} `json:"subcategory"`
	Format *struct {
		Name string `json:"name"`
	} `json:"format"`
	IsOnlineEvent bool `json:"is_online_event"`
	IsSeries      bool `json:"is_series"`
	Capacity      int  `json:"capacity"`
}

func (e *Eventbrite) search(ctx context.Context, params SearchParams) ([]models.UnifiedEvent, error) {
	q := url.Values{}
	q.Set("location.latitude", strconv.FormatFloat(params.Lat, 'f', -1, 64))
	q.Set("location.longitude", strconv.FormatFloat(params.Lon, 'f', -1, 64))
	q.Set("location.within", fmt.Sprintf("%dkm", int(math.Ceil(float64(params.RadiusMeters)/1000))))
	q.Set("expand", "venue")
	if params.StartTime != nil {
		q.Set("start_date.range_start", params.StartTime.UTC().Format(time.RFC3339))
	}
	if params.EndTime != nil {
		q.Set("start_date.range_end", params.EndTime.UTC().Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/events/search/?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiToken)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var payload eventbriteResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	events := make([]models.UnifiedEvent, 0, len(payload.Events))
	for i := range payload.Events {
		events = append(events, e.transformEvent(&payload.Events[i]))
	}
	return events, nil
}

func (e *Eventbrite) transformEvent(ev *eventbriteEvent) models.UnifiedEvent {
	title := ev.Name.Text
	if title == "" {
		title = "Untitled Event"
	}

	popularity := e.calculatePopularity(ev)
	out := models.UnifiedEvent{
		Provider:    eventbriteName,
		ProviderID:  ev.ID,
		Title:       title,
		Description: ev.Description.Text,
		Category:    e.extractCategories(ev),
		URL:         ev.URL,
		Popularity:  &popularity,
	}

	if start := parseRFC3339(ev.Start.UTC); start != nil {
		out.StartAt = start
	}
	if end := parseRFC3339(ev.End.UTC); end != nil {
		out.EndAt = end
	}

	if ev.Venue != nil {
		out.Venue = &models.Venue{
			Name:    ev.Venue.Name,
			Address: ev.Venue.Address.LocalizedAddressDisplay,
			Lat:     parseCoordinate(ev.Venue.Latitude),
			Lon:     parseCoordinate(ev.Venue.Longitude),
		}
	}

	return out
}

func (e *Eventbrite) extractCategories(ev *eventbriteEvent) []string {
	var categories []string
	if ev.Category != nil && ev.Category.Name != "" {
		categories = append(categories, lowercase(ev.Category.Name))
	}
	if ev.Subcategory != nil && ev.Subcategory.Name != "" {
		categories = append(categories, lowercase(ev.Subcategory.Name))
	}
	if ev.Format != nil && ev.Format.Name != "" {
		categories = append(categories, lowercase(ev.Format.Name))
	}
	if len(categories) == 0 {
		return []string{"general"}
	}
	return categories
}

// calculatePopularity rewards reach signals: online availability, large
// capacity, and recurring series.
func (e *Eventbrite) calculatePopularity(ev *eventbriteEvent) float64 {
	score := models.DefaultPopularity
	if ev.IsOnlineEvent {
		score += 0.1
	}
	if ev.Capacity > 100 {
		score += 0.2
	}
	if ev.IsSeries {
		score += 0.1
	}
	return clampScore(score)
}
