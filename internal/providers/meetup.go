// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

/*
meetup.go - Meetup find/events connector

API Reference: https://www.meetup.com/api/guide/
Quota: 200 requests/hour, bucket refills at ~0.055 tokens/second.
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
	meetupName    = "meetup"
	meetupBaseURL = "https://api.meetup.com"
)

// MeetupConfig holds the adapter's credentials and overrides.
type MeetupConfig struct {
	// APIKey is the OAuth bearer token. Empty means unconfigured.
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

// Meetup is the Meetup events connector.
type Meetup struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	bucket     *ratelimit.Bucket
	breaker    *gobreaker.CircuitBreaker[[]models.UnifiedEvent]
	logger     zerolog.Logger
}

var _ Connector = (*Meetup)(nil)

// NewMeetup creates the Meetup connector.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewMeetup(cfg MeetupConfig, logger zerolog.Logger) *Meetup {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = meetupBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpTimeout}
	}
	return &Meetup{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		bucket:     newBucket(meetupName, cfg.RateCapacity, cfg.RateRefill, 10, 0.055),
		breaker:    newBreaker(meetupName),
		logger:     logger.With().Str("provider", meetupName).Logger(),
	}
}

// Name returns the provider identifier.
func (m *Meetup) Name() string { return meetupName }

// IsConfigured reports whether an API key is present.
func (m *Meetup) IsConfigured() bool { return m.apiKey != "" }

// Search queries Meetup for events near the given coordinate.
func (m *Meetup) Search(ctx context.Context, params SearchParams) ([]models.UnifiedEvent, error) {
	if !m.IsConfigured() {
		m.logger.Info().Msg("API key not configured, skipping")
		metrics.ObserveProviderRequest(meetupName, "skipped", 0)
		return nil, nil
	}

	if err := m.bucket.Acquire(ctx); err != nil {
		return nil, &ProviderError{Provider: meetupName, Op: "rate limit wait", Err: err}
	}

	start := time.Now()
	events, err := m.breaker.Execute(func() ([]models.UnifiedEvent, error) {
		return m.search(ctx, params)
	})
	if err != nil {
		metrics.ObserveProviderRequest(meetupName, "failure", time.Since(start))
		return nil, &ProviderError{Provider: meetupName, Op: "search", Err: err}
	}

	metrics.ObserveProviderRequest(meetupName, "success", time.Since(start))
	metrics.ProviderEventsReturned.WithLabelValues(meetupName).Add(float64(len(events)))
	return events, nil
}

type meetupResponse struct {
	Events []meetupEvent `json:"events"`
}

type meetupEvent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Link        string `json:"link"`

	// Time is the start instant in milliseconds since epoch; Duration is
	// the event length in milliseconds. Zero means not supplied.
	Time     int64 `json:"time"`
	Duration int64 `json:"duration"`

	Venue *struct {
		Name     string  `json:"name"`
		Lat      float64 `json:"lat"`
		Lon      float64 `json:"lon"`
		Address1 string  `json:"address_1"`
		City     string  `json:"city"`
		State    string  `json:"state"`
	} `json:"venue"`
	Group *struct {
		Name     string  `json:"name"`
		Lat      float64 `json:"lat"`
		Lon      float64 `json:"lon"`
		Category struct {
			Shortname string `json:"shortname"`
		} `json:"category"`
		Topics []struct {
			Name string `json:"name"`
		} `json:"topics"`
	} `json:"group"`

	YesRSVPCount  int  `json:"yes_rsvp_count"`
	WaitlistCount int  `json:"waitlist_count"`
	Featured      bool `json:"featured"`
}

func (m *Meetup) search(ctx context.Context, params SearchParams) ([]models.UnifiedEvent, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(params.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(params.Lon, 'f', -1, 64))
	q.Set("radius", strconv.Itoa(int(math.Ceil(float64(params.RadiusMeters)/metersPerMile))))
	q.Set("page", "50")
	if params.StartTime != nil {
		q.Set("start_date_range", params.StartTime.UTC().Format(time.RFC3339))
	}
	if params.EndTime != nil {
		q.Set("end_date_range", params.EndTime.UTC().Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/find/events?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var payload meetupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	events := make([]models.UnifiedEvent, 0, len(payload.Events))
	for i := range payload.Events {
		events = append(events, m.transformEvent(&payload.Events[i]))
	}
	return events, nil
}

func (m *Meetup) transformEvent(ev *meetupEvent) models.UnifiedEvent {
	title := ev.Name
	if title == "" {
		title = "Untitled Meetup"
	}

	popularity := m.calculatePopularity(ev)
	out := models.UnifiedEvent{
		Provider:    meetupName,
		ProviderID:  ev.ID,
		Title:       title,
		Description: ev.Description,
		Category:    m.extractCategories(ev),
		URL:         ev.Link,
		Popularity:  &popularity,
	}

	if ev.Time > 0 {
		start := time.UnixMilli(ev.Time).UTC()
		out.StartAt = &start
		if ev.Duration > 0 {
			end := time.UnixMilli(ev.Time + ev.Duration).UTC()
			out.EndAt = &end
		}
	}

	// Venue falls back to the organizing group's home location.
	venue := models.Venue{}
	switch {
	case ev.Venue != nil:
		venue.Name = ev.Venue.Name
		venue.Lat = ev.Venue.Lat
		venue.Lon = ev.Venue.Lon
		if ev.Venue.Address1 != "" {
			venue.Address = fmt.Sprintf("%s, %s, %s", ev.Venue.Address1, ev.Venue.City, ev.Venue.State)
		}
		if venue.Name == "" && ev.Group != nil {
			venue.Name = ev.Group.Name
		}
		out.Venue = &venue
	case ev.Group != nil:
		venue.Name = ev.Group.Name
		venue.Lat = ev.Group.Lat
		venue.Lon = ev.Group.Lon
		out.Venue = &venue
	}

	return out
}

// extractCategories combines the group category with up to three topics.
func (m *Meetup) extractCategories(ev *meetupEvent) []string {
	var categories []string
	if ev.Group != nil {
		if ev.Group.Category.Shortname != "" {
			categories = append(categories, lowercase(ev.Group.Category.Shortname))
		}
		topics := ev.Group.Topics
		if len(topics) > 3 {
			topics = topics[:3]
		}
		for _, topic := range topics {
			if topic.Name != "" {
				categories = append(categories, lowercase(topic.Name))
			}
		}
	}
	if len(categories) == 0 {
		return []string{"social"}
	}
	return categories
}

// calculatePopularity rewards RSVP volume, waitlists, and featured status.
func (m *Meetup) calculatePopularity(ev *meetupEvent) float64 {
	score := models.DefaultPopularity
	switch {
	case ev.YesRSVPCount > 50:
		score += 0.2
	case ev.YesRSVPCount > 20:
		score += 0.1
	}
	if ev.WaitlistCount > 0 {
		score += 0.1
	}
	if ev.Featured {
		score += 0.1
	}
	return clampScore(score)
}
