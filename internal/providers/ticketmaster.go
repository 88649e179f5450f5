// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

/*
ticketmaster.go - Ticketmaster Discovery API connector

API Reference: https://developer.ticketmaster.com/products-and-docs/apis/discovery-api/v2/
Quota: 5000 requests/day, so the bucket trickles at ~0.06 tokens/second.
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
	ticketmasterName    = "ticketmaster"
	ticketmasterBaseURL = "https://app.ticketmaster.com/discovery/v2"

	metersPerMile = 1609.34
)

// TicketmasterConfig holds the adapter's credentials and overrides.
type TicketmasterConfig struct {
	// APIKey is the Discovery API consumer key. Empty means unconfigured.
	APIKey string

	// BaseURL overrides the production endpoint, used in tests.
	BaseURL string

	// HTTPClient overrides the default 10s-timeout client.
	HTTPClient *http.Client

	// RateCapacity and RateRefill override the bucket sized for the
	// public 5000 requests/day quota. Zero keeps the default.
	RateCapacity int
	RateRefill   float64
}

// Ticketmaster is the Discovery API connector.
type Ticketmaster struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	bucket     *ratelimit.Bucket
	breaker    *gobreaker.CircuitBreaker[[]models.UnifiedEvent]
	logger     zerolog.Logger
}

// Ensure the adapter satisfies the connector contract.
var _ Connector = (*Ticketmaster)(nil)

// NewTicketmaster creates the Ticketmaster connector.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewTicketmaster(cfg TicketmasterConfig, logger zerolog.Logger) *Ticketmaster {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = ticketmasterBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpTimeout}
	}
	return &Ticketmaster{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		bucket:     newBucket(ticketmasterName, cfg.RateCapacity, cfg.RateRefill, 5, 0.06),
		breaker:    newBreaker(ticketmasterName),
		logger:     logger.With().Str("provider", ticketmasterName).Logger(),
	}
}

// Name returns the provider identifier.
func (t *Ticketmaster) Name() string { return ticketmasterName }

// IsConfigured reports whether an API key is present.
func (t *Ticketmaster) IsConfigured() bool { return t.apiKey != "" }

// Search queries the Discovery API for events near the given coordinate.
func (t *Ticketmaster) Search(ctx context.Context, params SearchParams) ([]models.UnifiedEvent, error) {
	if !t.IsConfigured() {
		t.logger.Info().Msg("API key not configured, skipping")
		metrics.ObserveProviderRequest(ticketmasterName, "skipped", 0)
		return nil, nil
	}

	if err := t.bucket.Acquire(ctx); err != nil {
		return nil, &ProviderError{Provider: ticketmasterName, Op: "rate limit wait", Err: err}
	}

	start := time.Now()
	events, err := t.breaker.Execute(func() ([]models.UnifiedEvent, error) {
		return t.search(ctx, params)
	})
	if err != nil {
		metrics.ObserveProviderRequest(ticketmasterName, "failure", time.Since(start))
		return nil, &ProviderError{Provider: ticketmasterName, Op: "search", Err: err}
	}

	metrics.ObserveProviderRequest(ticketmasterName, "success", time.Since(start))
	metrics.ProviderEventsReturned.WithLabelValues(ticketmasterName).Add(float64(len(events)))
	return events, nil
}

// ticketmasterResponse mirrors the Discovery API events payload.
type ticketmasterResponse struct {
	Embedded struct {
		Events []ticketmasterEvent `json:"events"`
	} `json:"_embedded"`
}

type ticketmasterEvent struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Info       string `json:"info"`
	PleaseNote string `json:"pleaseNote"`
	URL        string `json:"url"`
	Dates      struct {
		Start struct {
			DateTime string `json:"dateTime"`
		} `json:"start"`
		End struct {
			DateTime string `json:"dateTime"`
		} `json:"end"`
	} `json:"dates"`
	Classifications []struct {
		Segment struct {
			Name string `json:"name"`
		} `json:"segment"`
		Genre struct {
			Name string `json:"name"`
		} `json:"genre"`
		SubGenre struct {
			Name string `json:"name"`
		} `json:"subGenre"`
	} `json:"classifications"`
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	PriceRanges []struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	} `json:"priceRanges"`
	Promoter *struct {
		Name string `json:"name"`
	} `json:"promoter"`
	Embedded struct {
		Venues []ticketmasterVenue `json:"venues"`
	} `json:"_embedded"`
}

type ticketmasterVenue struct {
	Name     string `json:"name"`
	Location struct {
		Latitude  string `json:"latitude"`
		Longitude string `json:"longitude"`
	} `json:"location"`
	Address struct {
		Line1 string `json:"line1"`
	} `json:"address"`
	City struct {
		Name string `json:"name"`
	} `json:"city"`
	State struct {
		StateCode string `json:"stateCode"`
	} `json:"state"`
}

func (t *Ticketmaster) search(ctx context.Context, params SearchParams) ([]models.UnifiedEvent, error) {
	q := url.Values{}
	q.Set("apikey", t.apiKey)
	q.Set("latlong", fmt.Sprintf("%v,%v", params.Lat, params.Lon))
	q.Set("radius", strconv.Itoa(int(math.Ceil(float64(params.RadiusMeters)/metersPerMile))))
	q.Set("unit", "miles")
	q.Set("size", "50")
	if params.StartTime != nil {
		q.Set("startDateTime", params.StartTime.UTC().Format(time.RFC3339))
	}
	if params.EndTime != nil {
		q.Set("endDateTime", params.EndTime.UTC().Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/events.json?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var payload ticketmasterResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	events := make([]models.UnifiedEvent, 0, len(payload.Embedded.Events))
	for i := range payload.Embedded.Events {
		events = append(events, t.transformEvent(&payload.Embedded.Events[i]))
	}
	return events, nil
}

func (t *Ticketmaster) transformEvent(ev *ticketmasterEvent) models.UnifiedEvent {
	title := ev.Name
	if title == "" {
		title = "Untitled Event"
	}
	description := ev.Info
	if description == "" {
		description = ev.PleaseNote
	}

	popularity := t.calculatePopularity(ev)
	out := models.UnifiedEvent{
		Provider:    ticketmasterName,
		ProviderID:  ev.ID,
		Title:       title,
		Description: description,
		Category:    t.extractCategories(ev),
		URL:         ev.URL,
		Popularity:  &popularity,
	}

	if start := parseRFC3339(ev.Dates.Start.DateTime); start != nil {
		out.StartAt = start
	}
	if end := parseRFC3339(ev.Dates.End.DateTime); end != nil {
		out.EndAt = end
	}

	if len(ev.Embedded.Venues) > 0 {
		v := ev.Embedded.Venues[0]
		venue := models.Venue{
			Name: v.Name,
			Lat:  parseCoordinate(v.Location.Latitude),
			Lon:  parseCoordinate(v.Location.Longitude),
		}
		if v.Address.Line1 != "" {
			venue.Address = fmt.Sprintf("%s, %s, %s", v.Address.Line1, v.City.Name, v.State.StateCode)
		}
		out.Venue = &venue
	}

	return out
}

// extractCategories flattens segment/genre/subgenre names to lowercase tags.
func (t *Ticketmaster) extractCategories(ev *ticketmasterEvent) []string {
	var categories []string
	for _, c := range ev.Classifications {
		for _, name := range []string{c.Segment.Name, c.Genre.Name, c.SubGenre.Name} {
			if name != "" {
				categories = append(categories, lowercase(name))
			}
		}
	}
	if len(categories) == 0 {
		return []string{"entertainment"}
	}
	return categories
}

// calculatePopularity starts at the neutral 0.5 and rewards signals that
// correlate with demand: images, published price ranges, and a promoter.
func (t *Ticketmaster) calculatePopularity(ev *ticketmasterEvent) float64 {
	score := models.DefaultPopularity
	if len(ev.Images) > 0 {
		score += 0.1
	}
	if len(ev.PriceRanges) > 0 {
		score += 0.1
	}
	if ev.Promoter != nil {
		score += 0.2
	}
	return clampScore(score)
}

// parseRFC3339 returns nil for empty or malformed timestamps.
func parseRFC3339(s string) *time.Time {
	if s == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &ts
}

// parseCoordinate parses a stringly-typed coordinate, defaulting to 0.
func parseCoordinate(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
