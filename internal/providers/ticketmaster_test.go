// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

const ticketmasterPayload = `{
	"_embedded": {
		"events": [{
			"id": "tm-67890",
			"name": "Live Concert Series",
			"info": "Amazing live music performance",
			"url": "https://ticketmaster.test/event/67890",
			"dates": {
				"start": {"dateTime": "2026-09-05T19:00:00Z"},
				"end": {"dateTime": "2026-09-05T23:00:00Z"}
			},
			"classifications": [{
				"segment": {"name": "Music"},
				"genre": {"name": "Rock"},
				"subGenre": {"name": "Indie"}
			}],
			"images": [{"url": "https://img.test/1.jpg"}],
			"priceRanges": [{"min": 50, "max": 150}],
			"promoter": {"name": "Live Nation"},
			"_embedded": {
				"venues": [{
					"name": "City Arena",
					"location": {"latitude": "37.7649", "longitude": "-122.4094"},
					"address": {"line1": "200 Concert Blvd"},
					"city": {"name": "San Francisco"},
					"state": {"stateCode": "CA"}
				}]
			}
		}]
	}
}`

func TestTicketmasterSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events.json" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("apikey") != "test-key" {
			t.Errorf("apikey = %q", q.Get("apikey"))
		}
		if q.Get("unit") != "miles" {
			t.Errorf("unit = %q, want miles", q.Get("unit"))
		}
		// 5000m rounds up to 4 miles.
		if q.Get("radius") != "4" {
			t.Errorf("radius = %q, want 4", q.Get("radius"))
		}
		_, _ = w.Write([]byte(ticketmasterPayload))
	}))
	defer srv.Close()

	tm := NewTicketmaster(TicketmasterConfig{APIKey: "test-key", BaseURL: srv.URL}, zerolog.Nop())

	events, err := tm.Search(context.Background(), SearchParams{Lat: 37.7749, Lon: -122.4194, RadiusMeters: 5000})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	ev := events[0]
	if ev.Provider != "ticketmaster" || ev.ProviderID != "tm-67890" {
		t.Errorf("identity = (%s, %s)", ev.Provider, ev.ProviderID)
	}
	if ev.Title != "Live Concert Series" {
		t.Errorf("title = %q", ev.Title)
	}

	wantCategories := []string{"music", "rock", "indie"}
	if len(ev.Category) != len(wantCategories) {
		t.Fatalf("categories = %v", ev.Category)
	}
	for i, c := range wantCategories {
		if ev.Category[i] != c {
			t.Errorf("category[%d] = %q, want %q", i, ev.Category[i], c)
		}
	}

	if ev.StartAt == nil || ev.EndAt == nil {
		t.Fatal("expected both start and end timestamps")
	}
	if got := ev.EndAt.Sub(*ev.StartAt).Hours(); got != 4 {
		t.Errorf("duration = %v hours, want 4", got)
	}

	if ev.Venue == nil {
		t.Fatal("expected a venue")
	}
	if ev.Venue.Lat != 37.7649 || ev.Venue.Lon != -122.4094 {
		t.Errorf("venue coords = (%v, %v)", ev.Venue.Lat, ev.Venue.Lon)
	}
	if ev.Venue.Address != "200 Concert Blvd, San Francisco, CA" {
		t.Errorf("venue address = %q", ev.Venue.Address)
	}

	// Images + price ranges + promoter: 0.5 + 0.1 + 0.1 + 0.2 = 0.9.
	if ev.Popularity == nil || *ev.Popularity != 0.9 {
		t.Errorf("popularity = %v, want 0.9", ev.Popularity)
	}
}

func TestTicketmasterUnconfigured(t *testing.T) {
	tm := NewTicketmaster(TicketmasterConfig{}, zerolog.Nop())

	if tm.IsConfigured() {
		t.Error("adapter without key must report unconfigured")
	}

	events, err := tm.Search(context.Background(), SearchParams{Lat: 1, Lon: 2, RadiusMeters: 1000})
	if err != nil {
		t.Errorf("unconfigured search must not error, got %v", err)
	}
	if len(events) != 0 {
		t.Errorf("unconfigured search must be empty, got %d events", len(events))
	}
}

func TestTicketmasterRateOverride(t *testing.T) {
	tm := NewTicketmaster(TicketmasterConfig{RateCapacity: 20, RateRefill: 2}, zerolog.Nop())
	if got := tm.bucket.Tokens(); got != 20 {
		t.Errorf("overridden bucket capacity = %v, want 20", got)
	}

	tm = NewTicketmaster(TicketmasterConfig{}, zerolog.Nop())
	if got := tm.bucket.Tokens(); got != 5 {
		t.Errorf("default bucket capacity = %v, want 5", got)
	}
}

func TestTicketmasterServerErrorWrapsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tm := NewTicketmaster(TicketmasterConfig{APIKey: "k", BaseURL: srv.URL}, zerolog.Nop())

	_, err := tm.Search(context.Background(), SearchParams{Lat: 1, Lon: 2, RadiusMeters: 1000})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %T", err)
	}
	if pe.Provider != "ticketmaster" {
		t.Errorf("provider = %q", pe.Provider)
	}
}

func TestTicketmasterMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"_embedded": {`))
	}))
	defer srv.Close()

	tm := NewTicketmaster(TicketmasterConfig{APIKey: "k", BaseURL: srv.URL}, zerolog.Nop())

	if _, err := tm.Search(context.Background(), SearchParams{Lat: 1, Lon: 2, RadiusMeters: 1000}); !IsProviderError(err) {
		t.Errorf("expected provider error for truncated JSON, got %v", err)
	}
}

func TestTicketmasterDefaultCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"_embedded": {"events": [{"id": "tm-1", "name": "Mystery Show"}]}}`))
	}))
	defer srv.Close()

	tm := NewTicketmaster(TicketmasterConfig{APIKey: "k", BaseURL: srv.URL}, zerolog.Nop())

	events, err := tm.Search(context.Background(), SearchParams{Lat: 1, Lon: 2, RadiusMeters: 1000})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(events) != 1 || len(events[0].Category) != 1 || events[0].Category[0] != "entertainment" {
		t.Errorf("expected default category entertainment, got %v", events[0].Category)
	}
}
