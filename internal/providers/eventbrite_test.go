// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

const eventbritePayload = `{
	"events": [{
		"id": "eb-12345",
		"name": {"text": "Tech Networking Mixer"},
		"description": {"text": "Connect with local tech professionals"},
		"url": "https://eventbrite.test/e/12345",
		"start": {"utc": "2026-09-03T18:00:00Z"},
		"end": {"utc": "2026-09-03T21:00:00Z"},
		"venue": {
			"name": "Innovation Hub",
			"latitude": "37.7849",
			"longitude": "-122.4294",
			"address": {"localized_address_display": "100 Tech St, San Francisco, CA"}
		},
		"category": {"name": "Business"},
		"subcategory": {"name": "Networking"},
		"format": {"name": "Seminar"},
		"is_online_event": false,
		"is_series": true,
		"capacity": 250
	}]
}`

func TestEventbriteSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events/search/" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("authorization = %q", got)
		}
		q := r.URL.Query()
		if q.Get("location.within") != "5km" {
			t.Errorf("location.within = %q, want 5km", q.Get("location.within"))
		}
		if q.Get("expand") != "venue" {
			t.Errorf("expand = %q", q.Get("expand"))
		}
		_, _ = w.Write([]byte(eventbritePayload))
	}))
	defer srv.Close()

	eb := NewEventbrite(EventbriteConfig{APIToken: "test-token", BaseURL: srv.URL}, zerolog.Nop())

	events, err := eb.Search(context.Background(), SearchParams{Lat: 37.7749, Lon: -122.4194, RadiusMeters: 5000})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	ev := events[0]
	if ev.Provider != "eventbrite" || ev.ProviderID != "eb-12345" {
		t.Errorf("identity = (%s, %s)", ev.Provider, ev.ProviderID)
	}
	if ev.Title != "Tech Networking Mixer" {
		t.Errorf("title = %q", ev.Title)
	}

	wantCategories := []string{"business", "networking", "seminar"}
	for i, c := range wantCategories {
		if ev.Category[i] != c {
			t.Errorf("category[%d] = %q, want %q", i, ev.Category[i], c)
		}
	}

	if ev.Venue == nil || ev.Venue.Address != "100 Tech St, San Francisco, CA" {
		t.Errorf("venue = %+v", ev.Venue)
	}

	// Capacity 250 (+0.2) and series (+0.1): 0.8.
	if ev.Popularity == nil || *ev.Popularity != 0.8 {
		t.Errorf("popularity = %v, want 0.8", ev.Popularity)
	}
}

func TestEventbriteUnconfigured(t *testing.T) {
	eb := NewEventbrite(EventbriteConfig{}, zerolog.Nop())

	events, err := eb.Search(context.Background(), SearchParams{Lat: 1, Lon: 2, RadiusMeters: 1000})
	if err != nil || len(events) != 0 {
		t.Errorf("unconfigured search = (%v, %v), want empty and nil", events, err)
	}
}

func TestEventbriteDefaultCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"events": [{"id": "eb-1", "name": {"text": "Untagged"}}]}`))
	}))
	defer srv.Close()

	eb := NewEventbrite(EventbriteConfig{APIToken: "t", BaseURL: srv.URL}, zerolog.Nop())

	events, err := eb.Search(context.Background(), SearchParams{Lat: 1, Lon: 2, RadiusMeters: 1000})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(events[0].Category) != 1 || events[0].Category[0] != "general" {
		t.Errorf("expected default category general, got %v", events[0].Category)
	}
}

func TestEventbriteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer srv.Close()

	eb := NewEventbrite(EventbriteConfig{APIToken: "t", BaseURL: srv.URL}, zerolog.Nop())

	if _, err := eb.Search(context.Background(), SearchParams{Lat: 1, Lon: 2, RadiusMeters: 1000}); !IsProviderError(err) {
		t.Errorf("expected provider error, got %v", err)
	}
}
