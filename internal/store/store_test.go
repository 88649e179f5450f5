// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

package store

import (
	"context"
	"testing"
	"time"

	"github.com/fieldtrip-app/fieldtrip/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func popPtr(v float64) *float64 { return &v }

func sfVenue(lat, lon float64) *models.Venue {
	return &models.Venue{Name: "Venue", Lat: lat, Lon: lon}
}

var sfBBox = models.BoundingBox{
	MinLat: 37.70, MaxLat: 37.85,
	MinLon: -122.55, MaxLon: -122.35,
}

func TestUpsertAndQueryRegion(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	events := []models.UnifiedEvent{
		{Provider: "ticketmaster", ProviderID: "in-1", Title: "Inside", Venue: sfVenue(37.7749, -122.4194), Popularity: popPtr(0.7)},
		{Provider: "eventbrite", ProviderID: "out-1", Title: "Oakland", Venue: sfVenue(37.8044, -122.2712), Popularity: popPtr(0.9)},
		{Provider: "meetup", ProviderID: "no-venue", Title: "Online only"},
	}
	if err := s.Upsert(ctx, events); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := s.QueryRegion(ctx, sfBBox, time.Hour)
	if err != nil {
		t.Fatalf("QueryRegion() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("QueryRegion() returned %d events, want 1", len(got))
	}
	if got[0].ProviderID != "in-1" {
		t.Errorf("QueryRegion()[0] = %q, want in-1", got[0].ProviderID)
	}
	if got[0].UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped on upsert")
	}
}

func TestUpsertOverwritesByKey(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ev := models.UnifiedEvent{Provider: "ticketmaster", ProviderID: "e1", Title: "First", Venue: sfVenue(37.7749, -122.4194)}
	if err := s.Upsert(ctx, []models.UnifiedEvent{ev}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	ev.Title = "Second"
	if err := s.Upsert(ctx, []models.UnifiedEvent{ev}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := s.QueryRegion(ctx, sfBBox, time.Hour)
	if err != nil {
		t.Fatalf("QueryRegion() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("QueryRegion() returned %d events, want 1", len(got))
	}
	if got[0].Title != "Second" {
		t.Errorf("Title = %q, want Second", got[0].Title)
	}
}

func TestQueryRegionOrdersByPopularity(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	events := []models.UnifiedEvent{
		{Provider: "p", ProviderID: "unknown-pop", Title: "Unknown", Venue: sfVenue(37.77, -122.42)},
		{Provider: "p", ProviderID: "low", Title: "Low", Venue: sfVenue(37.77, -122.42), Popularity: popPtr(0.2)},
		{Provider: "p", ProviderID: "high", Title: "High", Venue: sfVenue(37.77, -122.42), Popularity: popPtr(0.9)},
	}
	if err := s.Upsert(ctx, events); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := s.QueryRegion(ctx, sfBBox, time.Hour)
	if err != nil {
		t.Fatalf("QueryRegion() error = %v", err)
	}
	want := []string{"high", "low", "unknown-pop"}
	if len(got) != len(want) {
		t.Fatalf("QueryRegion() returned %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ProviderID != want[i] {
			t.Errorf("QueryRegion()[%d] = %q, want %q", i, got[i].ProviderID, want[i])
		}
	}
}

func TestQueryRegionFreshnessWindow(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ev := models.UnifiedEvent{Provider: "p", ProviderID: "e1", Title: "Old", Venue: sfVenue(37.77, -122.42)}
	if err := s.Upsert(ctx, []models.UnifiedEvent{ev}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := s.QueryRegion(ctx, sfBBox, -time.Second)
	if err != nil {
		t.Fatalf("QueryRegion() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("QueryRegion() with expired window returned %d events, want 0", len(got))
	}
}

func TestCount(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if n, err := s.Count(ctx); err != nil || n != 0 {
		t.Errorf("Count() = %d, %v, want 0, nil", n, err)
	}

	events := []models.UnifiedEvent{
		{Provider: "p", ProviderID: "a", Venue: sfVenue(37.77, -122.42)},
		{Provider: "p", ProviderID: "b", Venue: sfVenue(37.78, -122.41)},
	}
	if err := s.Upsert(ctx, events); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if n, err := s.Count(ctx); err != nil || n != 2 {
		t.Errorf("Count() = %d, %v, want 2, nil", n, err)
	}
}

func TestPrune(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	events := []models.UnifiedEvent{
		{Provider: "p", ProviderID: "a", Venue: sfVenue(37.77, -122.42)},
	}
	if err := s.Upsert(ctx, events); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	// Everything is fresh, nothing pruned.
	if n, err := s.Prune(ctx, time.Hour); err != nil || n != 0 {
		t.Errorf("Prune(1h) = %d, %v, want 0, nil", n, err)
	}

	// Zero retention makes everything stale.
	if n, err := s.Prune(ctx, -time.Second); err != nil || n != 1 {
		t.Errorf("Prune(-1s) = %d, %v, want 1, nil", n, err)
	}
	if n, err := s.Count(ctx); err != nil || n != 0 {
		t.Errorf("Count() after prune = %d, %v, want 0, nil", n, err)
	}
}

func TestQueryRegionCancelledContext(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	events := []models.UnifiedEvent{
		{Provider: "p", ProviderID: "a", Venue: sfVenue(37.77, -122.42)},
	}
	if err := s.Upsert(ctx, events); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.QueryRegion(cancelled, sfBBox, time.Hour); err == nil {
		t.Error("QueryRegion() with cancelled context = nil error, want error")
	}
}
