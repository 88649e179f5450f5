// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

package rank

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldtrip-app/fieldtrip/internal/models"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func floatPtr(v float64) *float64 { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"weights do not sum to one", func(c *Config) { c.WeightRelevance = 0.5 }, true},
		{"negative weight", func(c *Config) { c.WeightRelevance = -0.1; c.WeightProximity = 0.8 }, true},
		{"zero radius", func(c *Config) { c.ReferenceRadiusMeters = 0 }, true},
		{"zero default duration", func(c *Config) { c.DefaultPlaceMinutes = 0 }, true},
		{"zero steepness", func(c *Config) { c.SigmoidSteepness = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRelevanceScore(t *testing.T) {
	tests := []struct {
		name       string
		categories []string
		interests  []string
		want       float64
	}{
		{"no interests is neutral", []string{"music"}, nil, 0.5},
		{"identical sets", []string{"music"}, []string{"music"}, 1.0},
		{"disjoint sets", []string{"music"}, []string{"sports"}, 0.0},
		{"one of four overlaps", []string{"music", "jazz"}, []string{"music", "food", "art"}, 0.25},
		{"case insensitive", []string{"Music"}, []string{"MUSIC"}, 1.0},
		{"empty categories against interests", nil, []string{"music"}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := relevanceScore(tt.categories, normalizeTags(tt.interests))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("relevanceScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProximityScore(t *testing.T) {
	e := testEngine(t)

	tests := []struct {
		name     string
		distance float64
		want     float64
	}{
		{"at origin", 0, 1.0},
		{"half radius", 5000, 0.5},
		{"at radius", 10000, 0.0},
		{"beyond radius clamps to zero", 25000, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.proximityScore(tt.distance)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("proximityScore(%v) = %v, want %v", tt.distance, got, tt.want)
			}
		})
	}
}

func TestProximityScoreAtKnownDistance(t *testing.T) {
	// 0.01 degrees of latitude is roughly 1113 meters, which should
	// score close to 1 - 1113/10000.
	e := testEngine(t)

	ev := models.UnifiedEvent{
		Provider:   "test",
		ProviderID: "near",
		Title:      "Nearby",
		Venue:      &models.Venue{Name: "Spot", Lat: 37.7849, Lon: -122.4194},
	}
	se, err := e.score(&ev, Request{Lat: 37.7749, Lon: -122.4194, MinutesAvailable: 120}, nil)
	if err != nil {
		t.Fatalf("score() error = %v", err)
	}
	if se.ScoreBreakdown.Proximity < 0.885 || se.ScoreBreakdown.Proximity > 0.893 {
		t.Errorf("Proximity = %v, want approximately 0.889", se.ScoreBreakdown.Proximity)
	}
	if se.DistanceMeters < 1100 || se.DistanceMeters > 1125 {
		t.Errorf("DistanceMeters = %v, want approximately 1113", se.DistanceMeters)
	}
}

func TestTimeFitScore(t *testing.T) {
	e := testEngine(t)

	tests := []struct {
		name      string
		duration  int
		available int
		want      float64
		tolerance float64
	}{
		{"fits exactly", 120, 120, 1.0, 0},
		{"fits with room", 30, 120, 1.0, 0},
		{"double the budget", 240, 120, 1 / (1 + math.Exp(4)), 1e-9},
		{"slightly over", 130, 120, 1 / (1 + math.Exp(4.0/12.0)), 1e-9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.timeFitScore(tt.duration, tt.available)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("timeFitScore(%d, %d) = %v, want %v", tt.duration, tt.available, got, tt.want)
			}
		})
	}
}

func TestTimeFitDecreasesWithExcess(t *testing.T) {
	e := testEngine(t)
	prev := e.timeFitScore(120, 120)
	for _, d := range []int{130, 150, 200, 300, 600} {
		got := e.timeFitScore(d, 120)
		if got >= prev {
			t.Errorf("timeFitScore(%d, 120) = %v, want less than %v", d, got, prev)
		}
		prev = got
	}
}

func TestEstimateDuration(t *testing.T) {
	e := testEngine(t)
	start := time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		start   *time.Time
		end     *time.Time
		want    int
		wantErr bool
	}{
		{"explicit window", timePtr(start), timePtr(start.Add(90 * time.Minute)), 90, false},
		{"start only uses event default", timePtr(start), nil, 120, false},
		{"untimed uses place default", nil, nil, 60, false},
		{"end before start is an error", timePtr(start), timePtr(start.Add(-time.Hour)), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := models.UnifiedEvent{StartAt: tt.start, EndAt: tt.end}
			got, err := e.estimateDuration(&ev)
			if (err != nil) != tt.wantErr {
				t.Fatalf("estimateDuration() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("estimateDuration() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRankOrdersByScoreDescending(t *testing.T) {
	e := testEngine(t)
	start := time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC)

	events := []models.UnifiedEvent{
		{
			Provider: "test", ProviderID: "far-irrelevant",
			Title:    "Far and irrelevant",
			Category: []string{"sports"},
			Venue:    &models.Venue{Lat: 37.86, Lon: -122.27},
			StartAt:  timePtr(start), EndAt: timePtr(start.Add(time.Hour)),
		},
		{
			Provider: "test", ProviderID: "near-relevant",
			Title:      "Near and relevant",
			Category:   []string{"music"},
			Venue:      &models.Venue{Lat: 37.776, Lon: -122.42},
			StartAt:    timePtr(start), EndAt: timePtr(start.Add(time.Hour)),
			Popularity: floatPtr(0.9),
		},
	}

	got := e.Rank(events, Request{
		Lat: 37.7749, Lon: -122.4194,
		Interests:        []string{"music"},
		MinutesAvailable: 120,
	})

	if len(got) != 2 {
		t.Fatalf("Rank() returned %d events, want 2", len(got))
	}
	if got[0].ProviderID != "near-relevant" {
		t.Errorf("Rank()[0] = %q, want near-relevant", got[0].ProviderID)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("scores not descending: %v then %v", got[0].Score, got[1].Score)
	}
	for _, se := range got {
		if se.Score < 0 || se.Score > 1 {
			t.Errorf("Score = %v, want within [0,1]", se.Score)
		}
	}
}

func TestRankStableOnTies(t *testing.T) {
	e := testEngine(t)

	// Identical candidates under different provider ids must keep their
	// input order.
	mk := func(id string) models.UnifiedEvent {
		return models.UnifiedEvent{
			Provider: "test", ProviderID: id,
			Title:    "Same",
			Category: []string{"music"},
			Venue:    &models.Venue{Lat: 37.7749, Lon: -122.4194},
		}
	}
	got := e.Rank(
		[]models.UnifiedEvent{mk("a"), mk("b"), mk("c")},
		Request{Lat: 37.7749, Lon: -122.4194, Interests: []string{"music"}, MinutesAvailable: 60},
	)

	if len(got) != 3 {
		t.Fatalf("Rank() returned %d events, want 3", len(got))
	}
	for i, id := range []string{"a", "b", "c"} {
		if got[i].ProviderID != id {
			t.Errorf("Rank()[%d] = %q, want %q", i, got[i].ProviderID, id)
		}
	}
}

func TestRankSkipsUnscorableCandidates(t *testing.T) {
	e := testEngine(t)
	start := time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC)

	events := []models.UnifiedEvent{
		{
			Provider: "test", ProviderID: "corrupt",
			Title:   "Ends before it starts",
			StartAt: timePtr(start), EndAt: timePtr(start.Add(-time.Hour)),
		},
		{
			Provider: "test", ProviderID: "fine",
			Title: "Untimed place",
			Venue: &models.Venue{Lat: 37.7749, Lon: -122.4194},
		},
	}

	got := e.Rank(events, Request{Lat: 37.7749, Lon: -122.4194, MinutesAvailable: 120})
	if len(got) != 1 {
		t.Fatalf("Rank() returned %d events, want 1", len(got))
	}
	if got[0].ProviderID != "fine" {
		t.Errorf("Rank()[0] = %q, want fine", got[0].ProviderID)
	}
}

func TestRankNoVenueScoresFullProximity(t *testing.T) {
	e := testEngine(t)

	got := e.Rank(
		[]models.UnifiedEvent{{Provider: "test", ProviderID: "online", Title: "Online thing"}},
		Request{Lat: 37.7749, Lon: -122.4194, MinutesAvailable: 60},
	)
	if len(got) != 1 {
		t.Fatalf("Rank() returned %d events, want 1", len(got))
	}
	if got[0].ScoreBreakdown.Proximity != 1.0 {
		t.Errorf("Proximity = %v, want 1.0", got[0].ScoreBreakdown.Proximity)
	}
	if got[0].DistanceMeters != 0 {
		t.Errorf("DistanceMeters = %d, want 0", got[0].DistanceMeters)
	}
}

func TestRankCompositeWeights(t *testing.T) {
	e := testEngine(t)

	// All sub-scores known: relevance 1, proximity 1, timeFit 1,
	// popularity 0.8 gives 0.4 + 0.3 + 0.2 + 0.08.
	got := e.Rank(
		[]models.UnifiedEvent{{
			Provider: "test", ProviderID: "known",
			Title:      "Known",
			Category:   []string{"music"},
			Venue:      &models.Venue{Lat: 37.7749, Lon: -122.4194},
			Popularity: floatPtr(0.8),
		}},
		Request{Lat: 37.7749, Lon: -122.4194, Interests: []string{"music"}, MinutesAvailable: 60},
	)
	if len(got) != 1 {
		t.Fatalf("Rank() returned %d events, want 1", len(got))
	}
	if math.Abs(got[0].Score-0.98) > 1e-9 {
		t.Errorf("Score = %v, want 0.98", got[0].Score)
	}
}
