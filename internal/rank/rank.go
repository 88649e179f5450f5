// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

// Package rank scores and orders candidate events against a requester's
// location, interests, and time budget.
//
// The scoring policy is a fixed convex combination of four sub-scores:
//
//	score = 0.4*relevance + 0.3*proximity + 0.2*timeFit + 0.1*popularity
//
//   - relevance: Jaccard similarity of category tags and interests, both
//     lower-cased; a neutral 0.5 when the requester stated no interests.
//   - proximity: linear decay max(0, 1 - d/D) over the 10km reference
//     radius D, with d the Haversine distance to the venue. An event with
//     no venue is assumed to be at the requester's location (d = 0).
//   - timeFit: 1.0 while the estimated duration fits the budget, then a
//     sigmoid 1/(1+e^(4*excess/budget)) of the excess-to-budget ratio, so
//     slightly-over-budget events decay smoothly instead of vanishing.
//   - popularity: the source-normalized value, 0.5 when unknown.
//
// Results are sorted by score descending; ties keep their original
// relative order (stable sort). A candidate that cannot be scored is
// dropped with a warning and does not abort the pass.
package rank

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fieldtrip-app/fieldtrip/internal/geo"
	"github.com/fieldtrip-app/fieldtrip/internal/metrics"
	"github.com/fieldtrip-app/fieldtrip/internal/models"
)

// Config holds the tunable scoring policy. The defaults are the deployed
// policy; changing weights changes ranking order across a deployment, so
// treat them as a policy constant, not a per-request knob.
type Config struct {
	WeightRelevance  float64
	WeightProximity  float64
	WeightTimeFit    float64
	WeightPopularity float64

	// ReferenceRadiusMeters is the distance D at which proximity decays
	// to zero.
	ReferenceRadiusMeters float64

	// DefaultEventMinutes estimates timed events lacking an end time.
	DefaultEventMinutes int

	// DefaultPlaceMinutes estimates untimed entries (places to visit).
	DefaultPlaceMinutes int

	// SigmoidSteepness scales the time-fit decay once an event exceeds
	// the budget.
	SigmoidSteepness float64
}

// DefaultConfig returns the deployed scoring policy.
func DefaultConfig() *Config {
	return &Config{
		WeightRelevance:       0.4,
		WeightProximity:       0.3,
		WeightTimeFit:         0.2,
		WeightPopularity:      0.1,
		ReferenceRadiusMeters: 10000,
		DefaultEventMinutes:   120,
		DefaultPlaceMinutes:   60,
		SigmoidSteepness:      4,
	}
}

// Validate checks the policy invariants.
func (c *Config) Validate() error {
	sum := c.WeightRelevance + c.WeightProximity + c.WeightTimeFit + c.WeightPopularity
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("score weights must sum to 1, got %v", sum)
	}
	for _, w := range []float64{c.WeightRelevance, c.WeightProximity, c.WeightTimeFit, c.WeightPopularity} {
		if w < 0 {
			return fmt.Errorf("score weights must be non-negative")
		}
	}
	if c.ReferenceRadiusMeters <= 0 {
		return fmt.Errorf("reference radius must be positive")
	}
	if c.DefaultEventMinutes <= 0 || c.DefaultPlaceMinutes <= 0 {
		return fmt.Errorf("default durations must be positive")
	}
	if c.SigmoidSteepness <= 0 {
		return fmt.Errorf("sigmoid steepness must be positive")
	}
	return nil
}

// Request carries the requester context candidates are scored against.
type Request struct {
	Lat              float64
	Lon              float64
	Interests        []string
	MinutesAvailable int
}

// Engine scores and orders candidates. Safe for concurrent use; it holds
// no per-request state.
type Engine struct {
	config *Config
	logger zerolog.Logger
}

// NewEngine creates a rank engine with the given policy.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEngine(cfg *Config, logger zerolog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rank config: %w", err)
	}
	return &Engine{
		config: cfg,
		logger: logger.With().Str("component", "rank").Logger(),
	}, nil
}

// Rank scores every candidate and returns them ordered by composite score
// descending. Candidates that fail to score are skipped.
func (e *Engine) Rank(events []models.UnifiedEvent, req Request) []models.ScoredEvent {
	interests := normalizeTags(req.Interests)

	scored := make([]models.ScoredEvent, 0, len(events))
	for i := range events {
		se, err := e.score(&events[i], req, interests)
		if err != nil {
			metrics.CandidatesSkipped.Inc()
			e.logger.Warn().
				Err(err).
				Str("provider", events[i].Provider).
				Str("provider_id", events[i].ProviderID).
				Msg("failed to score candidate, skipping")
			continue
		}
		metrics.CandidatesScored.Inc()
		scored = append(scored, se)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// score computes the composite score for one candidate.
func (e *Engine) score(ev *models.UnifiedEvent, req Request, interests map[string]struct{}) (models.ScoredEvent, error) {
	durationMinutes, err := e.estimateDuration(ev)
	if err != nil {
		return models.ScoredEvent{}, err
	}

	distance := 0.0
	if ev.Venue != nil {
		distance = geo.Haversine(req.Lat, req.Lon, ev.Venue.Lat, ev.Venue.Lon)
	}

	breakdown := models.ScoreBreakdown{
		Relevance:  relevanceScore(ev.Category, interests),
		Proximity:  e.proximityScore(distance),
		TimeFit:    e.timeFitScore(durationMinutes, req.MinutesAvailable),
		Popularity: ev.PopularityOrDefault(),
	}

	composite := breakdown.Relevance*e.config.WeightRelevance +
		breakdown.Proximity*e.config.WeightProximity +
		breakdown.TimeFit*e.config.WeightTimeFit +
		breakdown.Popularity*e.config.WeightPopularity

	return models.ScoredEvent{
		UnifiedEvent:    *ev,
		Score:           clamp01(composite),
		ScoreBreakdown:  breakdown,
		DistanceMeters:  int(math.Round(distance)),
		DurationMinutes: durationMinutes,
	}, nil
}

// estimateDuration derives the candidate's expected time cost in minutes.
func (e *Engine) estimateDuration(ev *models.UnifiedEvent) (int, error) {
	switch {
	case ev.StartAt != nil && ev.EndAt != nil:
		d := ev.EndAt.Sub(*ev.StartAt)
		if d < 0 {
			return 0, fmt.Errorf("end %v precedes start %v", ev.EndAt, ev.StartAt)
		}
		return int(math.Round(d.Minutes())), nil
	case ev.StartAt != nil:
		return e.config.DefaultEventMinutes, nil
	default:
		return e.config.DefaultPlaceMinutes, nil
	}
}

// relevanceScore is the Jaccard similarity of the candidate's category
// tags and the requester's interests. No stated interests is not evidence
// of irrelevance, so it scores a neutral 0.5.
func relevanceScore(categories []string, interests map[string]struct{}) float64 {
	if len(interests) == 0 {
		return 0.5
	}

	catSet := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		catSet[strings.ToLower(c)] = struct{}{}
	}

	intersection := 0
	for c := range catSet {
		if _, ok := interests[c]; ok {
			intersection++
		}
	}
	union := len(catSet) + len(interests) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// proximityScore maps distance to [0,1] with linear decay over the
// reference radius.
func (e *Engine) proximityScore(distanceMeters float64) float64 {
	return math.Max(0, 1-distanceMeters/e.config.ReferenceRadiusMeters)
}

// timeFitScore is 1.0 while the duration fits the budget, then decays
// along a sigmoid of the excess-to-budget ratio.
func (e *Engine) timeFitScore(durationMinutes, minutesAvailable int) float64 {
	if durationMinutes <= minutesAvailable {
		return 1.0
	}
	excess := float64(durationMinutes - minutesAvailable)
	ratio := excess / float64(minutesAvailable)
	return 1 / (1 + math.Exp(ratio*e.config.SigmoidSteepness))
}

// normalizeTags lower-cases and deduplicates a tag list into a set.
func normalizeTags(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(strings.ToLower(t))
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
