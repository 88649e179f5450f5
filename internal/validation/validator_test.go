// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

package validation

import (
	"strings"
	"testing"
)

type suggestRequest struct {
	Lat              float64  `validate:"latitude"`
	Lon              float64  `validate:"longitude"`
	MinutesAvailable int      `validate:"min=15,max=360"`
	RadiusMeters     int      `validate:"gt=0"`
	Interests        []string `validate:"max=20,dive,min=1,max=64"`
}

func validRequest() suggestRequest {
	return suggestRequest{
		Lat:              37.7749,
		Lon:              -122.4194,
		MinutesAvailable: 120,
		RadiusMeters:     5000,
		Interests:        []string{"music", "food"},
	}
}

func TestValidateStructValid(t *testing.T) {
	req := validRequest()
	if err := ValidateStruct(&req); err != nil {
		t.Errorf("ValidateStruct() = %v, want nil", err)
	}
}

func TestValidateStructFieldErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*suggestRequest)
		wantField string
		wantTag   string
	}{
		{"latitude out of range", func(r *suggestRequest) { r.Lat = 91 }, "Lat", "latitude"},
		{"longitude out of range", func(r *suggestRequest) { r.Lon = -181 }, "Lon", "longitude"},
		{"minutes below floor", func(r *suggestRequest) { r.MinutesAvailable = 5 }, "MinutesAvailable", "min"},
		{"minutes above ceiling", func(r *suggestRequest) { r.MinutesAvailable = 600 }, "MinutesAvailable", "max"},
		{"radius not positive", func(r *suggestRequest) { r.RadiusMeters = -500 }, "RadiusMeters", "gt"},
		{"empty interest element", func(r *suggestRequest) { r.Interests = []string{""} }, "Interests[0]", "min"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			err := ValidateStruct(&req)
			if err == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			errs := err.Errors()
			if len(errs) != 1 {
				t.Fatalf("Errors() returned %d errors, want 1: %v", len(errs), err)
			}
			if errs[0].Field() != tt.wantField {
				t.Errorf("Field() = %q, want %q", errs[0].Field(), tt.wantField)
			}
			if errs[0].Tag() != tt.wantTag {
				t.Errorf("Tag() = %q, want %q", errs[0].Tag(), tt.wantTag)
			}
		})
	}
}

func TestValidateStructCombinesMessages(t *testing.T) {
	req := validRequest()
	req.Lat = 100
	req.MinutesAvailable = 0

	err := ValidateStruct(&req)
	if err == nil {
		t.Fatal("ValidateStruct() = nil, want error")
	}
	if len(err.Errors()) != 2 {
		t.Fatalf("Errors() returned %d errors, want 2", len(err.Errors()))
	}
	msg := err.Error()
	if !strings.Contains(msg, "Lat") || !strings.Contains(msg, "MinutesAvailable") {
		t.Errorf("Error() = %q, want both failing fields mentioned", msg)
	}
}

func TestGetValidatorSingleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() returned different instances")
	}
}
