/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/
package scheduler

import (
	"testing"
	"time"

	"github.com/friendsincode/grimnir_signage/internal/models"
)

func tod(t *testing.T, s string) models.TimeOfDay {
	t.Helper()
	v, err := models.ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("ParseTimeOfDay(%q): %v", s, err)
	}
	return v
}

func days(t *testing.T, names ...string) models.WeekdaySet {
	t.Helper()
	set, err := models.ParseWeekdays(names)
	if err != nil {
		t.Fatalf("ParseWeekdays(%v): %v", names, err)
	}
	return set
}

// 2026-01-07 is a Wednesday.
func wednesdayAt(t *testing.T, clock string) time.Time {
	t.Helper()
	v := tod(t, clock)
	return time.Date(2026, time.January, 7, v.Hour(), v.Minute(), 0, 0, time.Local)
}

func TestResolveScheduleWindow(t *testing.T) {
	schedules := []models.Schedule{{
		ID:         "wk",
		PlaylistID: "pl-day",
		Start:      tod(t, "09:00"),
		End:        tod(t, "18:00"),
		Days:       days(t, "mon", "tue", "wed", "thu", "fri"),
	}}
	fallback := &models.FallbackConfig{Mode: models.FallbackWeb, URL: "https://dash.example.com"}

	tests := []struct {
		name string
		now  time.Time
		want models.Target
	}{
		{"inside window", wednesdayAt(t, "10:00"), models.PlaylistTarget("pl-day", "wk")},
		{"after window", wednesdayAt(t, "20:00"), models.WebTarget("https://dash.example.com")},
		{"end is exclusive", wednesdayAt(t, "18:00"), models.WebTarget("https://dash.example.com")},
		{"start is inclusive", wednesdayAt(t, "09:00"), models.PlaylistTarget("pl-day", "wk")},
		{"wrong weekday", wednesdayAt(t, "10:00").AddDate(0, 0, 3), models.WebTarget("https://dash.example.com")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(schedules, fallback, "https://home.example.com", tt.now)
			if got != tt.want {
				t.Errorf("Resolve = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolveTieBreak(t *testing.T) {
	everyday := days(t)
	schedules := []models.Schedule{
		{ID: "b-late", PlaylistID: "pl-b", Start: tod(t, "10:00"), End: tod(t, "20:00"), Days: everyday},
		{ID: "a-early", PlaylistID: "pl-a", Start: tod(t, "08:00"), End: tod(t, "20:00"), Days: everyday},
	}
	got := Resolve(schedules, nil, "home", wednesdayAt(t, "12:00"))
	if got.ScheduleID != "a-early" {
		t.Errorf("earliest start must win, got %+v", got)
	}

	// identical starts fall back to the smallest id
	schedules[1].Start = tod(t, "10:00")
	got = Resolve(schedules, nil, "home", wednesdayAt(t, "12:00"))
	if got.ScheduleID != "a-early" {
		t.Errorf("smallest id must win a start tie, got %+v", got)
	}

	// order of the input slice must not matter
	schedules[0], schedules[1] = schedules[1], schedules[0]
	got = Resolve(schedules, nil, "home", wednesdayAt(t, "12:00"))
	if got.ScheduleID != "a-early" {
		t.Errorf("resolution must be order independent, got %+v", got)
	}
}

func TestResolveFallbacks(t *testing.T) {
	now := wednesdayAt(t, "03:00")

	got := Resolve(nil, &models.FallbackConfig{Mode: models.FallbackPlaylist, PlaylistID: "pl-night"}, "home", now)
	if got != models.PlaylistTarget("pl-night", "") {
		t.Errorf("playlist fallback not applied: %+v", got)
	}

	got = Resolve(nil, nil, "https://home.example.com", now)
	if got != models.WebTarget("https://home.example.com") {
		t.Errorf("homepage fallback not applied: %+v", got)
	}
}
