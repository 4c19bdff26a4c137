/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler decides what should be on screen. Resolution is a pure
// function of the stored schedules and the clock; the engine around it only
// ticks, diffs and emits.
package scheduler

import (
	"time"

	"github.com/friendsincode/grimnir_signage/internal/models"
)

// Resolve picks the target for the given instant. Among schedules active at
// now, the one with the earliest start wins; a start tie is broken by the
// lexicographically smallest id, so resolution is deterministic for any
// stored set. With no active schedule the fallback rule applies, and with no
// fallback the homepage does.
func Resolve(schedules []models.Schedule, fallback *models.FallbackConfig, homepage string, now time.Time) models.Target {
	var winner *models.Schedule
	for i := range schedules {
		s := &schedules[i]
		if !s.ActiveAt(now) {
			continue
		}
		if winner == nil {
			winner = s
			continue
		}
		if s.Start.Before(winner.Start) || (s.Start == winner.Start && s.ID < winner.ID) {
			winner = s
		}
	}
	if winner != nil {
		return models.PlaylistTarget(winner.PlaylistID, winner.ID)
	}
	if fallback != nil {
		switch fallback.Mode {
		case models.FallbackPlaylist:
			return models.PlaylistTarget(fallback.PlaylistID, "")
		case models.FallbackWeb:
			return models.WebTarget(fallback.URL)
		}
	}
	return models.WebTarget(homepage)
}
