/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package models defines the entities shared across the signage controller:
// media items, playlists, schedules, the fallback rule, and the single
// mutable device state owned by the command arbiter.
package models

import (
	"fmt"
	"strings"
	"time"
)

// MediaType classifies an indexed media file.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
	MediaTypeWeb   MediaType = "web"
)

// Mode is the coarse display mode carried in DeviceState.
type Mode string

const (
	ModeWeb      Mode = "web"
	ModePlaylist Mode = "playlist"
)

// MediaItem is a read-only view of one file in the media index.
// The identifier is "source:relative/path" and is unique within a root.
type MediaItem struct {
	Identifier string    `json:"identifier"`
	Name       string    `json:"name"`
	Source     string    `json:"source"`
	Path       string    `json:"path"`
	Type       MediaType `json:"media_type"`
	Size       int64     `json:"size"`
	Modified   time.Time `json:"modified"`
	Duration   float64   `json:"duration,omitempty"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	MimeType   string    `json:"mime_type,omitempty"`
	Tags       []string  `json:"tags"`
}

// PlaylistItem references a media item with an optional duration override
// in seconds. A zero Duration means "use the type default".
type PlaylistItem struct {
	MediaID  string `json:"media_id"`
	Duration int    `json:"duration,omitempty"`
}

// Playlist is an ordered sequence of playlist items.
type Playlist struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Loop  bool           `json:"loop"`
	Items []PlaylistItem `json:"items"`
}

// Validate checks structural invariants before the playlist is persisted.
func (p *Playlist) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: playlist id is required", ErrConfig)
	}
	for i, item := range p.Items {
		if item.MediaID == "" {
			return fmt.Errorf("%w: playlist %s item %d missing media_id", ErrConfig, p.ID, i)
		}
		if item.Duration < 0 {
			return fmt.Errorf("%w: playlist %s item %d has negative duration", ErrConfig, p.ID, i)
		}
	}
	return nil
}

// Schedule maps a playlist onto a recurring time-of-day window. Windows never
// span midnight: Start must be strictly before End on the same day.
type Schedule struct {
	ID         string     `json:"id"`
	PlaylistID string     `json:"playlist_id"`
	Start      TimeOfDay  `json:"start"`
	End        TimeOfDay  `json:"end"`
	Days       WeekdaySet `json:"days"`
}

// Validate rejects malformed schedules at write time.
func (s *Schedule) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: schedule id is required", ErrConfig)
	}
	if s.PlaylistID == "" {
		return fmt.Errorf("%w: schedule %s missing playlist_id", ErrConfig, s.ID)
	}
	if !s.Start.Before(s.End) {
		return fmt.Errorf("%w: schedule %s start %s must be before end %s", ErrConfig, s.ID, s.Start, s.End)
	}
	return nil
}

// ActiveAt reports whether the schedule covers the given local time.
// The window is half-open: [start, end).
func (s *Schedule) ActiveAt(now time.Time) bool {
	if !s.Days.Contains(now.Weekday()) {
		return false
	}
	tod := TimeOfDayFrom(now)
	return !tod.Before(s.Start) && tod.Before(s.End)
}

// FallbackMode selects how the fallback rule resolves.
type FallbackMode string

const (
	FallbackWeb      FallbackMode = "web"
	FallbackPlaylist FallbackMode = "playlist"
)

// FallbackConfig is the target used when no schedule matches the current
// time. Exactly one of URL / PlaylistID is meaningful per mode.
type FallbackConfig struct {
	Mode       FallbackMode `json:"mode"`
	URL        string       `json:"url,omitempty"`
	PlaylistID string       `json:"playlist_id,omitempty"`
}

// Validate checks the fallback rule before it is persisted.
func (f *FallbackConfig) Validate() error {
	switch f.Mode {
	case FallbackWeb:
		if f.URL == "" {
			return fmt.Errorf("%w: web fallback requires a url", ErrConfig)
		}
	case FallbackPlaylist:
		if f.PlaylistID == "" {
			return fmt.Errorf("%w: playlist fallback requires a playlist_id", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: fallback mode must be %q or %q", ErrConfig, FallbackWeb, FallbackPlaylist)
	}
	return nil
}

// Target is what the scheduler currently wants on screen: a web URL or a
// playlist reference. Targets are comparable so the engine can stay
// edge-triggered.
type Target struct {
	Mode       Mode   `json:"mode"`
	URL        string `json:"url,omitempty"`
	PlaylistID string `json:"playlist_id,omitempty"`
	ScheduleID string `json:"schedule_id,omitempty"`
}

// WebTarget builds a web target.
func WebTarget(url string) Target {
	return Target{Mode: ModeWeb, URL: url}
}

// PlaylistTarget builds a playlist target, optionally attributed to the
// schedule that selected it.
func PlaylistTarget(playlistID, scheduleID string) Target {
	return Target{Mode: ModePlaylist, PlaylistID: playlistID, ScheduleID: scheduleID}
}

// Key is a stable identity for fault accounting; it ignores the schedule
// attribution so the same content selected by two schedules shares a key.
func (t Target) Key() string {
	if t.Mode == ModePlaylist {
		return "playlist:" + t.PlaylistID
	}
	return "web:" + t.URL
}

// PlaylistPosition describes where playback sits inside the active playlist.
type PlaylistPosition struct {
	PlaylistID string `json:"playlist_id"`
	ScheduleID string `json:"schedule_id,omitempty"`
	Index      int    `json:"index"`
	Exhausted  bool   `json:"exhausted,omitempty"`
}

// HealthSnapshot carries the periodic device health metrics.
type HealthSnapshot struct {
	Uptime      float64 `json:"uptime"`
	CPUPercent  float64 `json:"cpu"`
	MemPercent  float64 `json:"mem"`
	Temperature float64 `json:"temp"`
}

// DeviceState is the single mutable device snapshot. It is owned by the
// command arbiter; every other component sees read-only copies.
type DeviceState struct {
	Mode     Mode              `json:"mode"`
	URL      string            `json:"url,omitempty"`
	Media    *MediaItem        `json:"media,omitempty"`
	Playlist *PlaylistPosition `json:"playlist,omitempty"`
	Blanked  bool              `json:"blanked"`
	Degraded bool              `json:"degraded"`
	Faults   []string          `json:"faults,omitempty"`
	Uptime   float64           `json:"uptime"`
}

// Clone returns a deep copy safe to hand to observers.
func (d DeviceState) Clone() DeviceState {
	out := d
	if d.Media != nil {
		media := *d.Media
		media.Tags = append([]string(nil), d.Media.Tags...)
		out.Media = &media
	}
	if d.Playlist != nil {
		pos := *d.Playlist
		out.Playlist = &pos
	}
	out.Faults = append([]string(nil), d.Faults...)
	return out
}

// OverrideWindow suppresses automatic scheduling after a manual command.
// It is process-local and never persisted.
type OverrideWindow struct {
	Command   string    `json:"command"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Live reports whether the window still suppresses the scheduler.
func (w OverrideWindow) Live(now time.Time) bool {
	return !w.ExpiresAt.IsZero() && now.Before(w.ExpiresAt)
}

// WebAction is a browser control command valid only in web mode.
type WebAction string

const (
	WebActionBack    WebAction = "back"
	WebActionForward WebAction = "forward"
	WebActionReload  WebAction = "reload"
	WebActionHome    WebAction = "home"
)

// ParseWebAction validates an action string from the API.
func ParseWebAction(raw string) (WebAction, error) {
	switch action := WebAction(strings.ToLower(strings.TrimSpace(raw))); action {
	case WebActionBack, WebActionForward, WebActionReload, WebActionHome:
		return action, nil
	default:
		return "", fmt.Errorf("%w: invalid web action %q", ErrConfig, raw)
	}
}
