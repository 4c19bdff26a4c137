/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package player steps through a playlist. The player is a pure state
// machine: it owns no timers and spawns nothing. The arbiter drives it with
// Load and Advance and decides when, based on the durations it reports.
package player

import (
	"time"

	"github.com/friendsincode/grimnir_signage/internal/models"
)

// State is the player's lifecycle phase.
type State int

const (
	// Idle means no playlist is loaded.
	Idle State = iota
	// Playing means an entry is current.
	Playing
	// Exhausted means a non-looping playlist ran out, or nothing in the
	// playlist resolved.
	Exhausted
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Exhausted:
		return "exhausted"
	default:
		return "idle"
	}
}

// Resolver maps a media identifier to an indexed item.
type Resolver func(id string) (models.MediaItem, error)

// Entry is what the display should show now. A zero Duration means the item
// plays to completion and advance is driven by process exit instead of a
// timer.
type Entry struct {
	Item     models.MediaItem
	Duration time.Duration
}

// Player steps through one playlist at a time.
type Player struct {
	playlist     models.Playlist
	scheduleID   string
	resolve      Resolver
	imageDefault time.Duration
	index        int
	state        State
}

// New builds a player. imageDefault is the display time for images without
// an explicit override.
func New(imageDefault time.Duration) *Player {
	if imageDefault <= 0 {
		imageDefault = 30 * time.Second
	}
	return &Player{imageDefault: imageDefault, state: Idle}
}

// Load replaces the active playlist and positions on its first resolvable
// item. Unresolvable items are skipped; a playlist with none leaves the
// player exhausted.
func (p *Player) Load(playlist models.Playlist, scheduleID string, resolve Resolver) (Entry, bool) {
	p.playlist = playlist
	p.scheduleID = scheduleID
	p.resolve = resolve
	p.index = 0
	if entry, at, ok := p.firstPlayable(0, 1); ok {
		p.index = at
		p.state = Playing
		return entry, true
	}
	p.state = Exhausted
	return Entry{}, false
}

// Unload drops the playlist and returns the player to idle.
func (p *Player) Unload() {
	p.playlist = models.Playlist{}
	p.scheduleID = ""
	p.resolve = nil
	p.index = 0
	p.state = Idle
}

// Advance moves to the next resolvable item. A looping playlist wraps; a
// non-looping one becomes exhausted past its last item.
func (p *Player) Advance() (Entry, bool) {
	return p.step(1)
}

// Previous moves to the preceding resolvable item, wrapping when the
// playlist loops.
func (p *Player) Previous() (Entry, bool) {
	return p.step(-1)
}

// Restart rewinds to the first resolvable item. An exhausted looping or
// non-looping playlist both restart from the top.
func (p *Player) Restart() (Entry, bool) {
	if p.state == Idle {
		return Entry{}, false
	}
	if entry, at, ok := p.firstPlayable(0, 1); ok {
		p.index = at
		p.state = Playing
		return entry, true
	}
	p.state = Exhausted
	return Entry{}, false
}

// Current re-resolves the item at the present position.
func (p *Player) Current() (Entry, bool) {
	if p.state != Playing {
		return Entry{}, false
	}
	entry, ok := p.entryAt(p.index)
	return entry, ok
}

// State returns the lifecycle phase.
func (p *Player) State() State {
	return p.state
}

// Position describes where playback sits, for the device state snapshot.
func (p *Player) Position() *models.PlaylistPosition {
	if p.state == Idle {
		return nil
	}
	return &models.PlaylistPosition{
		PlaylistID: p.playlist.ID,
		ScheduleID: p.scheduleID,
		Index:      p.index,
		Exhausted:  p.state == Exhausted,
	}
}

func (p *Player) step(direction int) (Entry, bool) {
	if p.state == Idle || len(p.playlist.Items) == 0 {
		return Entry{}, false
	}
	count := len(p.playlist.Items)
	next := p.index + direction
	for tried := 0; tried < count; tried++ {
		if next < 0 || next >= count {
			if !p.playlist.Loop {
				p.state = Exhausted
				return Entry{}, false
			}
			next = (next + count) % count
		}
		if entry, ok := p.entryAt(next); ok {
			p.index = next
			p.state = Playing
			return entry, true
		}
		next += direction
	}
	p.state = Exhausted
	return Entry{}, false
}

// firstPlayable scans from start in the given direction for a resolvable
// item without consulting the loop flag.
func (p *Player) firstPlayable(start, direction int) (Entry, int, bool) {
	for i := start; i >= 0 && i < len(p.playlist.Items); i += direction {
		if entry, ok := p.entryAt(i); ok {
			return entry, i, true
		}
	}
	return Entry{}, 0, false
}

func (p *Player) entryAt(i int) (Entry, bool) {
	item := p.playlist.Items[i]
	if p.resolve == nil {
		return Entry{}, false
	}
	media, err := p.resolve(item.MediaID)
	if err != nil {
		return Entry{}, false
	}
	return Entry{Item: media, Duration: p.effectiveDuration(item, media)}, true
}

// effectiveDuration applies the precedence: per-item override, then the
// image default, then play-to-completion for video and audio.
func (p *Player) effectiveDuration(item models.PlaylistItem, media models.MediaItem) time.Duration {
	if item.Duration > 0 {
		return time.Duration(item.Duration) * time.Second
	}
	if media.Type == models.MediaTypeImage || media.Type == models.MediaTypeWeb {
		return p.imageDefault
	}
	return 0
}
