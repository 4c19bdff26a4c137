/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package arbiter serializes every intent that can touch the screen. The
// scheduler, the API and renderer exit events all feed one goroutine, which
// owns the device state, the playlist player and the advance timer. Nothing
// else mutates any of them.
package arbiter

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_signage/internal/display"
	"github.com/friendsincode/grimnir_signage/internal/events"
	"github.com/friendsincode/grimnir_signage/internal/media"
	"github.com/friendsincode/grimnir_signage/internal/models"
	"github.com/friendsincode/grimnir_signage/internal/player"
	"github.com/friendsincode/grimnir_signage/internal/store"
	"github.com/friendsincode/grimnir_signage/internal/telemetry"
)

type command struct {
	fn    func(now time.Time) error
	reply chan error
}

// Arbiter owns the device state. Manual commands open an override window
// during which schedule emissions are held off; when it lapses the
// authoritative target is re-read and applied.
type Arbiter struct {
	displayCtl    *display.Controller
	index         *media.Index
	store         *store.Store
	bus           *events.Bus
	authoritative func() models.Target
	player        *player.Player

	overrideWindow time.Duration
	homepage       string

	commands chan command
	schedule chan models.Target
	resync   chan struct{}
	stateReq chan chan models.DeviceState

	// loop-owned, never touched outside Run
	state          models.DeviceState
	override       models.OverrideWindow
	faults         map[string]string
	activePlaylist models.Playlist
	needsRetry     bool
	advanceTimer   *time.Timer
	overrideTmr    *time.Timer

	log zerolog.Logger
}

// New builds the arbiter. authoritative returns the scheduler's current
// resolution and is consulted again at every application point, so a queued
// stale emission can never win over a fresher one.
func New(displayCtl *display.Controller, index *media.Index, st *store.Store, bus *events.Bus, authoritative func() models.Target, imageDefault, overrideWindow time.Duration, homepage string, log zerolog.Logger) *Arbiter {
	return &Arbiter{
		displayCtl:     displayCtl,
		index:          index,
		store:          st,
		bus:            bus,
		authoritative:  authoritative,
		player:         player.New(imageDefault),
		overrideWindow: overrideWindow,
		homepage:       homepage,
		commands:       make(chan command),
		schedule:       make(chan models.Target, 1),
		resync:         make(chan struct{}, 1),
		stateReq:       make(chan chan models.DeviceState),
		faults:         make(map[string]string),
		log:            log.With().Str("component", "arbiter").Logger(),
	}
}

// ApplySchedule hands a schedule emission to the arbiter. Only the latest
// pending emission is kept; the authoritative target is re-read when it is
// actually applied.
func (a *Arbiter) ApplySchedule(target models.Target) {
	for {
		select {
		case a.schedule <- target:
			return
		default:
			select {
			case <-a.schedule:
			default:
			}
		}
	}
}

// Resync asks the arbiter to reconsider the authoritative target without a
// schedule edge: the media index was refreshed or the store mutated, so an
// earlier application that fell back may now succeed, or the active
// playlist's content may have changed under it.
func (a *Arbiter) Resync() {
	select {
	case a.resync <- struct{}{}:
	default:
	}
}

// State returns a copy of the device state.
func (a *Arbiter) State() models.DeviceState {
	req := make(chan models.DeviceState, 1)
	select {
	case a.stateReq <- req:
		return <-req
	case <-time.After(2 * time.Second):
		return models.DeviceState{}
	}
}

// NavigateWeb switches to web mode at the given URL and opens an override
// window.
func (a *Arbiter) NavigateWeb(ctx context.Context, url string) error {
	return a.do(ctx, func(now time.Time) error {
		if url == "" {
			return fmt.Errorf("%w: url is required", models.ErrConfig)
		}
		a.openOverride(now, "navigate")
		a.clearFault(models.WebTarget(url).Key())
		a.showWeb(ctx, url)
		return nil
	})
}

// WebAction runs a browser history action. Valid only in web mode.
func (a *Arbiter) WebAction(ctx context.Context, action models.WebAction) error {
	return a.do(ctx, func(now time.Time) error {
		if a.state.Mode != models.ModeWeb {
			return fmt.Errorf("%w: %s requires web mode", models.ErrInvalidMode, action)
		}
		a.openOverride(now, "web_action")
		return a.displayCtl.WebAction(ctx, action, a.homepage)
	})
}

// SetBlank switches the screen output. Blanking is idempotent and does not
// disturb the content underneath.
func (a *Arbiter) SetBlank(ctx context.Context, on bool) error {
	return a.do(ctx, func(now time.Time) error {
		if a.state.Blanked == on {
			return nil
		}
		if err := a.displayCtl.Blank(ctx, on); err != nil {
			return err
		}
		a.state.Blanked = on
		a.publishState()
		return nil
	})
}

// PlayMedia shows a single media item immediately, under an override window.
// Images revert to the schedule after their display time; video and audio
// after completion.
func (a *Arbiter) PlayMedia(ctx context.Context, mediaID string) error {
	return a.do(ctx, func(now time.Time) error {
		adhoc := models.Playlist{Items: []models.PlaylistItem{{MediaID: mediaID}}}
		entry, ok := a.player.Load(adhoc, "", a.index.Resolve)
		if !ok {
			return fmt.Errorf("%w: %s", models.ErrMediaUnresolved, mediaID)
		}
		a.openOverride(now, "play_media")
		a.showEntry(entry)
		return nil
	})
}

// PlayPlaylist starts a stored playlist immediately, under an override
// window.
func (a *Arbiter) PlayPlaylist(ctx context.Context, playlistID string) error {
	return a.do(ctx, func(now time.Time) error {
		a.openOverride(now, "play_playlist")
		a.clearFault(models.PlaylistTarget(playlistID, "").Key())
		return a.startPlaylist(playlistID, "")
	})
}

// PlaylistCommand steps the active playlist: next, previous or restart.
func (a *Arbiter) PlaylistCommand(ctx context.Context, verb string) error {
	return a.do(ctx, func(now time.Time) error {
		if a.state.Mode != models.ModePlaylist {
			return fmt.Errorf("%w: %s requires playlist mode", models.ErrInvalidMode, verb)
		}
		var entry player.Entry
		var ok bool
		switch verb {
		case "next":
			entry, ok = a.player.Advance()
		case "previous":
			entry, ok = a.player.Previous()
		case "restart":
			entry, ok = a.player.Restart()
		default:
			return fmt.Errorf("%w: unknown playlist command %q", models.ErrConfig, verb)
		}
		a.openOverride(now, "playlist_"+verb)
		if !ok {
			a.exhausted()
			return nil
		}
		a.showEntry(entry)
		return nil
	})
}

func (a *Arbiter) do(ctx context.Context, fn func(now time.Time) error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case a.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the single writer. It applies the initial schedule resolution and
// then serves commands, schedule emissions, renderer exits and timers until
// the context is cancelled.
func (a *Arbiter) Run(ctx context.Context) error {
	a.initTimers()
	defer a.advanceTimer.Stop()
	defer a.overrideTmr.Stop()
	a.applyAuthoritative(time.Now(), false)

	for {
		select {
		case <-ctx.Done():
			a.displayCtl.Stop()
			return ctx.Err()
		case cmd := <-a.commands:
			cmd.reply <- cmd.fn(time.Now())
		case <-a.schedule:
			a.applyAuthoritative(time.Now(), false)
		case <-a.resync:
			a.onResync(time.Now())
		case ev := <-a.displayCtl.Exits():
			a.onExit(ctx, ev)
		case <-a.advanceTimer.C:
			a.onAdvanceTimer()
		case <-a.overrideTmr.C:
			a.onOverrideExpired(time.Now())
		case req := <-a.stateReq:
			snap := a.state.Clone()
			snap.Degraded = a.store.Degraded()
			req <- snap
		}
	}
}

func (a *Arbiter) initTimers() {
	a.advanceTimer = time.NewTimer(time.Hour)
	a.advanceTimer.Stop()
	a.overrideTmr = time.NewTimer(time.Hour)
	a.overrideTmr.Stop()
}

// applyAuthoritative re-reads the scheduler's current target and puts it on
// screen, unless a manual override window is live or the target is faulted.
func (a *Arbiter) applyAuthoritative(now time.Time, force bool) {
	if !force && a.override.Live(now) {
		a.log.Debug().Str("command", a.override.Command).Msg("override window live, holding schedule")
		return
	}
	target := a.authoritative()
	if reason, faulted := a.faults[target.Key()]; faulted {
		fb := a.fallbackTarget(target.Key())
		a.log.Warn().Str("target", target.Key()).Str("reason", reason).Str("fallback", fb.Key()).Msg("target faulted, using fallback")
		a.applyTarget(fb)
		return
	}
	a.applyTarget(target)
}

// onResync re-applies the authoritative target after an index refresh or a
// store mutation, but only when doing so can change what is on screen: an
// earlier application that fell back, or an active playlist whose stored
// content was edited. A steady state never restarts.
func (a *Arbiter) onResync(now time.Time) {
	if a.override.Live(now) {
		return
	}
	target := a.authoritative()
	if _, faulted := a.faults[target.Key()]; faulted {
		return
	}
	if a.needsRetry {
		a.applyTarget(target)
		return
	}
	if target.Mode != models.ModePlaylist || a.state.Mode != models.ModePlaylist {
		return
	}
	pos := a.player.Position()
	if pos == nil || pos.PlaylistID != target.PlaylistID {
		return
	}
	fresh, err := a.store.Playlist(target.PlaylistID)
	if err != nil {
		return
	}
	if !playlistsEqual(fresh, a.activePlaylist) {
		a.log.Info().Str("playlist_id", target.PlaylistID).Msg("active playlist edited, reloading")
		a.applyTarget(target)
	}
}

// fallbackTarget resolves the stored fallback rule, skipping it when it
// points at the target being replaced or is itself faulted. The configured
// homepage is the final safety net.
func (a *Arbiter) fallbackTarget(avoidKey string) models.Target {
	if fb := a.store.Fallback(); fb != nil {
		var target models.Target
		if fb.Mode == models.FallbackPlaylist {
			target = models.PlaylistTarget(fb.PlaylistID, "")
		} else {
			target = models.WebTarget(fb.URL)
		}
		if _, faulted := a.faults[target.Key()]; !faulted && target.Key() != avoidKey {
			return target
		}
	}
	return models.WebTarget(a.homepage)
}

func (a *Arbiter) applyTarget(target models.Target) {
	telemetry.TargetApplications.Inc()
	a.needsRetry = false
	switch target.Mode {
	case models.ModePlaylist:
		if err := a.startPlaylist(target.PlaylistID, target.ScheduleID); err != nil {
			a.needsRetry = true
			fb := a.fallbackTarget(target.Key())
			a.log.Error().Err(err).Str("playlist_id", target.PlaylistID).Str("fallback", fb.Key()).Msg("playlist start failed, using fallback")
			if fb.Mode == models.ModePlaylist {
				if a.startPlaylist(fb.PlaylistID, "") == nil {
					return
				}
				fb = models.WebTarget(a.homepage)
			}
			a.showWeb(context.Background(), fb.URL)
		}
	default:
		a.showWeb(context.Background(), target.URL)
	}
}

func (a *Arbiter) startPlaylist(playlistID, scheduleID string) error {
	pl, err := a.store.Playlist(playlistID)
	if err != nil {
		return err
	}
	a.activePlaylist = pl
	entry, ok := a.player.Load(pl, scheduleID, a.index.Resolve)
	if !ok {
		a.exhausted()
		a.needsRetry = true
		return nil
	}
	a.showEntry(entry)
	return nil
}

func playlistsEqual(a, b models.Playlist) bool {
	if a.ID != b.ID || a.Loop != b.Loop || len(a.Items) != len(b.Items) {
		return false
	}
	for i := range a.Items {
		if a.Items[i] != b.Items[i] {
			return false
		}
	}
	return true
}

// showEntry puts one playlist entry on screen and arms the advance timer
// when the entry has a fixed display time. Zero-duration entries advance on
// renderer completion instead.
func (a *Arbiter) showEntry(entry player.Entry) {
	path, err := a.index.AbsolutePath(entry.Item.Identifier)
	if err != nil {
		a.log.Warn().Err(err).Str("media", entry.Item.Identifier).Msg("entry vanished, advancing")
		if next, ok := a.player.Advance(); ok {
			a.showEntry(next)
			return
		}
		a.exhausted()
		a.needsRetry = true
		return
	}
	a.displayCtl.Show(display.MediaContent(entry.Item, path))

	item := entry.Item
	a.state.Mode = models.ModePlaylist
	a.state.URL = ""
	a.state.Media = &item
	a.state.Playlist = a.player.Position()
	a.publishState()

	a.stopAdvanceTimer()
	if entry.Duration > 0 {
		a.advanceTimer.Reset(entry.Duration)
	}
}

func (a *Arbiter) showWeb(ctx context.Context, url string) {
	if url == "" {
		url = a.homepage
	}
	a.player.Unload()
	a.stopAdvanceTimer()
	a.displayCtl.NavigateWeb(ctx, url)

	a.state.Mode = models.ModeWeb
	a.state.URL = url
	a.state.Media = nil
	a.state.Playlist = nil
	a.publishState()
}

// exhausted is reached when a non-looping playlist runs out or nothing in it
// resolves. The screen defers to the stored fallback rule until the schedule
// target changes; the exhausted position stays visible in the state when the
// fallback is a web page.
func (a *Arbiter) exhausted() {
	pos := a.player.Position()
	a.stopAdvanceTimer()

	avoid := ""
	if pos != nil {
		avoid = models.PlaylistTarget(pos.PlaylistID, "").Key()
	}
	fb := a.fallbackTarget(avoid)
	if fb.Mode == models.ModePlaylist {
		if pl, err := a.store.Playlist(fb.PlaylistID); err == nil {
			if entry, ok := a.player.Load(pl, "", a.index.Resolve); ok {
				a.activePlaylist = pl
				a.showEntry(entry)
				return
			}
		}
		fb = models.WebTarget(a.homepage)
	}

	a.displayCtl.NavigateWeb(context.Background(), fb.URL)
	a.state.Mode = models.ModeWeb
	a.state.URL = fb.URL
	a.state.Media = nil
	a.state.Playlist = pos
	a.publishState()
}

func (a *Arbiter) onAdvanceTimer() {
	if a.state.Mode != models.ModePlaylist {
		return
	}
	if entry, ok := a.player.Advance(); ok {
		a.showEntry(entry)
		return
	}
	a.exhausted()
}

func (a *Arbiter) onExit(ctx context.Context, ev display.ExitEvent) {
	if ev.Completed {
		a.onAdvanceTimer()
		return
	}
	if !ev.Faulted {
		return
	}
	key := a.contentKey(ev.Content)
	reason := "renderer crashed repeatedly"
	if ev.Err != nil {
		reason = ev.Err.Error()
	}
	a.faults[key] = reason
	a.state.Faults = faultList(a.faults)
	telemetry.DisplayFaults.Inc()
	a.log.Error().Str("target", key).Str("reason", reason).Msg("content faulted")
	a.bus.Publish(events.FaultEvent{TargetKey: key, Reason: reason})
	a.applyAuthoritative(time.Now(), true)
}

// contentKey maps faulted screen content back to a target key. Media files
// fault their owning playlist so the whole playlist is held off, not just
// one file.
func (a *Arbiter) contentKey(content display.Content) string {
	if content.Kind == display.KindWeb {
		return models.WebTarget(content.URL).Key()
	}
	if pos := a.player.Position(); pos != nil {
		return models.PlaylistTarget(pos.PlaylistID, "").Key()
	}
	return "media:" + content.Path
}

func (a *Arbiter) onOverrideExpired(now time.Time) {
	if a.override.Live(now) {
		return
	}
	a.override = models.OverrideWindow{}
	a.log.Debug().Msg("override window lapsed, re-applying schedule")
	a.applyAuthoritative(now, false)
}

func (a *Arbiter) openOverride(now time.Time, cmd string) {
	a.override = models.OverrideWindow{Command: cmd, ExpiresAt: now.Add(a.overrideWindow)}
	if !a.overrideTmr.Stop() {
		select {
		case <-a.overrideTmr.C:
		default:
		}
	}
	a.overrideTmr.Reset(a.overrideWindow)
}

func (a *Arbiter) clearFault(key string) {
	if _, ok := a.faults[key]; !ok {
		return
	}
	delete(a.faults, key)
	a.state.Faults = faultList(a.faults)
}

func (a *Arbiter) stopAdvanceTimer() {
	if !a.advanceTimer.Stop() {
		select {
		case <-a.advanceTimer.C:
		default:
		}
	}
}

func (a *Arbiter) publishState() {
	a.bus.Publish(events.StateEvent{State: a.state.Clone()})
}

func faultList(faults map[string]string) []string {
	if len(faults) == 0 {
		return nil
	}
	out := make([]string, 0, len(faults))
	for key := range faults {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
