/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_signage/internal/events"
	"github.com/friendsincode/grimnir_signage/internal/models"
	"github.com/friendsincode/grimnir_signage/internal/store"
	"github.com/friendsincode/grimnir_signage/internal/telemetry"
)

// Status is the scheduler's externally visible resolution.
type Status struct {
	Enabled    bool                   `json:"enabled"`
	Target     models.Target          `json:"target"`
	ScheduleID string                 `json:"schedule_id,omitempty"`
	ResolvedAt time.Time              `json:"resolved_at"`
	Fallback   *models.FallbackConfig `json:"fallback,omitempty"`
}

// Engine ticks the clock against the schedule store and emits the desired
// target whenever it changes. Emission is edge-triggered: a tick that
// resolves to the same target as the last one is silent, so manual overrides
// are not steamrolled every interval.
type Engine struct {
	store    *store.Store
	homepage string
	interval time.Duration
	emit     func(models.Target)
	bus      *events.Bus
	log      zerolog.Logger

	refresh chan struct{}

	mu      sync.RWMutex
	current models.Target
	status  Status
	emitted bool
}

// NewEngine builds the scheduling engine. emit is called from the engine
// goroutine each time the resolved target changes.
func NewEngine(st *store.Store, homepage string, interval time.Duration, emit func(models.Target), bus *events.Bus, log zerolog.Logger) *Engine {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Engine{
		store:    st,
		homepage: homepage,
		interval: interval,
		emit:     emit,
		bus:      bus,
		log:      log.With().Str("component", "scheduler").Logger(),
		refresh:  make(chan struct{}, 1),
	}
}

// RequestRefresh forces a re-evaluation on the next loop iteration instead
// of waiting out the tick. Store mutations call this.
func (e *Engine) RequestRefresh() {
	select {
	case e.refresh <- struct{}{}:
	default:
	}
}

// Current returns the most recently resolved target. The arbiter re-reads
// this at application time so a stale queued emission cannot win.
func (e *Engine) Current() models.Target {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// Status reports the engine's resolution for the API.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Run evaluates immediately, then on every tick and every refresh request,
// until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.evaluate(time.Now())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.evaluate(time.Now())
		case <-e.refresh:
			e.evaluate(time.Now())
		}
	}
}

func (e *Engine) evaluate(now time.Time) {
	telemetry.SchedulerTicks.Inc()
	fallback := e.store.Fallback()
	target := Resolve(e.store.Schedules(), fallback, e.homepage, now)

	e.mu.Lock()
	changed := !e.emitted || target != e.current
	e.current = target
	e.emitted = true
	e.status = Status{
		Enabled:    true,
		Target:     target,
		ScheduleID: target.ScheduleID,
		ResolvedAt: now,
		Fallback:   fallback,
	}
	e.mu.Unlock()

	if !changed {
		return
	}
	e.log.Info().
		Str("mode", string(target.Mode)).
		Str("playlist_id", target.PlaylistID).
		Str("schedule_id", target.ScheduleID).
		Str("url", target.URL).
		Msg("schedule target changed")
	telemetry.SchedulerTransitions.Inc()
	if e.emit != nil {
		e.emit(target)
	}
	e.bus.Publish(events.SchedulerEvent{
		Active:     target.ScheduleID != "",
		PlaylistID: target.PlaylistID,
		ScheduleID: target.ScheduleID,
	})
}
