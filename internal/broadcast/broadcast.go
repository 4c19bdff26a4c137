/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package broadcast fans device events out to websocket clients. Every new
// client gets a full state snapshot first, then deltas as they happen, plus
// a periodic heartbeat. Slow clients lose their oldest queued messages, not
// the connection.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/friendsincode/grimnir_signage/internal/events"
	"github.com/friendsincode/grimnir_signage/internal/models"
	"github.com/friendsincode/grimnir_signage/internal/telemetry"
)

// Message is the wire envelope for every websocket frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type client struct {
	send chan []byte
}

// Broadcaster owns the websocket client set.
type Broadcaster struct {
	bus       *events.Bus
	stateFn   func() models.DeviceState
	heartbeat time.Duration
	buffer    int
	log       zerolog.Logger

	mu         sync.Mutex
	clients    map[*client]struct{}
	lastHealth *models.HealthSnapshot
}

// New builds a broadcaster. stateFn supplies the snapshot sent to every new
// client.
func New(bus *events.Bus, stateFn func() models.DeviceState, heartbeat time.Duration, buffer int, log zerolog.Logger) *Broadcaster {
	if heartbeat <= 0 {
		heartbeat = 5 * time.Second
	}
	if buffer <= 0 {
		buffer = 32
	}
	return &Broadcaster{
		bus:       bus,
		stateFn:   stateFn,
		heartbeat: heartbeat,
		buffer:    buffer,
		clients:   make(map[*client]struct{}),
		log:       log.With().Str("component", "broadcast").Logger(),
	}
}

// Run pumps bus events and heartbeats to the clients until the context is
// cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	stateCh := b.bus.Subscribe(events.EventState)
	healthCh := b.bus.Subscribe(events.EventHealth)
	schedCh := b.bus.Subscribe(events.EventScheduler)
	faultCh := b.bus.Subscribe(events.EventFault)
	defer b.bus.Unsubscribe(events.EventState, stateCh)
	defer b.bus.Unsubscribe(events.EventHealth, healthCh)
	defer b.bus.Unsubscribe(events.EventScheduler, schedCh)
	defer b.bus.Unsubscribe(events.EventFault, faultCh)

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-stateCh:
			if state, ok := ev.(events.StateEvent); ok {
				b.send(Message{Type: "state", Data: state.State})
			}
		case ev := <-healthCh:
			if health, ok := ev.(events.HealthEvent); ok {
				b.mu.Lock()
				snap := health.Health
				b.lastHealth = &snap
				b.mu.Unlock()
				b.send(Message{Type: "health", Data: health.Health})
			}
		case ev := <-schedCh:
			if sched, ok := ev.(events.SchedulerEvent); ok {
				b.send(Message{Type: "scheduler", Data: map[string]any{
					"active":      sched.Active,
					"playlist_id": sched.PlaylistID,
					"schedule_id": sched.ScheduleID,
				}})
			}
		case ev := <-faultCh:
			if fault, ok := ev.(events.FaultEvent); ok {
				b.send(Message{Type: "fault", Data: map[string]string{
					"target": fault.TargetKey,
					"reason": fault.Reason,
				}})
			}
		case <-ticker.C:
			b.send(Message{Type: "ping", Data: map[string]int64{"ts": time.Now().Unix()}})
		}
	}
}

// send enqueues a message for every client, dropping each client's oldest
// queued frame when its buffer is full.
func (b *Broadcaster) send(msg Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		b.log.Error().Err(err).Str("type", msg.Type).Msg("marshal failed")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for cl := range b.clients {
		cl.enqueue(raw)
	}
}

func (c *client) enqueue(raw []byte) {
	for {
		select {
		case c.send <- raw:
			return
		default:
			select {
			case <-c.send:
			default:
			}
		}
	}
}

// ClientCount reports the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// ServeClient registers a websocket connection, sends the snapshot and
// writes queued frames until the connection drops or the context ends.
func (b *Broadcaster) ServeClient(ctx context.Context, conn *websocket.Conn) {
	cl := &client{send: make(chan []byte, b.buffer)}

	snapshot := Message{Type: "state", Data: b.stateFn()}
	if raw, err := json.Marshal(snapshot); err == nil {
		cl.enqueue(raw)
	}
	b.mu.Lock()
	if health := b.lastHealth; health != nil {
		if raw, err := json.Marshal(Message{Type: "health", Data: *health}); err == nil {
			cl.enqueue(raw)
		}
	}
	b.clients[cl] = struct{}{}
	count := len(b.clients)
	b.mu.Unlock()
	telemetry.WebsocketClients.Set(float64(count))
	b.log.Debug().Int("clients", count).Msg("websocket client connected")

	defer func() {
		b.mu.Lock()
		delete(b.clients, cl)
		count := len(b.clients)
		b.mu.Unlock()
		telemetry.WebsocketClients.Set(float64(count))
		b.log.Debug().Int("clients", count).Msg("websocket client disconnected")
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		case raw := <-cl.send:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, raw)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
