/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package events implements the in-process pubsub connecting the command
// arbiter to the broadcaster and other observers. The event set is closed:
// each variant carries only the fields it legitimately changes.
package events

import (
	"sync"

	"github.com/friendsincode/grimnir_signage/internal/models"
)

// EventType enumerates event categories.
type EventType string

const (
	EventState     EventType = "state"
	EventHealth    EventType = "health"
	EventScheduler EventType = "scheduler"
	EventFault     EventType = "fault"
)

// Event is implemented by the closed set of broadcast variants.
type Event interface {
	Kind() EventType
}

// StateEvent carries a full device state snapshot after an accepted change.
type StateEvent struct {
	State models.DeviceState
}

func (StateEvent) Kind() EventType { return EventState }

// HealthEvent carries the periodic health metrics heartbeat.
type HealthEvent struct {
	Health models.HealthSnapshot
}

func (HealthEvent) Kind() EventType { return EventHealth }

// SchedulerEvent reports the scheduler's current resolution.
type SchedulerEvent struct {
	Active     bool
	PlaylistID string
	ScheduleID string
}

func (SchedulerEvent) Kind() EventType { return EventScheduler }

// FaultEvent reports a target marked faulted after repeated process crashes.
type FaultEvent struct {
	TargetKey string
	Reason    string
}

func (FaultEvent) Kind() EventType { return EventFault }

// Subscriber receives events.
type Subscriber chan Event

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for an event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends the event to subscribers of its type. Slow subscribers are
// skipped rather than blocking the publisher. The sends happen under the read
// lock: Unsubscribe closes channels under the write lock, so a publish can
// never hit a channel mid-close.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[event.Kind()] {
		select {
		case sub <- event:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[eventType] = subs
	close(sub)
}
