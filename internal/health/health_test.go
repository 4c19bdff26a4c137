/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/
package health

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_signage/internal/events"
)

func TestSnapshotNeverFails(t *testing.T) {
	m := NewMonitor(time.Second, events.NewBus(), zerolog.Nop())
	snap := m.Snapshot(context.Background())
	if snap.Uptime <= 0 {
		t.Errorf("expected positive uptime, got %f", snap.Uptime)
	}
	if snap.MemPercent < 0 || snap.MemPercent > 100 {
		t.Errorf("memory percent out of range: %f", snap.MemPercent)
	}
}

func TestRunPublishesImmediately(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.EventHealth)
	m := NewMonitor(time.Hour, bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	select {
	case ev := <-sub:
		if _, ok := ev.(events.HealthEvent); !ok {
			t.Errorf("expected HealthEvent, got %T", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no health event published")
	}
	cancel()
	<-done
}
