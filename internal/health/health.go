/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package health samples device metrics for the health heartbeat.
package health

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"

	"github.com/friendsincode/grimnir_signage/internal/events"
	"github.com/friendsincode/grimnir_signage/internal/models"
)

const thermalZonePath = "/sys/class/thermal/thermal_zone0/temp"

// Monitor samples CPU, memory, temperature and uptime on an interval and
// publishes each sample on the event bus.
type Monitor struct {
	interval time.Duration
	started  time.Time
	bus      *events.Bus
	log      zerolog.Logger
}

// NewMonitor builds a health monitor.
func NewMonitor(interval time.Duration, bus *events.Bus, log zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		interval: interval,
		started:  time.Now(),
		bus:      bus,
		log:      log.With().Str("component", "health").Logger(),
	}
}

// Snapshot takes one sample. Metrics that cannot be read are reported as
// zero rather than failing the whole sample.
func (m *Monitor) Snapshot(ctx context.Context) models.HealthSnapshot {
	snap := models.HealthSnapshot{Uptime: time.Since(m.started).Seconds()}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	} else if err != nil {
		m.log.Debug().Err(err).Msg("cpu sample failed")
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemPercent = vm.UsedPercent
	} else {
		m.log.Debug().Err(err).Msg("memory sample failed")
	}
	snap.Temperature = m.temperature(ctx)

	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		snap.Uptime = float64(uptime)
	}
	return snap
}

// temperature prefers the sensor inventory and falls back to reading the
// first thermal zone directly, which is what Raspberry Pi images expose.
func (m *Monitor) temperature(ctx context.Context) float64 {
	if temps, err := sensors.TemperaturesWithContext(ctx); err == nil {
		for _, t := range temps {
			if t.Temperature > 0 {
				return t.Temperature
			}
		}
	}
	raw, err := os.ReadFile(thermalZonePath)
	if err != nil {
		return 0
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0
	}
	return milli / 1000
}

// Run publishes a snapshot immediately and then on every interval until the
// context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.bus.Publish(events.HealthEvent{Health: m.Snapshot(ctx)})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.bus.Publish(events.HealthEvent{Health: m.Snapshot(ctx)})
		}
	}
}
