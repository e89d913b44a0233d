// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

// Package demo provides a synthetic voltage source for exercising the
// workbench without hardware: a slow sine wave centered on 3.3 V,
// published on every tick.
package demo

import (
	"math"
	"time"

	"github.com/andrewmcdan/workbench/lib/clock"
	"github.com/andrewmcdan/workbench/plugin"
	"github.com/andrewmcdan/workbench/telemetry"
)

const (
	// SourceID and ChannelID identify the demo feed in the registry.
	SourceID  = "demo.metrics"
	ChannelID = "demo.voltage"

	sourceName  = "Demo Metrics"
	amplitude   = 0.5 // volts, peak deviation from center
	center      = 3.3 // volts
	frequencyHz = 1.0
)

// Module publishes the demo voltage. Construct with New and register
// with a plugin.Manager.
type Module struct {
	clock   clock.Clock
	elapsed time.Duration
}

// New creates the demo module. clk may be nil (real clock); it is used
// only for sample timestamps, since the tick loop supplies elapsed
// time.
func New(clk clock.Clock) *Module {
	if clk == nil {
		clk = clock.Real()
	}
	return &Module{clock: clk}
}

func (m *Module) ID() string          { return "demo.module" }
func (m *Module) DisplayName() string { return "Demo Module" }

func (m *Module) DeclareSources() []telemetry.SourceMetadata {
	return []telemetry.SourceMetadata{{
		ID:          SourceID,
		Name:        sourceName,
		Kind:        telemetry.KindNumeric,
		Description: "Mock voltage readings for workbench testing.",
		Unit:        "V",
	}}
}

// Initialize publishes the starting reading so consumers see data
// immediately rather than waiting one tick.
func (m *Module) Initialize(ctx *plugin.Context) error {
	m.elapsed = 0
	m.publish(ctx)
	return nil
}

func (m *Module) Shutdown(ctx *plugin.Context) {}

// Tick advances the waveform phase and publishes the next reading.
func (m *Module) Tick(ctx *plugin.Context, delta time.Duration) {
	m.elapsed += delta
	m.publish(ctx)
}

// Voltage returns the current waveform value without publishing.
func (m *Module) Voltage() float64 {
	angle := 2 * math.Pi * frequencyHz * m.elapsed.Seconds()
	return center + amplitude*math.Sin(angle)
}

func (m *Module) publish(ctx *plugin.Context) {
	now := m.clock.Now()
	ctx.Registry.Update(telemetry.DataFrame{
		SourceID:   SourceID,
		SourceName: sourceName,
		Timestamp:  now,
		Points: []telemetry.DataPoint{{
			ChannelID: ChannelID,
			Payload: telemetry.NumericSample{
				Value:     m.Voltage(),
				Unit:      "V",
				Timestamp: now,
			},
		}},
	})
}
