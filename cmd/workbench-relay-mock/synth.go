// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/andrewmcdan/workbench/telemetry"
)

// synthSource generates frames for one manifest source.
type synthSource struct {
	spec     ManifestSource
	channels []*synthChannel
}

func newSynthSource(spec ManifestSource, start time.Time) *synthSource {
	source := &synthSource{spec: spec}
	for _, channelSpec := range spec.Channels {
		source.channels = append(source.channels, &synthChannel{
			spec:  channelSpec,
			epoch: start,
		})
	}
	return source
}

// WireSource returns the metadata block sent in workbench.metadata
// notifications and alongside frames.
func (s *synthSource) WireSource() telemetry.WireSource {
	wire := telemetry.WireSource{
		ID:          s.spec.ID,
		Name:        s.spec.Name,
		Kind:        s.spec.Kind,
		Description: s.spec.Description,
	}
	if s.spec.Unit != "" {
		unit := s.spec.Unit
		wire.Unit = &unit
	}
	return wire
}

// Frame produces the next frame for this source at the given instant.
// Generators work in domain terms; the conversion to the wire shape is
// the same one real frames take in the other direction.
func (s *synthSource) Frame(now time.Time) telemetry.WireFrame {
	frame := telemetry.DataFrame{
		SourceID:   s.spec.ID,
		SourceName: s.spec.Name,
		Timestamp:  now,
	}
	for _, channel := range s.channels {
		frame.Points = append(frame.Points, channel.point(now))
	}
	return telemetry.FrameToWire(frame)
}

// Reset rewinds the named channel's generator, or every channel when
// channelID is empty.
func (s *synthSource) Reset(channelID string, now time.Time) bool {
	reset := false
	for _, channel := range s.channels {
		if channelID == "" || channel.spec.ID == channelID {
			channel.reset(now)
			reset = true
		}
	}
	return reset
}

// synthChannel is one generated channel. The epoch anchors the
// waveform's phase; resetMetric moves it to the reset instant so the
// generator visibly restarts from its initial value.
type synthChannel struct {
	spec ManifestChannel

	mu    sync.Mutex
	epoch time.Time
	seq   uint64
}

func (c *synthChannel) reset(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch = now
	c.seq = 0
}

func (c *synthChannel) point(now time.Time) telemetry.DataPoint {
	c.mu.Lock()
	elapsed := now.Sub(c.epoch).Seconds()
	seq := c.seq
	c.seq++
	c.mu.Unlock()

	point := telemetry.DataPoint{ChannelID: c.spec.ID}
	switch c.spec.Generator {
	case "sine":
		point.Payload = telemetry.NumericSample{
			Value:     c.spec.Offset + c.spec.Amplitude*math.Sin(2*math.Pi*c.spec.FrequencyHz*elapsed),
			Unit:      c.spec.Unit,
			Timestamp: now,
		}
	case "ramp":
		phase := c.spec.FrequencyHz * elapsed
		point.Payload = telemetry.NumericSample{
			Value:     c.spec.Offset + c.spec.Amplitude*(phase-math.Floor(phase)),
			Unit:      c.spec.Unit,
			Timestamp: now,
		}
	case "gpio":
		pins := make([]bool, c.spec.Pins)
		for i := range pins {
			// Pin i toggles at half the rate of pin i-1, giving a
			// binary-counter pattern across the bank.
			period := 1.0 / (c.spec.FrequencyHz / float64(int(1)<<i))
			pins[i] = math.Mod(elapsed, period) >= period/2
		}
		point.Payload = telemetry.GpioState{Pins: pins, Timestamp: now}
	case "serial":
		point.Payload = telemetry.SerialSample{
			Text:      fmt.Sprintf("%s %d\r\n", c.spec.Text, seq),
			Timestamp: now,
		}
	}
	return point
}
