// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

// Package stats accumulates per-channel numeric metrics (current,
// minimum, maximum) for one source by observing its registry updates.
// It is the local counterpart of the relay's resetMetric operation:
// consumers reset accumulated extremes here, and may additionally ask
// the relay to reset its own relay-side accumulation.
package stats

import (
	"sync"

	"github.com/andrewmcdan/workbench/registry"
	"github.com/andrewmcdan/workbench/telemetry"
)

// Metrics is the accumulated state for one channel. Min and Max are
// meaningful only when Seen is true.
type Metrics struct {
	ChannelID string
	Unit      string
	Current   float64
	Min       float64
	Max       float64
	Seen      bool
}

// Tracker follows one source. Construct with Track; release with
// Close before discarding, since the registry holds a reference to
// the tracker's callback until it is removed.
type Tracker struct {
	registry *registry.Registry
	sourceID string
	token    int

	mu      sync.Mutex
	metrics map[string]*Metrics
}

// Track attaches a tracker to sourceID. If the registry already holds
// a frame for the source, it is folded in immediately so the tracker
// does not start blind.
func Track(reg *registry.Registry, sourceID string) *Tracker {
	tracker := &Tracker{
		registry: reg,
		sourceID: sourceID,
		metrics:  make(map[string]*Metrics),
	}
	tracker.token = reg.AddObserver(sourceID, tracker.handleFrame)
	if frame, ok := reg.Latest(sourceID); ok {
		tracker.handleFrame(frame)
	}
	return tracker
}

// Close detaches the tracker from the registry. Idempotent.
func (t *Tracker) Close() {
	t.registry.RemoveObserver(t.sourceID, t.token)
}

// Reset clears the accumulated extremes for one channel. The current
// value is kept and becomes the new minimum and maximum on the next
// frame. Unknown channels are a no-op.
func (t *Tracker) Reset(channelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if metrics, ok := t.metrics[channelID]; ok {
		metrics.Seen = false
		metrics.Min = 0
		metrics.Max = 0
	}
}

// Channel returns a snapshot of one channel's metrics.
func (t *Tracker) Channel(channelID string) (Metrics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	metrics, ok := t.metrics[channelID]
	if !ok {
		return Metrics{}, false
	}
	return *metrics, true
}

// Snapshot returns a copy of all channel metrics. Order is
// unspecified.
func (t *Tracker) Snapshot() []Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := make([]Metrics, 0, len(t.metrics))
	for _, metrics := range t.metrics {
		snapshot = append(snapshot, *metrics)
	}
	return snapshot
}

// handleFrame folds a frame's numeric points into the accumulated
// state. Non-numeric payloads are ignored.
func (t *Tracker) handleFrame(frame telemetry.DataFrame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, point := range frame.Points {
		sample, ok := point.Payload.(telemetry.NumericSample)
		if !ok {
			continue
		}
		metrics, ok := t.metrics[point.ChannelID]
		if !ok {
			metrics = &Metrics{ChannelID: point.ChannelID}
			t.metrics[point.ChannelID] = metrics
		}
		metrics.Current = sample.Value
		metrics.Unit = sample.Unit
		if !metrics.Seen {
			metrics.Min = sample.Value
			metrics.Max = sample.Value
			metrics.Seen = true
			continue
		}
		if sample.Value < metrics.Min {
			metrics.Min = sample.Value
		}
		if sample.Value > metrics.Max {
			metrics.Max = sample.Value
		}
	}
}
