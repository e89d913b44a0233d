// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"slices"
	"strings"
	"time"
)

// SourceKind classifies what a source produces. The set is closed: new
// kinds are not added at runtime, and anything a relay sends outside
// this set maps to KindCustom.
type SourceKind string

const (
	KindNumeric  SourceKind = "numeric"
	KindWaveform SourceKind = "waveform"
	KindSerial   SourceKind = "serial"
	KindLogic    SourceKind = "logic"
	KindGpio     SourceKind = "gpio"
	KindCustom   SourceKind = "custom"
)

// ParseKind maps a wire kind string to a SourceKind. Matching is
// case-insensitive and "gpiostate" is accepted as an alias for "gpio".
// Unknown values map to KindCustom rather than erroring.
func ParseKind(text string) SourceKind {
	switch strings.ToLower(text) {
	case "numeric":
		return KindNumeric
	case "waveform":
		return KindWaveform
	case "serial":
		return KindSerial
	case "logic":
		return KindLogic
	case "gpio", "gpiostate":
		return KindGpio
	default:
		return KindCustom
	}
}

// SourceMetadata describes one telemetry source. ID is the stable key;
// exactly one live metadata record exists per ID at any time. Unit is
// empty when the source has no meaningful unit.
type SourceMetadata struct {
	ID          string
	Name        string
	Kind        SourceKind
	Description string
	Unit        string
}

// Payload is the closed sum type of sample variants. Exactly one
// variant is active per DataPoint; a nil Payload is the empty variant.
// The marker method keeps the set closed to this package.
type Payload interface {
	payloadVariant()
}

// NumericSample is a single scalar reading.
type NumericSample struct {
	Value     float64
	Unit      string
	Timestamp time.Time
}

// WaveformSample is an ordered run of samples captured at a fixed rate.
type WaveformSample struct {
	Samples      []float64
	SampleRateHz float64
	Timestamp    time.Time
}

// SerialSample is a chunk of text received from a serial stream.
type SerialSample struct {
	Text      string
	Timestamp time.Time
}

// LogicSample is one capture across an ordered set of logic channels.
type LogicSample struct {
	Channels     []bool
	SamplePeriod time.Duration
	Timestamp    time.Time
}

// GpioState is a snapshot of an ordered set of GPIO pin levels.
type GpioState struct {
	Pins      []bool
	Timestamp time.Time
}

func (NumericSample) payloadVariant()  {}
func (WaveformSample) payloadVariant() {}
func (SerialSample) payloadVariant()   {}
func (LogicSample) payloadVariant()    {}
func (GpioState) payloadVariant()      {}

// DataPoint is one channel reading within a frame. ChannelID is unique
// within its frame but not globally.
type DataPoint struct {
	ChannelID string
	Payload   Payload
}

// DataFrame is an atomic snapshot of zero or more channels for one
// source at one instant. Frames replace each other wholesale; they are
// never merged.
type DataFrame struct {
	SourceID   string
	SourceName string
	Points     []DataPoint
	Timestamp  time.Time
}

// Clone returns a deep copy of the frame: the point slice and every
// sample slice inside the payloads are duplicated. The registry hands
// out clones so no consumer can alias registry-held state.
func (f DataFrame) Clone() DataFrame {
	clone := f
	if f.Points == nil {
		return clone
	}
	clone.Points = make([]DataPoint, len(f.Points))
	for i, point := range f.Points {
		clone.Points[i] = DataPoint{
			ChannelID: point.ChannelID,
			Payload:   clonePayload(point.Payload),
		}
	}
	return clone
}

func clonePayload(payload Payload) Payload {
	switch sample := payload.(type) {
	case WaveformSample:
		sample.Samples = slices.Clone(sample.Samples)
		return sample
	case LogicSample:
		sample.Channels = slices.Clone(sample.Channels)
		return sample
	case GpioState:
		sample.Pins = slices.Clone(sample.Pins)
		return sample
	default:
		// NumericSample, SerialSample, and nil carry no slices.
		return payload
	}
}
