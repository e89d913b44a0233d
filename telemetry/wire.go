// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// WireSource is the JSON shape of source metadata on the relay
// protocol. Unit is a pointer so "no unit" and "empty unit" both
// round-trip as absent.
type WireSource struct {
	ID          string  `json:"id"`
	Name        string  `json:"name,omitempty"`
	Kind        string  `json:"kind,omitempty"`
	Description string  `json:"description,omitempty"`
	Unit        *string `json:"unit,omitempty"`
}

// Metadata converts a wire source to domain metadata. Name defaults to
// the ID when the relay omits it.
func (s WireSource) Metadata() SourceMetadata {
	metadata := SourceMetadata{
		ID:          s.ID,
		Name:        s.Name,
		Kind:        ParseKind(s.Kind),
		Description: s.Description,
	}
	if metadata.Name == "" {
		metadata.Name = s.ID
	}
	if s.Unit != nil {
		metadata.Unit = *s.Unit
	}
	return metadata
}

// SourceToWire converts domain metadata to its wire shape.
func SourceToWire(metadata SourceMetadata) WireSource {
	source := WireSource{
		ID:          metadata.ID,
		Name:        metadata.Name,
		Kind:        string(metadata.Kind),
		Description: metadata.Description,
	}
	if metadata.Unit != "" {
		unit := metadata.Unit
		source.Unit = &unit
	}
	return source
}

// WireNumeric, WireWaveform, WireSerial, WireLogic, and WireGpio are
// the per-variant payload objects. Exactly one appears per wire point.
type WireNumeric struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

type WireWaveform struct {
	Samples    []float64 `json:"samples"`
	SampleRate float64   `json:"sampleRate,omitempty"`
}

type WireSerial struct {
	Text string `json:"text"`
}

type WireLogic struct {
	Channels []bool `json:"channels"`
	PeriodNs int64  `json:"periodNs,omitempty"`
}

type WireGpio struct {
	Pins []bool `json:"pins"`
}

// WirePoint is one channel entry in a wire frame. A point with none of
// the variant fields set decodes to an empty (nil) payload.
type WirePoint struct {
	ChannelID string        `json:"channelId"`
	Numeric   *WireNumeric  `json:"numeric,omitempty"`
	Waveform  *WireWaveform `json:"waveform,omitempty"`
	Serial    *WireSerial   `json:"serial,omitempty"`
	Logic     *WireLogic    `json:"logic,omitempty"`
	Gpio      *WireGpio     `json:"gpio,omitempty"`
}

// DataPoint converts a wire point to a domain point. Sample timestamps
// take the enclosing frame's timestamp; the wire carries per-frame
// time only.
func (p WirePoint) DataPoint(at time.Time) DataPoint {
	point := DataPoint{ChannelID: p.ChannelID}
	switch {
	case p.Numeric != nil:
		point.Payload = NumericSample{
			Value:     p.Numeric.Value,
			Unit:      p.Numeric.Unit,
			Timestamp: at,
		}
	case p.Waveform != nil:
		point.Payload = WaveformSample{
			Samples:      p.Waveform.Samples,
			SampleRateHz: p.Waveform.SampleRate,
			Timestamp:    at,
		}
	case p.Serial != nil:
		point.Payload = SerialSample{
			Text:      p.Serial.Text,
			Timestamp: at,
		}
	case p.Logic != nil:
		point.Payload = LogicSample{
			Channels:     p.Logic.Channels,
			SamplePeriod: time.Duration(p.Logic.PeriodNs) * time.Nanosecond,
			Timestamp:    at,
		}
	case p.Gpio != nil:
		point.Payload = GpioState{
			Pins:      p.Gpio.Pins,
			Timestamp: at,
		}
	}
	return point
}

// PointToWire converts a domain point to its wire shape.
func PointToWire(point DataPoint) WirePoint {
	wire := WirePoint{ChannelID: point.ChannelID}
	switch sample := point.Payload.(type) {
	case NumericSample:
		wire.Numeric = &WireNumeric{Value: sample.Value, Unit: sample.Unit}
	case WaveformSample:
		wire.Waveform = &WireWaveform{Samples: sample.Samples, SampleRate: sample.SampleRateHz}
	case SerialSample:
		wire.Serial = &WireSerial{Text: sample.Text}
	case LogicSample:
		wire.Logic = &WireLogic{Channels: sample.Channels, PeriodNs: sample.SamplePeriod.Nanoseconds()}
	case GpioState:
		wire.Gpio = &WireGpio{Pins: sample.Pins}
	}
	return wire
}

// WireFrame is the JSON shape of a data frame. Timestamp is kept raw
// because relays send it as either a number or a numeric string.
type WireFrame struct {
	SourceID   string          `json:"sourceId"`
	SourceName string          `json:"sourceName,omitempty"`
	Timestamp  json.RawMessage `json:"timestamp,omitempty"`
	Points     []WirePoint     `json:"points"`
}

// FrameToWire converts a domain frame to its wire shape.
func FrameToWire(frame DataFrame) WireFrame {
	wire := WireFrame{
		SourceID:   frame.SourceID,
		SourceName: frame.SourceName,
		Timestamp:  EpochSeconds(frame.Timestamp),
	}
	for _, point := range frame.Points {
		wire.Points = append(wire.Points, PointToWire(point))
	}
	return wire
}

// FrameNotification is the params object of a workbench.dataFrame
// notification: an optional source description plus the frame itself.
type FrameNotification struct {
	Source *WireSource `json:"source,omitempty"`
	Frame  WireFrame   `json:"frame"`
}

// Resolve converts the notification into domain values. The returned
// metadata is nil when the notification carries no usable source
// block. ok is false when no source ID can be determined for the frame
// (neither frame.sourceId nor source.id), in which case the frame must
// be dropped.
//
// Defaulting matches the relay contract: the frame's source ID falls
// back to the metadata ID, its name falls back to the metadata name or
// the source ID, and its timestamp falls back to the supplied time.
func (n FrameNotification) Resolve(fallback time.Time) (metadata *SourceMetadata, frame DataFrame, ok bool) {
	if n.Source != nil && n.Source.ID != "" {
		resolved := n.Source.Metadata()
		metadata = &resolved
	}

	sourceID := n.Frame.SourceID
	if sourceID == "" && metadata != nil {
		sourceID = metadata.ID
	}
	if sourceID == "" {
		return metadata, DataFrame{}, false
	}

	sourceName := n.Frame.SourceName
	if sourceName == "" && metadata != nil {
		sourceName = metadata.Name
	}
	if sourceName == "" {
		sourceName = sourceID
	}

	frame = DataFrame{
		SourceID:   sourceID,
		SourceName: sourceName,
		Timestamp:  ParseTimestamp(n.Frame.Timestamp, fallback),
	}
	for _, point := range n.Frame.Points {
		frame.Points = append(frame.Points, point.DataPoint(frame.Timestamp))
	}
	return metadata, frame, true
}

// ParseTimestamp interprets a raw wire timestamp as seconds since the
// Unix epoch, carried as a JSON number or a numeric string. Absent,
// null, or unparseable values yield the fallback time.
func ParseTimestamp(raw json.RawMessage, fallback time.Time) time.Time {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return fallback
	}
	// Unmarshaling null into a float64 leaves it at zero without an
	// error, which would alias null to the epoch.
	if bytes.Equal(trimmed, []byte("null")) {
		return fallback
	}
	var seconds float64
	if err := json.Unmarshal(raw, &seconds); err == nil {
		return epochToTime(seconds)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if seconds, err := strconv.ParseFloat(text, 64); err == nil {
			return epochToTime(seconds)
		}
	}
	return fallback
}

// EpochSeconds encodes a time as a JSON number of epoch seconds with
// sub-second precision.
func EpochSeconds(t time.Time) json.RawMessage {
	seconds := float64(t.UnixNano()) / float64(time.Second)
	return json.RawMessage(strconv.FormatFloat(seconds, 'f', -1, 64))
}

func epochToTime(seconds float64) time.Time {
	whole, fraction := math.Modf(seconds)
	return time.Unix(int64(whole), int64(fraction*float64(time.Second)))
}
