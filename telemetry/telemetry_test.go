// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"testing"
	"time"
)

func TestParseKind(t *testing.T) {
	cases := []struct {
		text string
		want SourceKind
	}{
		{"numeric", KindNumeric},
		{"NUMERIC", KindNumeric},
		{"waveform", KindWaveform},
		{"serial", KindSerial},
		{"logic", KindLogic},
		{"gpio", KindGpio},
		{"gpiostate", KindGpio},
		{"GpioState", KindGpio},
		{"", KindCustom},
		{"thermal", KindCustom},
	}
	for _, tc := range cases {
		if got := ParseKind(tc.text); got != tc.want {
			t.Errorf("ParseKind(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	frame := DataFrame{
		SourceID:   "scope",
		SourceName: "Scope",
		Timestamp:  time.Unix(1700000000, 0),
		Points: []DataPoint{
			{ChannelID: "wave", Payload: WaveformSample{Samples: []float64{1, 2, 3}, SampleRateHz: 1000}},
			{ChannelID: "logic", Payload: LogicSample{Channels: []bool{true, false}, SamplePeriod: time.Microsecond}},
			{ChannelID: "pins", Payload: GpioState{Pins: []bool{true, true}}},
			{ChannelID: "v", Payload: NumericSample{Value: 3.3, Unit: "V"}},
			{ChannelID: "empty"},
		},
	}

	clone := frame.Clone()

	clone.Points[0].Payload.(WaveformSample).Samples[0] = 99
	clone.Points[1].Payload.(LogicSample).Channels[0] = false
	clone.Points[2].Payload.(GpioState).Pins[0] = false
	clone.Points[3] = DataPoint{ChannelID: "other"}

	if frame.Points[0].Payload.(WaveformSample).Samples[0] != 1 {
		t.Error("waveform samples aliased between clone and original")
	}
	if !frame.Points[1].Payload.(LogicSample).Channels[0] {
		t.Error("logic channels aliased between clone and original")
	}
	if !frame.Points[2].Payload.(GpioState).Pins[0] {
		t.Error("gpio pins aliased between clone and original")
	}
	if frame.Points[3].ChannelID != "v" {
		t.Error("point slice aliased between clone and original")
	}
	if frame.Points[4].Payload != nil {
		t.Error("empty payload must stay nil")
	}
}

func TestCloneOfNilPoints(t *testing.T) {
	frame := DataFrame{SourceID: "s"}
	clone := frame.Clone()
	if clone.Points != nil {
		t.Error("clone of frame with nil points grew a slice")
	}
	if clone.SourceID != "s" {
		t.Error("clone lost scalar fields")
	}
}
