// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// Manifest describes the synthetic sources the mock serves. The file
// format is JSONC: JSON with comments and trailing commas, so
// manifests can be annotated by hand.
type Manifest struct {
	Sources []ManifestSource `json:"sources"`
}

// ManifestSource is one synthetic source and its channels.
type ManifestSource struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Kind        string            `json:"kind"`
	Description string            `json:"description"`
	Unit        string            `json:"unit"`
	Channels    []ManifestChannel `json:"channels"`
}

// ManifestChannel is one generated channel. Generator selects the
// waveform; the remaining fields apply per generator:
//
//   - "sine":   value = offset + amplitude * sin(2π·frequencyHz·t)
//   - "ramp":   value cycles offset → offset+amplitude at frequencyHz
//   - "gpio":   pins toggling pin i at frequencyHz / (i+1)
//   - "serial": text plus a sequence counter, one line per frame
type ManifestChannel struct {
	ID          string  `json:"id"`
	Generator   string  `json:"generator"`
	Amplitude   float64 `json:"amplitude"`
	Offset      float64 `json:"offset"`
	FrequencyHz float64 `json:"frequencyHz"`
	Unit        string  `json:"unit"`
	Pins        int     `json:"pins"`
	Text        string  `json:"text"`
}

// LoadManifest reads and validates a JSONC manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(jsonc.ToJSON(data), &manifest); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &manifest, nil
}

// Validate checks source and channel IDs and generator names.
func (m *Manifest) Validate() error {
	if len(m.Sources) == 0 {
		return fmt.Errorf("manifest declares no sources")
	}
	seen := make(map[string]bool)
	for i, source := range m.Sources {
		if source.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[source.ID] {
			return fmt.Errorf("duplicate source id %q", source.ID)
		}
		seen[source.ID] = true
		for j, channel := range source.Channels {
			if channel.ID == "" {
				return fmt.Errorf("source %q channels[%d]: id is required", source.ID, j)
			}
			switch channel.Generator {
			case "sine", "ramp", "gpio", "serial":
			default:
				return fmt.Errorf("source %q channel %q: unknown generator %q",
					source.ID, channel.ID, channel.Generator)
			}
		}
	}
	return nil
}

// DefaultManifest returns the built-in demonstration sources used
// when no --manifest is given: a 12 V supply, an 8-pin GPIO bank, and
// a serial console feed.
func DefaultManifest() *Manifest {
	return &Manifest{
		Sources: []ManifestSource{
			{
				ID:          "supply.12v",
				Name:        "12V Supply",
				Kind:        "numeric",
				Description: "Simulated bench supply rail.",
				Unit:        "V",
				Channels: []ManifestChannel{
					{ID: "12v", Generator: "sine", Amplitude: 0.5, Offset: 12.0, FrequencyHz: 1.0, Unit: "V"},
				},
			},
			{
				ID:          "gpio.bank0",
				Name:        "GPIO Bank 0",
				Kind:        "gpio",
				Description: "Simulated GPIO pin bank.",
				Channels: []ManifestChannel{
					{ID: "pins", Generator: "gpio", FrequencyHz: 2.0, Pins: 8},
				},
			},
			{
				ID:          "console.uart0",
				Name:        "UART Console",
				Kind:        "serial",
				Description: "Simulated serial console output.",
				Channels: []ManifestChannel{
					{ID: "tx", Generator: "serial", Text: "heartbeat"},
				},
			},
		},
	}
}
