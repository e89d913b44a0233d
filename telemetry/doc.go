// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry defines the data model shared by every workbench
// component: source metadata, sample payloads, data points, and frames.
//
// The package has two layers:
//
//   - Domain types (SourceMetadata, DataFrame, the Payload variants)
//     used by the registry, the relay client, and plugins. Payloads
//     form a closed sum type: exactly one variant per point, or nil
//     for an empty point.
//   - Wire types (WireSource, WireFrame, FrameNotification) matching
//     the relay's JSON protocol, with conversions in both directions.
//     The relay client decodes wire frames into domain frames; the
//     mock relay encodes domain frames back out.
//
// Wire timestamps are seconds since the Unix epoch, carried as a JSON
// number or a numeric string. ParseTimestamp falls back to a
// caller-supplied time when the value is absent or unparseable.
package telemetry
