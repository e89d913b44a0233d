// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

// Package plugin defines the workbench module contract and the
// manager that drives module lifecycle and the tick loop. Modules are
// in-process producers: they declare the sources they own, publish
// frames through the registry, and may issue relay requests through
// the context.
package plugin

import (
	"time"

	"github.com/andrewmcdan/workbench/registry"
	"github.com/andrewmcdan/workbench/relay"
	"github.com/andrewmcdan/workbench/telemetry"
)

// Context carries the collaborators a module may use. The manager
// passes the same context to every module call.
type Context struct {
	Registry *registry.Registry
	Relay    *relay.Client
}

// Module is one pluggable workbench component. Implementations must
// be safe to call from the manager's goroutine; Tick runs on the
// manager's tick loop and should return quickly.
type Module interface {
	// ID is the stable module identifier (e.g. "demo.module").
	ID() string

	// DisplayName is the human-readable module name.
	DisplayName() string

	// DeclareSources lists the sources this module owns. The manager
	// registers them before Initialize and unregisters them on
	// Shutdown.
	DeclareSources() []telemetry.SourceMetadata

	// Initialize prepares the module. Called once, after its declared
	// sources are registered.
	Initialize(ctx *Context) error

	// Shutdown releases module resources. Called once, before its
	// declared sources are unregistered.
	Shutdown(ctx *Context)

	// Tick advances time-driven behavior by delta. Modules with no
	// periodic work may ignore it.
	Tick(ctx *Context, delta time.Duration)
}
