// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/andrewmcdan/workbench/lib/clock"
)

// Manager owns the registered modules: it registers their declared
// sources, runs Initialize/Shutdown in order, and drives the tick
// loop. Not safe for concurrent use; the daemon wires it up on one
// goroutine and then runs the tick loop on that same goroutine.
type Manager struct {
	context *Context
	clock   clock.Clock
	logger  *slog.Logger

	modules []Module

	// moduleSources records which source IDs each module registered,
	// so Shutdown can unregister exactly those.
	moduleSources map[string][]string
	initialized   bool
}

// NewManager creates a manager that passes moduleContext to every
// module call. clk and logger may be nil (real clock, default logger).
func NewManager(moduleContext *Context, clk clock.Clock, logger *slog.Logger) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		context:       moduleContext,
		clock:         clk,
		logger:        logger,
		moduleSources: make(map[string][]string),
	}
}

// Register adds a module. Panics if called after Initialize, matching
// the register-then-start wiring order.
func (m *Manager) Register(module Module) {
	if m.initialized {
		panic("plugin: Register called after Initialize")
	}
	m.modules = append(m.modules, module)
}

// Modules returns the registered modules in registration order.
func (m *Manager) Modules() []Module {
	return m.modules
}

// Initialize registers every module's declared sources and then
// initializes the modules in registration order. A module that fails
// to initialize is skipped (its sources are unregistered again) and
// the error is logged; the remaining modules still come up. Calling
// Initialize twice is a no-op.
func (m *Manager) Initialize() {
	if m.initialized {
		return
	}
	m.initialized = true

	for _, module := range m.modules {
		var sourceIDs []string
		for _, metadata := range module.DeclareSources() {
			if metadata.ID == "" {
				continue
			}
			m.context.Registry.RegisterSource(metadata)
			sourceIDs = append(sourceIDs, metadata.ID)
		}
		m.moduleSources[module.ID()] = sourceIDs

		if err := module.Initialize(m.context); err != nil {
			m.logger.Error("module failed to initialize",
				"module", module.ID(),
				"error", err,
			)
			for _, sourceID := range sourceIDs {
				m.context.Registry.UnregisterSource(sourceID)
			}
			delete(m.moduleSources, module.ID())
			continue
		}
		m.logger.Info("module initialized",
			"module", module.ID(),
			"name", module.DisplayName(),
			"sources", len(sourceIDs),
		)
	}
}

// Shutdown stops modules in reverse registration order and
// unregisters their sources. Modules that never initialized (or
// failed to) are skipped. Idempotent.
func (m *Manager) Shutdown() {
	if !m.initialized {
		return
	}
	m.initialized = false

	for i := len(m.modules) - 1; i >= 0; i-- {
		module := m.modules[i]
		sourceIDs, ok := m.moduleSources[module.ID()]
		if !ok {
			continue
		}
		module.Shutdown(m.context)
		for _, sourceID := range sourceIDs {
			m.context.Registry.UnregisterSource(sourceID)
		}
		delete(m.moduleSources, module.ID())
	}
}

// Run drives the tick loop at the given interval until ctx is
// cancelled. Each module receives the measured delta since the
// previous tick, not the nominal interval, so a stalled loop does not
// silently compress time for modules.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("plugin: non-positive tick interval %v", interval)
	}

	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	previous := m.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			delta := now.Sub(previous)
			previous = now
			for _, module := range m.modules {
				if _, ok := m.moduleSources[module.ID()]; !ok {
					continue
				}
				module.Tick(m.context, delta)
			}
		}
	}
}
