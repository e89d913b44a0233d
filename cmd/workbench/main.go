// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

// Workbench is the headless telemetry daemon: it connects to the
// hardware relay service, keeps the source registry current, runs the
// in-process plugin modules, and exposes the registry's contents to
// whatever front end is attached.
//
// Run against a live relay (or workbench-relay-mock):
//
//	workbench --socket /tmp/wb/relay.sock --subscribe supply.12v --dump
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/andrewmcdan/workbench/lib/clock"
	"github.com/andrewmcdan/workbench/lib/config"
	"github.com/andrewmcdan/workbench/lib/version"
	"github.com/andrewmcdan/workbench/plugin"
	"github.com/andrewmcdan/workbench/plugin/demo"
	"github.com/andrewmcdan/workbench/registry"
	"github.com/andrewmcdan/workbench/relay"
	"github.com/andrewmcdan/workbench/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("workbench", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to workbench.yaml (default: $WORKBENCH_CONFIG, else built-in defaults)")
	socketPath := flagSet.String("socket", "", "relay socket path (overrides config)")
	logLevel := flagSet.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	subscribe := flagSet.StringArray("subscribe", nil, "source ID to subscribe to at startup (repeatable, adds to config)")
	dump := flagSet.Bool("dump", false, "log every frame received for subscribed sources")
	showVersion := flagSet.Bool("version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *showVersion {
		version.Print("workbench")
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *socketPath != "" {
		cfg.Relay.SocketPath = *socketPath
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := config.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	reg := registry.New()

	client := relay.New(reg, relay.Options{
		SocketPath:     cfg.Relay.SocketPath,
		ReconnectDelay: cfg.ReconnectDelay(relay.DefaultReconnectDelay),
		Clock:          clk,
		Logger:         logger,
	})

	manager := plugin.NewManager(&plugin.Context{Registry: reg, Relay: client}, clk, logger)
	if cfg.Modules.Demo.Enabled {
		manager.Register(demo.New(clk))
	}

	client.Start()
	defer client.Stop()

	manager.Initialize()
	defer manager.Shutdown()

	subscriptions := append(append([]string(nil), cfg.Relay.Subscriptions...), *subscribe...)
	for _, sourceID := range subscriptions {
		client.SubscribeSource(sourceID)
	}
	if *dump {
		dumpIDs := subscriptions
		if cfg.Modules.Demo.Enabled {
			dumpIDs = append(dumpIDs, demo.SourceID)
		}
		for _, sourceID := range dumpIDs {
			attachDumpObserver(reg, sourceID, logger)
		}
	}

	logger.Info("workbench running",
		"relay_socket", cfg.Relay.SocketPath,
		"subscriptions", len(subscriptions),
		"modules", len(manager.Modules()),
	)

	tickDone := make(chan struct{})
	go func() {
		defer close(tickDone)
		if err := manager.Run(ctx, cfg.TickInterval(20*time.Millisecond)); err != nil && ctx.Err() == nil {
			logger.Error("tick loop failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	<-tickDone

	return nil
}

// loadConfig resolves configuration from the flag, the environment,
// or built-in defaults, in that order.
func loadConfig(flagPath string) (*config.Config, error) {
	switch {
	case flagPath != "":
		return config.LoadFile(flagPath)
	case os.Getenv("WORKBENCH_CONFIG") != "":
		return config.Load()
	default:
		return config.Default(), nil
	}
}

// attachDumpObserver logs a one-line summary of every frame the
// source publishes. Observers run in the producer's update path, so
// the handler does nothing but format and log.
func attachDumpObserver(reg *registry.Registry, sourceID string, logger *slog.Logger) {
	reg.AddObserver(sourceID, func(frame telemetry.DataFrame) {
		logger.Info("frame",
			"source", frame.SourceID,
			"points", len(frame.Points),
			"timestamp", frame.Timestamp,
		)
	})
}
