// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

// Workbench-relay-mock is a drop-in stand-in for the hardware relay
// service, for development and integration tests. It listens on a
// unix socket, speaks the newline-delimited JSON-RPC relay protocol,
// and publishes synthetic frames (sine and ramp numerics, toggling
// GPIO pins, serial heartbeat text) for every source a client
// subscribes to.
//
// Sources come from a JSONC manifest (--manifest); without one, a
// built-in set of demonstration sources is served. resetMetric
// requests reset the matching synthetic generator's phase, so a
// client's reset button visibly does something.
//
//	workbench-relay-mock --socket /tmp/wb/relay.sock --publish-interval 50ms
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

	"github.com/andrewmcdan/workbench/lib/config"
	"github.com/andrewmcdan/workbench/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("workbench-relay-mock", pflag.ContinueOnError)
	socketPath := flagSet.String("socket", "", "unix socket path to listen on (required)")
	manifestPath := flagSet.String("manifest", "", "JSONC manifest of synthetic sources (default: built-in set)")
	publishInterval := flagSet.Duration("publish-interval", 50*time.Millisecond, "delay between published frames per connection")
	logLevel := flagSet.String("log-level", "info", "log level: debug, info, warn, error")
	showVersion := flagSet.Bool("version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *showVersion {
		version.Print("workbench-relay-mock")
		return nil
	}
	if *socketPath == "" {
		return fmt.Errorf("--socket is required")
	}

	level, err := config.ParseLevel(*logLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	manifest := DefaultManifest()
	if *manifestPath != "" {
		manifest, err = LoadManifest(*manifestPath)
		if err != nil {
			return fmt.Errorf("loading manifest: %w", err)
		}
	}

	mock, err := newMockRelay(manifest, *publishInterval, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("relay mock starting",
		"socket", *socketPath,
		"sources", len(manifest.Sources),
		"publish_interval", *publishInterval,
	)
	return mock.Serve(ctx, *socketPath)
}
