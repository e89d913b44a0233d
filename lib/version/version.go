// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build version information for workbench
// binaries.
package version

import (
	"fmt"
	"runtime/debug"
)

// release is overridden at build time via
// -ldflags "-X github.com/andrewmcdan/workbench/lib/version.release=v1.2.3".
var release = "dev"

// Info returns the release string, annotated with the VCS revision
// when the binary carries build info.
func Info() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return release
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 12 {
			return fmt.Sprintf("%s (%s)", release, setting.Value[:12])
		}
	}
	return release
}

// Print writes "<name> <version>" to stdout, for --version flags.
func Print(name string) {
	fmt.Printf("%s %s\n", name, Info())
}
