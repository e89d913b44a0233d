// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for workbench packages.
//
// [SocketDir] creates a temporary directory in /tmp suitable for Unix
// domain sockets, working around the 108-byte sun_path limit that
// deeply nested test temp directories can exceed.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. These are
// the only place in the test suite where real wall-clock timeouts are
// used; everything else runs on lib/clock's FakeClock.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no workbench-internal dependencies.
package testutil
