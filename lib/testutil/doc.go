// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for agent packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap the
// select-with-timeout safety valve so tests driven by a fake clock
// still fail instead of hanging when an expected event never comes.
// They are the only place tests wait on real wall-clock time.
//
// [RequireNoReceive] checks that a channel stays quiet for a short
// real-time window, for asserting that something did not happen
// (no reply to an unknown verb, no engine call after a superseded
// reconcile).
//
// [Logger] returns a slog.Logger that writes through t.Log so that
// component logs appear only for failing tests.
//
// All helpers call t.Fatalf on failure.
//
// This package depends on no other agent packages.
package testutil
