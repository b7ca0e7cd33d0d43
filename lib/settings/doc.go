// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package settings owns the agent's live-mutable Configuration: the
// measurement period and the daily recording window.
//
// There is exactly one [Store] per process. The command router writes
// to it when an operator changes a value, and the schedule coordinator
// reads from it whenever a trigger fires or a reconcile runs. Every
// accessor takes the store's mutex, so a reader never observes a
// half-applied "init" that changed three fields at once.
//
// Each successful mutation is also written as a CBOR snapshot next to
// the agent's other state so the operator's last settings survive a
// reboot. Snapshot write failures are logged and otherwise ignored:
// losing persistence must never make a valid command fail.
package settings
