// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by every timer
// in the agent: the tunnel establishment timeout, the reconcile settle
// delay, the daily schedule triggers, the delayed reboot and force-kill,
// and the outbox backoff.
//
// Production code holds a [Clock] field set to [Real]. Tests construct
// [Fake] and drive time explicitly:
//
//	fakeClock := clock.Fake(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
//	supervisor := tunnel.New(tunnel.Config{Clock: fakeClock, ...})
//	go supervisor.Open(ctx, target)
//	fakeClock.WaitForTimers(1)
//	fakeClock.Advance(60 * time.Second)
//
// WaitForTimers blocks until the goroutine under test has registered its
// timer, which removes the race between registration and Advance.
package clock
