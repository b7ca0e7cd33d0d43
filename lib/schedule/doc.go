// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package schedule keeps the sensing engine's recording state
// consistent with the daily window [wakeup, sleep) of the live
// configuration.
//
// A [Coordinator] owns two job slots. The start slot resumes recording
// every day at the wakeup hour; the stop slot pauses it at the sleep
// hour. Installing a slot cancels exactly the previous trigger of that
// slot before arming the new one. Triggers are clock timers aimed at
// the next match of a daily cron schedule and re-arm themselves after
// each firing.
//
// [Coordinator.Reconcile] makes a configuration change take effect
// immediately: it pauses recording, waits the settle delay, and then
// resumes recording only if the current hour lies inside the window.
// Reconciles may overlap. Each one takes a generation number when it
// pauses; after the settle delay it acts only if no later reconcile
// has started, so the most recent call decides the final state.
package schedule
