// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package cron parses 5-field cron expressions and computes the next
// matching wall-clock time in a given location.
//
//	┌───────────── minute (0-59)
//	│ ┌───────────── hour (0-23)
//	│ │ ┌───────────── day of month (1-31)
//	│ │ │ ┌───────────── month (1-12)
//	│ │ │ │ ┌───────────── day of week (0-6, 0=Sunday)
//	│ │ │ │ │
//	* * * * *
//
// Fields accept single values, ranges (1-5), lists (1,3,5), steps
// (*/15, 1-30/5), and the wildcard. There are no @shortcuts, no
// seconds field, and no named days or months.
//
// Unlike server-side schedules, the agent's recording window is
// defined in the device's local time, so every Schedule carries the
// location its fields are interpreted in. [Daily] builds the
// "minute hour * * *" schedule used for the recording start and stop
// triggers.
package cron
