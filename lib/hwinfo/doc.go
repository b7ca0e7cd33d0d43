// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package hwinfo reads the health of the board the ant runs on: kernel,
// board model, uptime, load, memory, CPU utilization and SoC
// temperature. Every reading comes from /proc, /sys or sysinfo(2) and
// degrades to a zero value when the source is missing, so a probe
// never fails.
package hwinfo
