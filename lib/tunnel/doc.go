// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package tunnel supervises the agent's reverse SSH tunnel.
//
// A [Supervisor] holds at most one [Handle]. [Supervisor.Open] starts
// ssh with a remote forward (-R queen:localhost:ant) in its own process
// group and resolves the attempt by whichever of three signals arrives
// first:
//
//   - a "remote forward success" line on ssh's stderr: Established
//   - a "remote port forwarding failed" line: Failed("Port already in use")
//   - the establishment timer: Failed("SSH timeout")
//   - ssh exiting before any marker: Failed("SSH exited: ...")
//
// The timer is stopped as soon as a marker or exit wins. On timeout the
// process is deliberately left running; it may still connect, and an
// explicit [Supervisor.Close] is the only thing that tears it down.
//
// Close interrupts the process group with SIGINT and escalates to
// SIGKILL after the kill grace period. The handle is cleared once the
// exit is observed.
//
// ssh stderr is read for the whole life of the process so ssh never
// blocks on a full pipe. Lines after the outcome are logged at debug
// level.
package tunnel
