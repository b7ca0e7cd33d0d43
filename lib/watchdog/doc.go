// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package watchdog records commanded reboots so the next boot can tell
// a requested restart from a crash or power loss.
//
// Before running the reboot command the agent calls [Write] with a
// [Marker] naming the command that asked for it. On startup it calls
// [Check]: a fresh marker means the previous process went down on
// purpose, and the agent logs the round trip and calls [Clear]. No
// marker (or a stale one) means the last shutdown was not requested.
//
// The marker is written atomically (temporary file, fsync, rename,
// fsync of the parent directory) so a reader never sees a partial
// file even when the reboot cuts power mid-write.
//
// This package depends on no other agent packages.
package watchdog
