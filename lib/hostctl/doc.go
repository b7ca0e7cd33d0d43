// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package hostctl performs the host-level actions remote commands can
// request: running an arbitrary program, capturing a camera frame,
// rebooting, and setting the system clock.
//
// Every program runs through a [Runner] so tests never spawn real
// processes. A program that exits non-zero is an error carrying its
// exit status and the tail of its stderr.
package hostctl
