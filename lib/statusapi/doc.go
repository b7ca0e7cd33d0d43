// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package statusapi serves a read-only JSON view of the agent on a
// loopback address, for field technicians with a shell on the ant.
//
//	GET /health   "OK"
//	GET /status   everything below in one document
//	GET /settings the live Configuration
//	GET /jobs     the installed start and stop jobs
//	GET /tunnel   the tunnel handle, 404 when none is held
//	GET /outbox   reply queue depth and counters
//	GET /host     board health: load, memory, temperature
package statusapi
