// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the agent's CBOR configuration.
//
// JSON is the format of everything that crosses the broker (command
// results, telemetry) because the server side speaks JSON. CBOR is used
// for state the agent writes for itself, currently the settings
// snapshot that lets remote configuration changes survive a reboot.
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same settings always produce the same bytes and an unchanged
// snapshot can be detected by comparison.
package codec
