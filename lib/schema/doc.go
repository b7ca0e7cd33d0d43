// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the wire contract between an ant agent and
// the queen: MQTT topic names, the JSON payloads published on them,
// and the parsing of inbound command strings.
//
// Topics are built from the agent identity with the *Topic helpers.
// [Envelope] is one outbound message as queued by the reply port.
// [CommandResult], [Measurement], and [Sighting] are the JSON bodies
// the queen decodes.
//
// This package depends on no other agent packages.
package schema
