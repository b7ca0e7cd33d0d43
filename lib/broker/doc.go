// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package broker is the ant's MQTT session with the queen's broker.
//
// A [Session] connects with a persistent session (clean session off) so
// commands sent while the ant was offline are delivered on reconnect.
// On every connect it subscribes to all/# and <id>/# at QoS 1; on the
// first connect of the process it also announces itself on init/<id>.
// Each inbound message is handed to the command handler on its own
// goroutine with cmdResult/<id> as the reply topic.
//
// Session implements the reply port's Publisher: Publish fails fast
// with [reply.ErrNotConnected] while the session is down, leaving
// retries to the outbox.
package broker
