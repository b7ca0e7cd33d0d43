// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

// Package reply is the agent's only path for outbound messages.
//
// [Port.Send] queues an [schema.Envelope] and returns immediately; it
// never blocks and never reports failure to the caller. A single
// shipper goroutine ([Port.Run]) publishes queued envelopes in FIFO
// order through a [Publisher]. While the transport is unavailable the
// shipper retries the head envelope with exponential backoff (1s
// doubling to a 10s cap), so replies keep their relative order and a
// disconnected agent holds exactly one pending timer.
//
// The queue is bounded in bytes. When a Send would exceed the bound
// the oldest envelopes are dropped and counted; a long outage loses
// the stalest replies rather than exhausting memory on a small device.
package reply
