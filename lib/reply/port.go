// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package reply

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pheromon/antagent/lib/clock"
	"github.com/pheromon/antagent/lib/schema"
)

// ErrNotConnected is returned by a Publisher that has no live session.
// The shipper treats it like any other publish failure.
var ErrNotConnected = errors.New("transport not connected")

// Publisher delivers one envelope to the broker. Implementations
// return an error when delivery could not be confirmed; the envelope
// is then retried.
type Publisher interface {
	Publish(ctx context.Context, envelope schema.Envelope) error
}

// DefaultMaxBytes is the outbox bound used when none is configured.
const DefaultMaxBytes = 8 << 20

// Backoff for the shipper retry loop. Starts at initialBackoff,
// doubles on each consecutive failure, capped at maxBackoff, and
// resets on success.
const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 10 * time.Second
)

// Port queues outbound envelopes and ships them in order.
type Port struct {
	outbox    *Outbox
	publisher Publisher
	clock     clock.Clock
	logger    *slog.Logger
	published atomic.Uint64
}

// Stats is a point-in-time view of the port's queue.
type Stats struct {
	Queued      int    `json:"queued"`
	QueuedBytes int    `json:"queued_bytes"`
	Dropped     uint64 `json:"dropped"`
	Published   uint64 `json:"published"`
}

// New creates a Port that publishes through publisher. maxBytes bounds
// the outbox; zero or negative selects DefaultMaxBytes.
func New(publisher Publisher, clk clock.Clock, maxBytes int, logger *slog.Logger) *Port {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Port{
		outbox:    NewOutbox(maxBytes),
		publisher: publisher,
		clock:     clk,
		logger:    logger,
	}
}

// Send queues a message for delivery and returns immediately. A
// message too large for the outbox is logged and discarded.
func (p *Port) Send(topic string, payload []byte, options schema.DeliveryOptions) {
	envelope := schema.Envelope{Topic: topic, Payload: payload, Options: options}
	if err := p.outbox.Push(envelope); err != nil {
		p.logger.Error("discarding outbound message", "topic", topic, "error", err)
		return
	}
	p.logger.Debug("queued outbound message",
		"topic", topic,
		"bytes", len(payload),
		"queued", p.outbox.Len(),
	)
}

// Stats reports the current queue depth and counters.
func (p *Port) Stats() Stats {
	return Stats{
		Queued:      p.outbox.Len(),
		QueuedBytes: p.outbox.SizeBytes(),
		Dropped:     p.outbox.Dropped(),
		Published:   p.published.Load(),
	}
}

// Run publishes queued envelopes until ctx is cancelled, then makes
// one best-effort pass over whatever is left.
//
// The loop peeks at the oldest envelope, publishes it, and pops it by
// sequence on success. On failure it waits on the clock (1s, 2s, 4s, 8s, 10s, 10s,
// ...) and retries the same envelope.
func (p *Port) Run(ctx context.Context) {
	backoff := initialBackoff

	for {
		select {
		case <-p.outbox.Notify():
		case <-ctx.Done():
			p.drain()
			return
		}

		for {
			envelope, sequence, ok := p.outbox.Peek()
			if !ok {
				break
			}

			if err := p.publisher.Publish(ctx, envelope); err != nil {
				if ctx.Err() != nil {
					p.drain()
					return
				}
				p.logger.Warn("publish failed, will retry",
					"topic", envelope.Topic,
					"error", err,
					"backoff", backoff,
					"queued", p.outbox.Len(),
				)
				select {
				case <-p.clock.After(backoff):
				case <-ctx.Done():
					p.drain()
					return
				}
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}

			if !p.outbox.Pop(sequence) {
				p.logger.Debug("published envelope was evicted in flight", "topic", envelope.Topic)
			}
			p.published.Add(1)
			backoff = initialBackoff
		}
	}
}

// drain makes one pass through the outbox after shutdown with a short
// overall deadline.
func (p *Port) drain() {
	const drainTimeout = 5 * time.Second
	drainContext, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		envelope, sequence, ok := p.outbox.Peek()
		if !ok {
			return
		}
		if err := p.publisher.Publish(drainContext, envelope); err != nil {
			p.logger.Warn("drain: publish failed, abandoning remaining",
				"error", err,
				"remaining", p.outbox.Len(),
			)
			return
		}
		p.outbox.Pop(sequence)
		p.published.Add(1)
	}
}
