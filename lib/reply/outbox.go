// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package reply

import (
	"fmt"
	"sync"

	"github.com/pheromon/antagent/lib/schema"
)

// Outbox is a byte-bounded FIFO of envelopes. When a Push would
// exceed the bound, the oldest entries are dropped until the new
// entry fits.
//
// Every pushed envelope gets a sequence number. The shipper peeks the
// head, publishes it, and pops it by sequence, so an overflow that
// evicts the head while it is being published never costs the entry
// behind it.
//
// The notify channel (capacity 1) wakes the shipper when an entry
// arrives.
//
// Thread-safe: all methods may be called concurrently.
type Outbox struct {
	mu        sync.Mutex
	entries   []schema.Envelope
	head      uint64 // sequence number of entries[0]
	totalSize int
	maxSize   int
	dropped   uint64
	notify    chan struct{}
}

// NewOutbox creates an Outbox holding at most maxSize bytes of
// envelopes as measured by [schema.Envelope.Size]. The maxSize must be
// positive.
func NewOutbox(maxSize int) *Outbox {
	if maxSize <= 0 {
		panic(fmt.Sprintf("outbox: maxSize must be positive, got %d", maxSize))
	}
	return &Outbox{
		maxSize: maxSize,
		notify:  make(chan struct{}, 1),
	}
}

// Push appends an envelope, evicting the oldest entries as needed. An
// envelope larger than the whole outbox is rejected.
func (o *Outbox) Push(envelope schema.Envelope) error {
	size := envelope.Size()
	if size > o.maxSize {
		return fmt.Errorf("outbox: envelope for %q is %d bytes, limit is %d", envelope.Topic, size, o.maxSize)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for o.totalSize+size > o.maxSize && len(o.entries) > 0 {
		o.evictHeadLocked()
		o.dropped++
	}

	o.entries = append(o.entries, envelope)
	o.totalSize += size

	select {
	case o.notify <- struct{}{}:
	default:
	}
	return nil
}

// Peek returns the oldest envelope and its sequence number without
// removing it. The boolean is false when the outbox is empty.
func (o *Outbox) Peek() (schema.Envelope, uint64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.entries) == 0 {
		return schema.Envelope{}, 0, false
	}
	return o.entries[0], o.head, true
}

// Pop removes the envelope with the given sequence number, which must
// come from Peek, and reports whether it was still queued. An envelope
// already evicted by overflow is left alone and its eviction is no
// longer counted as a drop, since the caller delivered it.
func (o *Outbox) Pop(sequence uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.entries) > 0 && sequence == o.head {
		o.evictHeadLocked()
		return true
	}
	if sequence < o.head && o.dropped > 0 {
		o.dropped--
	}
	return false
}

func (o *Outbox) evictHeadLocked() {
	evicted := o.entries[0]
	o.entries[0] = schema.Envelope{}
	o.entries = o.entries[1:]
	o.totalSize -= evicted.Size()
	o.head++
}

// Len returns the number of queued envelopes.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}

// SizeBytes returns the accounted size of all queued envelopes.
func (o *Outbox) SizeBytes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.totalSize
}

// Dropped returns the number of envelopes evicted on overflow since
// creation.
func (o *Outbox) Dropped() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

// Notify returns a channel that receives a signal when an envelope
// has been pushed.
func (o *Outbox) Notify() <-chan struct{} {
	return o.notify
}
