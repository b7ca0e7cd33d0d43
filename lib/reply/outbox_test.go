// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package reply

import (
	"testing"

	"github.com/pheromon/antagent/lib/schema"
)

func envelope(topic string, size int) schema.Envelope {
	return schema.Envelope{Topic: topic, Payload: make([]byte, size-len(topic))}
}

func TestOutboxFIFO(t *testing.T) {
	outbox := NewOutbox(1024)
	for _, topic := range []string{"a", "b", "c"} {
		if err := outbox.Push(envelope(topic, 10)); err != nil {
			t.Fatalf("Push(%s): %v", topic, err)
		}
	}

	for _, want := range []string{"a", "b", "c"} {
		head, sequence, ok := outbox.Peek()
		if !ok {
			t.Fatalf("Peek: empty, want %s", want)
		}
		if head.Topic != want {
			t.Fatalf("Peek().Topic = %q, want %q", head.Topic, want)
		}
		if !outbox.Pop(sequence) {
			t.Fatalf("Pop(%d) for %s = false", sequence, want)
		}
	}
	if _, _, ok := outbox.Peek(); ok {
		t.Fatal("outbox not empty after popping everything")
	}
	if outbox.SizeBytes() != 0 {
		t.Fatalf("SizeBytes() = %d after drain", outbox.SizeBytes())
	}
}

func TestOutboxDropsOldestOnOverflow(t *testing.T) {
	outbox := NewOutbox(30)
	for _, topic := range []string{"a", "b", "c"} {
		if err := outbox.Push(envelope(topic, 10)); err != nil {
			t.Fatalf("Push(%s): %v", topic, err)
		}
	}
	if err := outbox.Push(envelope("d", 15)); err != nil {
		t.Fatalf("Push(d): %v", err)
	}

	if got := outbox.Dropped(); got != 2 {
		t.Fatalf("Dropped() = %d, want 2", got)
	}
	if got := outbox.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	head, _, _ := outbox.Peek()
	if head.Topic != "c" {
		t.Fatalf("head = %q, want c", head.Topic)
	}
	if got := outbox.SizeBytes(); got != 25 {
		t.Fatalf("SizeBytes() = %d, want 25", got)
	}
}

func TestOutboxPopAfterInFlightEviction(t *testing.T) {
	outbox := NewOutbox(20)
	for _, topic := range []string{"a", "b"} {
		if err := outbox.Push(envelope(topic, 10)); err != nil {
			t.Fatalf("Push(%s): %v", topic, err)
		}
	}
	head, sequence, _ := outbox.Peek()
	if head.Topic != "a" {
		t.Fatalf("head = %q, want a", head.Topic)
	}

	// c arrives while a is being published and evicts it.
	if err := outbox.Push(envelope("c", 10)); err != nil {
		t.Fatalf("Push(c): %v", err)
	}
	if outbox.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", outbox.Dropped())
	}

	if outbox.Pop(sequence) {
		t.Fatal("Pop removed an entry for an envelope no longer queued")
	}
	if outbox.Dropped() != 0 {
		t.Fatalf("Dropped() = %d after delivering the evicted envelope, want 0", outbox.Dropped())
	}
	var remaining []string
	for {
		head, sequence, ok := outbox.Peek()
		if !ok {
			break
		}
		remaining = append(remaining, head.Topic)
		outbox.Pop(sequence)
	}
	if len(remaining) != 2 || remaining[0] != "b" || remaining[1] != "c" {
		t.Fatalf("remaining = %v, want [b c]", remaining)
	}
}

func TestOutboxRejectsOversizeEnvelope(t *testing.T) {
	outbox := NewOutbox(16)
	if err := outbox.Push(envelope("a", 10)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := outbox.Push(envelope("big", 17)); err == nil {
		t.Fatal("Push accepted an envelope larger than the outbox")
	}
	if outbox.Len() != 1 || outbox.Dropped() != 0 {
		t.Fatalf("rejected push disturbed the queue: len=%d dropped=%d", outbox.Len(), outbox.Dropped())
	}
}

func TestOutboxNotifyCoalesces(t *testing.T) {
	outbox := NewOutbox(1024)
	outbox.Push(envelope("a", 5))
	outbox.Push(envelope("b", 5))

	select {
	case <-outbox.Notify():
	default:
		t.Fatal("no notification after push")
	}
	select {
	case <-outbox.Notify():
		t.Fatal("second notification pending; signals should coalesce")
	default:
	}
}

func TestNewOutboxPanicsOnNonPositive(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewOutbox(0) did not panic")
		}
	}()
	NewOutbox(0)
}
