// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNowKeepsLocation(t *testing.T) {
	location := time.FixedZone("UTC+2", 2*60*60)
	clock := Fake(time.Date(2026, 6, 1, 9, 30, 0, 0, location))
	if got := clock.Now().Hour(); got != 9 {
		t.Fatalf("Now().Hour() = %d, want 9", got)
	}
	clock.Advance(time.Hour)
	if got := clock.Now().Hour(); got != 10 {
		t.Fatalf("Now().Hour() after Advance = %d, want 10", got)
	}
}

func TestFakeClockAfterFiresAtDeadline(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(5 * time.Second)

	clock.Advance(3 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired before deadline")
	default:
	}

	clock.Advance(2 * time.Second)
	select {
	case <-channel:
	default:
		t.Fatal("After did not fire at deadline")
	}
}

func TestFakeClockAfterNonPositive(t *testing.T) {
	clock := Fake(epoch)
	for _, duration := range []time.Duration{0, -time.Second} {
		select {
		case <-clock.After(duration):
		default:
			t.Fatalf("After(%v) should be ready immediately", duration)
		}
	}
	if got := clock.PendingCount(); got != 0 {
		t.Fatalf("PendingCount() = %d, want 0", got)
	}
}

func TestFakeClockAfterFuncStop(t *testing.T) {
	clock := Fake(epoch)
	var called atomic.Bool
	timer := clock.AfterFunc(2*time.Second, func() { called.Store(true) })

	if !timer.Stop() {
		t.Fatal("Stop() should return true for a pending timer")
	}
	if timer.Stop() {
		t.Fatal("second Stop() should return false")
	}

	clock.Advance(5 * time.Second)
	if called.Load() {
		t.Fatal("callback ran after Stop()")
	}
}

func TestFakeClockAfterFuncStopAfterFire(t *testing.T) {
	clock := Fake(epoch)
	timer := clock.AfterFunc(time.Second, func() {})
	clock.Advance(time.Second)
	if timer.Stop() {
		t.Fatal("Stop() should return false once the timer fired")
	}
}

func TestFakeClockAfterFuncReset(t *testing.T) {
	clock := Fake(epoch)
	var count atomic.Int32
	timer := clock.AfterFunc(5*time.Second, func() { count.Add(1) })

	if !timer.Reset(2 * time.Second) {
		t.Fatal("Reset() should report the timer as active")
	}
	clock.Advance(2 * time.Second)
	if count.Load() != 1 {
		t.Fatalf("callback count = %d, want 1", count.Load())
	}

	if timer.Reset(time.Second) {
		t.Fatal("Reset() after firing should report inactive")
	}
	clock.Advance(time.Second)
	if count.Load() != 2 {
		t.Fatalf("callback count after re-arm = %d, want 2", count.Load())
	}
}

func TestFakeClockCallbackRearmsFromAdvancedTime(t *testing.T) {
	clock := Fake(epoch)
	var count atomic.Int32
	var rearm func()
	rearm = func() {
		count.Add(1)
		clock.AfterFunc(time.Second, rearm)
	}
	clock.AfterFunc(time.Second, rearm)

	// The callback re-arms relative to the already-advanced time, so a
	// single large Advance fires it once.
	clock.Advance(3 * time.Second)
	if got := count.Load(); got != 1 {
		t.Fatalf("count after first Advance = %d, want 1", got)
	}

	clock.Advance(time.Second)
	if got := count.Load(); got != 2 {
		t.Fatalf("count after second Advance = %d, want 2", got)
	}
}

func TestFakeClockFiresInDeadlineOrder(t *testing.T) {
	clock := Fake(epoch)
	var order []int
	var mu sync.Mutex
	for _, seconds := range []int{3, 1, 2} {
		seconds := seconds
		clock.AfterFunc(time.Duration(seconds)*time.Second, func() {
			mu.Lock()
			order = append(order, seconds)
			mu.Unlock()
		})
	}

	clock.Advance(5 * time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("order = %v, want [1 2 3]", order)
	}
}

func TestFakeClockSleepAndWaitForTimers(t *testing.T) {
	clock := Fake(epoch)
	done := make(chan struct{})
	go func() {
		clock.Sleep(3 * time.Second)
		close(done)
	}()

	clock.WaitForTimers(1)
	clock.Advance(3 * time.Second)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestClocksImplementClock(t *testing.T) {
	var _ Clock = (*FakeClock)(nil)
	var _ Clock = Real()
}
