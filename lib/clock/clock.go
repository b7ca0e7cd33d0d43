// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the time operations the agent depends on. Code that
// would call time.Now, time.After, time.AfterFunc, or time.Sleep takes
// a Clock instead.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has elapsed and returns a Timer that
	// can cancel the call. If d <= 0, f runs immediately (in a new
	// goroutine for the real clock, synchronously for the fake).
	AfterFunc(d time.Duration, f func()) *Timer

	// Sleep blocks the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stopFunc  func() bool
	resetFunc func(time.Duration) bool
}

// Stop cancels the pending call. Returns true if the call was still
// pending, false if it already ran or was already stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Reset re-arms the timer to fire after d. Returns true if the timer
// was pending before the reset.
func (t *Timer) Reset(d time.Duration) bool { return t.resetFunc(d) }
