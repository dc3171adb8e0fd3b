// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts time for the periodic machinery in this codebase:
// the session heartbeat, the stats-polling loop, the input flush
// ticker, and the linear reconnect backoff all take their time from a
// Clock instead of the time package directly. Production code injects
// Real(); tests inject Fake() and drive the loops deterministically
// with Advance.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. If d <= 0, the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc waits for duration d, then calls f. The returned
	// Timer cancels the pending call with Stop; its C field is nil,
	// matching time.AfterFunc.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker returns a Ticker delivering ticks on C at the given
	// interval. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses the calling goroutine for at least duration d.
	Sleep(d time.Duration)
}

// Ticker wraps a periodic timer. C has capacity 1, matching
// time.Ticker: if the consumer falls behind, ticks are dropped, not
// queued.
type Ticker struct {
	C <-chan time.Time

	stopFunc  func()
	resetFunc func(time.Duration)
}

// Stop turns off the ticker. No ticks arrive on C after Stop returns.
// Stop does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

// Reset changes the interval and restarts the tick cycle.
func (t *Ticker) Reset(d time.Duration) { t.resetFunc(d) }

// Timer represents a single scheduled event. Timers created by
// AfterFunc have a nil C.
type Timer struct {
	C <-chan time.Time

	stopFunc  func() bool
	resetFunc func(time.Duration) bool
}

// Stop prevents the timer from firing. Returns false if the timer
// already fired or was stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Reset changes the timer to fire after duration d. Returns true if
// the timer was active before the reset.
func (t *Timer) Reset(d time.Duration) bool { return t.resetFunc(d) }
