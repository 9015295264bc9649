// Package util contains helpers for the command line tools.
package util

import "time"

// Throttler admits at most one event per period, and counts the events it skipped in between.
type Throttler struct {
	d       time.Duration
	last    time.Time
	skipped int
	now     func() time.Time
}

// NewThrottler returns a throttler whose first event is always admitted.
func NewThrottler(d time.Duration) *Throttler {
	return &Throttler{d: d, now: time.Now}
}

// Ok reports whether the current event is admitted.
func (tt *Throttler) Ok() bool {
	now := tt.now()
	if !tt.last.IsZero() && now.Before(tt.last.Add(tt.d)) {
		tt.skipped++
		return false
	}

	tt.last = now
	return true
}

// Skipped returns the number of events skipped since the last call, and resets the count.
func (tt *Throttler) Skipped() int {
	n := tt.skipped
	tt.skipped = 0
	return n
}
