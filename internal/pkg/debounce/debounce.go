// Package debounce provides a resettable single-shot timer for debouncing input.
package debounce

import (
	"sync"
	"time"
)

// Timer runs the most recently triggered function once the input has been
// quiet for the configured delay. Triggering again resets the delay; at most
// one timer is pending at any time.
type Timer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// New creates a Timer with the given quiet interval. Negative delays are treated as zero.
func New(delay time.Duration) *Timer {
	if delay < 0 {
		delay = 0
	}
	return &Timer{delay: delay}
}

// Delay returns the quiet interval.
func (d *Timer) Delay() time.Duration {
	return d.delay
}

// Trigger schedules fn after the quiet interval, replacing any pending function.
func (d *Timer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}

	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// a Stop that lost the race with expiry bumps gen
		if d.gen != gen || d.stopped {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()

		fn()
	})
}

// Cancel drops the pending function, if any, and reports whether one was pending.
func (d *Timer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer == nil {
		return false
	}

	d.timer.Stop()
	d.timer = nil
	d.gen++

	return true
}

// Pending reports whether a function is waiting to run.
func (d *Timer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels the pending function and disables further triggers.
func (d *Timer) Stop() {
	d.Cancel()

	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}
