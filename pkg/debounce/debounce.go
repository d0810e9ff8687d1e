// Package debounce provides a delay-and-coalesce primitive for bursty inputs.
package debounce

import (
	"sync"
	"time"
)

// Debouncer coalesces calls: only the function passed to the most recent
// Call within the delay window runs. Safe for concurrent use.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	pending func()
}

// New creates a Debouncer with the given delay.
func New(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Call schedules fn to run after the delay, replacing any pending call.
func (d *Debouncer) Call(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = fn
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		fn := d.pending
		d.pending = nil
		d.timer = nil
		d.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}

// Flush runs the pending call immediately, if any.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	fn := d.pending
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Func wraps fn so that invocations are debounced by delay. The returned
// cancel function drops any pending invocation.
func Func(fn func(), delay time.Duration) (debounced func(), cancel func()) {
	d := New(delay)
	return func() { d.Call(fn) }, d.Cancel
}
