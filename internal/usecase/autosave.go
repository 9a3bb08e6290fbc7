package usecase

import (
	"sync"
	"time"
)

// DefaultAutosaveDelay is the quiet period between the last edit and the save.
const DefaultAutosaveDelay = time.Second

// Timer is the part of *time.Timer the debouncer needs.
type Timer interface {
	Stop() bool
}

// AfterFunc arms f to run once after d. time.AfterFunc satisfies it through
// an adapter; tests inject a manual clock.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// debouncer keeps at most one pending call. Scheduling again cancels the
// previous one, so only the latest call of a burst runs.
type debouncer struct {
	delay time.Duration
	after AfterFunc

	mu      sync.Mutex
	pending Timer
	gen     uint64
}

func newDebouncer(delay time.Duration, after AfterFunc) *debouncer {
	if after == nil {
		after = realAfterFunc
	}
	return &debouncer{delay: delay, after: after}
}

// Schedule replaces any pending call with fn.
func (d *debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.pending.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = d.after(d.delay, func() {
		d.mu.Lock()
		// A timer that already fired cannot be stopped; the generation check
		// drops it if it was superseded in the meantime.
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.pending = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending call, if any, and reports whether one existed.
func (d *debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.pending == nil {
		return false
	}
	d.pending.Stop()
	d.pending = nil
	return true
}

// Pending reports whether a call is armed.
func (d *debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}
