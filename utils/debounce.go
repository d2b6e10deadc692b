package utils

import (
	"strings"
	"sync"
	"time"
)

// Debouncer coalesces repeated triggers per key: only the last function scheduled for
// a key within the window runs, once the key has been quiet for the whole window.
type Debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending map[string]*pendingCall
	stopped bool
}

type pendingCall struct {
	timer *time.Timer
	fn    func()
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingCall),
	}
}

// Trigger schedules fn for key, replacing any call still pending for it.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
	}

	call := &pendingCall{fn: fn}
	call.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		current, ok := d.pending[key]
		if !ok || current != call {
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		d.mu.Unlock()
		call.fn()
	})
	d.pending[key] = call
}

// Cancel drops every pending call whose key starts with prefix.
func (d *Debouncer) Cancel(prefix string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for key, p := range d.pending {
		if strings.HasPrefix(key, prefix) {
			p.timer.Stop()
			delete(d.pending, key)
			n++
		}
	}
	return n
}

// Pending reports how many calls are waiting to fire.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flush runs every pending call now, in the caller's goroutine.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	calls := make([]func(), 0, len(d.pending))
	for key, p := range d.pending {
		p.timer.Stop()
		calls = append(calls, p.fn)
		delete(d.pending, key)
	}
	d.mu.Unlock()

	for _, fn := range calls {
		fn()
	}
}

// Stop flushes pending calls and rejects further triggers.
func (d *Debouncer) Stop() {
	d.Flush()
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}
