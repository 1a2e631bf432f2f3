package controller

import "time"

// caretDebouncer holds the latest caret until it has been stable for the
// window. Time only advances with ticks, so the controller stays
// deterministic.
type caretDebouncer struct {
	window  time.Duration
	caret   *Caret
	pending bool
	waited  time.Duration
}

// set records a new caret. It returns true when the caret must be applied
// right away (no window).
func (d *caretDebouncer) set(c *Caret) bool {
	if d.window <= 0 {
		return true
	}
	d.caret = c
	d.pending = true
	d.waited = 0
	return false
}

// advance moves the clock and returns the caret once it settled.
func (d *caretDebouncer) advance(delta time.Duration) (*Caret, bool) {
	if !d.pending {
		return nil, false
	}
	if delta > 0 {
		d.waited += delta
	}
	if d.waited < d.window {
		return nil, false
	}
	c := d.caret
	d.reset()
	return c, true
}

func (d *caretDebouncer) reset() {
	d.caret = nil
	d.pending = false
	d.waited = 0
}
