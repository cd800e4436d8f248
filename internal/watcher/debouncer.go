package watcher

import (
	"slices"
	"time"
)

// DefaultWindow is the debounce window used when none is configured
const DefaultWindow = time.Second

// Debouncer collects raw events and errors for one window at a time.
// It is owned by a single goroutine (the watcher loop) and does no locking.
type Debouncer struct {
	window  time.Duration
	pending Batch
	errs    []error
}

// NewDebouncer creates a new debouncer with the specified window
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer{window: window}
}

// Window returns the debounce window
func (d *Debouncer) Window() time.Duration {
	return d.window
}

// Add appends an event to the current window.
// It returns true when the event opened a new window, so the caller knows
// to arm its timer.
func (d *Debouncer) Add(ev RawEvent) bool {
	opened := !d.Pending()

	if n := len(d.pending); n > 0 && sameEvent(d.pending[n-1], ev) {
		return opened
	}

	// A create following a single-path rename is the other half of that
	// rename: stitch them into one event carrying (old, new).
	if ev.Op == OpCreate && len(ev.Paths) == 1 {
		if i := d.unpairedRename(); i >= 0 && d.pending[i].Paths[0] != ev.Paths[0] {
			d.pending[i].Paths = []string{d.pending[i].Paths[0], ev.Paths[0]}
			return opened
		}
	}

	d.pending = append(d.pending, ev)
	return opened
}

// AddError records a watcher error against the current window
func (d *Debouncer) AddError(err error) bool {
	if err == nil {
		return false
	}
	opened := !d.Pending()
	d.errs = append(d.errs, err)
	return opened
}

// Pending reports whether the current window holds anything to emit
func (d *Debouncer) Pending() bool {
	return len(d.pending) > 0 || len(d.errs) > 0
}

// Take closes the current window and returns its contents
func (d *Debouncer) Take() Result {
	res := Result{Batch: d.pending, Errs: d.errs}
	d.pending = nil
	d.errs = nil
	return res
}

// Reset discards the current window
func (d *Debouncer) Reset() {
	d.Take()
}

// unpairedRename returns the index of the most recent rename still missing
// its destination, or -1.
func (d *Debouncer) unpairedRename() int {
	for i := len(d.pending) - 1; i >= 0; i-- {
		ev := d.pending[i]
		if ev.Op == OpModifyName && len(ev.Paths) == 1 {
			return i
		}
	}
	return -1
}

func sameEvent(a, b RawEvent) bool {
	return a.Op == b.Op && slices.Equal(a.Paths, b.Paths)
}
