package desktop

import "github.com/cupidthecat/cupid-os/internal/critsec"

// Mouse button bits for MouseUpdate.Buttons.
const (
	ButtonLeft  = 1 << 0
	ButtonRight = 1 << 1
)

// MouseUpdate is one reported mouse state (spec.md §4.10.5 step 1: "any
// of position, buttons, scroll wheel has changed").
type MouseUpdate struct {
	X, Y    int
	Buttons int
	Scroll  int
}

// MouseDriver holds the latest reported mouse state and a changed flag,
// the same single-producer/single-consumer shape as KeyRing but carrying
// only the most recent sample rather than a queue — the mouse driver
// reports absolute state, not discrete events, so coalescing duplicate
// reports between desktop-loop polls is correct, unlike key presses.
type MouseDriver struct {
	guard   *critsec.Guard
	state   MouseUpdate
	changed bool
}

// NewMouseDriver returns a driver with the cursor parked at the
// framebuffer's top-left corner.
func NewMouseDriver() *MouseDriver {
	return &MouseDriver{guard: critsec.New()}
}

// Report is the producer side (the simulated mouse IRQ): publish the
// latest sample and mark it unconsumed.
func (d *MouseDriver) Report(u MouseUpdate) {
	d.guard.With(func() {
		d.state = u
		d.changed = true
	})
}

// Consume is the desktop loop's side: if a new sample arrived since the
// last Consume, return it with ok=true and clear the changed flag.
// Otherwise return the last known state with ok=false.
func (d *MouseDriver) Consume() (u MouseUpdate, ok bool) {
	d.guard.With(func() {
		u, ok = d.state, d.changed
		d.changed = false
	})
	return
}

// Snapshot returns the last known state without consuming the changed
// flag — the shape internal/wm's modal dialog loop wants for its
// mouseSnapshot callback.
func (d *MouseDriver) Snapshot() (x, y, buttons int) {
	d.guard.With(func() {
		x, y, buttons = d.state.X, d.state.Y, d.state.Buttons
	})
	return
}
