// Package timer implements spec.md §4.5: a periodic tick that increments
// an uptime counter and sets a single deferred-reschedule flag, rather
// than context-switching from inside the "IRQ" itself.
//
// Grounded on the teacher's src/mazboot/golang/main/timer_qemu.go and
// timer_channels.go (tick accounting, forwarding ticks to device
// callbacks such as keyboard auto-repeat and cursor blink).
package timer

import "github.com/cupidthecat/cupid-os/internal/critsec"

// QuantumFunc is called once per tick to let the scheduler decrement the
// running process's remaining quantum. It returns true when the quantum
// has just reached zero, in which case Clock sets the deferred
// reschedule flag.
type QuantumFunc func() (quantumExpired bool)

// Clock is the kernel's timer/IRQ plumbing.
type Clock struct {
	guard *critsec.Guard

	uptimeTicks uint64
	reschedule  bool

	onQuantum QuantumFunc
	subscribers []func()
}

// New creates a Clock. onQuantum may be nil until the scheduler is wired
// up (spec.md's init order runs the timer before the process subsystem).
func New() *Clock {
	return &Clock{guard: critsec.New()}
}

// SetQuantumFunc wires the scheduler's quantum accounting in. Called once
// during boot, after internal/proc.New.
func (c *Clock) SetQuantumFunc(fn QuantumFunc) { c.onQuantum = fn }

// Subscribe registers a device callback invoked on every tick (keyboard
// auto-repeat, cursor blink). Order is not significant: the spec treats
// these as opaque subscribers.
func (c *Clock) Subscribe(fn func()) { c.subscribers = append(c.subscribers, fn) }

// Tick simulates one timer interrupt. It must never call schedule()
// itself — that is the whole point of the deferred-reschedule flag.
func (c *Clock) Tick() {
	c.guard.Enter()
	c.uptimeTicks++
	expired := false
	if c.onQuantum != nil {
		expired = c.onQuantum()
	}
	if expired {
		c.reschedule = true
	}
	c.guard.Leave()

	for _, sub := range c.subscribers {
		sub()
	}
}

// UptimeTicks returns the number of ticks observed so far.
func (c *Clock) UptimeTicks() uint64 {
	c.guard.Enter()
	defer c.guard.Leave()
	return c.uptimeTicks
}

// ConsumeReschedule observes and clears the deferred-reschedule flag. It
// is the only way the flag is ever read; internal/proc's CheckPreempt
// (called from the desktop redraw cycle) calls this, and only then calls
// schedule(). Yield and the idle loop drop the flag via ClearReschedule.
func (c *Clock) ConsumeReschedule() bool {
	c.guard.Enter()
	defer c.guard.Leave()
	was := c.reschedule
	c.reschedule = false
	return was
}

// ClearReschedule drops a pending reschedule without consuming it as a
// "yes, go reschedule" signal. internal/proc's Yield uses this: an
// explicit yield is itself the single switch, so any flag set by the
// timer in the meantime must not cause a second, redundant switch.
func (c *Clock) ClearReschedule() {
	c.guard.Enter()
	c.reschedule = false
	c.guard.Leave()
}
