package desktop

import (
	"github.com/cupidthecat/cupid-os/internal/critsec"
	"github.com/cupidthecat/cupid-os/internal/syscalltable"
)

// inboxCapacity bounds a single app's pending-event queue; the desktop
// loop drains the shared KeyRing and the mouse driver every iteration, so
// an app falling behind by more than this many events is already far
// enough behind that dropping newly arriving events is the right trade,
// the same choice KeyRing itself makes against its own producer.
const inboxCapacity = 64

// Inbox is one window's per-process event queue: the hosted stand-in for
// "the focused app" side of spec.md §4.10.5's routing. Window carries an
// opaque AppCtx rather than a callback (see DESIGN.md's Window-callbacks
// Open Question); internal/desktop stores an *Inbox there and wires
// internal/syscalltable.Table.ReadEvent to drain it, so an app polls its
// own events the same way it polls any other syscall, instead of the
// window manager upcalling into it directly.
type Inbox struct {
	guard *critsec.Guard
	buf   [inboxCapacity]syscalltable.Event
	head  int
	tail  int
}

// NewInbox returns an empty Inbox.
func NewInbox() *Inbox {
	return &Inbox{guard: critsec.New()}
}

// Push enqueues an event for this app, dropping it if the inbox is full.
func (b *Inbox) Push(e syscalltable.Event) {
	b.guard.With(func() {
		next := (b.head + 1) % inboxCapacity
		if next == b.tail {
			return
		}
		b.buf[b.head] = e
		b.head = next
	})
}

// ReadEvent implements internal/syscalltable.Table's ReadEvent field
// shape: dequeue the oldest pending event, or report none.
func (b *Inbox) ReadEvent() (syscalltable.Event, bool) {
	var e syscalltable.Event
	ok := false
	b.guard.With(func() {
		if b.head == b.tail {
			return
		}
		e = b.buf[b.tail]
		b.tail = (b.tail + 1) % inboxCapacity
		ok = true
	})
	return e, ok
}
