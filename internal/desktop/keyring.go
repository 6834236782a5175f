// Package desktop implements spec.md §4.10.5 (C8): the input ring buffers
// spec.md §4.5 describes as "key/mouse IRQs feed ring buffers", plus the
// desktop loop that is their single consumer (spec.md §5: "single-producer
// (IRQ) / single-consumer (desktop loop)").
//
// The ring buffer shape — a fixed-size backing array with head/tail
// indices wrapping modulo capacity, full-on-next-head-equals-tail,
// empty-on-head-equals-tail — is grounded on the teacher's own
// src/mazboot/golang/main/uart_qemu.go UART ring buffer, generalized from
// bytes to the key/mouse event records this package needs and guarded
// with internal/critsec instead of disabling a real UART IRQ.
package desktop

import "github.com/cupidthecat/cupid-os/internal/critsec"

// KeyEvent is one dequeued keyboard IRQ record.
type KeyEvent struct {
	Key     rune
	Pressed bool
}

// keyRingCapacity mirrors the teacher's fixed-size buffer choice; a
// keyboard can plausibly queue dozens of presses between desktop-loop
// drains (held-key auto-repeat, paste-like bursts), far fewer than the
// teacher's 4KB UART buffer needed for bulk serial output.
const keyRingCapacity = 256

// KeyRing is the keyboard IRQ's single-producer/single-consumer ring
// buffer. Push is the producer side (the simulated IRQ); Pop is the
// consumer side (the desktop loop), guarded the same way
// internal/timer's Clock guards its own single-writer state.
type KeyRing struct {
	guard *critsec.Guard
	buf   [keyRingCapacity]KeyEvent
	head  int
	tail  int
}

// NewKeyRing returns an empty KeyRing.
func NewKeyRing() *KeyRing {
	return &KeyRing{guard: critsec.New()}
}

// Push enqueues a key event, dropping it if the ring is full (the
// teacher's uartEnqueueOrOverflow chooses the same fail-open discipline
// rather than blocking the producer). Reports whether the event was
// accepted.
func (r *KeyRing) Push(k KeyEvent) bool {
	ok := false
	r.guard.With(func() {
		next := (r.head + 1) % keyRingCapacity
		if next == r.tail {
			return
		}
		r.buf[r.head] = k
		r.head = next
		ok = true
	})
	return ok
}

// Pop dequeues the oldest pending key event. ok is false once the ring is
// drained for this call.
func (r *KeyRing) Pop() (k KeyEvent, ok bool) {
	r.guard.With(func() {
		if r.head == r.tail {
			return
		}
		k = r.buf[r.tail]
		r.tail = (r.tail + 1) % keyRingCapacity
		ok = true
	})
	return
}

// Empty reports whether the ring currently holds no pending events.
func (r *KeyRing) Empty() bool {
	empty := false
	r.guard.With(func() { empty = r.head == r.tail })
	return empty
}
