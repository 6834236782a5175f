// Package critsec models the "disable interrupts for the duration of this
// critical section" discipline spec.md §5 requires of every subsystem that
// touches a process-wide singleton: the process table, mount table,
// descriptor table, window array, input ring buffers, and the deferred
// reschedule flag.
//
// On real hardware that discipline is cli/sti around a few instructions.
// Hosted, cupid-os has no interrupts to mask, but it does have goroutines
// that could otherwise race on those same singletons, so critsec uses a
// golang.org/x/sync/semaphore.Weighted(1) as the admission gate: acquiring
// it is "cli", releasing it is "sti". The same type also plays the
// single-CPU token handed between process goroutines in internal/proc.
package critsec

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Guard is a one-holder-at-a-time critical section.
type Guard struct {
	sem *semaphore.Weighted
}

// New returns a ready Guard, interrupts enabled (unheld).
func New() *Guard {
	return &Guard{sem: semaphore.NewWeighted(1)}
}

// Enter disables interrupts, blocking until any current holder leaves.
// There is no real cancellation source in a uniprocessor kernel, so Enter
// uses context.Background() and cannot fail.
func (g *Guard) Enter() {
	_ = g.sem.Acquire(context.Background(), 1)
}

// Leave re-enables interrupts.
func (g *Guard) Leave() {
	g.sem.Release(1)
}

// TryEnter attempts to disable interrupts without blocking. It reports
// whether the section was entered.
func (g *Guard) TryEnter() bool {
	return g.sem.TryAcquire(1)
}

// With runs fn with interrupts disabled and always re-enables them
// afterwards, including on panic.
func (g *Guard) With(fn func()) {
	g.Enter()
	defer g.Leave()
	fn()
}
