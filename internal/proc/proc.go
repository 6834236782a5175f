// Package proc implements the process subsystem and scheduler (spec.md
// §4.6, C4): a fixed-size PCB table, round-robin scheduling, and
// yield/exit/kill.
//
// The teacher's context switch is a real callee-saved assembly routine
// (src/mazboot/golang/main/scheduler_bootstrap.go bootstraps g0/m0/P so
// the patched Go runtime's own gopark/goready can suspend and resume
// goroutines on bare metal). cupid-os has no patched runtime to lean on,
// so it builds the equivalent relationship directly: every process is an
// ordinary goroutine, and "context switch" is a blocking hand-off over a
// pair of channels gated by a single-CPU token (internal/critsec, backed
// by golang.org/x/sync/semaphore). Suspending a process is just that
// goroutine blocking on a channel receive; resuming it is the scheduler
// sending on that channel — which is exactly the two properties spec.md
// §4.6.3 requires (fresh entry for a new process, exact resume point for
// an old one) without a single line of assembly. This mirrors how
// justanotherdot-biscuit (retrieval pack) represents kernel threads as
// goroutines under a custom runtime; see DESIGN.md's Open Question entry.
package proc

import (
	"runtime"

	"github.com/cupidthecat/cupid-os/internal/critsec"
	"github.com/cupidthecat/cupid-os/internal/stackguard"
	"github.com/cupidthecat/cupid-os/internal/timer"
)

// MaxProcs bounds the PCB table.
const MaxProcs = 64

// MinStack is the smallest stack internal/proc will allocate for a new
// process (spec.md §4.6.2).
const MinStack = 4096

// IdlePID is the permanently-resident idle thread's PID; it is never
// destroyed (spec.md §3).
const IdlePID = 1

// State is a PCB's position in the lifecycle spec.md §4.6.1 draws.
type State int

const (
	Free State = iota
	Ready
	Running
	Blocked
	Terminated
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ErrKind enumerates the scheduler's recoverable error classes (spec.md
// §7).
type ErrKind int

const (
	NoSlot ErrKind = iota
	InvalidPID
	KillRefused
)

func (k ErrKind) String() string {
	switch k {
	case NoSlot:
		return "NO_SLOT"
	case InvalidPID:
		return "INVALID_PID"
	case KillRefused:
		return "KILL_REFUSED"
	default:
		return "UNKNOWN"
	}
}

// Error wraps an ErrKind for callers that want errors.Is-style handling.
type Error struct {
	Kind ErrKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Entry is a process's body. It is handed a Context so it can
// cooperatively yield, exit, or inspect its own identity — the hosted
// equivalent of a kernel thread's entry function running with access to
// the syscall table.
type Entry func(ctx *Context)

// PCB is one process control block (spec.md §3).
type PCB struct {
	PID       int
	State     State
	Priority  int
	Quantum   int
	Name      string
	ParentPID int
	ExitCode  int
	Ticks     uint64
	Guard     *stackguard.Guard

	entry    Entry
	resumeCh chan struct{}
	doneCh   chan struct{}
	started  bool
}

// Done returns a channel closed when the process has fully terminated and
// been reaped's worth of cleanup has run (the goroutine itself has
// returned). Callers outside the scheduler (tests, the boot driver) use
// this to wait for a process without participating in round-robin at
// all.
func (p *PCB) Done() <-chan struct{} { return p.doneCh }

const defaultQuantum = 5

// Scheduler owns the PCB table.
type Scheduler struct {
	table      [MaxProcs]*PCB
	lastIndex  int
	currentPID int
	enabled    bool

	tableGuard *critsec.Guard // guards table mutation ("disable interrupts")
	cpu        *critsec.Guard // the single-CPU admission token

	clock *timer.Clock
}

// New creates a Scheduler with the idle thread (PID 1) pre-installed, as
// spec.md §3 requires ("PID 1 is the idle thread and is never
// destroyed"). clk may be nil in tests that don't exercise preemption.
func New(clk *timer.Clock) *Scheduler {
	s := &Scheduler{
		tableGuard: critsec.New(),
		cpu:        critsec.New(),
		clock:      clk,
	}
	idle := &PCB{
		PID:      IdlePID,
		State:    Ready,
		Priority: 0,
		Quantum:  defaultQuantum,
		Name:     "idle",
		Guard:    stackguard.New(MinStack),
		entry:    idleEntry,
		resumeCh: make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	s.table[0] = idle
	if clk != nil {
		clk.SetQuantumFunc(s.tickQuantum)
	}
	return s
}

func idleEntry(ctx *Context) {
	for {
		ctx.Yield()
	}
}

// Enable turns on scheduling (spec.md §4.6.4 step 1: "If scheduling not
// yet enabled... return").
func (s *Scheduler) Enable() { s.enabled = true }

// tickQuantum is wired into internal/timer as the QuantumFunc: it
// decrements the running process's remaining quantum and reports
// expiry. Must not call Schedule directly (spec.md §4.5: "do not
// context-switch from inside the IRQ").
func (s *Scheduler) tickQuantum() bool {
	s.tableGuard.Enter()
	defer s.tableGuard.Leave()
	p := s.byPID(s.currentPID)
	if p == nil {
		return false
	}
	p.Ticks++
	p.Quantum--
	return p.Quantum <= 0
}

func (s *Scheduler) byPID(pid int) *PCB {
	if pid <= 0 || pid > MaxProcs {
		return nil
	}
	return s.table[pid-1]
}

// Create implements spec.md §4.6.2. It returns the new PID, equal to
// slot_index+1.
func (s *Scheduler) Create(entry Entry, name string, stackSize uint32, priority int) (int, error) {
	if stackSize < MinStack {
		stackSize = MinStack
	}
	s.tableGuard.Enter()
	defer s.tableGuard.Leave()

	slot := -1
	for i, p := range s.table {
		if p == nil {
			slot = i
			break
		}
		if p.State == Terminated {
			s.reapLocked(i) // "the reaper is run during the search"
			slot = i
			break
		}
	}
	if slot < 0 {
		return 0, &Error{Kind: NoSlot, Msg: "proc: no free PCB slot"}
	}

	pid := slot + 1
	pcb := &PCB{
		PID:       pid,
		State:     Ready,
		Priority:  priority,
		Quantum:   quantumFor(priority),
		Name:      name,
		ParentPID: s.currentPID,
		Guard:     stackguard.New(stackSize),
		entry:     entry,
		resumeCh:  make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	s.table[slot] = pcb
	return pid, nil
}

func quantumFor(priority int) int {
	q := defaultQuantum + priority
	if q < 1 {
		q = 1
	}
	return q
}

func (s *Scheduler) reapLocked(slot int) {
	// Stack release is simulated: the PCB (and the goroutine-stack it
	// represents) is simply dropped. Deferred-free (spec.md §9): this
	// runs lazily, here, on the next successful create() search — never
	// inside exit() itself, which is still unwinding the dying stack.
	s.table[slot] = nil
}

// Schedule implements spec.md §4.6.4. Called from a process's own
// goroutine (Yield, the idle loop) it blocks until that process is
// chosen to run again. Called before any process exists (boot) it
// performs the initial hand-off and returns immediately.
func (s *Scheduler) Schedule() {
	if !s.enabled {
		return
	}

	s.tableGuard.Enter()

	cur := s.byPID(s.currentPID)
	if cur != nil && cur.State == Running {
		cur.State = Ready
		if err := cur.Guard.Check(); err != nil {
			cur.State = Terminated
			cur.ExitCode = -1
			s.currentPID = 0
		}
	}

	next := s.pickNext()
	if next == nil {
		s.tableGuard.Leave()
		return
	}

	if cur != nil && next.PID == cur.PID {
		next.State = Running
		s.tableGuard.Leave()
		return
	}

	next.State = Running
	s.currentPID = next.PID
	s.startOrResume(next)

	bootstrapping := cur == nil
	s.tableGuard.Leave()

	if bootstrapping {
		// No goroutine to suspend; the caller (boot driver) is not a
		// PCB and simply returns, letting the goroutines run.
		return
	}

	// Hand off the single-CPU token (internal/critsec): cur has held it
	// since it was last resumed, so release it only now that next has
	// been woken (startOrResume, above) and is waiting to acquire it in
	// runProcess/here — this is what actually serializes "only one
	// process goroutine executes at a time" (the resumeCh hand-off alone
	// only orders wakeups, it doesn't stop cur's own goroutine from
	// running concurrently with next's until cur blocks below).
	s.cpu.Leave()

	// Suspend the calling process's goroutine until it is chosen again.
	<-cur.resumeCh
	s.cpu.Enter()

	s.tableGuard.Enter()
	if cur.State == Terminated {
		s.tableGuard.Leave()
		runtime.Goexit()
	}
	s.tableGuard.Leave()
}

// pickNext is the round-robin search of spec.md §4.6.4 step 3, must be
// called with tableGuard held.
func (s *Scheduler) pickNext() *PCB {
	for i := 1; i <= MaxProcs; i++ {
		idx := (s.lastIndex + i) % MaxProcs
		p := s.table[idx]
		if p != nil && p.State == Ready {
			s.lastIndex = idx
			return p
		}
	}
	idle := s.table[IdlePID-1]
	if idle != nil && (idle.State == Ready || idle.State == Running) {
		return idle
	}
	return nil
}

func (s *Scheduler) startOrResume(p *PCB) {
	if !p.started {
		p.started = true
		go s.runProcess(p)
	}
	p.resumeCh <- struct{}{}
}

func (s *Scheduler) runProcess(p *PCB) {
	// Deferred so Done also fires when Context.Exit ends the goroutine
	// through runtime.Goexit rather than a normal return.
	defer close(p.doneCh)
	<-p.resumeCh
	s.cpu.Enter() // acquire the single-CPU token before running any of p's code
	ctx := &Context{sched: s, pcb: p}
	p.entry(ctx) // P11: a normal return falls through to exitCurrent below.
	s.exitCurrent(p, 0)
	s.cpu.Leave() // p never runs again; release the token for whoever exitCurrent woke
}

// Context is the handle a running Entry uses to cooperate with the
// scheduler — the hosted equivalent of the syscall table's process
// operations (internal/syscalltable wraps these for user programs).
type Context struct {
	sched *Scheduler
	pcb   *PCB
}

// PID returns the running process's own PID.
func (c *Context) PID() int { return c.pcb.PID }

// Name returns the running process's name.
func (c *Context) Name() string { return c.pcb.Name }

// TouchStack reports `used` bytes of stack depth for peak tracking
// (spec.md §4.4), the hosted stand-in for probing SP.
func (c *Context) TouchStack(used uint32) { c.pcb.Guard.Touch(used) }

// Yield implements spec.md §4.6.6: clear any pending deferred-reschedule
// flag (this explicit yield is the single switch) and call Schedule.
func (c *Context) Yield() {
	if c.sched.clock != nil {
		c.sched.clock.ClearReschedule()
	}
	c.sched.Schedule()
}

// CheckPreempt is what a cooperative safe point (the desktop redraw
// cycle) calls instead of Yield: it only reschedules if the timer
// actually requested one (spec.md §4.5).
func (c *Context) CheckPreempt() {
	if c.sched.clock != nil && c.sched.clock.ConsumeReschedule() {
		c.sched.Schedule()
	}
}

// Exit implements spec.md §4.6.5. It refuses PID 1.
func (c *Context) Exit(code int) error {
	if c.pcb.PID == IdlePID {
		return &Error{Kind: KillRefused, Msg: "proc: idle thread cannot exit"}
	}
	c.sched.exitCurrent(c.pcb, code)
	c.sched.cpu.Leave() // c.pcb never runs again; release the token exitCurrent's wake-up is waiting on
	runtime.Goexit()
	return nil // unreachable
}

// exitCurrent marks p terminated and hands the CPU to the next ready
// process without blocking the exiting goroutine (it is about to return
// or Goexit, never to run again).
func (s *Scheduler) exitCurrent(p *PCB, code int) {
	s.tableGuard.Enter()
	p.State = Terminated
	p.ExitCode = code
	if s.currentPID == p.PID {
		s.currentPID = 0
	}
	next := s.pickNext()
	if next != nil && next.PID != p.PID {
		next.State = Running
		s.currentPID = next.PID
		s.startOrResume(next)
	}
	s.tableGuard.Leave()
}

// Kill implements spec.md §4.6.5 for processes other than the caller:
// killing PID 0 or 1 is refused, and so is killing the current process
// (KillRefused); Kill does not terminate the current process itself, which
// ends only through its own Context.Exit.
func (s *Scheduler) Kill(pid int) error {
	if pid == 0 || pid == IdlePID {
		return &Error{Kind: KillRefused, Msg: "proc: cannot kill PID 0 or the idle thread"}
	}
	if pid == s.currentPID {
		// Handled by the caller's own Context.Exit(-1); Kill cannot
		// Goexit on behalf of a goroutine it isn't running on.
		return &Error{Kind: KillRefused, Msg: "proc: use Context.Exit to kill self"}
	}

	s.tableGuard.Enter()
	defer s.tableGuard.Leave()
	p := s.byPID(pid)
	if p == nil || p.State == Free {
		return &Error{Kind: InvalidPID, Msg: "proc: no such process"}
	}
	p.State = Terminated
	p.ExitCode = -1
	// The victim is not running (only the current PID ever is), so its
	// stack is free to reclaim immediately (spec.md §4.6.5): drop the
	// slot right away rather than waiting for the reaper.
	s.table[pid-1] = nil
	return nil
}

// Unblock transitions a blocked process back to ready.
func (s *Scheduler) Unblock(pid int) error {
	s.tableGuard.Enter()
	defer s.tableGuard.Leave()
	p := s.byPID(pid)
	if p == nil || p.State != Blocked {
		return &Error{Kind: InvalidPID, Msg: "proc: process not blocked"}
	}
	p.State = Ready
	return nil
}

// Block transitions the calling process to blocked and yields the CPU.
// It returns once another goroutine calls Unblock(pid) and the scheduler
// picks this process again.
func (c *Context) Block() {
	c.sched.tableGuard.Enter()
	c.pcb.State = Blocked
	c.sched.tableGuard.Leave()
	c.sched.Schedule()
}

// Lookup returns the live PCB for pid (not a copy: its fields keep
// changing as the scheduler runs), or nil if the slot is free.
func (s *Scheduler) Lookup(pid int) *PCB {
	s.tableGuard.Enter()
	defer s.tableGuard.Leave()
	return s.byPID(pid)
}

// CurrentPID returns the PID presently marked running, or 0 if none
// (bootstrap, or all processes blocked/terminated and idle has not yet
// been scheduled in).
func (s *Scheduler) CurrentPID() int {
	s.tableGuard.Enter()
	defer s.tableGuard.Leave()
	return s.currentPID
}
