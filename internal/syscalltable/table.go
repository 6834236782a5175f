// Package syscalltable implements spec.md §4.9 (C7): the single
// append-only record of function pointers passed to every user program's
// `_start`, and the ELF32 loader that places those programs in memory
// and invokes them.
//
// The syscall table layout is the ABI; implementations that reorder or
// remove entries break all compiled user binaries — in
// this hosted simulation a Go struct's field order stands in for the C
// record's fixed offsets, so fields are only ever appended at the end of
// a group, never reordered or removed, mirroring the append-only
// discipline the teacher's own `_examples` sibling repos apply to wire
// protocols rather than to a syscall ABI specifically.
package syscalltable

import (
	"github.com/cupidthecat/cupid-os/internal/heap"
	"github.com/cupidthecat/cupid-os/internal/proc"
	"github.com/cupidthecat/cupid-os/internal/timer"
	"github.com/cupidthecat/cupid-os/internal/vfs"
)

// EventKind distinguishes the two device classes the ring buffers carry.
type EventKind int

const (
	EventNone EventKind = iota
	EventKey
	EventMouse
)

// Event is the hosted stand-in for a dequeued keyboard/mouse IRQ record
// (spec.md §4.5, "key/mouse IRQs feed ring buffers"). internal/desktop
// owns the real ring buffers and wires ReadEvent to drain them once it
// exists; until then ReadEvent reports no event.
type Event struct {
	Kind      EventKind
	Key       rune
	Pressed   bool
	MouseX    int
	MouseY    int
	MouseBtns int
	// MouseScroll carries the scroll wheel delta routed straight to the
	// focused app (spec.md §4.10.5 step 1: "Route scroll to the focused
	// app"), appended here rather than inserted among the existing mouse
	// fields per this table's append-only discipline.
	MouseScroll int
}

// Table is the kernel's single record of function pointers, covering
// every group spec.md §4.9 names: stdio, memory, VFS, process, graphics,
// widgets, modal dialogs, time, and shell state. Graphics/widgets/dialog
// fields are valid (non-nil) zero-argument-safe fields from the moment New
// returns, defaulting to no-ops; internal/wm's WireInto later replaces
// only ConfirmDialog and MessageDialog, and the rest stay no-ops. A user
// program launched
// before a window manager is attached never dereferences a nil pointer.
type Table struct {
	// stdio
	Print     func(s string)
	Putchar   func(c byte)
	ReadEvent func() (Event, bool)

	// memory
	Alloc func(size uint32, tag string) []byte
	Free  func(p []byte)

	// vfs
	Open    func(path string, flags vfs.OpenFlag) (int, vfs.Errno)
	Read    func(fd int, buf []byte) (int, vfs.Errno)
	Write   func(fd int, buf []byte) (int, vfs.Errno)
	Seek    func(fd int, offset int64, whence int) (int64, vfs.Errno)
	Close   func(fd int) vfs.Errno
	Readdir func(fd int) (vfs.DirEnt, bool, vfs.Errno)
	Stat    func(path string) (vfs.DirEnt, vfs.Errno)
	Mkdir   func(path string) vfs.Errno
	Unlink  func(path string) vfs.Errno
	Rename  func(oldPath, newPath string) vfs.Errno
	Copy    func(oldPath, newPath string) vfs.Errno

	// process
	Yield  func()
	Exit   func(code int)
	Create func(entry proc.Entry, name string, stackSize uint32, priority int) (int, error)
	Kill   func(pid int) error
	GetPID func() int

	// graphics — no-op defaults; nothing in this repository replaces them.
	DrawLine     func(x0, y0, x1, y1 int, rgba uint32)
	FillRect     func(x, y, w, h int, rgba uint32)
	AllocSurface func(w, h int) int
	FreeSurface  func(id int)
	BlitSurface  func(id, x, y int)
	AllocSprite  func(w, h int) int
	SetBlendMode func(mode int)

	// widgets — no-op defaults; nothing in this repository replaces them.
	Button   func(label string, x, y, w, h int, onClick func()) int
	Checkbox func(label string, x, y int, checked bool, onToggle func(bool)) int
	Slider   func(x, y, w int, min, max, value int, onChange func(int)) int

	// modal dialogs — internal/wm's WireInto replaces ConfirmDialog and
	// MessageDialog; the others keep their no-op defaults.
	OpenDialog    func(startDir string) (string, bool)
	SaveDialog    func(startDir, suggested string) (string, bool)
	ConfirmDialog func(prompt string) bool
	InputDialog   func(prompt, initial string) (string, bool)
	MessageDialog func(msg string)
	PopupMenu     func(items []string) (int, bool)

	// time
	Uptime  func() uint64
	RTCRead func() int64

	// shell state
	Cwd    func() string
	SetCwd func(path string)
}

func noOpEvent() (Event, bool)                               { return Event{}, false }
func noOpDrawLine(int, int, int, int, uint32)                {}
func noOpFillRect(int, int, int, int, uint32)                {}
func noOpAllocSurface(int, int) int                          { return -1 }
func noOpFreeSurface(int)                                    {}
func noOpBlitSurface(int, int, int)                          {}
func noOpAllocSprite(int, int) int                           { return -1 }
func noOpSetBlendMode(int)                                   {}
func noOpButton(string, int, int, int, int, func()) int      { return -1 }
func noOpCheckbox(string, int, int, bool, func(bool)) int    { return -1 }
func noOpSlider(int, int, int, int, int, int, func(int)) int { return -1 }
func noOpOpenDialog(string) (string, bool)                   { return "", false }
func noOpSaveDialog(string, string) (string, bool)           { return "", false }
func noOpConfirmDialog(string) bool                          { return false }
func noOpInputDialog(string, string) (string, bool)          { return "", false }
func noOpMessageDialog(string)                               {}
func noOpPopupMenu([]string) (int, bool)                     { return -1, false }

// ShellState is the minimal "current working directory" cell spec.md
// §4.9 lists under "shell state". The value lives in this cell; the
// table's Cwd/SetCwd forward to it.
type ShellState struct {
	cwd string
}

// NewShellState starts a shell's working directory at "/".
func NewShellState() *ShellState { return &ShellState{cwd: "/"} }

func (s *ShellState) Cwd() string     { return s.cwd }
func (s *ShellState) SetCwd(p string) { s.cwd = p }

// New builds the stdio/memory/VFS/process/time/shell groups from the
// already-constructed kernel subsystems. It is built once per running
// process, not once per kernel: the process group's Yield/Exit/GetPID
// must act on the calling process's own Context (spec.md §4.9's
// `_start(&syscall_table)` is itself that process's entry point), while
// Create/Kill act on the shared scheduler since they target arbitrary
// PIDs. Graphics/widget/dialog entries start as harmless no-ops;
// internal/wm's WireInto replaces them once a window manager is
// attached. print is the hosted stand-in for the teacher's serial/VGA
// text output.
func New(print func(string), h *heap.Heap, v *vfs.VFS, ctx *proc.Context, sched *proc.Scheduler, clk *timer.Clock, shell *ShellState, rtc func() int64) *Table {
	t := &Table{
		Print:     print,
		Putchar:   func(c byte) { print(string(rune(c))) },
		ReadEvent: noOpEvent,

		Alloc: h.Alloc,
		Free:  h.Free,

		Open:    v.Open,
		Read:    v.Read,
		Write:   v.Write,
		Seek:    v.Seek,
		Close:   v.Close,
		Readdir: v.Readdir,
		Stat:    v.Stat,
		Mkdir:   v.Mkdir,
		Unlink:  v.Unlink,
		Rename:  v.Rename,
		Copy:    v.Copy,

		Yield:  ctx.Yield,
		Exit:   func(code int) { ctx.Exit(code) },
		Create: sched.Create,
		Kill:   sched.Kill,
		GetPID: ctx.PID,

		DrawLine:     noOpDrawLine,
		FillRect:     noOpFillRect,
		AllocSurface: noOpAllocSurface,
		FreeSurface:  noOpFreeSurface,
		BlitSurface:  noOpBlitSurface,
		AllocSprite:  noOpAllocSprite,
		SetBlendMode: noOpSetBlendMode,

		Button:   noOpButton,
		Checkbox: noOpCheckbox,
		Slider:   noOpSlider,

		OpenDialog:    noOpOpenDialog,
		SaveDialog:    noOpSaveDialog,
		ConfirmDialog: noOpConfirmDialog,
		InputDialog:   noOpInputDialog,
		MessageDialog: noOpMessageDialog,
		PopupMenu:     noOpPopupMenu,

		Uptime:  clk.UptimeTicks,
		RTCRead: rtc,

		Cwd:    shell.Cwd,
		SetCwd: shell.SetCwd,
	}
	return t
}
