package main

import (
	"os"
	"time"

	"github.com/cupidthecat/cupid-os/internal/desktop"
	"github.com/cupidthecat/cupid-os/internal/fat16"
	"github.com/cupidthecat/cupid-os/internal/fb"
	"github.com/cupidthecat/cupid-os/internal/heap"
	"github.com/cupidthecat/cupid-os/internal/kernlog"
	"github.com/cupidthecat/cupid-os/internal/pmm"
	"github.com/cupidthecat/cupid-os/internal/proc"
	"github.com/cupidthecat/cupid-os/internal/ramfs"
	"github.com/cupidthecat/cupid-os/internal/syscalltable"
	"github.com/cupidthecat/cupid-os/internal/timer"
	"github.com/cupidthecat/cupid-os/internal/vfs"
	"github.com/cupidthecat/cupid-os/internal/wm"
)

// defaultRAMBytes is the hosted stand-in for "32 MiB of RAM at a fixed
// base" spec.md §3 names as the physical frame table's default window.
const defaultRAMBytes = 32 * 1024 * 1024

// defaultFATBytes is the small FAT16 volume size cupid-os formats when no
// existing image is handed in.
const defaultFATBytes = 512 * 1024

// Kernel bundles every subsystem spec.md §2's dependency table lists, in
// the same leaf-to-root construction order: physical allocator → paging
// (not modeled separately — internal/pmm's Init reservation step plays
// that role in the hosted profile, see DESIGN.md) → heap+stack guard →
// timer/IRQ → processes → VFS+FAT16 → syscall table → window manager →
// desktop loop.
type Kernel struct {
	Log   *kernlog.Logger
	PMM   *pmm.Allocator
	Heap  *heap.Heap
	Clock *timer.Clock
	Sched *proc.Scheduler
	VFS   *vfs.VFS
	FAT   *fat16.Driver
	FB    *fb.Framebuffer
	WM    *wm.Manager
	Desk  *desktop.Desktop

	Registry *syscalltable.Registry
	Shell    *syscalltable.ShellState
}

// bootOptions configures a Kernel build; zero values pick the same
// defaults `boot` and `demo` share.
type bootOptions struct {
	ramBytes     uint32
	fatImagePath string // empty: ephemeral in-memory FAT volume
	fontPath     string
}

// bootKernel constructs a fully wired Kernel, mirroring spec.md §2's layer
// table. It never starts the scheduler or the desktop loop — callers
// decide how much of the stack to actually run.
func bootKernel(opts bootOptions, log *kernlog.Logger) (*Kernel, error) {
	if opts.ramBytes == 0 {
		opts.ramBytes = defaultRAMBytes
	}

	p := pmm.New(opts.ramBytes)
	p.Init(0) // hosted profile: no real kernel image occupies the arena

	h := heap.New(p, func(e *heap.FatalError) {
		log.Fatal(e.Kind.String(), e.Msg)
	})

	clk := timer.New()
	sched := proc.New(clk)
	sched.Enable()

	log.SetStats(func() kernlog.Stats {
		return kernlog.Stats{
			UptimeTicks: clk.UptimeTicks(),
			FreePages:   p.FreePages(),
			TotalPages:  p.TotalPages(),
		}
	})

	v := vfs.New()
	driver, err := loadOrFormatFAT(opts.fatImagePath)
	if err != nil {
		return nil, err
	}
	if err := mountFilesystems(v, driver); err != nil {
		return nil, err
	}

	fbuf := fb.New()
	wmgr := wm.New(fbuf)
	if opts.fontPath != "" {
		_ = wmgr.SetFontFace(opts.fontPath, 13)
	}

	desk := desktop.New(wmgr, fbuf)

	return &Kernel{
		Log:      log,
		PMM:      p,
		Heap:     h,
		Clock:    clk,
		Sched:    sched,
		VFS:      v,
		FAT:      driver,
		FB:       fbuf,
		WM:       wmgr,
		Desk:     desk,
		Registry: syscalltable.NewRegistry(),
		Shell:    syscalltable.NewShellState(),
	}, nil
}

// mountError adapts a vfs.Errno failure from Mount into a regular error,
// naming which mount point failed.
type mountError struct {
	path string
	err  vfs.Errno
}

func (e *mountError) Error() string { return "mount " + e.path + ": " + e.err.String() }

func mustMount(v *vfs.VFS, path, source string, ops *vfs.Ops) error {
	if err := v.Mount(path, source, ops); err != vfs.OK {
		return &mountError{path, err}
	}
	return nil
}

// mountFilesystems mounts spec.md §6's named mounts: an ephemeral ramfs
// root (spec.md §3: "the root mount / is always a last-resort match"),
// ramfs at /dev and /notes (spec.md §6: "purely ephemeral and are not
// persisted"), and driver's FAT16 volume at /home.
func mountFilesystems(v *vfs.VFS, driver *fat16.Driver) error {
	ramOps := ramfs.NewOps("ramfs")
	if err := mustMount(v, "/", "root", ramOps); err != nil {
		return err
	}
	if err := mustMount(v, "/dev", "dev", ramOps); err != nil {
		return err
	}
	if err := mustMount(v, "/notes", "notes", ramOps); err != nil {
		return err
	}
	fatOps := fat16.NewOps("fat16", driver)
	return mustMount(v, "/home", "fat16-volume", fatOps)
}

// loadOrFormatFAT reads an existing FAT16 image from path, or formats a
// fresh small volume if path is empty or does not exist yet.
func loadOrFormatFAT(path string) (*fat16.Driver, error) {
	if path == "" {
		return fat16.Format(defaultFATBytes, fat16.DefaultRootEntries), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fat16.Format(defaultFATBytes, fat16.DefaultRootEntries), nil
		}
		return nil, err
	}
	return fat16.Open(data, fat16.DefaultRootEntries)
}

// persistFAT writes k's FAT16 volume back to path, the hosted stand-in
// for "FAT partition contents are user-owned" (spec.md §6) actually
// surviving past one process's lifetime — end-to-end scenario 2's
// "a reboot followed by cat /home/t.txt" is only meaningful if this
// happens between the two cupidos invocations that play the part of
// "before reboot" and "after reboot".
func persistFAT(k *Kernel, path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, k.FAT.DiskImage(), 0o644)
}

// newLogger builds the Logger every subcommand shares: console output
// plus the bounded ring-buffer replay, halting the process on Fatal.
func newLogger() *kernlog.Logger {
	return kernlog.New(func(banner string) {
		os.Exit(1)
	})
}

func rtcNow() int64 { return time.Now().Unix() }
