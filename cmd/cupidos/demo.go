package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/cupidthecat/cupid-os/internal/proc"
	"github.com/cupidthecat/cupid-os/internal/syscalltable"
	"github.com/cupidthecat/cupid-os/internal/vfs"
)

// newDemoCmd builds the `cupidos demo` subcommand: a scripted run of the
// three of spec.md §8's end-to-end scenarios that need a live scheduler
// or window manager rather than a single CLI invocation — scenario 3
// (opening a window focuses it and unfocuses whatever had focus),
// scenario 4 (a user program's open() on a missing path returns NOENT),
// and scenario 5 (4 cooperative processes racing a shared counter to
// 4,000,000 in lockstep via yield()).
func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "run scripted demonstrations of the scheduler and window manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			defer log.Sync()

			k, err := bootKernel(bootOptions{}, log)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := demoWindows(out, k); err != nil {
				return err
			}
			if err := demoUserOpen(out, k); err != nil {
				return err
			}
			return demoCounter(out, k)
		},
	}
	return cmd
}

// demoWindows plays out scenario 3: opening "Terminal" after "Notes" puts
// Terminal at the top of the z-order and focused, with Notes no longer
// focused.
func demoWindows(out io.Writer, k *Kernel) error {
	notes, err := k.WM.Create("Notes", 40, 40, 300, 200, nil, nil, nil)
	if err != nil {
		return err
	}
	term, err := k.WM.Create("Terminal", 80, 80, 400, 260, nil, nil, nil)
	if err != nil {
		return err
	}

	top := k.WM.Windows()[len(k.WM.Windows())-1]
	fmt.Fprintf(out, "window manager: top window=%q focused=%v, Notes focused=%v\n",
		top.Title, term.Focused(), notes.Focused())
	return nil
}

// demoUserOpen plays out scenario 4: a user program's open() call on a
// nonexistent path returns the NOENT kind. Rather than hand-assembling a
// real ELF32 image, it builds the syscalltable.Image the loader would
// have produced and hands it to Launch directly — the loader's own byte-
// level placement logic is exercised separately by internal/syscalltable's
// own tests, so this demo exercises the registry/table-building half of
// spec.md §4.9 step 4 instead.
func demoUserOpen(out io.Writer, k *Kernel) error {
	const entryVaddr = 0x08048000

	result := make(chan vfs.Errno, 1)
	k.Registry.Register(entryVaddr, func(sys *syscalltable.Table) {
		_, errno := sys.Open("/no/such", vfs.ORDONLY)
		result <- errno
	})

	build := func(ctx *proc.Context) *syscalltable.Table {
		print := func(s string) { fmt.Fprint(out, s) }
		return syscalltable.New(print, k.Heap, k.VFS, ctx, k.Sched, k.Clock, k.Shell, rtcNow)
	}
	img := &syscalltable.Image{EntryVaddr: entryVaddr}
	if _, err := syscalltable.Launch(k.Sched, k.Registry, img, "user-open-demo", 0, build); err != nil {
		return err
	}
	k.Sched.Schedule()

	errno := <-result
	fmt.Fprintf(out, "user program: open(\"/no/such\") = %s\n", errno)
	return nil
}

// demoCounter plays out scenario 5 literally: 4 processes each run
// 1,000,000 increments of a shared counter, calling Yield() every 100
// increments, guarded by a mutex standing in for the single-CPU critical
// section every other shared-state singleton uses (internal/critsec
// guards the scheduler's own table the same way).
func demoCounter(out io.Writer, k *Kernel) error {
	const workers = 4
	const perWorker = 1_000_000
	const yieldEvery = 100

	var mu sync.Mutex
	counter := 0
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		_, err := k.Sched.Create(func(ctx *proc.Context) {
			defer wg.Done()
			for n := 0; n < perWorker; n++ {
				mu.Lock()
				counter++
				mu.Unlock()
				if (n+1)%yieldEvery == 0 {
					ctx.Yield()
				}
			}
		}, fmt.Sprintf("counter-worker-%d", i), 8192, 0)
		if err != nil {
			return err
		}
	}

	k.Sched.Schedule()
	wg.Wait()

	fmt.Fprintf(out, "scheduler: %d workers incremented shared counter to %d\n", workers, counter)
	return nil
}
