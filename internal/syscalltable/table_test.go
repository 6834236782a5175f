package syscalltable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cupidthecat/cupid-os/internal/heap"
	"github.com/cupidthecat/cupid-os/internal/pmm"
	"github.com/cupidthecat/cupid-os/internal/proc"
	"github.com/cupidthecat/cupid-os/internal/ramfs"
	"github.com/cupidthecat/cupid-os/internal/timer"
	"github.com/cupidthecat/cupid-os/internal/vfs"
)

func newTestKernel(t *testing.T) (*pmm.Allocator, *heap.Heap, *vfs.VFS, *timer.Clock, *proc.Scheduler) {
	t.Helper()
	alloc := pmm.New(1 << 20)
	alloc.Init(0)
	h := heap.New(alloc, func(e *heap.FatalError) { t.Fatalf("heap fatal: %v", e) })
	v := vfs.New()
	require.Equal(t, vfs.OK, v.Mount("/notes", "ram", ramfs.NewOps("ramfs")))
	clk := timer.New()
	sched := proc.New(clk)
	sched.Enable()
	return alloc, h, v, clk, sched
}

func TestLaunchInvokesRegisteredUserMainWithWorkingSyscallTable(t *testing.T) {
	alloc, h, v, clk, sched := newTestKernel(t)
	shell := NewShellState()
	registry := NewRegistry()

	data := buildELF32(0x30000, 0x30000, []byte{0, 0, 0, 0}, 4)
	img, err := Load(data, alloc)
	require.NoError(t, err)

	var gotPID int
	var openErrno, writeErrno, closeErrno vfs.Errno
	registry.Register(img.EntryVaddr, func(sys *Table) {
		sys.Print("hello user program")

		fd, errno := sys.Open("/notes/x.txt", vfs.OWRONLY|vfs.OCREAT)
		openErrno = errno
		_, errno = sys.Write(fd, []byte("data"))
		writeErrno = errno
		closeErrno = sys.Close(fd)

		gotPID = sys.GetPID()
		sys.Exit(7)
	})

	var loggedPrint string
	build := func(ctx *proc.Context) *Table {
		return New(func(s string) { loggedPrint = s }, h, v, ctx, sched, clk, shell, func() int64 { return 0 })
	}

	pid, err := Launch(sched, registry, img, "demo", 0, build)
	require.NoError(t, err)

	sched.Schedule() // bootstrap hand-off
	pcb := sched.Lookup(pid)
	require.NotNil(t, pcb)
	select {
	case <-pcb.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("user program never finished")
	}

	require.Equal(t, vfs.OK, openErrno)
	require.Equal(t, vfs.OK, writeErrno)
	require.Equal(t, vfs.OK, closeErrno)
	require.Equal(t, "hello user program", loggedPrint)
	require.Equal(t, pid, gotPID)
	require.Equal(t, 7, pcb.ExitCode)

	fd, errno := v.Open("/notes/x.txt", vfs.ORDONLY)
	require.Equal(t, vfs.OK, errno)
	buf := make([]byte, 16)
	n, errno := v.Read(fd, buf)
	require.Equal(t, vfs.OK, errno)
	require.Equal(t, "data", string(buf[:n]))
}

func TestLaunchFailsForUnregisteredEntry(t *testing.T) {
	alloc, _, _, _, sched := newTestKernel(t)
	registry := NewRegistry()

	data := buildELF32(0x40000, 0x40000, []byte{1}, 4)
	img, err := Load(data, alloc)
	require.NoError(t, err)

	_, err = Launch(sched, registry, img, "x", 0, func(ctx *proc.Context) *Table { return nil })
	require.Error(t, err)
	require.Equal(t, LoadUnregisteredEntry, err.(*LoadError).Kind)
}

func TestNoOpGraphicsAndDialogFieldsAreSafeBeforeWMExists(t *testing.T) {
	_, h, v, clk, sched := newTestKernel(t)
	shell := NewShellState()

	var surfaceID, spriteID int
	var dialogOK bool
	pid, err := sched.Create(func(ctx *proc.Context) {
		sys := New(func(string) {}, h, v, ctx, sched, clk, shell, func() int64 { return 0 })
		sys.FillRect(0, 0, 10, 10, 0xFFFFFFFF)
		surfaceID = sys.AllocSurface(4, 4)
		spriteID = sys.AllocSprite(4, 4)
		_, dialogOK = sys.OpenDialog("/")
		ctx.Exit(0)
	}, "probe", 0, 0)
	require.NoError(t, err)

	sched.Schedule()
	pcb := sched.Lookup(pid)
	select {
	case <-pcb.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("probe process never finished")
	}

	require.Equal(t, -1, surfaceID)
	require.Equal(t, -1, spriteID)
	require.False(t, dialogOK)
}
