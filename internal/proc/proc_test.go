package proc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

func waitDone(t *testing.T, p *PCB) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("process %d (%s) never finished", p.PID, p.Name)
	}
}

func TestIdleIsPreinstalledAndUnkillable(t *testing.T) {
	s := New(nil)
	idle := s.Lookup(IdlePID)
	require.NotNil(t, idle)
	require.Equal(t, "idle", idle.Name)

	err := s.Kill(IdlePID)
	require.Error(t, err)
	require.Equal(t, KillRefused, err.(*Error).Kind)

	err = s.Kill(0)
	require.Error(t, err)
	require.Equal(t, KillRefused, err.(*Error).Kind)
}

func TestRoundRobinAlternatesBetweenTwoProcesses(t *testing.T) {
	s := New(nil)
	s.Enable()

	var mu sync.Mutex
	var order []string

	makeEntry := func(tag string, rounds int) Entry {
		return func(ctx *Context) {
			for i := 0; i < rounds; i++ {
				mu.Lock()
				order = append(order, tag)
				mu.Unlock()
				ctx.Yield()
			}
		}
	}

	pidA, err := s.Create(makeEntry("A", 3), "a", 0, 0)
	require.NoError(t, err)
	pidB, err := s.Create(makeEntry("B", 3), "b", 0, 0)
	require.NoError(t, err)

	s.Schedule() // bootstrap hand-off

	pa := s.Lookup(pidA)
	pb := s.Lookup(pidB)
	waitDone(t, pa)
	waitDone(t, pb)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 6)
	require.Equal(t, []string{"A", "B", "A", "B", "A", "B"}, order)
}

func TestNaturalReturnIsEquivalentToExitZero(t *testing.T) {
	s := New(nil)
	s.Enable()

	pid, err := s.Create(func(ctx *Context) {}, "quick", 0, 0)
	require.NoError(t, err)

	s.Schedule()
	p := s.Lookup(pid)
	waitDone(t, p)

	got := s.Lookup(pid)
	require.Equal(t, Terminated, got.State)
	require.Equal(t, 0, got.ExitCode)
}

func TestExitFreesSlotForReaperOnNextCreate(t *testing.T) {
	s := New(nil)
	s.Enable()

	pid1, err := s.Create(func(ctx *Context) { ctx.Exit(7) }, "first", 0, 0)
	require.NoError(t, err)
	s.Schedule()
	waitDone(t, s.Lookup(pid1))

	// The terminated slot is still present until the reaper runs during
	// the next Create's free-slot search.
	require.Equal(t, Terminated, s.Lookup(pid1).State)

	pid2, err := s.Create(func(ctx *Context) {}, "second", 0, 0)
	require.NoError(t, err)
	require.Equal(t, pid1, pid2, "reaper should reclaim the terminated slot")
}

func TestKillOfNonCurrentProcessFreesSlotImmediately(t *testing.T) {
	s := New(nil)
	s.Enable()

	blockCh := make(chan struct{})
	pid, err := s.Create(func(ctx *Context) {
		ctx.Block()
		close(blockCh)
	}, "victim", 0, 0)
	require.NoError(t, err)

	s.Schedule() // hand control to victim, which immediately blocks
	require.Eventually(t, func() bool {
		p := s.Lookup(pid)
		return p != nil && p.State == Blocked
	}, waitTimeout, time.Millisecond)

	require.NoError(t, s.Kill(pid))
	require.Nil(t, s.Lookup(pid), "killed non-current process frees its slot immediately")
}

func TestBlockThenUnblockResumes(t *testing.T) {
	s := New(nil)
	s.Enable()

	resumed := make(chan struct{})
	pid, err := s.Create(func(ctx *Context) {
		ctx.Block()
		close(resumed)
	}, "sleeper", 0, 0)
	require.NoError(t, err)

	s.Schedule()
	require.Eventually(t, func() bool {
		p := s.Lookup(pid)
		return p != nil && p.State == Blocked
	}, waitTimeout, time.Millisecond)

	// Idle is the only other ready process and loops on Yield forever, so
	// once victim is Ready again the round robin hands it the CPU without
	// any further help from this goroutine.
	require.NoError(t, s.Unblock(pid))

	select {
	case <-resumed:
	case <-time.After(waitTimeout):
		t.Fatal("unblocked process never resumed")
	}
}

func TestFourProcessesSharedCounterReachesExpectedTotal(t *testing.T) {
	s := New(nil)
	s.Enable()

	var mu sync.Mutex
	counter := 0
	const perProc = 200

	entry := func(ctx *Context) {
		for i := 0; i < perProc; i++ {
			mu.Lock()
			counter++
			mu.Unlock()
			ctx.Yield()
		}
	}

	pids := make([]*PCB, 0, 4)
	for i := 0; i < 4; i++ {
		pid, err := s.Create(entry, "worker", 0, 0)
		require.NoError(t, err)
		pids = append(pids, s.Lookup(pid))
	}

	s.Schedule()
	for _, p := range pids {
		waitDone(t, p)
	}

	require.Equal(t, 4*perProc, counter)
}
