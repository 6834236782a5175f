package pmm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocContiguousMarksAllBits(t *testing.T) {
	a := New(1 * 1024 * 1024) // 256 pages
	base, ok := a.AllocContiguous(4)
	require.True(t, ok)
	require.Zero(t, uint32(base)%PageSize)

	// P2: all n pages are now set.
	for i := uint32(0); i < 4; i++ {
		page := uint32(base)/PageSize + i
		require.True(t, a.bitSet(page))
	}
}

func TestAllocConservesAccounting(t *testing.T) {
	a := New(64 * 1024) // 16 pages
	total := a.TotalPages()

	var allocated []Addr
	for i := 0; i < 5; i++ {
		addr, ok := a.AllocPage()
		require.True(t, ok)
		allocated = append(allocated, addr)
	}
	require.Equal(t, total-5, a.FreePages())

	a.FreePage(allocated[0])
	require.Equal(t, total-4, a.FreePages())

	// P1: allocated-minus-freed equals total-free at every point.
	require.Equal(t, total-uint32(len(allocated)-1), a.FreePages())
}

func TestAllocExhaustion(t *testing.T) {
	a := New(2 * PageSize) // 2 pages
	_, ok := a.AllocContiguous(2)
	require.True(t, ok)

	_, ok = a.AllocContiguous(1)
	require.False(t, ok, "allocator must return false, not panic, on exhaustion")
}

func TestReserveIsIdempotent(t *testing.T) {
	a := New(16 * PageSize)
	a.Reserve(0, 4*PageSize)
	free1 := a.FreePages()
	a.Reserve(0, 4*PageSize) // overlapping reservation
	require.Equal(t, free1, a.FreePages(), "P3: re-reserving an overlapping region is idempotent")
}

func TestFreePageMisalignedIsNoop(t *testing.T) {
	a := New(4 * PageSize)
	before := a.FreePages()
	a.FreePage(Addr(7)) // not page-aligned
	a.FreePage(Addr(1 << 30)) // out of range
	require.Equal(t, before, a.FreePages())
}

func TestInitReservesKernelImageAndExtras(t *testing.T) {
	a := New(32 * 1024 * 1024)
	fbBase := Addr(16 * 1024 * 1024)
	a.Init(64*1024, Region{Start: fbBase, Size: 640 * 480 * 4})

	// kernel image pages are gone
	base, ok := a.AllocContiguous(1)
	require.True(t, ok)
	require.GreaterOrEqual(t, uint32(base), uint32(64*1024))
}
