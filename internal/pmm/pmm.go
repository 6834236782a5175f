// Package pmm is the physical page allocator (spec.md §4.1, C1).
//
// A bit per page over a fixed RAM window tracks allocation state (bit set =
// allocated). cupid-os backs the window with a real []byte arena so that
// internal/heap can carve genuine, byte-addressable memory out of whatever
// pages it is handed — the same relationship the teacher's page.go and
// heap.go have, just without a real MMU underneath.
//
// Grounded on the teacher's src/mazboot/golang/main/page.go (free-list
// page metadata, reservation-before-first-allocation discipline), adapted
// to the bitmap model spec.md §3/§4.1 specifies (the teacher's own page
// allocator uses a linked free list, not a bitmap; the richer bitmap
// profile is what this spec calls for).
package pmm

import "fmt"

// PageSize is the allocation granularity.
const PageSize = 4096

// Addr is a physical address (offset into the simulated RAM window).
type Addr uint32

// Allocator is a bitmap physical frame allocator over a fixed RAM window.
type Allocator struct {
	ram       []byte // the simulated RAM window; len(ram) == total*PageSize
	bitmap    []uint64
	total     uint32
	free      uint32
	lastFound uint32 // next-fit cursor, speeds up alloc_page
}

// New creates an allocator over a ramSize-byte window, rounded down to a
// whole number of pages. It does not reserve anything; callers call Init
// (or Reserve directly) before serving allocations, matching spec.md
// §4.1's init(kernel_end) contract.
func New(ramSize uint32) *Allocator {
	total := ramSize / PageSize
	a := &Allocator{
		ram:    make([]byte, uint64(total)*PageSize),
		bitmap: make([]uint64, (total+63)/64),
		total:  total,
		free:   total,
	}
	return a
}

// TotalPages returns the number of pages in the RAM window.
func (a *Allocator) TotalPages() uint32 { return a.total }

// FreePages returns the number of currently-unallocated pages.
func (a *Allocator) FreePages() uint32 { return a.free }

// RAM exposes the backing arena so higher layers (internal/heap) can read
// and write real bytes at the addresses this allocator hands out.
func (a *Allocator) RAM() []byte { return a.ram }

func (a *Allocator) bitSet(page uint32) bool {
	return a.bitmap[page/64]&(1<<(page%64)) != 0
}

func (a *Allocator) setBit(page uint32) {
	a.bitmap[page/64] |= 1 << (page % 64)
}

func (a *Allocator) clearBit(page uint32) {
	a.bitmap[page/64] &^= 1 << (page % 64)
}

// Init reserves the fixed regions spec.md §4.1 requires be set before any
// allocation request is served: [0, kernelEnd) rounded up to a page, plus
// whatever extra regions the caller passes (the BIOS/VGA hole, the kernel
// stack window, JIT/AOT execution windows, the framebuffer range).
func (a *Allocator) Init(kernelEnd uint32, extra ...Region) {
	a.Reserve(0, kernelEnd)
	for _, r := range extra {
		a.Reserve(r.Start, r.Size)
	}
}

// Region is a physical address range, used for the reservations Init
// accepts.
type Region struct {
	Start Addr
	Size  uint32
}

// AllocContiguous is a first-fit scan for a run of n free pages. It
// returns (base, true) on success and sets all n bits; it returns (0,
// false) on exhaustion without panicking (spec.md §4.1: "the allocator
// never panics on its own").
func (a *Allocator) AllocContiguous(n uint32) (Addr, bool) {
	if n == 0 || n > a.total {
		return 0, false
	}
	runStart := uint32(0)
	runLen := uint32(0)
	for p := uint32(0); p < a.total; p++ {
		if a.bitSet(p) {
			runLen = 0
			continue
		}
		if runLen == 0 {
			runStart = p
		}
		runLen++
		if runLen == n {
			for i := runStart; i < runStart+n; i++ {
				a.setBit(i)
			}
			a.free -= n
			return Addr(runStart) * PageSize, true
		}
	}
	return 0, false
}

// AllocPage is AllocContiguous(1), permitted a faster path via the
// next-fit cursor (spec.md §4.1).
func (a *Allocator) AllocPage() (Addr, bool) {
	for i := uint32(0); i < a.total; i++ {
		p := (a.lastFound + i) % a.total
		if !a.bitSet(p) {
			a.setBit(p)
			a.free--
			a.lastFound = (p + 1) % a.total
			return Addr(p) * PageSize, true
		}
	}
	return 0, false
}

// FreePage clears the bit for the page containing addr. Misaligned or
// out-of-range addresses are no-ops, per spec.md §4.1's defensive stance.
func (a *Allocator) FreePage(addr Addr) {
	if uint32(addr)%PageSize != 0 {
		return
	}
	page := uint32(addr) / PageSize
	if page >= a.total {
		return
	}
	if a.bitSet(page) {
		a.clearBit(page)
		a.free++
	}
}

// Reserve sets the bits covering [start, start+size), rounded
// outward to page boundaries. Reserving an already-reserved region is
// idempotent (spec.md §8 P3).
func (a *Allocator) Reserve(start Addr, size uint32) {
	if size == 0 {
		return
	}
	first := uint32(start) / PageSize
	last := (uint32(start) + size - 1) / PageSize
	for p := first; p <= last && p < a.total; p++ {
		if !a.bitSet(p) {
			a.setBit(p)
			a.free--
		}
	}
}

// ReleaseRegion clears the bits covering [start, start+size), rounded
// outward to page boundaries.
func (a *Allocator) ReleaseRegion(start Addr, size uint32) {
	if size == 0 {
		return
	}
	first := uint32(start) / PageSize
	last := (uint32(start) + size - 1) / PageSize
	for p := first; p <= last && p < a.total; p++ {
		if a.bitSet(p) {
			a.clearBit(p)
			a.free++
		}
	}
}

// Slice returns the byte range backing [addr, addr+size) in the simulated
// RAM window, for callers (internal/heap) that need to read or write
// through a physical address.
func (a *Allocator) Slice(addr Addr, size uint32) ([]byte, error) {
	end := uint64(addr) + uint64(size)
	if end > uint64(len(a.ram)) {
		return nil, fmt.Errorf("pmm: range [%#x,%#x) out of bounds (ram=%#x)", addr, end, len(a.ram))
	}
	return a.ram[addr:end], nil
}
