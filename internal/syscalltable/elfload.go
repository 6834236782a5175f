package syscalltable

import (
	"debug/elf"
	"fmt"
	"io"
	"sync"

	"github.com/cupidthecat/cupid-os/internal/pmm"
	"github.com/cupidthecat/cupid-os/internal/proc"
)

// LoadErr classifies why a user program image was rejected, spec.md
// §4.9's loader step 1 ("validates ELF32 header").
type LoadErr int

const (
	LoadOK LoadErr = iota
	LoadMalformed
	LoadWrongClass
	LoadWrongMachine
	LoadWrongType
	LoadNoSegments
	LoadNoSpace
	LoadUnregisteredEntry
)

func (k LoadErr) String() string {
	switch k {
	case LoadMalformed:
		return "malformed ELF image"
	case LoadWrongClass:
		return "not a 32-bit ELF"
	case LoadWrongMachine:
		return "not an i386 binary"
	case LoadWrongType:
		return "not an executable ELF"
	case LoadNoSegments:
		return "no PT_LOAD segments"
	case LoadNoSpace:
		return "no contiguous physical region large enough"
	case LoadUnregisteredEntry:
		return "entry point has no registered trampoline"
	default:
		return "ok"
	}
}

// LoadError is the error type every loader failure returns.
type LoadError struct {
	Kind LoadErr
	Msg  string
}

func (e *LoadError) Error() string { return fmt.Sprintf("syscalltable: %s: %s", e.Kind, e.Msg) }

// UserMain is the Go body a loaded program's entry point resolves to.
//
// Real ELF32 i386 opcodes cannot be executed by a hosted Go process
// without a CPU emulator, which this exercise's hosted-simulation
// approach (see package doc and spec.md's "two divergent profiles" open
// question) does not build. Unlike the scheduler's context switch — where
// a goroutine genuinely is an adequate stand-in for a kernel thread — there
// is no portable Go idiom for interpreting a foreign instruction set.
// cupid-os resolves this the same way it resolves "what does canary
// poisoning look like without a real segfault": with an explicit,
// narrow substitution recorded here rather than a silent approximation.
// The loader therefore faithfully performs every byte-level step spec.md
// §4.9 describes (header validation, segment placement, BSS zeroing) and
// then, instead of jumping to the placed machine code, resolves the
// image's entry virtual address through a Registry to the Go function
// standing in for that program.
type UserMain func(sys *Table)

// Registry maps an entry virtual address to the UserMain trampoline that
// represents "the code linked at that address" in this hosted world.
type Registry struct {
	mu      sync.Mutex
	byEntry map[uint32]UserMain
}

// NewRegistry creates an empty entry-point registry.
func NewRegistry() *Registry {
	return &Registry{byEntry: make(map[uint32]UserMain)}
}

// Register associates entryVaddr (the value an ELF image's e_entry field
// will carry) with fn. Test fixtures (hand-built ELF32 images) and
// cmd/cupidos's `demo` subcommand (a hand-built Image) both use a fixed,
// known entry address so this association can be set up ahead of the
// real load.
func (r *Registry) Register(entryVaddr uint32, fn UserMain) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byEntry[entryVaddr] = fn
}

func (r *Registry) lookup(entryVaddr uint32) (UserMain, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, ok := r.byEntry[entryVaddr]
	return fn, ok
}

// Image is a validated ELF32 program placed in the physical arena.
type Image struct {
	EntryVaddr uint32
	BaseVaddr  uint32
	Size       uint32
	Region     pmm.Addr
}

// Load implements spec.md §4.9's loader steps 1–3: validate the ELF32
// header, compute the minimum PT_LOAD virtual address, allocate a
// contiguous physical region sized to cover every segment (including
// BSS), copy each segment's file bytes to its (vaddr - min) offset, and
// zero the rest (which covers BSS without a separate memset loop, since
// the whole region is zeroed before any segment is copied in).
func Load(data []byte, alloc *pmm.Allocator) (*Image, error) {
	f, err := elf.NewFile(&sliceReaderAt{data})
	if err != nil {
		return nil, &LoadError{Kind: LoadMalformed, Msg: err.Error()}
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS32 {
		return nil, &LoadError{Kind: LoadWrongClass, Msg: f.Class.String()}
	}
	if f.Machine != elf.EM_386 {
		return nil, &LoadError{Kind: LoadWrongMachine, Msg: f.Machine.String()}
	}
	if f.Type != elf.ET_EXEC {
		return nil, &LoadError{Kind: LoadWrongType, Msg: f.Type.String()}
	}

	var loads []*elf.Prog
	for _, p := range f.Progs {
		if p.Type == elf.PT_LOAD {
			loads = append(loads, p)
		}
	}
	if len(loads) == 0 {
		return nil, &LoadError{Kind: LoadNoSegments}
	}

	minVaddr := uint32(loads[0].Vaddr)
	maxEnd := uint32(0)
	for _, p := range loads {
		if uint32(p.Vaddr) < minVaddr {
			minVaddr = uint32(p.Vaddr)
		}
		if end := uint32(p.Vaddr) + uint32(p.Memsz); end > maxEnd {
			maxEnd = end
		}
	}
	totalSize := maxEnd - minVaddr

	pages := (totalSize + pmm.PageSize - 1) / pmm.PageSize
	if pages == 0 {
		pages = 1
	}
	base, ok := alloc.AllocContiguous(pages)
	if !ok {
		return nil, &LoadError{Kind: LoadNoSpace, Msg: fmt.Sprintf("need %d pages", pages)}
	}
	region, err := alloc.Slice(base, pages*pmm.PageSize)
	if err != nil {
		return nil, &LoadError{Kind: LoadNoSpace, Msg: err.Error()}
	}
	for i := range region {
		region[i] = 0
	}

	for _, p := range loads {
		segData, err := io.ReadAll(p.Open())
		if err != nil {
			return nil, &LoadError{Kind: LoadMalformed, Msg: err.Error()}
		}
		off := uint32(p.Vaddr) - minVaddr
		copy(region[off:off+uint32(len(segData))], segData)
	}

	return &Image{
		EntryVaddr: uint32(f.Entry),
		BaseVaddr:  minVaddr,
		Size:       totalSize,
		Region:     base,
	}, nil
}

// sliceReaderAt adapts a []byte to io.ReaderAt, which is what
// debug/elf.NewFile requires and the package would otherwise have no
// reason to need an *os.File for (the image lives in memory, never on a
// host filesystem path).
type sliceReaderAt struct{ data []byte }

func (s *sliceReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// TableBuilder constructs a fresh per-process syscall table once a user
// program's entry Context exists (spec.md §4.9 step 4: "invokes
// `_start(&syscall_table)` on a fresh process").
type TableBuilder func(ctx *proc.Context) *Table

// Launch implements spec.md §4.9 step 4: it resolves img's entry point
// through registry and spawns a process whose body builds a syscall
// table and calls the resolved UserMain. "exit is the only clean return
// path" (a normal Go return also falls through to proc's own
// natural-return-is-exit(0) handling, so a UserMain that simply returns
// still behaves correctly).
func Launch(sched *proc.Scheduler, registry *Registry, img *Image, name string, priority int, build TableBuilder) (int, error) {
	fn, ok := registry.lookup(img.EntryVaddr)
	if !ok {
		return 0, &LoadError{Kind: LoadUnregisteredEntry, Msg: fmt.Sprintf("entry %#x", img.EntryVaddr)}
	}
	entry := func(ctx *proc.Context) {
		sys := build(ctx)
		fn(sys)
	}
	return sched.Create(entry, name, proc.MinStack, priority)
}
