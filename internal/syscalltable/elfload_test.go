package syscalltable

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cupidthecat/cupid-os/internal/pmm"
)

// buildELF32 hand-assembles a minimal ELF32/i386/ET_EXEC image with one
// PT_LOAD segment, since debug/elf only reads ELF images and the pack
// carries no ELF writer to borrow from.
func buildELF32(vaddr, entry uint32, payload []byte, memsz uint32) []byte {
	const ehdrSize = 52
	const phdrSize = 32
	fileOff := uint32(ehdrSize + phdrSize)

	buf := make([]byte, fileOff+uint32(len(payload)))
	le := binary.LittleEndian

	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = 1 // ELFCLASS32
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT

	le.PutUint16(buf[16:], 2) // e_type: ET_EXEC
	le.PutUint16(buf[18:], 3) // e_machine: EM_386
	le.PutUint32(buf[20:], 1) // e_version
	le.PutUint32(buf[24:], entry)
	le.PutUint32(buf[28:], ehdrSize) // e_phoff
	le.PutUint32(buf[32:], 0)        // e_shoff
	le.PutUint32(buf[36:], 0)        // e_flags
	le.PutUint16(buf[40:], ehdrSize)
	le.PutUint16(buf[42:], phdrSize)
	le.PutUint16(buf[44:], 1) // e_phnum
	le.PutUint16(buf[46:], 0)
	le.PutUint16(buf[48:], 0)
	le.PutUint16(buf[50:], 0)

	ph := buf[ehdrSize:]
	le.PutUint32(ph[0:], 1)                      // p_type: PT_LOAD
	le.PutUint32(ph[4:], fileOff)                // p_offset
	le.PutUint32(ph[8:], vaddr)                  // p_vaddr
	le.PutUint32(ph[12:], vaddr)                 // p_paddr
	le.PutUint32(ph[16:], uint32(len(payload)))  // p_filesz
	le.PutUint32(ph[20:], memsz)                 // p_memsz
	le.PutUint32(ph[24:], 5)                     // p_flags: R+X
	le.PutUint32(ph[28:], 0x1000)                // p_align

	copy(buf[fileOff:], payload)
	return buf
}

func TestLoadPlacesSegmentAndZeroFillsBSS(t *testing.T) {
	alloc := pmm.New(1 << 20)
	alloc.Init(0)

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	data := buildELF32(0x10000, 0x10000, payload, 16)

	img, err := Load(data, alloc)
	require.NoError(t, err)
	require.Equal(t, uint32(0x10000), img.EntryVaddr)
	require.Equal(t, uint32(0x10000), img.BaseVaddr)
	require.EqualValues(t, 16, img.Size)

	mem, err := alloc.Slice(img.Region, pmm.PageSize)
	require.NoError(t, err)
	require.Equal(t, payload, mem[:4])
	require.Equal(t, make([]byte, 12), mem[4:16], "bytes beyond filesz must be zeroed (BSS)")
}

func TestLoadRejectsWrongMachine(t *testing.T) {
	alloc := pmm.New(1 << 20)
	alloc.Init(0)

	data := buildELF32(0x1000, 0x1000, []byte{1, 2, 3, 4}, 4)
	// Overwrite e_machine with EM_ARM (40) instead of EM_386 (3).
	binary.LittleEndian.PutUint16(data[18:], 40)

	_, err := Load(data, alloc)
	require.Error(t, err)
	require.Equal(t, LoadWrongMachine, err.(*LoadError).Kind)
}

func TestLoadRejectsMalformedImage(t *testing.T) {
	alloc := pmm.New(1 << 20)
	alloc.Init(0)

	_, err := Load([]byte{0x7f, 'E', 'L'}, alloc)
	require.Error(t, err)
	require.Equal(t, LoadMalformed, err.(*LoadError).Kind)
}

func TestLoadFailsWhenRegionDoesNotFit(t *testing.T) {
	alloc := pmm.New(2 * pmm.PageSize) // only 2 pages total
	alloc.Init(0)

	payload := make([]byte, 4)
	data := buildELF32(0x1000, 0x1000, payload, 8*pmm.PageSize)

	_, err := Load(data, alloc)
	require.Error(t, err)
	require.Equal(t, LoadNoSpace, err.(*LoadError).Kind)
}
