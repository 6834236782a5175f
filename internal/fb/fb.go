// Package fb is the simulated VBE linear framebuffer (spec.md §4.10.1's
// startup contract and §5's "Framebuffer back buffer: single writer, the
// desktop loop; flip() is the commit point"). cupid-os's hosted profile
// fixes the "opaque external device" spec.md §1 excludes from scope at
// 640×480 XRGB8888 (spec.md §1's explicit non-goal boundary), the same
// shape the teacher's FramebufferInfo (src/go/mazarin/framebuffer_common.go)
// publishes as Width/Height/Pitch/Buf, generalized from a raw unsafe.Pointer
// into a real back buffer a desktop loop can read without touching real
// memory-mapped I/O.
package fb

// Width and Height are fixed by spec.md §1's non-goal: "VBE framebuffer
// geometry beyond... 640x480 XRGB8888".
const (
	Width  = 640
	Height = 480

	// BytesPerPixel is XRGB8888's pixel stride.
	BytesPerPixel = 4
	Pitch         = Width * BytesPerPixel
)

// Framebuffer holds a simulated LFB: a back buffer every draw call writes
// to, and a front buffer Flip() publishes it into. The hosted stand-in
// for a bootloader-published physical base address is simply owning both
// arenas directly.
type Framebuffer struct {
	back  []byte
	front []byte
	flips uint64
}

// New allocates a black 640x480 XRGB8888 framebuffer with both buffers
// zeroed (XRGB8888 black is all-zero bytes).
func New() *Framebuffer {
	return &Framebuffer{
		back:  make([]byte, Pitch*Height),
		front: make([]byte, Pitch*Height),
	}
}

// Back returns the mutable back buffer every renderer (internal/wm's
// compositor, a dialog's dim overlay) draws into.
func (f *Framebuffer) Back() []byte { return f.back }

// Front returns the last-flipped, publicly-visible buffer (what a
// "screen" read observes — spec.md §5's "reads of device state published
// at well-known low addresses... are monotonic").
func (f *Framebuffer) Front() []byte { return f.front }

// Flips reports how many times Flip has committed the back buffer,
// useful for tests asserting a redraw actually happened.
func (f *Framebuffer) Flips() uint64 { return f.flips }

// offset returns the back-buffer byte offset for (x, y), or -1 if out of
// bounds — every pixel-level call is clipped rather than panicking,
// matching spec.md's "pure pixel functions over a clipped framebuffer".
func offset(x, y int) int {
	if x < 0 || y < 0 || x >= Width || y >= Height {
		return -1
	}
	return y*Pitch + x*BytesPerPixel
}

// SetPixel writes one XRGB8888 pixel (0x00RRGGBB) to the back buffer. A
// coordinate outside the framebuffer is silently dropped.
func (f *Framebuffer) SetPixel(x, y int, xrgb uint32) {
	off := offset(x, y)
	if off < 0 {
		return
	}
	f.back[off+0] = byte(xrgb)
	f.back[off+1] = byte(xrgb >> 8)
	f.back[off+2] = byte(xrgb >> 16)
	f.back[off+3] = byte(xrgb >> 24)
}

// GetPixel reads one XRGB8888 pixel from the back buffer; out-of-bounds
// coordinates read as opaque black.
func (f *Framebuffer) GetPixel(x, y int) uint32 {
	off := offset(x, y)
	if off < 0 {
		return 0
	}
	return uint32(f.back[off]) | uint32(f.back[off+1])<<8 | uint32(f.back[off+2])<<16 | uint32(f.back[off+3])<<24
}

// FillRect clamps [x, x+w) x [y, y+h) to the framebuffer and fills it
// with rgb.
func (f *Framebuffer) FillRect(x, y, w, h int, xrgb uint32) {
	for row := y; row < y+h; row++ {
		for col := x; col < x+w; col++ {
			f.SetPixel(col, row, xrgb)
		}
	}
}

// Clear fills the entire back buffer with xrgb.
func (f *Framebuffer) Clear(xrgb uint32) { f.FillRect(0, 0, Width, Height, xrgb) }

// Flip implements spec.md §5's commit point: the back buffer is copied
// into the front buffer atomically from the caller's perspective (the
// desktop loop is the sole writer, so no locking is needed here —
// spec.md's single-writer rule, not an omission).
func (f *Framebuffer) Flip() {
	copy(f.front, f.back)
	f.flips++
}
