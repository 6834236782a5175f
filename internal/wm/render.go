package wm

import (
	"image"

	"github.com/fogleman/gg"

	"github.com/cupidthecat/cupid-os/internal/fb"
)

// Chrome colors, XRGB8888 (0x00RRGGBB), matching internal/fb's pixel
// format.
const (
	colorTitlebarFocused = 0x003A6EA5
	colorTitlebarPlain   = 0x00707070
	colorTitlebarText    = 0x00FFFFFF
	colorCloseBox        = 0x00C0392B
	colorBorder          = 0x00202020
	colorDesktop         = 0x00285577
)

// SetFontFace loads a real TrueType font for titlebar/dialog text through
// gg.LoadFontFace (which itself calls github.com/golang/freetype's parser
// — the teacher's gg_circle_qemu.go never went this far, but gg is a
// drop-in text layout/rasterization stack and this is its standard
// entry point). No font asset ships with this repo, so SetFontFace is
// best-effort and optional: callers with a real TTF on their host
// filesystem (cmd/cupidos's --font flag) get real glyphs; everyone else
// falls back to gg's built-in basicfont.Face7x13, which renders correctly
// with no external font at all.
func (m *Manager) SetFontFace(path string, points float64) error {
	probe := gg.NewContext(1, 1)
	if err := probe.LoadFontFace(path, points); err != nil {
		return err
	}
	m.fontPath, m.fontPts = path, points
	return nil
}

func (m *Manager) applyFont(dc *gg.Context) {
	if m.fontPath == "" {
		return
	}
	_ = dc.LoadFontFace(m.fontPath, m.fontPts)
}

// Compose draws the desktop background and every window back-to-front
// onto the framebuffer's back buffer, followed by the taskbar (spec.md
// §4.10.5 step 4, restricted to the window-manager's own scope — desktop
// icons and the calendar popup are bundled-app surfaces spec.md §1 puts
// out of scope). Each window's dirty bit is cleared as it draws; the layout-changed bit
// is left for the caller to clear once the whole frame is done.
func (m *Manager) Compose() {
	m.fb.Clear(colorDesktop)

	for _, w := range m.Windows() {
		if !w.Visible() {
			continue
		}
		m.drawChrome(w)
		if w.OnRedraw != nil {
			m.drawBody(w)
		}
		w.setDirty(false)
	}

	m.drawTaskbar()
}

// drawChrome renders one window's titlebar and close box via a gg context
// sized to the titlebar strip, blits it onto the framebuffer, and then
// draws a one-pixel border line under the body directly with FillRect —
// grounded on the teacher's gg_circle_qemu.go, which sizes
// a gg.Context to the framebuffer and flushes it into the simulated LFB.
func (m *Manager) drawChrome(w *Window) {
	dc := gg.NewContext(w.W, TitlebarHeight)
	var titlebarColor uint32 = colorTitlebarPlain
	if w.Focused() {
		titlebarColor = colorTitlebarFocused
	}
	dc.SetRGBA(rgbaOf(titlebarColor))
	dc.DrawRectangle(0, 0, float64(w.W), float64(TitlebarHeight))
	dc.Fill()

	m.applyFont(dc)
	dc.SetRGBA(rgbaOf(colorTitlebarText))
	dc.DrawStringAnchored(w.Title, 6, float64(TitlebarHeight)/2, 0, 0.5)

	cb := w.closeBoxRect()
	dc.SetRGBA(rgbaOf(colorCloseBox))
	dc.DrawRectangle(float64(cb.X-w.X), float64(cb.Y-w.Y), float64(cb.W), float64(cb.H))
	dc.Fill()

	blitRGBA(m.fb, dc.Image().(*image.RGBA), w.X, w.Y)
	m.fb.FillRect(w.X, w.Y+TitlebarHeight+w.H, w.W, 1, colorBorder)
}

// drawBody lets the window render its own content into a gg context
// sized to its body and blits the result below the titlebar.
func (m *Manager) drawBody(w *Window) {
	dc := gg.NewContext(w.W, w.H)
	m.applyFont(dc)
	w.OnRedraw(dc)
	blitRGBA(m.fb, dc.Image().(*image.RGBA), w.X, w.Y+TitlebarHeight)
}

func rgbaOf(xrgb uint32) (r, g, b, a float64) {
	return float64((xrgb>>16)&0xFF) / 255, float64((xrgb>>8)&0xFF) / 255, float64(xrgb&0xFF) / 255, 1
}

// blitRGBA copies a gg-rendered *image.RGBA onto the framebuffer's back
// buffer at (x0, y0), converting RGBA into XRGB8888 (fully transparent
// pixels are skipped; any other alpha is ignored and the color copied as is) —
// the hosted equivalent of the teacher's copyFramebufferToGG, run in
// reverse (gg's canvas into the LFB rather than the LFB into gg's
// canvas).
func blitRGBA(f *fb.Framebuffer, img *image.RGBA, x0, y0 int) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			off := img.PixOffset(x, y)
			r, g, bl, a := img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3]
			if a == 0 {
				continue
			}
			xrgb := uint32(r)<<16 | uint32(g)<<8 | uint32(bl)
			f.SetPixel(x0+x-b.Min.X, y0+y-b.Min.Y, xrgb)
		}
	}
}

// fbToRGBA snapshots the framebuffer's back buffer into an *image.RGBA so
// gg can composite on top of whatever is already on screen (mirroring
// the teacher's copyFramebufferToGG).
func fbToRGBA(f *fb.Framebuffer) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, fb.Width, fb.Height))
	for y := 0; y < fb.Height; y++ {
		for x := 0; x < fb.Width; x++ {
			xrgb := f.GetPixel(x, y)
			off := img.PixOffset(x, y)
			img.Pix[off+0] = byte(xrgb >> 16)
			img.Pix[off+1] = byte(xrgb >> 8)
			img.Pix[off+2] = byte(xrgb)
			img.Pix[off+3] = 0xFF
		}
	}
	return img
}

// dimOverlay darkens the whole framebuffer behind a modal dialog by
// compositing a 50%-alpha black rectangle over a snapshot of the current
// back buffer through gg's own alpha blending, then blits the result
// back (spec.md §4.10.4: "a translucent dim behind the dialog").
func (m *Manager) dimOverlay() {
	dc := gg.NewContextForRGBA(fbToRGBA(m.fb))
	dc.SetRGBA(0, 0, 0, 0.5)
	dc.DrawRectangle(0, 0, float64(fb.Width), float64(fb.Height))
	dc.Fill()
	blitRGBA(m.fb, dc.Image().(*image.RGBA), 0, 0)
}

// DialogResult is what a modal dialog's event loop returns on exit.
type DialogResult struct {
	Text string
	OK   bool
}

// DialogHandler is a modal dialog's internal state machine (spec.md
// §4.10.4: "each run their own event loop... dispatches to their
// internal handler"). This package implements it for the confirm and
// message dialogs (dialogs.go); the file, input and popup-menu dialogs of
// the syscall table's dialog group have no implementation here.
type DialogHandler interface {
	// HandleKey processes one keyboard event. done reports whether the
	// dialog has reached a result (Escape/Cancel or Enter/OK).
	HandleKey(r rune, pressed bool) (done bool, result DialogResult)
	// HandleMouse processes the current mouse snapshot.
	HandleMouse(x, y, buttons int) (done bool, result DialogResult)
	// Render draws the dialog's own chrome and content.
	Render(dc *gg.Context)
}

// RunModal implements spec.md §4.10.4's loop: poll the keyboard ring,
// read the mouse snapshot, dispatch to handler, render with a translucent
// dim behind the dialog, call yield() once per iteration, and exit with
// the handler's result. pollKey must report ok=false once the ring is
// drained for this iteration; mouseSnapshot reports the latest
// position/button state; yield hands control back to the scheduler.
func (m *Manager) RunModal(handler DialogHandler, pollKey func() (r rune, pressed bool, ok bool), mouseSnapshot func() (x, y, buttons int), yield func()) DialogResult {
	for {
		for {
			r, pressed, ok := pollKey()
			if !ok {
				break
			}
			if done, result := handler.HandleKey(r, pressed); done {
				return result
			}
		}

		x, y, buttons := mouseSnapshot()
		if done, result := handler.HandleMouse(x, y, buttons); done {
			return result
		}

		m.dimOverlay()
		dc := gg.NewContextForRGBA(fbToRGBA(m.fb))
		m.applyFont(dc)
		handler.Render(dc)
		blitRGBA(m.fb, dc.Image().(*image.RGBA), 0, 0)
		m.fb.Flip()

		yield()
	}
}
