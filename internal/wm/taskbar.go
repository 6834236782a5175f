package wm

import (
	"image"

	"github.com/fogleman/gg"

	"github.com/cupidthecat/cupid-os/internal/fb"
)

// TaskbarHeight is the strip spec.md §1 names as part of C8's scope
// ("taskbar hit-test") alongside the titlebar/close-box/body hit tests;
// unlike the calendar popup and desktop icons (bundled-app surface,
// spec.md §1's explicit non-goal), the taskbar's hit-test and redraw stay
// in this package.
const TaskbarHeight = 28

// TaskbarRect is the strip spanning the full framebuffer width along the
// bottom edge.
func (m *Manager) TaskbarRect() rect {
	return rect{0, fb.Height - TaskbarHeight, fb.Width, TaskbarHeight}
}

// taskbarSlot returns the rectangle of the i-th window's taskbar button,
// given n total visible windows sharing the strip equally.
func taskbarSlot(i, n int) rect {
	w := fb.Width / n
	return rect{i * w, fb.Height - TaskbarHeight, w, TaskbarHeight}
}

// HitTestTaskbar reports which visible window's taskbar button (px, py)
// falls into, for the desktop loop's "calendar hit-test, then taskbar
// hit-test, then desktop-icon hit-test, then window manager" dispatch
// chain (spec.md §4.10.5 step 1). Calendar and desktop icons are bundled
// apps this package does not implement, so internal/desktop tries this
// before falling back to HitTest.
func (m *Manager) HitTestTaskbar(px, py int) (*Window, bool) {
	var hit *Window
	m.guard.With(func() {
		visible := make([]*Window, 0, len(m.windows))
		for _, w := range m.windows {
			if w.Visible() {
				visible = append(visible, w)
			}
		}
		if len(visible) == 0 {
			return
		}
		for i, w := range visible {
			if taskbarSlot(i, len(visible)).contains(px, py) {
				hit = w
				return
			}
		}
	})
	return hit, hit != nil
}

// drawTaskbar renders one button per visible window, highlighting the
// focused one, after the window stack itself (spec.md §4.10.5 step 4:
// "...all windows back-to-front → taskbar → calendar popup → mouse
// cursor").
func (m *Manager) drawTaskbar() {
	windows := m.Windows()
	visible := windows[:0:0]
	for _, w := range windows {
		if w.Visible() {
			visible = append(visible, w)
		}
	}
	if len(visible) == 0 {
		return
	}

	dc := gg.NewContext(fb.Width, TaskbarHeight)
	dc.SetRGBA(rgbaOf(colorTitlebarPlain))
	dc.DrawRectangle(0, 0, float64(fb.Width), float64(TaskbarHeight))
	dc.Fill()
	m.applyFont(dc)

	for i, w := range visible {
		slot := taskbarSlot(i, len(visible))
		if w.Focused() {
			dc.SetRGBA(rgbaOf(colorTitlebarFocused))
			dc.DrawRectangle(float64(slot.X), 0, float64(slot.W), float64(TaskbarHeight))
			dc.Fill()
		}
		dc.SetRGBA(rgbaOf(colorTitlebarText))
		dc.DrawStringAnchored(w.Title, float64(slot.X+slot.W/2), float64(TaskbarHeight)/2, 0.5, 0.5)
	}

	blitRGBA(m.fb, dc.Image().(*image.RGBA), 0, fb.Height-TaskbarHeight)
}

// DrawCursor paints a small crosshair marker at the mouse position — the
// "mouse cursor" spec.md §4.10.5 step 4 names as the last thing composited
// each frame. The real pointer sprite is bundled-app/2D-primitive surface
// (spec.md §1); this is just enough to make the cursor visible in the
// simulated framebuffer.
func (m *Manager) DrawCursor(x, y int) {
	const size = 6
	m.fb.FillRect(x, y-size, 1, 2*size+1, colorTitlebarText)
	m.fb.FillRect(x-size, y, 2*size+1, 1, colorTitlebarText)
}
