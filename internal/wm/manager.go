package wm

import (
	"fmt"

	"github.com/fogleman/gg"

	"github.com/cupidthecat/cupid-os/internal/critsec"
	"github.com/cupidthecat/cupid-os/internal/fb"
)

// MaxWindows bounds the window array; exceeding it is a recoverable
// ErrTooManyWindows (spec.md §7), not a fatal condition.
const MaxWindows = 32

// minOnscreen is how many pixels of a dragged window spec.md §4.10.1
// requires stay visible in both axes.
const minOnscreen = 20

// ErrKind enumerates spec.md §7's window-manager error kinds. Both are
// recoverable; nothing in this package ever halts the system.
type ErrKind int

const (
	ErrTooManyWindows ErrKind = iota
	ErrInvalidWindowID
)

func (k ErrKind) String() string {
	switch k {
	case ErrTooManyWindows:
		return "TOO_MANY_WINDOWS"
	case ErrInvalidWindowID:
		return "INVALID_WINDOW_ID"
	default:
		return "UNKNOWN"
	}
}

// Error is the window manager's recoverable error type.
type Error struct {
	Kind ErrKind
}

func (e *Error) Error() string { return fmt.Sprintf("wm: %s", e.Kind) }

// HitRegion names which of a window's three hit rectangles a point fell
// into (spec.md §4.10.2).
type HitRegion int

const (
	HitNone HitRegion = iota
	HitTitlebar
	HitCloseBox
	HitBody
)

// Manager owns the z-ordered window array spec.md §5 calls out as
// "mutated only from the desktop loop thread": the guard exists anyway,
// matching every other process-wide singleton's discipline, so a
// misbehaving caller from another goroutine fails safe instead of racing.
type Manager struct {
	guard *critsec.Guard

	windows       []*Window
	nextID        int
	layoutChanged bool
	draggingID    int

	fb       *fb.Framebuffer
	fontPath string
	fontPts  float64
}

// New builds a window manager compositing onto fbuf's back buffer.
func New(fbuf *fb.Framebuffer) *Manager {
	return &Manager{
		guard:  critsec.New(),
		nextID: 1,
		fb:     fbuf,
	}
}

// Windows returns a snapshot of the z-ordered array, back-to-front.
func (m *Manager) Windows() []*Window {
	var out []*Window
	m.guard.With(func() {
		out = make([]*Window, len(m.windows))
		copy(out, m.windows)
	})
	return out
}

// FocusedWindow returns the window currently flagged focused, or nil.
func (m *Manager) FocusedWindow() *Window {
	var found *Window
	m.guard.With(func() {
		for _, w := range m.windows {
			if w.Focused() {
				found = w
				return
			}
		}
	})
	return found
}

// LayoutChanged reports whether create/destroy/focus/drag touched the
// array since the last ClearLayoutChanged (spec.md §4.10.3's second
// per-frame dirty signal).
func (m *Manager) LayoutChanged() bool {
	var v bool
	m.guard.With(func() { v = m.layoutChanged })
	return v
}

// ClearLayoutChanged clears the layout-changed bit; the desktop loop calls
// this once per redraw.
func (m *Manager) ClearLayoutChanged() {
	m.guard.With(func() { m.layoutChanged = false })
}

// AnyDirty reports spec.md §4.10.3's first per-frame signal: any window
// flagged dirty or dragging.
func (m *Manager) AnyDirty() bool {
	var v bool
	m.guard.With(func() {
		for _, w := range m.windows {
			if w.Dirty() || w.Dragging() {
				v = true
				return
			}
		}
	})
	return v
}

// Create inserts a new window at the top of the z-order, flagged
// visible+dirty+focused (spec.md §4.10.1's Create transition).
func (m *Manager) Create(title string, x, y, w, h int, appCtx any, onClose func(), onRedraw func(dc *gg.Context)) (*Window, error) {
	var win *Window
	var fail error
	m.guard.With(func() {
		if len(m.windows) >= MaxWindows {
			fail = &Error{Kind: ErrTooManyWindows}
			return
		}
		win = &Window{
			ID:    m.nextID,
			Title: title,
			X:     x, Y: y, W: w, H: h,
			PrevX: x, PrevY: y,
			AppCtx:   appCtx,
			OnClose:  onClose,
			OnRedraw: onRedraw,
		}
		win.setVisible(true)
		m.nextID++
		m.windows = append(m.windows, win)
		m.focusLocked(win.ID)
		m.layoutChanged = true
	})
	if fail != nil {
		return nil, fail
	}
	return win, nil
}

// indexOfLocked returns the array index of wid, or -1. Must be called
// with the guard held.
func (m *Manager) indexOfLocked(wid int) int {
	for i, w := range m.windows {
		if w.ID == wid {
			return i
		}
	}
	return -1
}

// Focus implements spec.md §4.10.1's Focus(wid): clear focused+set-dirty
// on every window, splice the target to the end of the array, set
// focused+dirty on it (P18).
func (m *Manager) Focus(wid int) error {
	var fail error
	m.guard.With(func() {
		if m.indexOfLocked(wid) < 0 {
			fail = &Error{Kind: ErrInvalidWindowID}
			return
		}
		m.focusLocked(wid)
		m.layoutChanged = true
	})
	return fail
}

// focusLocked assumes the guard is already held.
func (m *Manager) focusLocked(wid int) {
	idx := m.indexOfLocked(wid)
	if idx < 0 {
		return
	}
	for _, w := range m.windows {
		w.setFocused(false)
		w.setDirty(true)
	}
	target := m.windows[idx]
	m.windows = append(m.windows[:idx], m.windows[idx+1:]...)
	m.windows = append(m.windows, target)
	target.setFocused(true)
	target.setDirty(true)
}

// Destroy implements spec.md §4.10.1's Destroy: invoke on_close if
// present, shift the tail down, mark every remaining window dirty (P19).
func (m *Manager) Destroy(wid int) error {
	var fail error
	var onClose func()
	m.guard.With(func() {
		idx := m.indexOfLocked(wid)
		if idx < 0 {
			fail = &Error{Kind: ErrInvalidWindowID}
			return
		}
		w := m.windows[idx]
		onClose = w.OnClose
		if m.draggingID == wid {
			m.draggingID = 0
		}
		m.windows = append(m.windows[:idx], m.windows[idx+1:]...)
		for _, rest := range m.windows {
			rest.setDirty(true)
		}
		m.layoutChanged = true
	})
	if fail != nil {
		return fail
	}
	if onClose != nil {
		onClose()
	}
	return nil
}

// HitTest walks the z-order front-to-back (frontmost visible window
// wins, spec.md §4.10.2) and reports the first window and region the
// point falls into.
func (m *Manager) HitTest(px, py int) (*Window, HitRegion) {
	var win *Window
	var region HitRegion
	m.guard.With(func() {
		for i := len(m.windows) - 1; i >= 0; i-- {
			w := m.windows[i]
			if !w.Visible() {
				continue
			}
			switch {
			case w.closeBoxRect().contains(px, py):
				win, region = w, HitCloseBox
			case w.titlebarRect().contains(px, py):
				win, region = w, HitTitlebar
			case w.bodyRect().contains(px, py):
				win, region = w, HitBody
			default:
				continue
			}
			return
		}
	})
	return win, region
}

// CloseButtonHit reports whether (px, py) falls inside any visible
// window's close box, and which window, without mutating anything — a
// pure query HandlePress and tests can both use.
func (m *Manager) CloseButtonHit(px, py int) (*Window, bool) {
	w, region := m.HitTest(px, py)
	if w != nil && region == HitCloseBox {
		return w, true
	}
	return nil, false
}

// HandlePress implements spec.md §4.10.1's left-press dispatch: a hit in
// a window's close box destroys it (Close-button), a hit in its titlebar
// focuses it and begins a drag (Begin-drag), a hit in its body just
// focuses it. Reports whether any window absorbed the press.
func (m *Manager) HandlePress(mouseX, mouseY int) bool {
	if w, ok := m.CloseButtonHit(mouseX, mouseY); ok {
		_ = m.Destroy(w.ID)
		return true
	}
	w, region := m.HitTest(mouseX, mouseY)
	if w == nil {
		return false
	}
	switch region {
	case HitTitlebar:
		m.guard.With(func() {
			m.focusLocked(w.ID)
			w.setDragging(true)
			w.dragOffX = mouseX - w.X
			w.dragOffY = mouseY - w.Y
			m.draggingID = w.ID
			m.layoutChanged = true
		})
		return true
	case HitBody:
		_ = m.Focus(w.ID)
		return true
	}
	return false
}

// DuringDrag implements spec.md §4.10.1's During-drag: while the button
// remains down, replace the dragging window's origin with
// (mouse - grab_offset) clamped to keep at least minOnscreen pixels on
// screen in both axes. Per spec, position updates alone do not set dirty
// — the dragging flag lets the compositor use a fast path; only
// EndDrag's release sets dirty (P20: only the pressed window moves).
func (m *Manager) DuringDrag(mouseX, mouseY int) {
	m.guard.With(func() {
		if m.draggingID == 0 {
			return
		}
		idx := m.indexOfLocked(m.draggingID)
		if idx < 0 {
			m.draggingID = 0
			return
		}
		w := m.windows[idx]
		nx := mouseX - w.dragOffX
		ny := mouseY - w.dragOffY
		nx = clamp(nx, minOnscreen-w.W, fb.Width-minOnscreen)
		ny = clamp(ny, minOnscreen-w.H, fb.Height-minOnscreen)
		w.PrevX, w.PrevY = w.X, w.Y
		w.X, w.Y = nx, ny
	})
}

// EndDrag implements spec.md §4.10.1's End-drag: clear dragging, set
// dirty.
func (m *Manager) EndDrag() {
	m.guard.With(func() {
		if m.draggingID == 0 {
			return
		}
		idx := m.indexOfLocked(m.draggingID)
		if idx >= 0 {
			w := m.windows[idx]
			w.setDragging(false)
			w.setDirty(true)
		}
		m.draggingID = 0
	})
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
