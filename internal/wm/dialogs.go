package wm

import (
	"github.com/fogleman/gg"

	"github.com/cupidthecat/cupid-os/internal/fb"
	"github.com/cupidthecat/cupid-os/internal/syscalltable"
)

// messageBoxHandler backs the confirm/message dialogs: a centered box
// with a prompt, OK/Cancel reachable via Enter/Escape (spec.md §4.10.4:
// "Cancellation is always available via Escape... confirmation via
// Enter"). File/open/save dialogs and the popup menu need a list/text
// widget this package does not implement (spec.md §1's widget-rendering
// non-goal), so they stay internal/syscalltable's no-ops.
type messageBoxHandler struct {
	prompt     string
	cancelable bool
	boxW, boxH int
}

func (h *messageBoxHandler) HandleKey(r rune, pressed bool) (bool, DialogResult) {
	if !pressed {
		return false, DialogResult{}
	}
	switch r {
	case '\r', '\n':
		return true, DialogResult{OK: true}
	case 27:
		if h.cancelable {
			return true, DialogResult{OK: false}
		}
		return true, DialogResult{OK: true}
	}
	return false, DialogResult{}
}

func (h *messageBoxHandler) HandleMouse(x, y, buttons int) (bool, DialogResult) {
	return false, DialogResult{}
}

func (h *messageBoxHandler) Render(dc *gg.Context) {
	x := (fb.Width - h.boxW) / 2
	y := (fb.Height - h.boxH) / 2
	dc.SetRGBA(rgbaOf(colorTitlebarPlain))
	dc.DrawRectangle(float64(x), float64(y), float64(h.boxW), float64(h.boxH))
	dc.Fill()
	dc.SetRGBA(rgbaOf(colorBorder))
	dc.DrawRectangle(float64(x), float64(y), float64(h.boxW), float64(h.boxH))
	dc.Stroke()
	dc.SetRGBA(rgbaOf(colorTitlebarText))
	dc.DrawStringAnchored(h.prompt, float64(x+h.boxW/2), float64(y+h.boxH/2), 0.5, 0.5)
}

// ConfirmDialog runs spec.md §4.10.4's modal loop with a yes/no prompt,
// returning true on Enter/OK, false on Escape/Cancel.
func (m *Manager) ConfirmDialog(prompt string, pollKey func() (rune, bool, bool), mouseSnapshot func() (int, int, int), yield func()) bool {
	h := &messageBoxHandler{prompt: prompt, cancelable: true, boxW: 320, boxH: 100}
	return m.RunModal(h, pollKey, mouseSnapshot, yield).OK
}

// MessageDialog runs the same loop with only an acknowledgement path
// (Enter or Escape both dismiss it).
func (m *Manager) MessageDialog(msg string, pollKey func() (rune, bool, bool), mouseSnapshot func() (int, int, int), yield func()) {
	h := &messageBoxHandler{prompt: msg, cancelable: false, boxW: 320, boxH: 100}
	m.RunModal(h, pollKey, mouseSnapshot, yield)
}

// WireInto replaces internal/syscalltable.Table's dialog no-ops for the
// two dialog kinds this package actually implements (confirm, message),
// closing over the input sources internal/desktop owns. OpenDialog,
// SaveDialog, InputDialog and PopupMenu are left as no-ops: they need a
// file-listing or text-entry widget, which is out of scope the same way
// the rest of the widget library is (spec.md §1). Graphics and widget
// entries are untouched for the same reason.
func (m *Manager) WireInto(t *syscalltable.Table, pollKey func() (rune, bool, bool), mouseSnapshot func() (int, int, int), yield func()) {
	t.ConfirmDialog = func(prompt string) bool {
		return m.ConfirmDialog(prompt, pollKey, mouseSnapshot, yield)
	}
	t.MessageDialog = func(msg string) {
		m.MessageDialog(msg, pollKey, mouseSnapshot, yield)
	}
}
