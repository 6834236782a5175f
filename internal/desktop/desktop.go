package desktop

import (
	"github.com/cupidthecat/cupid-os/internal/fb"
	"github.com/cupidthecat/cupid-os/internal/proc"
	"github.com/cupidthecat/cupid-os/internal/syscalltable"
	"github.com/cupidthecat/cupid-os/internal/wm"
)

// blinkIntervalTicks is how many timer ticks separate cursor-blink
// toggles; arbitrary and purely cosmetic, like the teacher's own
// auto-repeat interval constants in timer_qemu.go.
const blinkIntervalTicks = 30

// Desktop implements spec.md §4.10.5: the desktop loop that is the sole
// consumer of the keyboard/mouse input rings, driving internal/wm's
// compositor and routing events to whichever app owns the focused
// window. Calendar popup and desktop-icon hit-testing are bundled-app
// surface (spec.md §1) and are not implemented; the dispatch chain below
// skips straight from taskbar to the window manager.
type Desktop struct {
	wm    *wm.Manager
	fb    *fb.Framebuffer
	keys  *KeyRing
	mouse *MouseDriver

	prevButtons int
	blinkTicks  int
	blinkOn     bool
}

// New builds a desktop loop compositing through wmgr onto fbuf.
func New(wmgr *wm.Manager, fbuf *fb.Framebuffer) *Desktop {
	return &Desktop{
		wm:    wmgr,
		fb:    fbuf,
		keys:  NewKeyRing(),
		mouse: NewMouseDriver(),
	}
}

// PostKey is the keyboard IRQ's producer side.
func (d *Desktop) PostKey(r rune, pressed bool) bool {
	return d.keys.Push(KeyEvent{Key: r, Pressed: pressed})
}

// PostMouse is the mouse driver's producer side.
func (d *Desktop) PostMouse(u MouseUpdate) {
	d.mouse.Report(u)
}

// RegisterApp gives win its own event inbox and records it as the
// window's AppCtx (see DESIGN.md's Window-callbacks Open Question: this
// is the seam a callback field would otherwise have been).
func (d *Desktop) RegisterApp(win *wm.Window) *Inbox {
	inbox := NewInbox()
	win.AppCtx = inbox
	return inbox
}

// WireApp registers win's inbox and points t.ReadEvent at it, the
// per-process half of wiring a user program's syscall table into the
// desktop (internal/wm.WireInto does the equivalent for the dialog
// fields).
func (d *Desktop) WireApp(t *syscalltable.Table, win *wm.Window) {
	inbox := d.RegisterApp(win)
	t.ReadEvent = inbox.ReadEvent
}

func (d *Desktop) postToFocused(e syscalltable.Event) {
	win := d.wm.FocusedWindow()
	if win == nil {
		return
	}
	inbox, ok := win.AppCtx.(*Inbox)
	if !ok || inbox == nil {
		return
	}
	inbox.Push(e)
}

// routeMouse implements step 1: consume one coalesced mouse update if the
// driver reported one, dispatch scroll straight to the focused app, and
// run the press/drag/release dispatch chain — calendar hit-test and
// desktop-icon hit-test are skipped as bundled-app surface, so left-press
// goes taskbar, then window manager.
func (d *Desktop) routeMouse() {
	u, ok := d.mouse.Consume()
	if !ok {
		return
	}

	if u.Scroll != 0 {
		d.postToFocused(syscalltable.Event{
			Kind: syscalltable.EventMouse, MouseX: u.X, MouseY: u.Y,
			MouseBtns: u.Buttons, MouseScroll: u.Scroll,
		})
	}

	leftNow := u.Buttons&ButtonLeft != 0
	rightNow := u.Buttons&ButtonRight != 0
	leftPress := leftNow && d.prevButtons&ButtonLeft == 0
	rightPress := rightNow && d.prevButtons&ButtonRight == 0
	d.prevButtons = u.Buttons

	switch {
	case leftPress:
		if w, ok := d.wm.HitTestTaskbar(u.X, u.Y); ok {
			_ = d.wm.Focus(w.ID)
			return
		}
		d.wm.HandlePress(u.X, u.Y)
	case rightPress:
		// Right-press routes to the calendar, which is out of scope; no
		// window-manager state changes.
	default:
		if leftNow {
			d.wm.DuringDrag(u.X, u.Y)
		} else {
			d.wm.EndDrag()
		}
		d.postToFocused(syscalltable.Event{
			Kind: syscalltable.EventMouse, MouseX: u.X, MouseY: u.Y, MouseBtns: u.Buttons,
		})
	}
}

// drainKeys implements step 2: every pending key drains to the focused
// app. The calendar-popup Escape special case does not apply (the
// calendar is out of scope), so Escape is just another key event.
func (d *Desktop) drainKeys() {
	for {
		k, ok := d.keys.Pop()
		if !ok {
			return
		}
		d.postToFocused(syscalltable.Event{Kind: syscalltable.EventKey, Key: k.Key, Pressed: k.Pressed})
	}
}

// tickCursorBlink implements step 3. BlinkOn is exported for a future
// text-entry app to read; nothing in this tree consumes it yet since the
// bundled text apps are out of scope.
func (d *Desktop) tickCursorBlink() {
	d.blinkTicks++
	if d.blinkTicks >= blinkIntervalTicks {
		d.blinkTicks = 0
		d.blinkOn = !d.blinkOn
	}
}

// BlinkOn reports the current cursor-blink phase.
func (d *Desktop) BlinkOn() bool { return d.blinkOn }

// redrawIfDirty implements step 4: compose and flip only if something
// changed.
func (d *Desktop) redrawIfDirty() {
	if !d.wm.AnyDirty() && !d.wm.LayoutChanged() {
		return
	}
	d.wm.Compose()
	x, y, _ := d.mouse.Snapshot()
	d.wm.DrawCursor(x, y)
	d.wm.ClearLayoutChanged()
	d.fb.Flip()
}

// Step runs one iteration of spec.md §4.10.5's five steps, minus the
// final "hlt until next interrupt" (the caller's scheduler loop plays
// that role; see Run).
func (d *Desktop) Step() {
	d.routeMouse()
	d.drainKeys()
	d.tickCursorBlink()
	d.redrawIfDirty()
}

// Run is an internal/proc.Entry: step forever, checking for a deferred
// reschedule after each iteration the same way the idle thread's hlt loop
// does (spec.md §4.10.5 step 5 and §5's "implicit suspension... the
// desktop loop").
func Run(d *Desktop) proc.Entry {
	return func(ctx *proc.Context) {
		for {
			d.Step()
			ctx.CheckPreempt()
		}
	}
}
