// Package wm implements spec.md §4.10 (C8): the window manager core — the
// z-ordered window array, its focus/drag/destroy state machine, hit
// testing, dirty tracking, the modal dialog loop, and chrome rendering
// onto internal/fb's back buffer.
//
// Window state (visible/focused/dragging/dirty) is packed into a single
// uint32 via internal/bitfield.Set/Test — grounded on the teacher's own
// bitfield package rather than four separate bool fields.
package wm

import (
	"github.com/fogleman/gg"

	"github.com/cupidthecat/cupid-os/internal/bitfield"
)

const (
	bitVisible uint = iota
	bitFocused
	bitDragging
	bitDirty
)

// TitlebarHeight and CloseBoxSize fix the chrome geometry spec.md §4.10.2's
// hit tests are defined against.
const (
	TitlebarHeight = 24
	CloseBoxSize   = 16
	closeBoxInset  = 4
)

// Window is one entry in the z-ordered array. Fields mirror spec.md
// §4.3's literal list: ID, bounds, previous position (for dirty-region
// restore), title, flags, redraw callback, application context pointer,
// close callback. There is deliberately no key/mouse callback field:
// spec.md's concurrency model makes the desktop loop the single consumer
// of the input ring buffers (spec.md §5), so keyboard/mouse routing to
// "the focused app" goes through AppCtx plus that process's own
// internal/syscalltable.Table.ReadEvent inbox (internal/desktop owns the
// wiring), not an upcall into window-manager-held closures.
type Window struct {
	ID    int
	Title string

	X, Y, W, H   int
	PrevX, PrevY int
	AppCtx       any

	flags uint32

	OnClose  func()
	OnRedraw func(dc *gg.Context)

	dragOffX, dragOffY int
}

func (w *Window) Visible() bool  { return bitfield.Test(w.flags, bitVisible) }
func (w *Window) Focused() bool  { return bitfield.Test(w.flags, bitFocused) }
func (w *Window) Dragging() bool { return bitfield.Test(w.flags, bitDragging) }
func (w *Window) Dirty() bool    { return bitfield.Test(w.flags, bitDirty) }

func (w *Window) setVisible(on bool)  { w.flags = bitfield.Set(w.flags, bitVisible, on) }
func (w *Window) setFocused(on bool)  { w.flags = bitfield.Set(w.flags, bitFocused, on) }
func (w *Window) setDragging(on bool) { w.flags = bitfield.Set(w.flags, bitDragging, on) }
func (w *Window) setDirty(on bool)    { w.flags = bitfield.Set(w.flags, bitDirty, on) }

type rect struct{ X, Y, W, H int }

func (r rect) contains(px, py int) bool {
	return px >= r.X && px < r.X+r.W && py >= r.Y && py < r.Y+r.H
}

// titlebarRect, closeBoxRect and bodyRect are spec.md §4.10.2's three hit
// rectangles: titlebar, a fixed-size square inset from the top-right
// corner, and the full window rectangle.
func (w *Window) titlebarRect() rect {
	return rect{w.X, w.Y, w.W, TitlebarHeight}
}

func (w *Window) closeBoxRect() rect {
	return rect{w.X + w.W - CloseBoxSize - closeBoxInset, w.Y + closeBoxInset, CloseBoxSize, CloseBoxSize}
}

func (w *Window) bodyRect() rect {
	return rect{w.X, w.Y, w.W, w.H}
}
