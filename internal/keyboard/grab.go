package keyboard

import (
	"github.com/bnema/waykbd/internal/keymap"
	"github.com/bnema/waykbd/internal/wire"
)

// Grabber receives focus, key and modifier delivery from a device. The
// device's own handler, returned by Self, is the default grabber; an
// installed grabber may forward to it, rewrite, or swallow input.
type Grabber interface {
	Focused(s Surface)
	Key(serial, time, key uint32, state wire.KeyState)
	Modifiers(serial uint32, mods keymap.Modifiers)
}

type selfGrab struct {
	d *Device
}

func (g selfGrab) Focused(s Surface) {
	g.d.focused(s)
}

func (g selfGrab) Key(serial, time, key uint32, state wire.KeyState) {
	if b := g.d.focusBinding; b != nil {
		g.d.check(b, "key", b.resource.SendKey(serial, time, key, state))
	}
}

func (g selfGrab) Modifiers(serial uint32, mods keymap.Modifiers) {
	if b := g.d.focusBinding; b != nil {
		g.d.check(b, "modifiers", b.resource.SendModifiers(serial, mods))
	}
}

// Self returns the device's own delivery handler.
func (d *Device) Self() Grabber {
	return d.self
}

// CurrentGrab returns the active delivery handler.
func (d *Device) CurrentGrab() Grabber {
	return d.grab
}

// Grabbed reports whether an external grabber is installed.
func (d *Device) Grabbed() bool {
	return d.grab != Grabber(d.self)
}

// StartGrab routes delivery to g and replays the current focus into it.
// A nil grabber ends the grab.
func (d *Device) StartGrab(g Grabber) {
	if g == nil {
		d.EndGrab()
		return
	}
	d.grab = g
	g.Focused(d.focus)
}

// EndGrab restores the device's own handler, applies the last requested
// focus and re-sends the current modifiers.
func (d *Device) EndGrab() {
	d.grab = d.self
	d.grab.Focused(d.pendingFocus)
	d.grab.Modifiers(d.compositor.NextSerial(), d.mods)
}
