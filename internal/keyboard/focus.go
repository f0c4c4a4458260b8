package keyboard

// watch follows the destruction of one surface. Every re-target bumps the
// generation so a late notification for a previous surface is dropped.
type watch struct {
	gen    uint64
	cancel func()
}

func (w *watch) reset() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.gen++
}

func (w *watch) follow(s Surface, destroyed func()) {
	w.reset()
	if s == nil {
		return
	}
	gen := w.gen
	w.cancel = s.OnDestroy(func() {
		if w.gen != gen {
			return
		}
		w.cancel = nil
		destroyed()
	})
}

// SetFocus requests keyboard focus for s, or clears it when s is nil. The
// request goes through the current grab; the device remembers it and
// applies it when the grab ends.
func (d *Device) SetFocus(s Surface) {
	if s != nil && s.IsCursorSurface() {
		s = nil
	}
	if s != d.pendingFocus {
		d.pendingFocus = s
		d.pendingWatch.follow(s, d.pendingFocusDestroyed)
	}
	d.grab.Focused(s)
}

func (d *Device) pendingFocusDestroyed() {
	d.pendingWatch.reset()
	d.pendingFocus = nil
}

// focused moves the wire-level focus to s.
func (d *Device) focused(s Surface) {
	if s != nil && s.IsCursorSurface() {
		s = nil
	}

	var b *Binding
	if s != nil {
		b = d.bindings.lookup(s.Client())
	}
	if s == d.focus && b == d.focusBinding {
		return
	}

	if s != d.focus {
		if d.focusBinding != nil && d.focus != nil {
			serial := d.compositor.NextSerial()
			d.check(d.focusBinding, "leave", d.focusBinding.resource.SendLeave(serial, d.focus.ID()))
		}
		d.focusWatch.follow(s, d.focusDestroyed)
	}

	if b != nil {
		d.sendEnter(b, s)
	}
	d.focusBinding = b

	changed := s != d.focus
	d.focus = s
	if changed {
		log.Debug("keyboard focus changed", "surface", surfaceID(s), "entered", b != nil)
		d.notifyFocus()
	}
}

func (d *Device) focusDestroyed() {
	log.Debug("focused surface destroyed", "surface", surfaceID(d.focus))
	d.focusWatch.reset()
	d.focus = nil
	d.focusBinding = nil
	d.notifyFocus()
}

func (d *Device) notifyFocus() {
	for _, fn := range d.onFocus {
		fn(d.focus)
	}
}

func surfaceID(s Surface) uint32 {
	if s == nil {
		return 0
	}
	return s.ID()
}
