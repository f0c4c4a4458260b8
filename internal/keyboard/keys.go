package keyboard

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bnema/waykbd/internal/keymap"
	"github.com/bnema/waykbd/internal/wire"
)

// ErrNoBuilder is returned when a keymap change is applied on a device that
// was built without a keymap builder.
var ErrNoBuilder = errors.New("keyboard: no keymap builder")

func protocolKey(code uint32) (uint32, error) {
	if code < KeycodeOffset {
		return 0, fmt.Errorf("%w: %d", ErrInvalidKeycode, code)
	}
	return code - KeycodeOffset, nil
}

// ReportKey records a raw key transition in the pressed-key set. It sends
// nothing.
func (d *Device) ReportKey(code uint32, pressed bool) error {
	key, err := protocolKey(code)
	if err != nil {
		log.Warn("dropping key", "code", code, "err", err)
		return err
	}

	if pressed {
		if d.trackPresses && !slices.Contains(d.keys, key) {
			d.keys = append(d.keys, key)
		}
		return nil
	}
	d.keys = slices.DeleteFunc(d.keys, func(k uint32) bool { return k == key })
	return nil
}

// SendKeyEvent delivers a raw key transition through the current grab, then
// updates the modifier state. Repeats leave the modifier state alone.
// Releasing the last key applies a pending keymap change.
func (d *Device) SendKeyEvent(code uint32, pressed, repeat bool) error {
	key, err := protocolKey(code)
	if err != nil {
		log.Warn("dropping key", "code", code, "err", err)
		return err
	}

	state := wire.KeyReleased
	if pressed {
		state = wire.KeyPressed
	}
	time := d.compositor.CurrentTimeMsecs()
	serial := d.compositor.NextSerial()
	d.grab.Key(serial, time, key, state)

	if !repeat {
		d.updateModifiers(code, pressed)
	}
	if !pressed && d.pending && !d.pendingFailed && len(d.keys) == 0 {
		// failure is logged and the change stays pending
		_ = d.ApplyPendingKeymap()
	}
	return nil
}

// HandleKey records and delivers a raw key transition.
func (d *Device) HandleKey(code uint32, pressed, repeat bool) error {
	if err := d.ReportKey(code, pressed); err != nil {
		return err
	}
	return d.SendKeyEvent(code, pressed, repeat)
}

func (d *Device) updateModifiers(code uint32, pressed bool) {
	if d.state == nil {
		return
	}
	d.state.UpdateKey(code, pressed)
	d.broadcastModifiers(d.state.Serialize())
}

func (d *Device) broadcastModifiers(m keymap.Modifiers) {
	if m == d.mods {
		return
	}
	d.mods = m
	d.grab.Modifiers(d.compositor.NextSerial(), m)
}

// SendKeyModifiers sends the current modifiers to the binding of client.
func (d *Device) SendKeyModifiers(client wire.ClientID, serial uint32) {
	if b := d.bindings.lookup(client); b != nil {
		d.check(b, "modifiers", b.resource.SendModifiers(serial, d.mods))
	}
}

// CopyModifierStateFrom takes over the modifier state of other and
// broadcasts it. Later changes on other are not followed.
func (d *Device) CopyModifierStateFrom(other *Device) {
	if other == nil || other.state == nil || d.state == nil {
		return
	}
	m := other.state.Serialize()
	d.state.UpdateMask(m)
	d.mods = m
	d.grab.Modifiers(d.compositor.NextSerial(), m)
}

// KeyToScanCode returns the raw keycode producing keysym at level 0 of the
// active group, or 0 when the keymap has no such key.
func (d *Device) KeyToScanCode(keysym uint32) uint32 {
	if d.keymap == nil || d.keymap.Released() {
		return 0
	}
	code, ok := d.keymap.Layout().KeycodeForKeysym(d.mods.Group, keysym)
	if !ok {
		return 0
	}
	return code
}

// RequestKeymapChange switches the device to the layout described by desc
// as soon as no key is pressed.
func (d *Device) RequestKeymapChange(desc keymap.Descriptor) {
	d.pendingDesc = desc
	d.pending = true
	d.pendingFailed = false
	log.Debug("keymap change requested", "descriptor", desc, "pressed", len(d.keys))
	if len(d.keys) == 0 {
		// failure is logged and the change stays pending
		_ = d.ApplyPendingKeymap()
	}
}

// ApplyPendingKeymap compiles and installs the pending keymap when no key
// is pressed. On failure the previous keymap stays active and the change
// stays pending, but key releases stop retrying it until the next
// RequestKeymapChange.
func (d *Device) ApplyPendingKeymap() error {
	if !d.pending || len(d.keys) > 0 {
		return nil
	}
	if d.builder == nil {
		d.pendingFailed = true
		log.Warn("cannot change keymap", "descriptor", d.pendingDesc, "err", ErrNoBuilder)
		return ErrNoBuilder
	}

	k, err := d.builder.Build(d.pendingDesc)
	if err != nil {
		d.pendingFailed = true
		log.Warn("failed to update keymap", "descriptor", d.pendingDesc, "err", err)
		return err
	}
	st, err := k.NewState()
	if err != nil {
		k.Release()
		d.pendingFailed = true
		log.Warn("failed to create keymap state", "descriptor", d.pendingDesc, "err", err)
		return err
	}

	d.pending = false
	d.pendingFailed = false
	d.releaseKeymap()
	d.keymap = k
	d.state = st
	d.keymapState = CustomKeymap
	log.Info("keymap changed", "layout", d.pendingDesc.Layout, "variant", d.pendingDesc.Variant, "fd", k.FD(), "size", k.Size())

	d.bindings.each(func(b *Binding) {
		d.check(b, "keymap", b.resource.SendKeymap(wire.FormatXKBV1, k.FD(), k.Size()))
	})

	// latched and locked modifiers survive a layout switch
	st.UpdateMask(keymap.Modifiers{Latched: d.mods.Latched, Locked: d.mods.Locked})
	d.mods = st.Serialize()
	if b := d.focusBinding; b != nil {
		d.check(b, "modifiers", b.resource.SendModifiers(d.compositor.NextSerial(), d.mods))
	}
	return nil
}
