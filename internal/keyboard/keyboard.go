// Package keyboard implements the compositor side of a wl_keyboard device:
// client bindings, focus, pressed keys, modifier broadcast, keymap switching
// and the grab chain. A Device is not safe for concurrent use; it is driven
// from the seat event loop.
package keyboard

import (
	"errors"
	"fmt"

	"github.com/bnema/waykbd/internal/keymap"
	"github.com/bnema/waykbd/internal/logger"
	"github.com/bnema/waykbd/internal/shm"
	"github.com/bnema/waykbd/internal/wire"
)

// ErrInvalidKeycode is returned for raw keycodes below the evdev offset.
var ErrInvalidKeycode = errors.New("keyboard: keycode below protocol offset")

// KeycodeOffset separates layout keycodes from protocol (evdev) keycodes.
const KeycodeOffset = 8

const (
	DefaultRepeatRate  uint32 = 25
	DefaultRepeatDelay uint32 = 600
)

var log = logger.WithPrefix("keyboard")

// Compositor hands out serials and event timestamps.
type Compositor interface {
	NextSerial() uint32
	CurrentTimeMsecs() uint32
}

// Surface is a client surface that can take keyboard focus.
type Surface interface {
	ID() uint32
	Client() wire.ClientID
	IsCursorSurface() bool
	// OnDestroy runs fn once when the surface goes away. The returned func
	// unsubscribes.
	OnDestroy(fn func()) (cancel func())
}

// KeymapState says which keymap backs a device.
type KeymapState int

const (
	NoKeymap KeymapState = iota
	DefaultKeymap
	CustomKeymap
)

func (s KeymapState) String() string {
	switch s {
	case NoKeymap:
		return "none"
	case DefaultKeymap:
		return "default"
	case CustomKeymap:
		return "custom"
	default:
		return fmt.Sprintf("KeymapState(%d)", int(s))
	}
}

// Option configures a Device.
type Option func(*Device)

// WithRepeat sets the initial repeat rate (keys/s) and delay (ms).
func WithRepeat(rate, delay uint32) Option {
	return func(d *Device) {
		d.repeatRate = rate
		d.repeatDelay = delay
	}
}

// WithoutPressTracking stops the device from recording pressed keys. Enter
// events then carry an empty key list.
func WithoutPressTracking() Option {
	return func(d *Device) {
		d.trackPresses = false
	}
}

// Device is one logical keyboard.
type Device struct {
	compositor Compositor
	builder    *keymap.Builder
	defaults   *keymap.Default

	bindings registry

	keymap      *keymap.Compiled
	state       keymap.State
	keymapState KeymapState
	pending     bool
	pendingDesc keymap.Descriptor
	// set when the pending change failed to apply
	pendingFailed bool

	keys         []uint32
	trackPresses bool
	mods         keymap.Modifiers

	focus         Surface
	focusBinding  *Binding
	focusWatch    watch
	pendingFocus  Surface
	pendingWatch  watch
	self          selfGrab
	grab          Grabber
	repeatRate    uint32
	repeatDelay   uint32
	onFocus       []func(Surface)
	onRepeatRate  []func(uint32)
	onRepeatDelay []func(uint32)
}

// New creates a device backed by the default keymap. builder compiles
// keymaps requested later; either may be nil, in which case the device runs
// without a keymap or cannot switch layouts.
func New(c Compositor, builder *keymap.Builder, defaults *keymap.Default, opts ...Option) *Device {
	d := &Device{
		compositor:   c,
		builder:      builder,
		defaults:     defaults,
		trackPresses: true,
		repeatRate:   DefaultRepeatRate,
		repeatDelay:  DefaultRepeatDelay,
	}
	d.self = selfGrab{d}
	d.grab = d.self

	for _, opt := range opts {
		opt(d)
	}

	d.useDefaultKeymap()
	return d
}

func (d *Device) useDefaultKeymap() {
	if d.defaults == nil {
		log.Warn("no default keymap configured, running without keymap")
		return
	}
	k, err := d.defaults.Get()
	if err != nil || k == nil {
		log.Warn("default keymap unavailable, running without keymap", "err", err)
		return
	}
	st, err := k.NewState()
	if err != nil {
		log.Warn("failed to create keymap state", "err", err)
		return
	}
	d.keymap = k
	d.state = st
	d.keymapState = DefaultKeymap
}

// Destroy drops focus subscriptions and releases a device-owned keymap.
func (d *Device) Destroy() {
	d.focusWatch.reset()
	d.pendingWatch.reset()
	d.focus = nil
	d.focusBinding = nil
	d.pendingFocus = nil
	d.releaseKeymap()
}

func (d *Device) releaseKeymap() {
	if d.state != nil {
		d.state.Close()
		d.state = nil
	}
	if d.keymap != nil {
		d.keymap.Release()
		d.keymap = nil
	}
	d.keymapState = NoKeymap
}

// BindClient registers res at the negotiated version and sends it the
// current keymap, repeat info and, when its client owns the focus, enter.
func (d *Device) BindClient(res wire.Resource, version uint32) *Binding {
	b := d.bindings.add(res, min(version, wire.InterfaceVersion))
	log.Debug("client bound", "client", res.Client(), "version", b.version)

	d.sendKeymap(b)
	if b.version >= wire.RepeatInfoSinceVersion {
		d.sendRepeatInfo(b)
	}

	if d.focus != nil && d.focusBinding != b && d.focus.Client() == b.Client() {
		d.sendEnter(b, d.focus)
		d.focusBinding = b
	}
	return b
}

// Unbind removes a binding. Unknown or already removed bindings are ignored.
func (d *Device) Unbind(b *Binding) {
	if !d.bindings.remove(b) {
		return
	}
	if d.focusBinding == b {
		d.focusBinding = nil
	}
	log.Debug("client unbound", "client", b.Client())
}

// Release handles the release request of a binding.
func (d *Device) Release(b *Binding) {
	d.Unbind(b)
}

// DisconnectClient removes every binding of client.
func (d *Device) DisconnectClient(client wire.ClientID) {
	for _, b := range d.bindings.forClient(client) {
		d.Unbind(b)
	}
}

// BindingCount returns the number of live bindings.
func (d *Device) BindingCount() int {
	return d.bindings.len()
}

func (d *Device) sendKeymap(b *Binding) {
	if d.keymap != nil {
		d.check(b, "keymap", b.resource.SendKeymap(wire.FormatXKBV1, d.keymap.FD(), d.keymap.Size()))
		return
	}

	f, err := shm.OpenEmpty()
	if err != nil {
		log.Error("failed to open empty keymap descriptor", "err", err)
		return
	}
	defer f.Close()
	d.check(b, "keymap", b.resource.SendKeymap(wire.FormatNoKeymap, int(f.Fd()), 0))
}

func (d *Device) sendRepeatInfo(b *Binding) {
	d.check(b, "repeat_info", b.resource.SendRepeatInfo(int32(d.repeatRate), int32(d.repeatDelay)))
}

func (d *Device) sendEnter(b *Binding, s Surface) {
	serial := d.compositor.NextSerial()
	d.check(b, "enter", b.resource.SendEnter(serial, s.ID(), d.keys))
	d.check(b, "modifiers", b.resource.SendModifiers(serial, d.mods))
}

func (d *Device) check(b *Binding, event string, err error) {
	if err != nil {
		log.Warn("failed to send event", "event", event, "client", b.Client(), "err", err)
	}
}

// Focus returns the focused surface or nil.
func (d *Device) Focus() Surface {
	return d.focus
}

// FocusClient returns the client of the entered binding. It reports false
// when the focused surface's client has not bound the keyboard.
func (d *Device) FocusClient() (wire.ClientID, bool) {
	if d.focusBinding == nil {
		return 0, false
	}
	return d.focusBinding.Client(), true
}

// FocusBinding returns the entered binding or nil.
func (d *Device) FocusBinding() *Binding {
	return d.focusBinding
}

// PressedKeys returns a copy of the pressed protocol keycodes.
func (d *Device) PressedKeys() []uint32 {
	return append([]uint32(nil), d.keys...)
}

// Modifiers returns the last broadcast modifier state.
func (d *Device) Modifiers() keymap.Modifiers {
	return d.mods
}

// Keymap returns the active keymap, or nil when the device has none.
func (d *Device) Keymap() *keymap.Compiled {
	return d.keymap
}

// KeymapState reports where the active keymap came from.
func (d *Device) KeymapState() KeymapState {
	return d.keymapState
}

// HasPendingKeymap reports whether a keymap change is waiting for all keys
// to be released.
func (d *Device) HasPendingKeymap() bool {
	return d.pending
}

// RepeatRate returns the key repeat rate in characters per second.
func (d *Device) RepeatRate() uint32 {
	return d.repeatRate
}

// RepeatDelay returns the key repeat delay in milliseconds.
func (d *Device) RepeatDelay() uint32 {
	return d.repeatDelay
}

// SetRepeatRate changes the repeat rate. Bound clients are sent the
// previous repeat info first.
func (d *Device) SetRepeatRate(rate uint32) {
	if rate == d.repeatRate {
		return
	}
	d.broadcastRepeatInfo()
	d.repeatRate = rate
	for _, fn := range d.onRepeatRate {
		fn(rate)
	}
}

// SetRepeatDelay changes the repeat delay. Bound clients are sent the
// previous repeat info first.
func (d *Device) SetRepeatDelay(delay uint32) {
	if delay == d.repeatDelay {
		return
	}
	d.broadcastRepeatInfo()
	d.repeatDelay = delay
	for _, fn := range d.onRepeatDelay {
		fn(delay)
	}
}

func (d *Device) broadcastRepeatInfo() {
	d.bindings.each(func(b *Binding) {
		if b.version >= wire.RepeatInfoSinceVersion {
			d.sendRepeatInfo(b)
		}
	})
}

// OnFocusChanged registers fn to run after the focused surface changes.
func (d *Device) OnFocusChanged(fn func(Surface)) {
	d.onFocus = append(d.onFocus, fn)
}

// OnRepeatRateChanged registers fn to run with the new rate after a change.
func (d *Device) OnRepeatRateChanged(fn func(uint32)) {
	d.onRepeatRate = append(d.onRepeatRate, fn)
}

// OnRepeatDelayChanged registers fn to run with the new delay after a change.
func (d *Device) OnRepeatDelayChanged(fn func(uint32)) {
	d.onRepeatDelay = append(d.onRepeatDelay, fn)
}
