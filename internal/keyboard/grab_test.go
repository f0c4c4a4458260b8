package keyboard_test

import (
	"testing"

	"github.com/bnema/waykbd/internal/keyboard"
	"github.com/bnema/waykbd/internal/keymap"
	"github.com/bnema/waykbd/internal/keymap/keymaptest"
	"github.com/bnema/waykbd/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type grabKey struct {
	key   uint32
	state wire.KeyState
}

// recordingGrab swallows delivery unless next is set.
type recordingGrab struct {
	focused []keyboard.Surface
	keys    []grabKey
	mods    []keymap.Modifiers
	next    keyboard.Grabber
}

func (g *recordingGrab) Focused(s keyboard.Surface) {
	g.focused = append(g.focused, s)
	if g.next != nil {
		g.next.Focused(s)
	}
}

func (g *recordingGrab) Key(serial, time, key uint32, state wire.KeyState) {
	g.keys = append(g.keys, grabKey{key, state})
	if g.next != nil {
		g.next.Key(serial, time, key, state)
	}
}

func (g *recordingGrab) Modifiers(serial uint32, mods keymap.Modifiers) {
	g.mods = append(g.mods, mods)
	if g.next != nil {
		g.next.Modifiers(serial, mods)
	}
}

func TestGrabInterceptsKeys(t *testing.T) {
	f := newFixture(t)
	rec := wire.NewRecorder(1)
	f.dev.BindClient(rec, 7)
	s := newSurface(1, 1)
	f.dev.SetFocus(s)

	g := &recordingGrab{}
	f.dev.StartGrab(g)
	require.True(t, f.dev.Grabbed())
	assert.Equal(t, []keyboard.Surface{s}, g.focused)

	rec.Reset()
	f.press(t, keymaptest.KeyLeftShift)
	f.tap(t, keymaptest.KeyA)

	assert.Empty(t, rec.Kinds())
	assert.Equal(t, []grabKey{
		{keymaptest.KeyLeftShift - keyboard.KeycodeOffset, wire.KeyPressed},
		{keymaptest.KeyA - keyboard.KeycodeOffset, wire.KeyPressed},
		{keymaptest.KeyA - keyboard.KeycodeOffset, wire.KeyReleased},
	}, g.keys)
	require.Len(t, g.mods, 1)
	assert.Equal(t, keymaptest.ModShift, g.mods[0].Depressed)

	f.dev.EndGrab()

	assert.False(t, f.dev.Grabbed())
	assert.Equal(t, []wire.Kind{wire.KindModifiers}, rec.Kinds())
	mods, _ := rec.Last(wire.KindModifiers)
	assert.Equal(t, keymaptest.ModShift, mods.Mods.Depressed)

	rec.Reset()
	f.tap(t, keymaptest.KeyA)
	assert.Equal(t, 2, rec.Count(wire.KindKey))
	assert.Len(t, g.keys, 3)
}

func TestGrabDefersFocus(t *testing.T) {
	f := newFixture(t)
	recA := wire.NewRecorder(1)
	recB := wire.NewRecorder(2)
	f.dev.BindClient(recA, 7)
	f.dev.BindClient(recB, 7)
	s1 := newSurface(1, 1)
	s2 := newSurface(2, 2)
	f.dev.SetFocus(s1)

	g := &recordingGrab{}
	f.dev.StartGrab(g)
	recA.Reset()
	recB.Reset()

	f.dev.SetFocus(s2)

	assert.Equal(t, s1, f.dev.Focus())
	assert.Equal(t, 0, recA.Count(wire.KindLeave))
	assert.Equal(t, 0, recB.Count(wire.KindEnter))
	assert.Equal(t, []keyboard.Surface{s1, s2}, g.focused)

	f.dev.EndGrab()

	assert.Equal(t, s2, f.dev.Focus())
	assert.Equal(t, 1, recA.Count(wire.KindLeave))
	assert.Equal(t, 1, recB.Count(wire.KindEnter))
	assert.Positive(t, recB.Count(wire.KindModifiers))
}

func TestGrabPendingFocusDestroyed(t *testing.T) {
	f := newFixture(t)
	recA := wire.NewRecorder(1)
	f.dev.BindClient(recA, 7)
	f.dev.BindClient(wire.NewRecorder(2), 7)
	s1 := newSurface(1, 1)
	s2 := newSurface(2, 2)
	f.dev.SetFocus(s1)

	f.dev.StartGrab(&recordingGrab{})
	f.dev.SetFocus(s2)
	s2.destroy()
	recA.Reset()

	f.dev.EndGrab()

	assert.Nil(t, f.dev.Focus())
	assert.Equal(t, 1, recA.Count(wire.KindLeave))
}

func TestGrabForwardingToSelf(t *testing.T) {
	f := newFixture(t)
	rec := wire.NewRecorder(1)
	f.dev.BindClient(rec, 7)
	f.dev.SetFocus(newSurface(1, 1))

	g := &recordingGrab{next: f.dev.Self()}
	f.dev.StartGrab(g)
	rec.Reset()

	f.tap(t, keymaptest.KeyA)

	assert.Len(t, g.keys, 2)
	assert.Equal(t, 2, rec.Count(wire.KindKey))
}

func TestStartGrabNilEndsGrab(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, f.dev.Self(), f.dev.CurrentGrab())

	g := &recordingGrab{}
	f.dev.StartGrab(g)
	assert.Equal(t, keyboard.Grabber(g), f.dev.CurrentGrab())

	f.dev.StartGrab(nil)
	assert.False(t, f.dev.Grabbed())
	assert.Equal(t, f.dev.Self(), f.dev.CurrentGrab())
}
