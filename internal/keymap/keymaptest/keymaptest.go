// Package keymaptest provides an in-memory layout engine for tests that
// must not depend on the system layout database.
package keymaptest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bnema/waykbd/internal/keymap"
	"github.com/bnema/waykbd/internal/shm"
)

// Raw keycodes (evdev + 8) understood by the fake state tracker.
const (
	KeyA         uint32 = 38
	KeyLeftCtrl  uint32 = 37
	KeyLeftShift uint32 = 50
	KeyLeftAlt   uint32 = 64
	KeyCapsLock  uint32 = 66
	KeyLeftMeta  uint32 = 133
)

// Modifier bits reported by the fake state tracker.
const (
	ModShift   uint32 = 1 << 0
	ModLock    uint32 = 1 << 1
	ModControl uint32 = 1 << 2
	ModMod1    uint32 = 1 << 3
	ModMod4    uint32 = 1 << 6
)

// InvalidLayout is a layout name the fake compiler refuses.
const InvalidLayout = "no-such-layout"

// Compiler records every compile request and hands out fake layouts.
type Compiler struct {
	mu sync.Mutex

	// ContextFails makes every compile fail as a backend start failure.
	ContextFails bool

	Calls   []keymap.Descriptor
	Layouts []*Layout
}

func (c *Compiler) Compile(d keymap.Descriptor) (keymap.Layout, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Calls = append(c.Calls, d)
	if c.ContextFails {
		return nil, keymap.ErrContextCreationFailed
	}
	if d.Layout == InvalidLayout {
		return nil, fmt.Errorf("%w: cannot load %q", keymap.ErrCompileFailed, d.Layout)
	}

	l := &Layout{Descriptor: d}
	c.Layouts = append(c.Layouts, l)
	return l, nil
}

// CallCount returns the number of compile requests seen.
func (c *Compiler) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Layout is a fake compiled layout.
type Layout struct {
	Descriptor keymap.Descriptor
	Closed     bool
	States     []*State
}

func (l *Layout) Text() (string, error) {
	if l.Closed {
		return "", keymap.ErrReleased
	}
	return fmt.Sprintf("xkb_keymap {\n\txkb_symbols { include \"pc+%s\" };\n};\n", l.Descriptor.Layout), nil
}

func (l *Layout) NewState() (keymap.State, error) {
	if l.Closed {
		return nil, keymap.ErrReleased
	}
	s := &State{}
	l.States = append(l.States, s)
	return s, nil
}

// KeycodeForKeysym knows 'a' in every group and 'q' only in group 1.
func (l *Layout) KeycodeForKeysym(group, keysym uint32) (uint32, bool) {
	switch {
	case keysym == 'a':
		return KeyA, true
	case keysym == 'q' && group == 1:
		return KeyA, true
	}
	return 0, false
}

func (l *Layout) Close() {
	l.Closed = true
}

// State is a small modifier tracker: shift/ctrl/alt are depressed while held,
// caps lock toggles the lock bit on press, meta latches until the next key.
type State struct {
	Mods    keymap.Modifiers
	Updates int
	Closed  bool
}

func (s *State) UpdateKey(keycode uint32, down bool) {
	s.Updates++

	held := map[uint32]uint32{
		KeyLeftShift: ModShift,
		KeyLeftCtrl:  ModControl,
		KeyLeftAlt:   ModMod1,
	}
	if bit, ok := held[keycode]; ok {
		if down {
			s.Mods.Depressed |= bit
		} else {
			s.Mods.Depressed &^= bit
		}
		return
	}

	switch keycode {
	case KeyCapsLock:
		if down {
			s.Mods.Locked ^= ModLock
		}
	case KeyLeftMeta:
		if down {
			s.Mods.Latched |= ModMod4
		}
	default:
		if down {
			s.Mods.Latched = 0
		}
	}
}

func (s *State) Serialize() keymap.Modifiers {
	return s.Mods
}

func (s *State) UpdateMask(m keymap.Modifiers) {
	s.Mods = m
}

func (s *State) Close() {
	s.Closed = true
}

// ErrPublish is returned by FailingPublisher.
var ErrPublish = errors.New("keymaptest: publish failed")

// FailingPublisher refuses every publish request.
type FailingPublisher struct{}

func (FailingPublisher) Publish(string) (*shm.Region, error) {
	return nil, ErrPublish
}
