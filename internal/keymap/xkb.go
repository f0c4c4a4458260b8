//go:build cgo && linux

package keymap

/*
#cgo pkg-config: xkbcommon

#include <stdlib.h>
#include <xkbcommon/xkbcommon.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// XKBCompiler compiles descriptors with libxkbcommon.
type XKBCompiler struct{}

// NewXKBCompiler returns the libxkbcommon backed compiler.
func NewXKBCompiler() *XKBCompiler {
	return &XKBCompiler{}
}

// Available reports whether this build carries the libxkbcommon backend.
func Available() bool {
	return true
}

// Compile resolves d against the system layout database.
func (XKBCompiler) Compile(d Descriptor) (Layout, error) {
	ctx := C.xkb_context_new(C.XKB_CONTEXT_NO_FLAGS)
	if ctx == nil {
		return nil, ErrContextCreationFailed
	}

	names := C.struct_xkb_rule_names{
		rules:   C.CString(d.Rules),
		model:   C.CString(d.Model),
		layout:  C.CString(d.Layout),
		variant: C.CString(d.Variant),
		options: C.CString(d.Options),
	}
	defer func() {
		C.free(unsafe.Pointer(names.rules))
		C.free(unsafe.Pointer(names.model))
		C.free(unsafe.Pointer(names.layout))
		C.free(unsafe.Pointer(names.variant))
		C.free(unsafe.Pointer(names.options))
	}()

	km := C.xkb_keymap_new_from_names(ctx, &names, C.XKB_KEYMAP_COMPILE_NO_FLAGS)
	if km == nil {
		C.xkb_context_unref(ctx)
		return nil, fmt.Errorf("%w: cannot load %q (%s)", ErrCompileFailed, d.Layout, d)
	}
	return &xkbLayout{ctx: ctx, keymap: km}, nil
}

// CompileText parses a keymap in the text format, as a client would.
func (XKBCompiler) CompileText(text string) (Layout, error) {
	ctx := C.xkb_context_new(C.XKB_CONTEXT_NO_FLAGS)
	if ctx == nil {
		return nil, ErrContextCreationFailed
	}

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	km := C.xkb_keymap_new_from_string(ctx, ctext, C.XKB_KEYMAP_FORMAT_TEXT_V1, C.XKB_KEYMAP_COMPILE_NO_FLAGS)
	if km == nil {
		C.xkb_context_unref(ctx)
		return nil, fmt.Errorf("%w: cannot parse keymap text", ErrCompileFailed)
	}
	return &xkbLayout{ctx: ctx, keymap: km}, nil
}

type symKey struct {
	group  uint32
	keysym uint32
}

type xkbLayout struct {
	ctx    *C.struct_xkb_context
	keymap *C.struct_xkb_keymap

	tableOnce sync.Once
	table     map[symKey]uint32
}

func (l *xkbLayout) Text() (string, error) {
	if l.keymap == nil {
		return "", ErrReleased
	}
	s := C.xkb_keymap_get_as_string(l.keymap, C.XKB_KEYMAP_FORMAT_TEXT_V1)
	if s == nil {
		return "", errors.New("xkb_keymap_get_as_string failed")
	}
	defer C.free(unsafe.Pointer(s))
	return C.GoString(s), nil
}

func (l *xkbLayout) NewState() (State, error) {
	if l.keymap == nil {
		return nil, ErrReleased
	}
	st := C.xkb_state_new(l.keymap)
	if st == nil {
		return nil, errors.New("xkb_state_new failed")
	}
	return &xkbState{state: st}, nil
}

func (l *xkbLayout) KeycodeForKeysym(group, keysym uint32) (uint32, bool) {
	if l.keymap == nil {
		return 0, false
	}
	l.tableOnce.Do(l.buildTable)
	code, ok := l.table[symKey{group: group, keysym: keysym}]
	return code, ok
}

// buildTable maps the level 0 keysym of every key and group to its keycode.
// The lowest keycode wins when several keys produce the same keysym.
func (l *xkbLayout) buildTable() {
	l.table = make(map[symKey]uint32)

	minKey := C.xkb_keymap_min_keycode(l.keymap)
	maxKey := C.xkb_keymap_max_keycode(l.keymap)
	for kc := minKey; kc <= maxKey; kc++ {
		layouts := C.xkb_keymap_num_layouts_for_key(l.keymap, kc)
		for layout := C.xkb_layout_index_t(0); layout < layouts; layout++ {
			var syms *C.xkb_keysym_t
			n := C.xkb_keymap_key_get_syms_by_level(l.keymap, kc, layout, 0, &syms)
			if n <= 0 || syms == nil {
				continue
			}
			key := symKey{group: uint32(layout), keysym: uint32(*syms)}
			if _, ok := l.table[key]; !ok {
				l.table[key] = uint32(kc)
			}
		}
	}
}

func (l *xkbLayout) Close() {
	if l.keymap != nil {
		C.xkb_keymap_unref(l.keymap)
		l.keymap = nil
	}
	if l.ctx != nil {
		C.xkb_context_unref(l.ctx)
		l.ctx = nil
	}
}

type xkbState struct {
	state *C.struct_xkb_state
}

func (s *xkbState) UpdateKey(keycode uint32, down bool) {
	if s.state == nil {
		return
	}
	var dir C.enum_xkb_key_direction = C.XKB_KEY_UP
	if down {
		dir = C.XKB_KEY_DOWN
	}
	C.xkb_state_update_key(s.state, C.xkb_keycode_t(keycode), dir)
}

func (s *xkbState) Serialize() Modifiers {
	if s.state == nil {
		return Modifiers{}
	}
	return Modifiers{
		Depressed: uint32(C.xkb_state_serialize_mods(s.state, C.XKB_STATE_MODS_DEPRESSED)),
		Latched:   uint32(C.xkb_state_serialize_mods(s.state, C.XKB_STATE_MODS_LATCHED)),
		Locked:    uint32(C.xkb_state_serialize_mods(s.state, C.XKB_STATE_MODS_LOCKED)),
		Group:     uint32(C.xkb_state_serialize_layout(s.state, C.XKB_STATE_LAYOUT_EFFECTIVE)),
	}
}

func (s *xkbState) UpdateMask(m Modifiers) {
	if s.state == nil {
		return
	}
	C.xkb_state_update_mask(s.state,
		C.xkb_mod_mask_t(m.Depressed),
		C.xkb_mod_mask_t(m.Latched),
		C.xkb_mod_mask_t(m.Locked),
		0, 0,
		C.xkb_layout_index_t(m.Group))
}

func (s *xkbState) Close() {
	if s.state != nil {
		C.xkb_state_unref(s.state)
		s.state = nil
	}
}
