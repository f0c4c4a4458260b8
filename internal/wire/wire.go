// Package wire describes the outbound keyboard events of the wl_keyboard
// interface and the per-client resources they are sent to. Framing and
// dispatch belong to the protocol library; this package only names the
// messages.
package wire

import (
	"fmt"

	"github.com/bnema/waykbd/internal/keymap"
)

const (
	// InterfaceVersion is the highest wl_keyboard version implemented.
	InterfaceVersion uint32 = 7
	// RepeatInfoSinceVersion is the first version carrying repeat_info.
	RepeatInfoSinceVersion uint32 = 4
)

// ClientID identifies a client connection.
type ClientID uint64

// KeymapFormat is the wl_keyboard keymap_format enum.
type KeymapFormat uint32

const (
	FormatNoKeymap KeymapFormat = 0
	FormatXKBV1    KeymapFormat = 1
)

func (f KeymapFormat) String() string {
	switch f {
	case FormatNoKeymap:
		return "no_keymap"
	case FormatXKBV1:
		return "xkb_v1"
	default:
		return fmt.Sprintf("KeymapFormat(%d)", uint32(f))
	}
}

// KeyState is the wl_keyboard key_state enum.
type KeyState uint32

const (
	KeyReleased KeyState = 0
	KeyPressed  KeyState = 1
)

func (s KeyState) String() string {
	if s == KeyPressed {
		return "pressed"
	}
	return "released"
}

// Resource is one client's bound keyboard object.
type Resource interface {
	Client() ClientID
	SendKeymap(format KeymapFormat, fd int, size uint32) error
	SendEnter(serial, surface uint32, keys []uint32) error
	SendLeave(serial, surface uint32) error
	SendKey(serial, time, key uint32, state KeyState) error
	SendModifiers(serial uint32, mods keymap.Modifiers) error
	SendRepeatInfo(rate, delay int32) error
}

// Kind names an outbound event.
type Kind int

const (
	KindKeymap Kind = iota + 1
	KindEnter
	KindLeave
	KindKey
	KindModifiers
	KindRepeatInfo
)

func (k Kind) String() string {
	switch k {
	case KindKeymap:
		return "keymap"
	case KindEnter:
		return "enter"
	case KindLeave:
		return "leave"
	case KindKey:
		return "key"
	case KindModifiers:
		return "modifiers"
	case KindRepeatInfo:
		return "repeat_info"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is a decoded outbound event. Only the fields of its Kind are set.
type Event struct {
	Kind    Kind
	Client  ClientID
	Serial  uint32
	Time    uint32
	Surface uint32
	Key     uint32
	State   KeyState
	Format  KeymapFormat
	FD      int
	Size    uint32
	Keys    []uint32
	Mods    keymap.Modifiers
	Rate    int32
	Delay   int32
}

func (e Event) String() string {
	switch e.Kind {
	case KindKeymap:
		return fmt.Sprintf("keymap(format=%s, fd=%d, size=%d)", e.Format, e.FD, e.Size)
	case KindEnter:
		return fmt.Sprintf("enter(serial=%d, surface=%d, keys=%v)", e.Serial, e.Surface, e.Keys)
	case KindLeave:
		return fmt.Sprintf("leave(serial=%d, surface=%d)", e.Serial, e.Surface)
	case KindKey:
		return fmt.Sprintf("key(serial=%d, time=%d, key=%d, state=%s)", e.Serial, e.Time, e.Key, e.State)
	case KindModifiers:
		return fmt.Sprintf("modifiers(serial=%d, depressed=%#x, latched=%#x, locked=%#x, group=%d)",
			e.Serial, e.Mods.Depressed, e.Mods.Latched, e.Mods.Locked, e.Mods.Group)
	case KindRepeatInfo:
		return fmt.Sprintf("repeat_info(rate=%d, delay=%d)", e.Rate, e.Delay)
	default:
		return e.Kind.String()
	}
}

// Sink receives every event sent through a Recorder or Logged resource.
type Sink func(Event)

// Dispatch sends e to r.
func Dispatch(r Resource, e Event) error {
	switch e.Kind {
	case KindKeymap:
		return r.SendKeymap(e.Format, e.FD, e.Size)
	case KindEnter:
		return r.SendEnter(e.Serial, e.Surface, e.Keys)
	case KindLeave:
		return r.SendLeave(e.Serial, e.Surface)
	case KindKey:
		return r.SendKey(e.Serial, e.Time, e.Key, e.State)
	case KindModifiers:
		return r.SendModifiers(e.Serial, e.Mods)
	case KindRepeatInfo:
		return r.SendRepeatInfo(e.Rate, e.Delay)
	default:
		return fmt.Errorf("unknown event kind %d", int(e.Kind))
	}
}
