package wire

import (
	"github.com/bnema/waykbd/internal/keymap"
	"github.com/charmbracelet/log"
)

// LogResource is a Resource for a client with no real connection. Events
// are logged and handed to the sinks but not retained, so it is safe for
// long running sessions.
type LogResource struct {
	client ClientID
	log    Sink
	sinks  []Sink
}

// NewLogResource returns a resource for client that logs to l.
func NewLogResource(client ClientID, l *log.Logger, sinks ...Sink) *LogResource {
	return &LogResource{client: client, log: LogSink(l), sinks: sinks}
}

func (r *LogResource) Client() ClientID {
	return r.client
}

func (r *LogResource) emit(e Event) error {
	e.Client = r.client
	r.log(e)
	for _, s := range r.sinks {
		s(e)
	}
	return nil
}

func (r *LogResource) SendKeymap(format KeymapFormat, fd int, size uint32) error {
	return r.emit(Event{Kind: KindKeymap, Format: format, FD: fd, Size: size})
}

func (r *LogResource) SendEnter(serial, surface uint32, keys []uint32) error {
	return r.emit(Event{Kind: KindEnter, Serial: serial, Surface: surface, Keys: append([]uint32(nil), keys...)})
}

func (r *LogResource) SendLeave(serial, surface uint32) error {
	return r.emit(Event{Kind: KindLeave, Serial: serial, Surface: surface})
}

func (r *LogResource) SendKey(serial, time, key uint32, state KeyState) error {
	return r.emit(Event{Kind: KindKey, Serial: serial, Time: time, Key: key, State: state})
}

func (r *LogResource) SendModifiers(serial uint32, mods keymap.Modifiers) error {
	return r.emit(Event{Kind: KindModifiers, Serial: serial, Mods: mods})
}

func (r *LogResource) SendRepeatInfo(rate, delay int32) error {
	return r.emit(Event{Kind: KindRepeatInfo, Rate: rate, Delay: delay})
}
