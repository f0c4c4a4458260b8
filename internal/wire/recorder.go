package wire

import (
	"sync"

	"github.com/bnema/waykbd/internal/keymap"
	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

// Recorder is a Resource that keeps every event it is sent and forwards
// them to optional sinks. Keymap contents are read back from the descriptor.
type Recorder struct {
	mu         sync.Mutex
	client     ClientID
	events     []Event
	sinks      []Sink
	keymapText string
}

// NewRecorder returns a recorder for client.
func NewRecorder(client ClientID, sinks ...Sink) *Recorder {
	return &Recorder{client: client, sinks: sinks}
}

func (r *Recorder) Client() ClientID {
	return r.client
}

func (r *Recorder) record(e Event) error {
	e.Client = r.client

	r.mu.Lock()
	r.events = append(r.events, e)
	sinks := r.sinks
	r.mu.Unlock()

	for _, s := range sinks {
		s(e)
	}
	return nil
}

func (r *Recorder) SendKeymap(format KeymapFormat, fd int, size uint32) error {
	if format == FormatXKBV1 && size > 0 {
		buf := make([]byte, size)
		if n, err := unix.Pread(fd, buf, 0); err == nil && n > 0 {
			r.mu.Lock()
			r.keymapText = string(buf[:n-1])
			r.mu.Unlock()
		}
	}
	return r.record(Event{Kind: KindKeymap, Format: format, FD: fd, Size: size})
}

func (r *Recorder) SendEnter(serial, surface uint32, keys []uint32) error {
	return r.record(Event{Kind: KindEnter, Serial: serial, Surface: surface, Keys: append([]uint32(nil), keys...)})
}

func (r *Recorder) SendLeave(serial, surface uint32) error {
	return r.record(Event{Kind: KindLeave, Serial: serial, Surface: surface})
}

func (r *Recorder) SendKey(serial, time, key uint32, state KeyState) error {
	return r.record(Event{Kind: KindKey, Serial: serial, Time: time, Key: key, State: state})
}

func (r *Recorder) SendModifiers(serial uint32, mods keymap.Modifiers) error {
	return r.record(Event{Kind: KindModifiers, Serial: serial, Mods: mods})
}

func (r *Recorder) SendRepeatInfo(rate, delay int32) error {
	return r.record(Event{Kind: KindRepeatInfo, Rate: rate, Delay: delay})
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events, in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the most recent event of kind.
func (r *Recorder) Last(kind Kind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return Event{}, false
}

// KeymapText returns the text of the last xkb keymap received.
func (r *Recorder) KeymapText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keymapText
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// LogSink logs each event at debug level.
func LogSink(l *log.Logger) Sink {
	return func(e Event) {
		l.Debug("send "+e.Kind.String(), "client", e.Client, "event", e.String())
	}
}
