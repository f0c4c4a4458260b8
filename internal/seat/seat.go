// Package seat owns the keyboards of one seat and runs the event loop that
// serializes every operation on them.
package seat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/waykbd/internal/keyboard"
	"github.com/bnema/waykbd/internal/keymap"
	"github.com/bnema/waykbd/internal/logger"
	"github.com/bnema/waykbd/internal/wire"
)

// ErrStopped is returned when posting to a seat whose loop has exited.
var ErrStopped = errors.New("seat: stopped")

const taskBacklog = 256

var log = logger.WithPrefix("seat")

// Seat hands out serials and timestamps to its keyboards and runs posted
// closures one at a time on the loop goroutine.
type Seat struct {
	name     string
	start    time.Time
	serial   atomic.Uint32
	builder  *keymap.Builder
	defaults *keymap.Default
	opts     []keyboard.Option

	tasks    chan func()
	stopChan chan struct{}
	stopOnce sync.Once

	// owned by the loop
	keyboards []*keyboard.Device

	surfaceID atomic.Uint32
}

// New creates a seat. Keyboards created on it compile layouts with builder
// and start from defaults. The seat takes ownership of defaults.
func New(name string, builder *keymap.Builder, defaults *keymap.Default, opts ...keyboard.Option) *Seat {
	return &Seat{
		name:     name,
		start:    time.Now(),
		builder:  builder,
		defaults: defaults,
		opts:     opts,
		tasks:    make(chan func(), taskBacklog),
		stopChan: make(chan struct{}),
	}
}

func (s *Seat) Name() string {
	return s.name
}

// NextSerial returns a fresh event serial.
func (s *Seat) NextSerial() uint32 {
	return s.serial.Add(1)
}

// CurrentTimeMsecs returns milliseconds since the seat was created.
func (s *Seat) CurrentTimeMsecs() uint32 {
	return uint32(time.Since(s.start).Milliseconds())
}

// NewKeyboard creates a keyboard on this seat. Loop only.
func (s *Seat) NewKeyboard(opts ...keyboard.Option) *keyboard.Device {
	all := append(append([]keyboard.Option(nil), s.opts...), opts...)
	kb := keyboard.New(s, s.builder, s.defaults, all...)
	s.keyboards = append(s.keyboards, kb)
	log.Debug("keyboard created", "seat", s.name, "count", len(s.keyboards))
	return kb
}

// Keyboards returns the seat's keyboards. Loop only.
func (s *Seat) Keyboards() []*keyboard.Device {
	return append([]*keyboard.Device(nil), s.keyboards...)
}

// CreateSurface returns a new surface owned by client.
func (s *Seat) CreateSurface(client wire.ClientID) *Surface {
	return NewSurface(s.surfaceID.Add(1), client)
}

// Post queues fn for the loop. It reports false once the seat is stopped.
func (s *Seat) Post(fn func()) bool {
	select {
	case <-s.stopChan:
		return false
	default:
	}

	select {
	case s.tasks <- fn:
		return true
	case <-s.stopChan:
		return false
	}
}

// Call runs fn on the loop and waits for it to finish.
func (s *Seat) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !s.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopChan:
		return ErrStopped
	}
}

// Run processes posted closures until ctx is done or Stop is called, then
// destroys the seat's keyboards and closes the default keymap.
func (s *Seat) Run(ctx context.Context) error {
	log.Info("seat running", "seat", s.name)
	defer s.shutdown()

	for {
		select {
		case fn := <-s.tasks:
			fn()
		case <-ctx.Done():
			s.Stop()
			return ctx.Err()
		case <-s.stopChan:
			return nil
		}
	}
}

// Stop makes Run return.
func (s *Seat) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

func (s *Seat) shutdown() {
	for _, kb := range s.keyboards {
		kb.Destroy()
	}
	s.keyboards = nil
	if s.defaults != nil {
		s.defaults.Close()
	}
	log.Info("seat stopped", "seat", s.name)
}
