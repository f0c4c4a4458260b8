// Package input reads physical keyboards through evdev and injects keys
// through uinput.
package input

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bnema/waykbd/internal/keyboard"
	"github.com/bnema/waykbd/internal/logger"
	evdev "github.com/holoplot/go-evdev"
)

var log = logger.WithPrefix("input")

// ErrAlreadyCapturing is returned by Start on a running capture.
var ErrAlreadyCapturing = errors.New("input: already capturing")

// KeyEvent is a key transition in layout keycodes (evdev code + 8).
type KeyEvent struct {
	Code    uint32
	Pressed bool
	Repeat  bool
}

// Name returns the evdev name of the key, e.g. KEY_A.
func (e KeyEvent) Name() string {
	return evdev.CodeName(evdev.EV_KEY, evdev.EvCode(e.Code-keyboard.KeycodeOffset))
}

// TranslateEvent converts an evdev key event. Other event types and
// unknown key values are dropped.
func TranslateEvent(ev *evdev.InputEvent) (KeyEvent, bool) {
	if ev == nil || ev.Type != evdev.EV_KEY || ev.Value < 0 || ev.Value > 2 {
		return KeyEvent{}, false
	}

	kev := evdev.NewKeyEvent(ev)
	out := KeyEvent{Code: uint32(kev.Scancode) + keyboard.KeycodeOffset}
	switch kev.State {
	case evdev.KeyDown:
		out.Pressed = true
	case evdev.KeyHold:
		out.Pressed = true
		out.Repeat = true
	case evdev.KeyUp:
	}
	return out, true
}

// EvdevCapture reads key events from one evdev keyboard
type EvdevCapture struct {
	mu        sync.Mutex
	path      string
	grab      bool
	device    *evdev.InputDevice
	grabbed   bool
	capturing bool
	cancel    context.CancelFunc
	done      chan struct{}
	onKey     func(KeyEvent)
}

// NewEvdevCapture creates a capture for the device at path. An empty path
// picks the first keyboard found.
func NewEvdevCapture(path string, grab bool) *EvdevCapture {
	return &EvdevCapture{path: path, grab: grab}
}

// OnKeyEvent sets the callback run for every key event. It runs on the
// reader goroutine.
func (e *EvdevCapture) OnKeyEvent(fn func(KeyEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onKey = fn
}

// Path returns the device path in use.
func (e *EvdevCapture) Path() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.path
}

// Start opens the device and starts reading
func (e *EvdevCapture) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.capturing {
		return ErrAlreadyCapturing
	}

	if e.path == "" {
		dev, err := FindKeyboard()
		if err != nil {
			return err
		}
		e.path = dev.Path
	}

	device, err := evdev.Open(e.path)
	if err != nil {
		return fmt.Errorf("failed to open keyboard device %s: %w", e.path, err)
	}
	name, _ := device.Name()

	if e.grab {
		if err := device.Grab(); err != nil {
			device.Close()
			return fmt.Errorf("failed to grab keyboard device %s: %w", e.path, err)
		}
		e.grabbed = true
	}

	ctx, cancel := context.WithCancel(ctx)
	e.device = device
	e.cancel = cancel
	e.done = make(chan struct{})
	e.capturing = true

	log.Info("capturing keyboard", "path", e.path, "name", name, "grabbed", e.grabbed)
	go e.readLoop(ctx, device, e.done)
	return nil
}

func (e *EvdevCapture) readLoop(ctx context.Context, device *evdev.InputDevice, done chan struct{}) {
	defer close(done)

	for {
		ev, err := device.ReadOne()
		if err != nil {
			if ctx.Err() == nil {
				log.Error("keyboard read failed", "path", device.Path(), "err", err)
			}
			return
		}

		kev, ok := TranslateEvent(ev)
		if !ok {
			continue
		}

		e.mu.Lock()
		fn := e.onKey
		e.mu.Unlock()
		if fn != nil {
			fn(kev)
		}
	}
}

// Ungrab releases an exclusive grab without stopping the capture
func (e *EvdevCapture) Ungrab() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.grabbed || e.device == nil {
		return nil
	}
	if err := e.device.Ungrab(); err != nil {
		return fmt.Errorf("failed to ungrab keyboard device: %w", err)
	}
	e.grabbed = false
	log.Info("keyboard released", "path", e.path)
	return nil
}

// Stop stops reading and closes the device
func (e *EvdevCapture) Stop() error {
	if err := e.Ungrab(); err != nil {
		log.Warn("ungrab on stop failed", "err", err)
	}

	e.mu.Lock()
	if !e.capturing {
		e.mu.Unlock()
		return nil
	}
	e.capturing = false
	e.cancel()
	device, done := e.device, e.done
	e.device = nil
	e.mu.Unlock()

	// closing unblocks ReadOne
	err := device.Close()
	<-done
	return err
}
