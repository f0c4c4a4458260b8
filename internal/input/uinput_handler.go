package input

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThomasT75/uinput"
	evdev "github.com/holoplot/go-evdev"
)

var (
	// ErrHandlerClosed is returned after Close
	ErrHandlerClosed = errors.New("input: virtual keyboard closed")
	// ErrUnknownKey is returned for key names evdev does not define
	ErrUnknownKey = errors.New("input: unknown key")
)

// keySender is the part of uinput.Keyboard used here
type keySender interface {
	KeyDown(key int) error
	KeyUp(key int) error
	KeyPress(key int) error
	Close() error
}

// VirtualKeyboard injects key events through uinput
type VirtualKeyboard struct {
	mu       sync.Mutex
	keyboard keySender
	closed   bool
}

// NewVirtualKeyboard creates a uinput keyboard device called name
func NewVirtualKeyboard(name string) (*VirtualKeyboard, error) {
	kb, err := uinput.CreateKeyboard("/dev/uinput", []byte(name))
	if err != nil {
		return nil, fmt.Errorf("failed to create virtual keyboard: %w", err)
	}
	return &VirtualKeyboard{keyboard: kb}, nil
}

func (v *VirtualKeyboard) do(fn func(keySender) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrHandlerClosed
	}
	return fn(v.keyboard)
}

// KeyDown presses an evdev key code
func (v *VirtualKeyboard) KeyDown(code int) error {
	return v.do(func(kb keySender) error { return kb.KeyDown(code) })
}

// KeyUp releases an evdev key code
func (v *VirtualKeyboard) KeyUp(code int) error {
	return v.do(func(kb keySender) error { return kb.KeyUp(code) })
}

// KeyPress presses and releases an evdev key code
func (v *VirtualKeyboard) KeyPress(code int) error {
	return v.do(func(kb keySender) error { return kb.KeyPress(code) })
}

// Chord holds every key but the last, taps the last, then releases the
// held keys in reverse order.
func (v *VirtualKeyboard) Chord(codes []int, hold time.Duration) error {
	if len(codes) == 0 {
		return nil
	}
	held := codes[:len(codes)-1]
	for _, c := range held {
		if err := v.KeyDown(c); err != nil {
			return err
		}
	}
	err := v.KeyPress(codes[len(codes)-1])
	time.Sleep(hold)
	for i := len(held) - 1; i >= 0; i-- {
		if upErr := v.KeyUp(held[i]); upErr != nil && err == nil {
			err = upErr
		}
	}
	return err
}

// Close destroys the virtual device
func (v *VirtualKeyboard) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	return v.keyboard.Close()
}

var (
	keyNamesOnce sync.Once
	keyNames     map[string]int
)

// KeyCode resolves a key name such as "a", "KEY_A" or "leftctrl" to its
// evdev code.
func KeyCode(name string) (int, error) {
	keyNamesOnce.Do(func() {
		keyNames = make(map[string]int, len(evdev.KEYToString))
		for code, n := range evdev.KEYToString {
			if !strings.HasPrefix(n, "KEY_") {
				continue
			}
			// keep the lowest code when a name repeats
			if prev, ok := keyNames[n]; !ok || int(code) < prev {
				keyNames[n] = int(code)
			}
		}
	})

	key := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(key, "KEY_") {
		key = "KEY_" + key
	}
	code, ok := keyNames[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKey, name)
	}
	return code, nil
}

// ParseChord resolves a "ctrl+shift+a" style chord to evdev codes. Bare
// modifier names map to their left-hand key.
func ParseChord(chord string) ([]int, error) {
	aliases := map[string]string{
		"ctrl":  "leftctrl",
		"shift": "leftshift",
		"alt":   "leftalt",
		"super": "leftmeta",
		"meta":  "leftmeta",
	}

	var codes []int
	for _, part := range strings.Split(chord, "+") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			return nil, fmt.Errorf("%w: empty key in %q", ErrUnknownKey, chord)
		}
		if alias, ok := aliases[part]; ok {
			part = alias
		}
		code, err := KeyCode(part)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}
