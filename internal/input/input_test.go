package input

import (
	"errors"
	"os"
	"testing"

	evdev "github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateEvent(t *testing.T) {
	tests := []struct {
		name   string
		event  *evdev.InputEvent
		want   KeyEvent
		wantOK bool
	}{
		{
			name:   "key down",
			event:  &evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_A, Value: 1},
			want:   KeyEvent{Code: 38, Pressed: true},
			wantOK: true,
		},
		{
			name:   "key up",
			event:  &evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_A, Value: 0},
			want:   KeyEvent{Code: 38},
			wantOK: true,
		},
		{
			name:   "autorepeat",
			event:  &evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_LEFTSHIFT, Value: 2},
			want:   KeyEvent{Code: 50, Pressed: true, Repeat: true},
			wantOK: true,
		},
		{
			name:  "sync event",
			event: &evdev.InputEvent{Type: evdev.EV_SYN},
		},
		{
			name:  "relative motion",
			event: &evdev.InputEvent{Type: evdev.EV_REL, Code: evdev.REL_X, Value: 1},
		},
		{
			name:  "unknown key value",
			event: &evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_A, Value: 3},
		},
		{
			name: "nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TranslateEvent(tt.event)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeyEventName(t *testing.T) {
	assert.Equal(t, "KEY_A", KeyEvent{Code: 38}.Name())
	assert.Equal(t, "KEY_ESC", KeyEvent{Code: 9}.Name())
}

func TestIsKeyboard(t *testing.T) {
	full := []evdev.EvCode{evdev.KEY_ESC, evdev.KEY_A, evdev.KEY_Z, evdev.KEY_SPACE, evdev.KEY_ENTER}

	tests := []struct {
		name string
		dev  string
		keys []evdev.EvCode
		want bool
	}{
		{name: "full keyboard", dev: "AT Translated Set 2 keyboard", keys: full, want: true},
		{name: "power button", dev: "Power Button", keys: full},
		{name: "video bus", dev: "Video Bus", keys: full},
		{name: "media keys only", dev: "Consumer Control", keys: []evdev.EvCode{evdev.KEY_VOLUMEUP}},
		{name: "no keys", dev: "Mouse", keys: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsKeyboard(tt.dev, tt.keys))
		})
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "kbd (/dev/input/event3)", describe("kbd", "/dev/input/event3", ""))
	assert.Equal(t, "kbd (/dev/input/by-id/usb-kbd → /dev/input/event3)",
		describe("kbd", "/dev/input/event3", "/dev/input/by-id/usb-kbd"))
}

func TestSelectKeyboardDevice(t *testing.T) {
	t.Run("single device is auto-selected", func(t *testing.T) {
		s := &DeviceSelector{list: func() ([]DeviceInfo, error) {
			return []DeviceInfo{{Path: "/dev/input/event4", Name: "kbd"}}, nil
		}}
		path, err := s.SelectKeyboardDevice()
		require.NoError(t, err)
		assert.Equal(t, "/dev/input/event4", path)
	})

	t.Run("no devices", func(t *testing.T) {
		s := &DeviceSelector{list: func() ([]DeviceInfo, error) { return nil, nil }}
		_, err := s.SelectKeyboardDevice()
		assert.ErrorIs(t, err, ErrNoKeyboard)
	})

	t.Run("listing fails", func(t *testing.T) {
		boom := errors.New("boom")
		s := &DeviceSelector{list: func() ([]DeviceInfo, error) { return nil, boom }}
		_, err := s.SelectKeyboardDevice()
		assert.ErrorIs(t, err, boom)
	})
}

func TestKeyCode(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{name: "a", want: int(evdev.KEY_A)},
		{name: "KEY_A", want: int(evdev.KEY_A)},
		{name: " leftctrl ", want: int(evdev.KEY_LEFTCTRL)},
		{name: "F1", want: int(evdev.KEY_F1)},
		{name: "not-a-key", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KeyCode(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseChord(t *testing.T) {
	codes, err := ParseChord("ctrl+Shift+t")
	require.NoError(t, err)
	assert.Equal(t, []int{int(evdev.KEY_LEFTCTRL), int(evdev.KEY_LEFTSHIFT), int(evdev.KEY_T)}, codes)

	_, err = ParseChord("ctrl++a")
	assert.ErrorIs(t, err, ErrUnknownKey)
	_, err = ParseChord("hyper+a")
	assert.ErrorIs(t, err, ErrUnknownKey)
}

type fakeKeys struct {
	log    []string
	closed int
}

func (f *fakeKeys) record(op string, k int) error {
	f.log = append(f.log, op, evdev.CodeName(evdev.EV_KEY, evdev.EvCode(k)))
	return nil
}

func (f *fakeKeys) KeyDown(k int) error  { return f.record("down", k) }
func (f *fakeKeys) KeyUp(k int) error    { return f.record("up", k) }
func (f *fakeKeys) KeyPress(k int) error { return f.record("press", k) }

func (f *fakeKeys) Close() error {
	f.closed++
	return nil
}

func TestVirtualKeyboardChord(t *testing.T) {
	fake := &fakeKeys{}
	v := &VirtualKeyboard{keyboard: fake}

	codes, err := ParseChord("ctrl+alt+t")
	require.NoError(t, err)
	require.NoError(t, v.Chord(codes, 0))

	assert.Equal(t, []string{
		"down", "KEY_LEFTCTRL",
		"down", "KEY_LEFTALT",
		"press", "KEY_T",
		"up", "KEY_LEFTALT",
		"up", "KEY_LEFTCTRL",
	}, fake.log)

	require.NoError(t, v.Close())
	require.NoError(t, v.Close())
	assert.Equal(t, 1, fake.closed)
	assert.ErrorIs(t, v.KeyPress(int(evdev.KEY_A)), ErrHandlerClosed)
}

// TestVirtualKeyboardIntegration creates a real uinput device when allowed
func TestVirtualKeyboardIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if f, err := os.OpenFile("/dev/uinput", os.O_WRONLY, 0); err != nil {
		t.Skipf("Cannot open /dev/uinput: %v", err)
	} else {
		f.Close()
	}

	v, err := NewVirtualKeyboard("waykbd test keyboard")
	if err != nil {
		t.Skipf("Cannot create virtual keyboard: %v", err)
	}
	assert.NoError(t, v.Close())
	assert.ErrorIs(t, v.KeyDown(int(evdev.KEY_A)), ErrHandlerClosed)
}

func TestEvdevCaptureStopWithoutStart(t *testing.T) {
	e := NewEvdevCapture("/dev/input/event-none", false)
	assert.NoError(t, e.Stop())
	assert.NoError(t, e.Ungrab())
	assert.Equal(t, "/dev/input/event-none", e.Path())
}

func TestEvdevCaptureOpenFailure(t *testing.T) {
	e := NewEvdevCapture("/nonexistent/event0", true)
	err := e.Start(t.Context())
	assert.Error(t, err)
	assert.NoError(t, e.Stop())
}
