package seat

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bnema/waykbd/internal/keyboard"
	"github.com/bnema/waykbd/internal/keymap"
	"github.com/bnema/waykbd/internal/keymap/keymaptest"
	"github.com/bnema/waykbd/internal/shm"
	"github.com/bnema/waykbd/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSeat(t *testing.T) *Seat {
	t.Helper()
	b := keymap.NewBuilder(&keymaptest.Compiler{}, shm.NewPublisher(t.TempDir()))
	def := keymap.NewDefault(b, keymap.Descriptor{Layout: "us"})
	t.Cleanup(def.Close)
	return New("seat0", b, def)
}

func runSeat(t *testing.T, s *Seat) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestSerialsIncrease(t *testing.T) {
	s := newTestSeat(t)
	a := s.NextSerial()
	b := s.NextSerial()
	assert.Equal(t, a+1, b)
}

func TestCurrentTimeMsecs(t *testing.T) {
	s := newTestSeat(t)
	s.start = time.Now().Add(-1500 * time.Millisecond)
	assert.GreaterOrEqual(t, s.CurrentTimeMsecs(), uint32(1500))
}

func TestPostRunsInOrder(t *testing.T) {
	s := newTestSeat(t)
	runSeat(t, s)

	var got []int
	for i := range 10 {
		require.True(t, s.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, s.Call(context.Background(), func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestStop(t *testing.T) {
	s := newTestSeat(t)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	var kb *keyboard.Device
	require.NoError(t, s.Call(context.Background(), func() {
		s.NewKeyboard()
		kb = s.NewKeyboard()
		assert.Len(t, s.Keyboards(), 2)
	}))
	require.NoError(t, s.Call(context.Background(), func() {
		kb.RequestKeymapChange(keymap.Descriptor{Layout: "de"})
	}))
	custom := kb.Keymap()

	s.Stop()
	s.Stop()
	assert.NoError(t, <-done)
	assert.True(t, custom.Released(), "keyboards are destroyed on exit")

	assert.False(t, s.Post(func() {}))
	assert.ErrorIs(t, s.Call(context.Background(), func() {}), ErrStopped)
}

func TestRunContextCancel(t *testing.T) {
	s := newTestSeat(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Run(ctx), context.Canceled)
	assert.False(t, s.Post(func() {}))
}

func TestSurfaceDestroy(t *testing.T) {
	s := NewSurface(1, 5)
	var order []int
	s.OnDestroy(func() { order = append(order, 1) })
	cancel := s.OnDestroy(func() { order = append(order, 2) })
	s.OnDestroy(func() { order = append(order, 3) })
	cancel()

	s.Destroy()
	s.Destroy()
	assert.Equal(t, []int{1, 3}, order)
	assert.True(t, s.Destroyed())

	// late subscribers are never called
	s.OnDestroy(func() { t.Fatal("called after destroy") })()
}

func TestSurfaceCursor(t *testing.T) {
	s := NewSurface(1, 5)
	assert.False(t, s.IsCursorSurface())
	s.SetCursor(true)
	assert.True(t, s.IsCursorSurface())
	assert.Equal(t, wire.ClientID(5), s.Client())
}

func TestKeyboardFollowsSurfaceDestruction(t *testing.T) {
	s := newTestSeat(t)
	runSeat(t, s)

	rec := wire.NewRecorder(1)
	surf := s.CreateSurface(1)
	var kb *keyboard.Device
	require.NoError(t, s.Call(context.Background(), func() {
		kb = s.NewKeyboard()
		kb.BindClient(rec, wire.InterfaceVersion)
		kb.SetFocus(surf)
	}))
	assert.Equal(t, 1, rec.Count(wire.KindEnter))

	require.NoError(t, s.Call(context.Background(), surf.Destroy))
	require.NoError(t, s.Call(context.Background(), func() {
		assert.Nil(t, kb.Focus())
	}))
}

func TestShutdownClosesDefaultKeymap(t *testing.T) {
	b := keymap.NewBuilder(&keymaptest.Compiler{}, shm.NewPublisher(t.TempDir()))
	def := keymap.NewDefault(b, keymap.Descriptor{Layout: "us"})
	s := New("seat0", b, def)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var km *keymap.Compiled
	require.NoError(t, s.Call(context.Background(), func() {
		km = s.NewKeyboard().Keymap()
	}))
	require.NotNil(t, km)
	assert.Equal(t, keymap.Shared, km.Ownership())
	assert.False(t, km.Released())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.True(t, km.Released())
	assert.Empty(t, s.Keyboards())
}

type swallow struct{}

func (swallow) Focused(keyboard.Surface)                  {}
func (swallow) Key(uint32, uint32, uint32, wire.KeyState) {}
func (swallow) Modifiers(uint32, keymap.Modifiers)        {}

func TestEmergencyRelease(t *testing.T) {
	s := newTestSeat(t)
	runSeat(t, s)

	var kb *keyboard.Device
	require.NoError(t, s.Call(context.Background(), func() {
		kb = s.NewKeyboard()
		kb.StartGrab(swallow{})
	}))

	var mu sync.Mutex
	var reasons []string
	er := NewEmergencyRelease(s)
	er.triggerFile = filepath.Join(t.TempDir(), "release")
	er.OnRelease(func(reason string) {
		mu.Lock()
		defer mu.Unlock()
		reasons = append(reasons, reason)
	})
	require.NoError(t, er.Start())
	defer er.Stop()

	require.NoError(t, os.WriteFile(er.TriggerFile(), nil, 0o600))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reasons) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Call(context.Background(), func() {
		assert.False(t, kb.Grabbed())
	}))
	_, err := os.Stat(er.TriggerFile())
	assert.True(t, os.IsNotExist(err))
}

func TestEmergencyReleaseLeftoverTrigger(t *testing.T) {
	s := newTestSeat(t)
	runSeat(t, s)

	er := NewEmergencyRelease(s)
	er.triggerFile = filepath.Join(t.TempDir(), "release")
	require.NoError(t, os.WriteFile(er.TriggerFile(), nil, 0o600))

	released := make(chan string, 1)
	er.OnRelease(func(reason string) { released <- reason })
	require.NoError(t, er.Start())
	defer er.Stop()

	select {
	case reason := <-released:
		assert.Equal(t, "file", reason)
	case <-time.After(2 * time.Second):
		t.Fatal("leftover trigger file was not consumed")
	}
	assert.NoFileExists(t, er.TriggerFile())
}
