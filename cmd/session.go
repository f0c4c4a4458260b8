package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/bnema/waykbd/internal/config"
	"github.com/bnema/waykbd/internal/input"
	"github.com/bnema/waykbd/internal/keyboard"
	"github.com/bnema/waykbd/internal/keymap"
	"github.com/bnema/waykbd/internal/locale1"
	"github.com/bnema/waykbd/internal/logger"
	"github.com/bnema/waykbd/internal/seat"
	"github.com/bnema/waykbd/internal/shm"
	"github.com/bnema/waykbd/internal/trace"
	"github.com/bnema/waykbd/internal/ui"
	"github.com/bnema/waykbd/internal/wire"
)

// demoClient is the client id of the logging binding
const demoClient wire.ClientID = 1

// newBuilder wires the libxkbcommon compiler to the shm publisher
func newBuilder(cfg *config.Config) *keymap.Builder {
	return keymap.NewBuilder(keymap.NewXKBCompiler(), shm.NewPublisher(cfg.SHM.RuntimeDir))
}

// resolveDescriptor picks the default layout from the configured source.
// Lookup failures fall back to the keyboard section of the config.
func resolveDescriptor(cfg *config.Config) keymap.Descriptor {
	fallback := cfg.Keyboard.Descriptor()

	switch cfg.Keyboard.LayoutSource {
	case config.LayoutSourceEnv:
		d := keymap.DescriptorFromEnv(os.Getenv(keymap.RuleNamesEnv))
		if d.IsZero() {
			return fallback
		}
		return d
	case config.LayoutSourceLocale1:
		d, err := locale1.Resolve(locale1.DefaultKeyboardFile)
		if err != nil {
			logger.Warn("system layout unavailable, using config", "err", err)
			return fallback
		}
		return d
	default:
		return fallback
	}
}

func keyboardOptions(cfg *config.Config) []keyboard.Option {
	opts := []keyboard.Option{keyboard.WithRepeat(cfg.Keyboard.RepeatRate, cfg.Keyboard.RepeatDelay)}
	if !cfg.Keyboard.TrackPressedKeys {
		opts = append(opts, keyboard.WithoutPressTracking())
	}
	return opts
}

// keyName labels a protocol keycode with its evdev name
func keyName(key uint32) string {
	return input.KeyEvent{Code: key + keyboard.KeycodeOffset}.Name()
}

// session is one seat with a single keyboard, fed by an evdev device and
// observed by a logging client focused on a demo surface.
type session struct {
	cfg      *config.Config
	seat     *seat.Seat
	keyboard *keyboard.Device
	surface  *seat.Surface
	capture  *input.EvdevCapture
	trace    *trace.Writer
	release  *seat.EmergencyRelease

	onChange func(*session)
	runErr   chan error
	cancel   context.CancelFunc
}

type sessionOptions struct {
	sinks    []wire.Sink
	noInput  bool
	onChange func(*session)
}

func newSession(ctx context.Context, cfg *config.Config, opts sessionOptions) (*session, error) {
	builder := newBuilder(cfg)
	desc := resolveDescriptor(cfg)
	logger.Info("default keymap", "descriptor", desc)

	ctx, cancel := context.WithCancel(ctx)
	s := &session{
		cfg:      cfg,
		seat:     seat.New("seat0", builder, keymap.NewDefault(builder, desc), keyboardOptions(cfg)...),
		onChange: opts.onChange,
		runErr:   make(chan error, 1),
		cancel:   cancel,
	}

	sinks := opts.sinks
	if cfg.Trace.Path != "" {
		w, err := trace.Create(cfg.Trace.Path)
		if err != nil {
			cancel()
			return nil, err
		}
		s.trace = w
		sinks = append(sinks, w.Sink())
		logger.Info("tracing outbound events", "path", cfg.Trace.Path)
	}

	go func() {
		s.runErr <- s.seat.Run(ctx)
	}()

	err := s.seat.Call(ctx, func() {
		s.keyboard = s.seat.NewKeyboard()
		res := wire.NewLogResource(demoClient, logger.WithPrefix("client"), sinks...)
		s.keyboard.BindClient(res, wire.InterfaceVersion)
		s.surface = s.seat.CreateSurface(demoClient)
		s.keyboard.SetFocus(s.surface)
		s.keyboard.OnFocusChanged(func(keyboard.Surface) { s.changed() })
		s.keyboard.OnRepeatRateChanged(func(uint32) { s.changed() })
		s.keyboard.OnRepeatDelayChanged(func(uint32) { s.changed() })
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to set up keyboard: %w", err)
	}

	if !opts.noInput {
		s.capture = input.NewEvdevCapture(cfg.Input.DevicePath, cfg.Input.Grab)
		s.capture.OnKeyEvent(s.handleKey)
		if err := s.capture.Start(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.release = seat.NewEmergencyRelease(s.seat)
	s.release.OnRelease(func(reason string) {
		if s.capture != nil {
			if err := s.capture.Ungrab(); err != nil {
				logger.Warn("failed to ungrab input device", "err", err)
			}
		}
	})
	if err := s.release.Start(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (s *session) changed() {
	if s.onChange != nil {
		s.onChange(s)
	}
}

func (s *session) handleKey(ev input.KeyEvent) {
	s.seat.Post(func() {
		if err := s.keyboard.HandleKey(ev.Code, ev.Pressed, ev.Repeat); err != nil {
			logger.Warn("dropped key event", "key", ev.Name(), "err", err)
		}
		s.changed()
	})
}

// applyConfig follows configuration edits: repeat settings, log level and,
// for the config layout source, the keymap.
func (s *session) applyConfig(cfg *config.Config) {
	logger.SetLevel(cfg.Logging.LogLevel)
	s.seat.Post(func() {
		s.keyboard.SetRepeatRate(cfg.Keyboard.RepeatRate)
		s.keyboard.SetRepeatDelay(cfg.Keyboard.RepeatDelay)
		if cfg.Keyboard.LayoutSource == config.LayoutSourceConfig {
			s.keyboard.RequestKeymapChange(cfg.Keyboard.Descriptor())
		}
		s.changed()
	})
}

// followSystemLayout requests a keymap change whenever localed rewrites
// the keyboard file.
func (s *session) followSystemLayout(ctx context.Context) (*locale1.Watcher, error) {
	return locale1.Watch(ctx, locale1.DefaultKeyboardFile, func() {
		d, err := locale1.Resolve(locale1.DefaultKeyboardFile)
		if err != nil {
			logger.Warn("failed to read system layout", "err", err)
			return
		}
		s.seat.Post(func() {
			s.keyboard.RequestKeymapChange(d)
			s.changed()
		})
	})
}

// snapshot captures the keyboard state. It must run on the seat loop.
func (s *session) snapshot() ui.Snapshot {
	kb := s.keyboard
	snap := ui.Snapshot{
		Device:      s.deviceName(),
		Keys:        kb.PressedKeys(),
		Mods:        kb.Modifiers(),
		KeymapState: kb.KeymapState().String(),
		Pending:     kb.HasPendingKeymap(),
		Grabbed:     kb.Grabbed(),
		RepeatRate:  kb.RepeatRate(),
		RepeatDelay: kb.RepeatDelay(),
		Bindings:    kb.BindingCount(),
	}
	if km := kb.Keymap(); km != nil {
		snap.Layout = km.Descriptor().Layout
	}
	if f := kb.Focus(); f != nil {
		snap.Focused = true
		snap.Surface = f.ID()
		snap.Client = f.Client()
	}
	return snap
}

// toggleFocus moves focus between the demo surface and nothing.
func (s *session) toggleFocus() {
	s.seat.Post(func() {
		if s.keyboard.Focus() != nil {
			s.keyboard.SetFocus(nil)
		} else {
			s.keyboard.SetFocus(s.surface)
		}
	})
}

// deviceName returns the input device path, or empty without input
func (s *session) deviceName() string {
	if s.capture == nil {
		return ""
	}
	return s.capture.Path()
}

// Wait blocks until the seat loop exits.
func (s *session) Wait() error {
	err := <-s.runErr
	s.runErr <- err
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close stops input, the seat loop and the trace.
func (s *session) Close() error {
	if s.release != nil {
		s.release.Stop()
	}
	var errs []error
	if s.capture != nil {
		errs = append(errs, s.capture.Stop())
	}
	s.cancel()
	s.seat.Stop()
	errs = append(errs, s.Wait())
	if s.trace != nil {
		errs = append(errs, s.trace.Close())
	}
	return errors.Join(errs...)
}
