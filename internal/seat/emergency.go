package seat

import (
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
)

// EmergencyRelease ends every keyboard grab on the seat when SIGUSR1 arrives
// or when the trigger file appears.
type EmergencyRelease struct {
	seat        *Seat
	triggerFile string
	onRelease   []func(reason string)
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// DefaultTriggerFile is the trigger file watched by NewEmergencyRelease.
func DefaultTriggerFile() string {
	return filepath.Join(os.TempDir(), "waykbd-release")
}

// NewEmergencyRelease creates a release handler for seat.
func NewEmergencyRelease(seat *Seat) *EmergencyRelease {
	return &EmergencyRelease{
		seat:        seat,
		triggerFile: DefaultTriggerFile(),
		stopChan:    make(chan struct{}),
	}
}

// TriggerFile is the path whose creation triggers a release.
func (er *EmergencyRelease) TriggerFile() string {
	return er.triggerFile
}

// OnRelease registers fn to run after grabs are released, e.g. to ungrab
// the input device.
func (er *EmergencyRelease) OnRelease(fn func(reason string)) {
	er.onRelease = append(er.onRelease, fn)
}

// Start begins monitoring for release conditions. A trigger file left
// over from before Start fires immediately.
func (er *EmergencyRelease) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(er.triggerFile)); err != nil {
		w.Close()
		return err
	}

	go er.handleSignals()
	go er.monitorFileTrigger(w)
	log.Info("emergency release armed", "signal", "SIGUSR1", "file", er.triggerFile)
	er.consumeTrigger()
	return nil
}

// Stop stops all monitoring.
func (er *EmergencyRelease) Stop() {
	er.stopOnce.Do(func() {
		close(er.stopChan)
	})
}

func (er *EmergencyRelease) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			er.Trigger("signal")
		case <-er.stopChan:
			return
		}
	}
}

func (er *EmergencyRelease) monitorFileTrigger(w *fsnotify.Watcher) {
	defer w.Close()
	path := filepath.Clean(er.triggerFile)

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) == path && (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
				er.consumeTrigger()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Warn("trigger file watch error", "err", err)
		case <-er.stopChan:
			return
		}
	}
}

// consumeTrigger fires a release if the trigger file exists and removes it.
func (er *EmergencyRelease) consumeTrigger() {
	if err := os.Remove(er.triggerFile); err == nil {
		er.Trigger("file")
	}
}

// Trigger ends all grabs on the seat loop.
func (er *EmergencyRelease) Trigger(reason string) {
	log.Warn("emergency release triggered", "reason", reason)
	posted := er.seat.Post(func() {
		for _, kb := range er.seat.keyboards {
			if kb.Grabbed() {
				kb.EndGrab()
			}
		}
		for _, fn := range er.onRelease {
			fn(reason)
		}
	})
	if !posted {
		log.Warn("seat stopped, nothing to release")
	}
}
