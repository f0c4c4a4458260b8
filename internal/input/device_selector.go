package input

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/huh"
	evdev "github.com/holoplot/go-evdev"
)

// ErrNoKeyboard is returned when no keyboard device is present.
var ErrNoKeyboard = errors.New("input: no keyboard devices found")

// DeviceInfo represents information about an input device
type DeviceInfo struct {
	Path        string
	Name        string
	Symlink     string
	Descriptive string
}

// requiredKeys marks a device as a full keyboard rather than a button box
var requiredKeys = []evdev.EvCode{evdev.KEY_A, evdev.KEY_Z, evdev.KEY_SPACE, evdev.KEY_ENTER}

// IsKeyboard reports whether a device with the given name and key
// capabilities is a typing keyboard.
func IsKeyboard(name string, keys []evdev.EvCode) bool {
	nameLower := strings.ToLower(name)
	for _, skip := range []string{"power", "video", "sleep", "button"} {
		if strings.Contains(nameLower, skip) {
			return false
		}
	}
	for _, k := range requiredKeys {
		if !slices.Contains(keys, k) {
			return false
		}
	}
	return true
}

func describe(name, path, symlink string) string {
	if symlink != "" {
		return fmt.Sprintf("%s (%s → %s)", name, symlink, path)
	}
	return fmt.Sprintf("%s (%s)", name, path)
}

// ListKeyboards lists the keyboard devices that can be opened
func ListKeyboards() ([]DeviceInfo, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("failed to list input devices: %w", err)
	}

	var devices []DeviceInfo
	for _, p := range paths {
		dev, err := evdev.Open(p.Path)
		if err != nil {
			log.Debug("skipping device", "path", p.Path, "err", err)
			continue
		}
		keys := dev.CapableEvents(evdev.EV_KEY)
		dev.Close()

		if !IsKeyboard(p.Name, keys) {
			continue
		}
		info := DeviceInfo{Path: p.Path, Name: p.Name, Symlink: findSymlink(p.Path)}
		info.Descriptive = describe(info.Name, info.Path, info.Symlink)
		devices = append(devices, info)
	}
	return devices, nil
}

// FindKeyboard returns the first keyboard device
func FindKeyboard() (DeviceInfo, error) {
	devices, err := ListKeyboards()
	if err != nil {
		return DeviceInfo{}, err
	}
	if len(devices) == 0 {
		return DeviceInfo{}, ErrNoKeyboard
	}
	log.Info("auto-selected keyboard", "device", devices[0].Descriptive)
	return devices[0], nil
}

// findSymlink returns the persistent by-id link for a device node
func findSymlink(path string) string {
	links, err := filepath.Glob("/dev/input/by-id/*")
	if err != nil {
		return ""
	}
	for _, link := range links {
		target, err := filepath.EvalSymlinks(link)
		if err == nil && target == path {
			return link
		}
	}
	return ""
}

// DeviceSelector provides interactive device selection using huh
type DeviceSelector struct {
	list func() ([]DeviceInfo, error)
}

// NewDeviceSelector creates a new device selector
func NewDeviceSelector() *DeviceSelector {
	return &DeviceSelector{list: ListKeyboards}
}

// SelectKeyboardDevice presents an interactive selection for keyboard devices
func (s *DeviceSelector) SelectKeyboardDevice() (string, error) {
	devices, err := s.list()
	if err != nil {
		return "", err
	}

	if len(devices) == 0 {
		return "", ErrNoKeyboard
	}

	// If only one device, use it automatically
	if len(devices) == 1 {
		log.Info("auto-selected keyboard", "device", devices[0].Descriptive)
		return devices[0].Path, nil
	}

	options := make([]huh.Option[string], len(devices))
	for i, dev := range devices {
		options[i] = huh.NewOption(dev.Descriptive, dev.Path)
	}

	var selected string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Keyboard Device").
				Description("Choose the keyboard to read key events from").
				Options(options...).
				Value(&selected),
		),
	)

	if err := form.Run(); err != nil {
		return "", fmt.Errorf("device selection cancelled: %w", err)
	}

	return selected, nil
}
