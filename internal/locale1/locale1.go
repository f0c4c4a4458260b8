// Package locale1 reads the system keyboard layout from systemd-localed,
// falling back to /etc/default/keyboard.
package locale1

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bnema/waykbd/internal/keymap"
	"github.com/bnema/waykbd/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/godbus/dbus/v5"
)

const (
	busName    = "org.freedesktop.locale1"
	objectPath = dbus.ObjectPath("/org/freedesktop/locale1")

	// DefaultKeyboardFile is the Debian-style keyboard configuration file.
	DefaultKeyboardFile = "/etc/default/keyboard"

	rules = "evdev"
)

var log = logger.WithPrefix("locale1")

// ErrNoLayout means neither localed nor the keyboard file named a layout.
var ErrNoLayout = errors.New("locale1: no keyboard layout configured")

// PropertyGetter is the part of a D-Bus object used to read properties.
type PropertyGetter interface {
	GetProperty(p string) (dbus.Variant, error)
}

var properties = []string{"X11Layout", "X11Model", "X11Variant", "X11Options"}

// Read fetches the X11 keyboard properties from obj.
func Read(obj PropertyGetter) (keymap.Descriptor, error) {
	vals := make(map[string]string, len(properties))
	for _, property := range properties {
		v, err := obj.GetProperty(busName + "." + property)
		if err != nil {
			return keymap.Descriptor{}, fmt.Errorf("get %s: %w", property, err)
		}
		s, ok := v.Value().(string)
		if !ok {
			return keymap.Descriptor{}, fmt.Errorf("property %s: expected string, found %T", property, v.Value())
		}
		vals[property] = s
	}

	d := keymap.Descriptor{
		Rules:   rules,
		Model:   vals["X11Model"],
		Layout:  vals["X11Layout"],
		Variant: vals["X11Variant"],
		Options: vals["X11Options"],
	}
	if d.Layout == "" {
		return d, ErrNoLayout
	}
	return d, nil
}

// Lookup asks localed on the system bus for the keyboard layout.
func Lookup() (keymap.Descriptor, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return keymap.Descriptor{}, fmt.Errorf("connect to system bus: %w", err)
	}
	return Read(conn.Object(busName, objectPath))
}

// ParseDefaultKeyboard reads XKBMODEL, XKBLAYOUT, XKBVARIANT and XKBOPTIONS
// assignments in shell syntax.
func ParseDefaultKeyboard(r io.Reader) (keymap.Descriptor, error) {
	d := keymap.Descriptor{Rules: rules}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		switch strings.TrimSpace(key) {
		case "XKBMODEL":
			d.Model = value
		case "XKBLAYOUT":
			d.Layout = value
		case "XKBVARIANT":
			d.Variant = value
		case "XKBOPTIONS":
			d.Options = value
		}
	}
	if err := scanner.Err(); err != nil {
		return keymap.Descriptor{}, err
	}
	if d.Layout == "" {
		return d, ErrNoLayout
	}
	return d, nil
}

// Resolve tries localed first and then the keyboard file at path.
func Resolve(path string) (keymap.Descriptor, error) {
	d, err := Lookup()
	if err == nil {
		log.Debug("layout from localed", "descriptor", d)
		return d, nil
	}
	log.Debug("localed unavailable, trying keyboard file", "path", path, "err", err)

	f, ferr := os.Open(path)
	if ferr != nil {
		return keymap.Descriptor{}, errors.Join(err, ferr)
	}
	defer f.Close()
	return ParseDefaultKeyboard(f)
}

// Watcher calls back when the keyboard file changes.
type Watcher struct {
	w    *fsnotify.Watcher
	path string
	done chan struct{}
}

// Watch watches the keyboard file at path until ctx is done. localed
// rewrites that file when the layout changes.
func Watch(ctx context.Context, path string, cb func()) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// watch the directory so atomic replaces are seen
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}

	watcher := &Watcher{w: w, path: filepath.Clean(path), done: make(chan struct{})}
	go watcher.loop(ctx, cb)
	return watcher, nil
}

func (w *Watcher) loop(ctx context.Context, cb func()) {
	defer close(w.done)
	defer w.w.Close()

	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				cb()
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			log.Warn("keyboard file watch error", "err", err)
		case <-ctx.Done():
			return
		}
	}
}

// Wait blocks until the watcher has stopped.
func (w *Watcher) Wait() {
	<-w.done
}
