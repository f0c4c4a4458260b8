// Package keymap compiles keyboard layout descriptors into layout tables and
// publishes their text form to clients through shared memory.
package keymap

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bnema/waykbd/internal/logger"
	"github.com/bnema/waykbd/internal/shm"
)

var (
	// ErrContextCreationFailed means the layout compiler backend could not start.
	ErrContextCreationFailed = errors.New("keymap: failed to create layout compiler context")
	// ErrCompileFailed means the descriptor could not be resolved or serialized.
	ErrCompileFailed = errors.New("keymap: failed to compile layout")
	// ErrReleased is returned by a keymap that has already been released.
	ErrReleased = errors.New("keymap: released")
)

var log = logger.WithPrefix("keymap")

// Modifiers is the serialized modifier state of a layout state tracker.
type Modifiers struct {
	Depressed uint32
	Latched   uint32
	Locked    uint32
	Group     uint32
}

// Compiler turns a descriptor into a compiled layout table.
type Compiler interface {
	Compile(d Descriptor) (Layout, error)
}

// Layout is a compiled layout table.
type Layout interface {
	// Text serializes the table to the text keymap format.
	Text() (string, error)
	// NewState creates a fresh state tracker for the table.
	NewState() (State, error)
	// KeycodeForKeysym returns the raw keycode producing keysym at level 0 of group.
	KeycodeForKeysym(group, keysym uint32) (uint32, bool)
	Close()
}

// State tracks pressed keys and modifiers against a layout.
// Keycodes are raw layout keycodes, i.e. evdev codes plus 8.
type State interface {
	UpdateKey(keycode uint32, down bool)
	Serialize() Modifiers
	UpdateMask(m Modifiers)
	Close()
}

// Publisher places serialized keymap text in shared memory.
type Publisher interface {
	Publish(text string) (*shm.Region, error)
}

// Ownership says who releases a compiled keymap.
type Ownership int

const (
	// Exclusive keymaps belong to one device and are released on replace or teardown.
	Exclusive Ownership = iota
	// Shared keymaps are never released by their holders.
	Shared
)

func (o Ownership) String() string {
	switch o {
	case Exclusive:
		return "exclusive"
	case Shared:
		return "shared"
	default:
		return fmt.Sprintf("Ownership(%d)", int(o))
	}
}

// Compiled is a layout table together with its published text.
type Compiled struct {
	mu         sync.Mutex
	descriptor Descriptor
	layout     Layout
	region     *shm.Region
	ownership  Ownership
	released   bool
}

// FD returns the shared buffer descriptor.
func (k *Compiled) FD() int {
	return k.region.FD()
}

// Size returns the shared buffer size, terminator included.
func (k *Compiled) Size() uint32 {
	return k.region.Size()
}

// Text returns the published keymap text.
func (k *Compiled) Text() (string, error) {
	return k.region.Text()
}

func (k *Compiled) Descriptor() Descriptor {
	return k.descriptor
}

func (k *Compiled) Ownership() Ownership {
	return k.ownership
}

// Layout returns the compiled table. It must not be used after release.
func (k *Compiled) Layout() Layout {
	return k.layout
}

// NewState creates a state tracker bound to this keymap's layout.
func (k *Compiled) NewState() (State, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.released {
		return nil, ErrReleased
	}
	return k.layout.NewState()
}

// Released reports whether the backing resources have been freed.
func (k *Compiled) Released() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.released
}

// Release frees an exclusive keymap exactly once. It is a no-op for shared keymaps.
func (k *Compiled) Release() {
	if k == nil || k.ownership == Shared {
		return
	}
	k.destroy()
}

func (k *Compiled) destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.released {
		return
	}
	k.released = true

	if err := k.region.Close(); err != nil {
		log.Warn("failed to release keymap buffer", "err", err)
	}
	k.layout.Close()
	log.Debug("released keymap", "layout", k.descriptor.Layout, "ownership", k.ownership)
}

// Builder compiles descriptors and publishes the result.
type Builder struct {
	Compiler  Compiler
	Publisher Publisher
}

// NewBuilder returns a builder using the given backends.
func NewBuilder(c Compiler, p Publisher) *Builder {
	return &Builder{Compiler: c, Publisher: p}
}

// Build compiles d, serializes it and publishes the text. Partially acquired
// resources are released on failure. The result is Exclusive.
func (b *Builder) Build(d Descriptor) (*Compiled, error) {
	layout, err := b.Compiler.Compile(d)
	if err != nil {
		return nil, err
	}

	text, err := layout.Text()
	if err != nil {
		layout.Close()
		return nil, fmt.Errorf("%w: serialize %s: %v", ErrCompileFailed, d, err)
	}

	region, err := b.Publisher.Publish(text)
	if err != nil {
		layout.Close()
		return nil, fmt.Errorf("publish keymap: %w", err)
	}

	log.Debug("created keymap",
		"fd", region.FD(),
		"size", region.Size(),
		"layout", d.Layout,
		"variant", d.Variant,
		"options", d.Options,
		"model", d.Model,
		"rules", d.Rules)

	return &Compiled{
		descriptor: d,
		layout:     layout,
		region:     region,
		ownership:  Exclusive,
	}, nil
}
