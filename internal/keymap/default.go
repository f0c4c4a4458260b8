package keymap

import "sync"

// Default is the process-wide fallback keymap. It is built on first use,
// handed out as Shared, and torn down by Close at shutdown.
type Default struct {
	builder    *Builder
	descriptor Descriptor

	once   sync.Once
	keymap *Compiled
	err    error
}

// NewDefault prepares a default keymap for d without compiling it yet.
func NewDefault(b *Builder, d Descriptor) *Default {
	return &Default{builder: b, descriptor: d}
}

// Get returns the shared keymap, building it the first time. A nil keymap
// with an error means devices must run without a keymap.
func (d *Default) Get() (*Compiled, error) {
	d.once.Do(func() {
		k, err := d.builder.Build(d.descriptor)
		if err != nil {
			log.Error("failed to create default keymap", "descriptor", d.descriptor, "err", err)
			d.err = err
			return
		}
		k.ownership = Shared
		d.keymap = k
		log.Info("created default keymap", "fd", k.FD(), "size", k.Size(), "layout", d.descriptor.Layout)
	})
	return d.keymap, d.err
}

// Descriptor returns the descriptor the default keymap is built from.
func (d *Default) Descriptor() Descriptor {
	return d.descriptor
}

// Close releases the shared keymap. Devices must be gone by then.
func (d *Default) Close() {
	// keep Get from building after shutdown
	d.once.Do(func() {})
	if d.keymap != nil {
		d.keymap.destroy()
	}
}
