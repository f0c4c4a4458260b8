package keyboard

import "github.com/bnema/waykbd/internal/wire"

// Binding is one client's bound keyboard resource.
type Binding struct {
	resource wire.Resource
	version  uint32
	removed  bool
}

func (b *Binding) Resource() wire.Resource {
	return b.resource
}

// Version is the negotiated interface version.
func (b *Binding) Version() uint32 {
	return b.version
}

func (b *Binding) Client() wire.ClientID {
	return b.resource.Client()
}

// registry keeps bindings in bind order. A client may bind more than once;
// the most recent binding is the one focus resolves to.
type registry struct {
	all []*Binding
}

func (r *registry) add(res wire.Resource, version uint32) *Binding {
	b := &Binding{resource: res, version: version}
	r.all = append(r.all, b)
	return b
}

// remove drops b and reports whether it was still registered.
func (r *registry) remove(b *Binding) bool {
	if b == nil || b.removed {
		return false
	}
	for i, cur := range r.all {
		if cur == b {
			r.all = append(r.all[:i], r.all[i+1:]...)
			b.removed = true
			return true
		}
	}
	return false
}

func (r *registry) lookup(client wire.ClientID) *Binding {
	for i := len(r.all) - 1; i >= 0; i-- {
		if r.all[i].Client() == client {
			return r.all[i]
		}
	}
	return nil
}

func (r *registry) forClient(client wire.ClientID) []*Binding {
	var out []*Binding
	for _, b := range r.all {
		if b.Client() == client {
			out = append(out, b)
		}
	}
	return out
}

func (r *registry) each(fn func(*Binding)) {
	for _, b := range append([]*Binding(nil), r.all...) {
		fn(b)
	}
}

func (r *registry) len() int {
	return len(r.all)
}
