package seat

import (
	"slices"
	"sync"

	"github.com/bnema/waykbd/internal/wire"
)

// Surface is a client surface with destruction listeners.
type Surface struct {
	id     uint32
	client wire.ClientID

	mu        sync.Mutex
	cursor    bool
	destroyed bool
	listeners map[uint64]func()
	next      uint64
}

// NewSurface creates a live surface.
func NewSurface(id uint32, client wire.ClientID) *Surface {
	return &Surface{id: id, client: client, listeners: make(map[uint64]func())}
}

func (s *Surface) ID() uint32 {
	return s.id
}

func (s *Surface) Client() wire.ClientID {
	return s.client
}

// SetCursor marks the surface as a pointer cursor image.
func (s *Surface) SetCursor(cursor bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = cursor
}

func (s *Surface) IsCursorSurface() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// OnDestroy registers fn to run on Destroy. Nothing is registered on a
// surface that is already gone.
func (s *Surface) OnDestroy(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return func() {}
	}

	id := s.next
	s.next++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Destroy notifies the listeners once, in registration order.
func (s *Surface) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	listeners := s.listeners
	s.listeners = make(map[uint64]func())
	s.mu.Unlock()

	slices.Sort(ids)
	for _, id := range ids {
		listeners[id]()
	}
}

// Destroyed reports whether Destroy was called.
func (s *Surface) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}
