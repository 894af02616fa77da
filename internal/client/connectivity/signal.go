// Package connectivity tracks whether the client believes it can reach the
// remote store and reports transitions to subscribers.
package connectivity

import (
	"sync"
	"sync/atomic"
)

// Signal holds the current online belief and notifies listeners on edges.
// Listeners run serially on the goroutine that called Set and must not call
// Set themselves.
type Signal struct {
	mu        sync.Mutex
	online    bool
	nextID    int
	listeners map[int]func(online bool)

	dispatch sync.Mutex
}

// NewSignal returns a Signal starting in the given state.
func NewSignal(online bool) *Signal {
	return &Signal{online: online, listeners: map[int]func(bool){}}
}

// IsOnline returns the current belief.
func (s *Signal) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Set records the new state. Listeners are called only when the state
// actually changes. It reports whether an edge happened.
func (s *Signal) Set(online bool) bool {
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return false
	}
	s.online = online
	fns := make([]func(bool), 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
	return true
}

// Subscribe registers fn for transitions, in subscription order. The
// returned func removes it.
func (s *Signal) Subscribe(fn func(online bool)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Mirror is a flag kept in step with a Signal by its single subscriber and
// read synchronously by everyone else.
type Mirror struct {
	online atomic.Bool
}

func (m *Mirror) IsOnline() bool { return m.online.Load() }

func (m *Mirror) Set(online bool) { m.online.Store(online) }
