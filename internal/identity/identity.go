// Package identity tells the client who is signed in.
package identity

import (
	"sync"

	"github.com/blackmichael/live-comments/internal/domain"
)

// Provider reports the signed-in identity and its changes.
type Provider interface {
	// Current returns the signed-in identity. ok is false when nobody is
	// signed in.
	Current() (id domain.Identity, ok bool)

	// Subscribe calls fn on every sign-in and sign-out until the returned
	// function is called.
	Subscribe(fn func(id domain.Identity, ok bool)) (unsubscribe func())
}

// Static is an in-process Provider whose identity is set by the host.
type Static struct {
	mu     sync.Mutex
	id     domain.Identity
	ok     bool
	nextID int
	subs   map[int]func(domain.Identity, bool)
}

// NewStatic returns a provider signed in as id, or signed out if id is nil.
func NewStatic(id *domain.Identity) *Static {
	s := &Static{subs: make(map[int]func(domain.Identity, bool))}
	if id != nil {
		s.id, s.ok = *id, true
	}
	return s
}

// Current returns the identity set by NewStatic, SignIn or SignOut.
func (s *Static) Current() (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.ok
}

// Subscribe registers fn for later sign-ins and sign-outs. It is not called
// with the current identity.
func (s *Static) Subscribe(fn func(domain.Identity, bool)) func() {
	s.mu.Lock()
	key := s.nextID
	s.nextID++
	s.subs[key] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, key)
		s.mu.Unlock()
	}
}

// SignIn switches to id and notifies subscribers.
func (s *Static) SignIn(id domain.Identity) {
	s.set(id, true)
}

// SignOut clears the identity and notifies subscribers.
func (s *Static) SignOut() {
	s.set(domain.Identity{}, false)
}

func (s *Static) set(id domain.Identity, ok bool) {
	s.mu.Lock()
	s.id, s.ok = id, ok
	subs := make([]func(domain.Identity, bool), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(id, ok)
	}
}
