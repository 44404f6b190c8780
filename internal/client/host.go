package client

import (
	"context"
	"sync"

	"github.com/blackmichael/live-comments/internal/domain"
	"github.com/blackmichael/live-comments/internal/identity"
)

// Host keeps at most one session open, following the identity provider.
type Host struct {
	deps Deps

	mu      sync.Mutex
	session *Session
}

// NewHost creates a host with no session.
func NewHost(deps Deps) *Host {
	return &Host{deps: deps}
}

// Session returns the current session, or nil while signed out.
func (h *Host) Session() *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session
}

// Follow opens a session for the provider's identity and replaces it on
// every sign-in or sign-out until stop is called. stop closes the last
// session.
func (h *Host) Follow(p identity.Provider) (stop func()) {
	unsubscribe := p.Subscribe(h.switchTo)
	h.switchTo(p.Current())

	return func() {
		unsubscribe()
		h.switchTo(domain.Identity{}, false)
	}
}

// Watch follows the provider until ctx is done.
func (h *Host) Watch(ctx context.Context, p identity.Provider) error {
	stop := h.Follow(p)
	defer stop()

	<-ctx.Done()
	return ctx.Err()
}

func (h *Host) switchTo(id domain.Identity, ok bool) {
	h.mu.Lock()
	old := h.session
	h.session = nil
	if ok {
		h.session = NewSession(id, h.deps)
	}
	h.mu.Unlock()

	if old != nil {
		old.Close()
		h.deps.Logger.Info("session closed", "user_id", old.identity.ID)
	}
	if ok {
		h.deps.Logger.Info("session opened", "user_id", id.ID)
	}
}
