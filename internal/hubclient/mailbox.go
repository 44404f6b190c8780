package hubclient

import (
	"sync"

	"github.com/blackmichael/live-comments/internal/domain"
)

// mailbox is an unbounded FIFO of events. The reader never blocks the hub
// connection's read loop.
type mailbox struct {
	mu     sync.Mutex
	events []domain.Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newMailbox() *mailbox {
	return &mailbox{
		events: make([]domain.Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// put appends e and reports whether the mailbox was still open.
func (m *mailbox) put(e domain.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	m.events = append(m.events, e)

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// take removes the front event. ok is false if the mailbox is empty or
// closed.
func (m *mailbox) take() (e domain.Event, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || len(m.events) == 0 {
		return domain.Event{}, false
	}
	e = m.events[0]
	m.events[0] = domain.Event{}
	if len(m.events) == 1 {
		m.events = m.events[:0]
	} else {
		m.events = m.events[1:]
	}
	return e, true
}

func (m *mailbox) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mailbox) wait() <-chan struct{} {
	return m.signal
}

// close discards pending events and wakes any waiter.
func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.events = nil
	close(m.signal)
}
