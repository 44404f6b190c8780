package hub

import (
	"sync"

	"golang.org/x/time/rate"
)

// Conn is one registered hub connection. The hub writes to its send buffer;
// the transport drains it through Outbound.
type Conn struct {
	id      string
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter // nil means unlimited
}

// ID returns the connection's generated identifier.
func (c *Conn) ID() string {
	return c.id
}

// Outbound returns the channel of payloads to write to this connection.
func (c *Conn) Outbound() <-chan []byte {
	return c.send
}

// Done is closed once the connection has been disconnected. Payloads still
// sitting in the send buffer at that point must be discarded.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Closed reports whether the connection has been disconnected.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) close() bool {
	closed := false
	c.once.Do(func() {
		close(c.done)
		closed = true
	})
	return closed
}
