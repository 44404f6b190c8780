package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// OverflowPolicy decides what happens when a recipient's send buffer is full.
type OverflowPolicy string

const (
	// OverflowDrop drops the payload for that recipient only.
	OverflowDrop OverflowPolicy = "drop"

	// OverflowDisconnect removes the recipient from the broadcast set.
	OverflowDisconnect OverflowPolicy = "disconnect"
)

// ParseOverflowPolicy validates a policy name.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(s); p {
	case OverflowDrop, OverflowDisconnect:
		return p, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Forwarder passes locally published payloads on to other hub instances.
type Forwarder interface {
	Forward(ctx context.Context, payload []byte) error
}

// Options configures a Hub.
type Options struct {
	// SendBuffer is the per-connection outbound buffer size.
	SendBuffer int

	Overflow OverflowPolicy

	// PublishRPS and PublishBurst rate limit inbound payloads per
	// connection. A zero PublishRPS disables the limit.
	PublishRPS   float64
	PublishBurst int
}

const defaultSendBuffer = 256

// Hub relays payloads from one connection to every other open connection.
// It holds no record data, only the set of open connections.
type Hub struct {
	opts    Options
	logger  *slog.Logger
	metrics *Metrics

	mu    sync.RWMutex
	conns map[*Conn]struct{}

	forwarder Forwarder
}

// New creates a Hub. metrics may be nil.
func New(opts Options, metrics *Metrics, logger *slog.Logger) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.Overflow == "" {
		opts.Overflow = OverflowDrop
	}
	if opts.PublishBurst <= 0 {
		opts.PublishBurst = 1
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Hub{
		opts:    opts,
		logger:  logger,
		metrics: metrics,
		conns:   make(map[*Conn]struct{}),
	}
}

// SetForwarder installs a forwarder for cross-instance delivery. It must be
// called before the hub starts accepting connections.
func (h *Hub) SetForwarder(f Forwarder) {
	h.forwarder = f
}

// Connect registers a new connection.
func (h *Hub) Connect() *Conn {
	c := &Conn{
		id:   uuid.NewString(),
		send: make(chan []byte, h.opts.SendBuffer),
		done: make(chan struct{}),
	}
	if h.opts.PublishRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(h.opts.PublishRPS), h.opts.PublishBurst)
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()

	h.metrics.connections.Inc()
	h.logger.Info("connection registered", "conn_id", c.id, "connections", n)
	return c
}

// Disconnect removes the connection. It is safe to call more than once; no
// broadcast is made.
func (h *Hub) Disconnect(c *Conn) {
	h.mu.Lock()
	_, ok := h.conns[c]
	delete(h.conns, c)
	n := len(h.conns)
	h.mu.Unlock()

	if c.close() && ok {
		h.metrics.connections.Dec()
		h.logger.Info("connection removed", "conn_id", c.id, "connections", n)
	}
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Publish delivers payload to every open connection except from and returns
// the number of recipients it was queued for. The payload is forwarded
// verbatim and never inspected.
func (h *Hub) Publish(ctx context.Context, from *Conn, payload []byte) int {
	if from != nil {
		if from.Closed() {
			return 0
		}
		if from.limiter != nil && !from.limiter.Allow() {
			h.metrics.dropped.WithLabelValues(dropRateLimited).Inc()
			h.logger.Warn("publish rate limited", "conn_id", from.id)
			return 0
		}
	}
	h.metrics.received.Inc()

	n := h.broadcast(from, payload)

	if h.forwarder != nil {
		if err := h.forwarder.Forward(ctx, payload); err != nil {
			h.logger.Error("failed to forward payload", "error", err)
		}
	}
	return n
}

// Deliver hands a payload that arrived from another hub instance to every
// local connection.
func (h *Hub) Deliver(payload []byte) int {
	h.metrics.received.Inc()
	return h.broadcast(nil, payload)
}

func (h *Hub) broadcast(from *Conn, payload []byte) int {
	var overflowed []*Conn
	delivered := 0

	// Sends never block. Disconnect waits for the read lock to be released.
	h.mu.RLock()
	for c := range h.conns {
		if c == from {
			continue
		}
		select {
		case c.send <- payload:
			delivered++
		default:
			h.metrics.dropped.WithLabelValues(dropBufferFull).Inc()
			overflowed = append(overflowed, c)
		}
	}
	h.mu.RUnlock()

	h.metrics.delivered.Add(float64(delivered))

	for _, c := range overflowed {
		if h.opts.Overflow == OverflowDisconnect {
			h.logger.Warn("send buffer full, disconnecting", "conn_id", c.id)
			h.Disconnect(c)
		} else {
			h.logger.Warn("send buffer full, dropping payload", "conn_id", c.id)
		}
	}
	return delivered
}

// Shutdown disconnects every connection.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.Disconnect(c)
	}
}
