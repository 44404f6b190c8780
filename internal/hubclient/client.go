// Package hubclient keeps a client's single WebSocket to the relay hub and
// hands relayed events to per-view subscriptions.
package hubclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blackmichael/live-comments/internal/domain"
)

const (
	reconnectDelay = 5 * time.Second
	writeWait      = 10 * time.Second
)

var (
	// ErrNotConnected is returned when publishing while no hub connection
	// is open.
	ErrNotConnected = errors.New("not connected to hub")

	// ErrSubscriptionClosed is returned by Next after Close.
	ErrSubscriptionClosed = errors.New("subscription closed")
)

// Client maintains one connection to the hub and reconnects when it drops.
// Events missed while disconnected are not replayed.
type Client struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected chan struct{} // closed while conn is set

	writeMu sync.Mutex

	subsMu sync.RWMutex
	subs   map[*Subscription]struct{}
}

// New creates a client for the hub WebSocket endpoint at url.
func New(url string, logger *slog.Logger) *Client {
	return &Client{
		url:       url,
		dialer:    websocket.DefaultDialer,
		logger:    logger,
		connected: make(chan struct{}),
		subs:      make(map[*Subscription]struct{}),
	}
}

// Start connects to the hub and dispatches events until the context is
// cancelled. It automatically reconnects on transient errors.
func (c *Client) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.run(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("hub connection error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(reconnectDelay):
				}
			}
		}
	}
}

// WaitConnected blocks until a hub connection is open.
func (c *Client) WaitConnected(ctx context.Context) error {
	c.mu.Lock()
	ch := c.connected
	c.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether a hub connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) run(ctx context.Context) error {
	c.logger.Info("connecting to hub", "url", c.url)

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial hub: %w", err)
	}

	c.setConn(conn)
	defer c.clearConn(conn)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	c.logger.Info("connected to hub")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		event, err := domain.ParseEvent(message)
		if err != nil {
			c.logger.Warn("skipping malformed event", "error", err)
			continue
		}
		c.dispatch(event)
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	close(c.connected)
}

func (c *Client) clearConn(conn *websocket.Conn) {
	conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
		c.connected = make(chan struct{})
	}
}

func (c *Client) dispatch(e domain.Event) {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()

	for s := range c.subs {
		if s.match == nil || s.match(e) {
			s.box.put(e)
		}
	}
}

// Publish sends e to the hub, which relays it to every other connected
// client.
func (c *Client) Publish(ctx context.Context, e domain.Event) error {
	payload, err := domain.MarshalEvent(e)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Kind, err)
	}
	return nil
}

// Subscribe registers a handler for relayed events accepted by match. A nil
// match accepts every event. Events queue in the returned subscription until
// read with Next.
func (c *Client) Subscribe(match func(domain.Event) bool) *Subscription {
	s := &Subscription{
		client: c,
		match:  match,
		box:    newMailbox(),
	}

	c.subsMu.Lock()
	c.subs[s] = struct{}{}
	c.subsMu.Unlock()
	return s
}

func (c *Client) unsubscribe(s *Subscription) {
	c.subsMu.Lock()
	delete(c.subs, s)
	c.subsMu.Unlock()
}

// Subscription is one view's handle on the hub connection.
type Subscription struct {
	client *Client
	match  func(domain.Event) bool
	box    *mailbox
}

// Next returns the oldest undelivered event, blocking until one arrives,
// the subscription is closed or ctx is done.
func (s *Subscription) Next(ctx context.Context) (domain.Event, error) {
	for {
		if e, ok := s.box.take(); ok {
			return e, nil
		}
		if s.box.isClosed() {
			return domain.Event{}, ErrSubscriptionClosed
		}

		select {
		case <-ctx.Done():
			return domain.Event{}, ctx.Err()
		case <-s.box.wait():
		}
	}
}

// Publish sends e through the shared hub connection.
func (s *Subscription) Publish(ctx context.Context, e domain.Event) error {
	return s.client.Publish(ctx, e)
}

// Close removes the handler. Queued events are discarded and nothing more
// is delivered. It is safe to call more than once.
func (s *Subscription) Close() {
	s.client.unsubscribe(s)
	s.box.close()
}
