package hubclient

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/live-comments/internal/domain"
	"github.com/blackmichael/live-comments/internal/httpserver"
	"github.com/blackmichael/live-comments/internal/hub"
)

type relay struct {
	url string
	hub *hub.Hub
}

func startRelay(t *testing.T) *relay {
	t.Helper()
	logger := slogt.New(t)
	h := hub.New(hub.Options{}, nil, logger)
	ts := httptest.NewServer(httpserver.NewServer(":0", h, nil, logger).Handler())
	t.Cleanup(func() {
		h.Shutdown()
		ts.Close()
	})
	return &relay{url: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws", hub: h}
}

func startClient(t *testing.T, ctx context.Context, url string) *Client {
	t.Helper()
	c := New(url, slogt.New(t))
	go c.Start(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, c.WaitConnected(waitCtx))
	return c
}

func next(t *testing.T, s *Subscription) domain.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	e, err := s.Next(ctx)
	require.NoError(t, err)
	return e
}

func assertNothing(t *testing.T, s *Subscription) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_RelaysBetweenClients(t *testing.T) {
	r := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := startClient(t, ctx, r.url)
	b := startClient(t, ctx, r.url)
	require.Eventually(t, func() bool { return r.hub.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	subA := a.Subscribe(nil)
	subB := b.Subscribe(nil)

	require.NoError(t, subA.Publish(ctx, domain.DeletedEvent("p1", "c1")))

	assert.Equal(t, domain.DeletedEvent("p1", "c1"), next(t, subB))
	assertNothing(t, subA)
}

func TestClient_SubscriptionFilter(t *testing.T) {
	r := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := startClient(t, ctx, r.url)
	b := startClient(t, ctx, r.url)
	require.Eventually(t, func() bool { return r.hub.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	p1 := b.Subscribe(func(e domain.Event) bool { return e.ThreadID == "p1" })
	all := b.Subscribe(nil)

	require.NoError(t, a.Publish(ctx, domain.DeletedEvent("p2", "x")))
	require.NoError(t, a.Publish(ctx, domain.DeletedEvent("p1", "y")))

	assert.Equal(t, "y", next(t, p1).ID)
	assert.Equal(t, "x", next(t, all).ID)
	assert.Equal(t, "y", next(t, all).ID)
}

func TestClient_SkipsMalformedFrames(t *testing.T) {
	r := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := startClient(t, ctx, r.url)
	raw, _, err := websocket.DefaultDialer.Dial(r.url, nil)
	require.NoError(t, err)
	defer raw.Close()
	require.Eventually(t, func() bool { return r.hub.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	sub := c.Subscribe(nil)

	require.NoError(t, raw.WriteMessage(websocket.TextMessage, []byte("garbage")))
	require.NoError(t, raw.WriteMessage(websocket.TextMessage, []byte(`{"kind":"update","threadId":"p1"}`)))
	require.NoError(t, raw.WriteMessage(websocket.TextMessage, []byte(`{"kind":"threadDeleted","threadId":"p1"}`)))

	assert.Equal(t, domain.ThreadDeletedEvent("p1"), next(t, sub))
	assert.True(t, c.Connected())
}

func TestClient_PublishNotConnected(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws", slogt.New(t))

	err := c.Publish(context.Background(), domain.DeletedEvent("p1", "c1"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSubscription_Close(t *testing.T) {
	r := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := startClient(t, ctx, r.url)
	b := startClient(t, ctx, r.url)
	require.Eventually(t, func() bool { return r.hub.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	sub := b.Subscribe(nil)
	sub.Close()
	sub.Close()

	require.NoError(t, a.Publish(ctx, domain.DeletedEvent("p1", "c1")))

	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}

func TestMailbox_FIFO(t *testing.T) {
	m := newMailbox()
	for _, id := range []string{"a", "b", "c"} {
		require.True(t, m.put(domain.DeletedEvent("p", id)))
	}

	for _, want := range []string{"a", "b", "c"} {
		e, ok := m.take()
		require.True(t, ok)
		assert.Equal(t, want, e.ID)
	}
	_, ok := m.take()
	assert.False(t, ok)

	m.close()
	assert.False(t, m.put(domain.DeletedEvent("p", "d")))
}
