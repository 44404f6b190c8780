package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/neilotoole/slogt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/live-comments/internal/hub"
)

func newTestServer(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()
	logger := slogt.New(t)
	reg := prometheus.NewRegistry()
	h := hub.New(hub.Options{}, hub.NewMetrics(reg), logger)
	s := NewServer(":0", h, reg, logger)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		h.Shutdown()
		ts.Close()
	})
	return ts, h
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestWS_RelaysToOthersOnly(t *testing.T) {
	ts, h := newTestServer(t)

	a := dial(t, ts)
	b := dial(t, ts)
	c := dial(t, ts)
	require.Eventually(t, func() bool { return h.Len() == 3 }, 2*time.Second, 10*time.Millisecond)

	payload := `{"kind":"delete","threadId":"p1","id":"c1"}`
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(payload)))

	for _, ws := range []*websocket.Conn{b, c} {
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := ws.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, payload, string(msg))
	}

	a.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, _, err := a.ReadMessage()
	assert.Error(t, err, "sender must not receive its own event")
}

func TestWS_DisconnectRemovesConnection(t *testing.T) {
	ts, h := newTestServer(t)

	a := dial(t, ts)
	dial(t, ts)
	require.Eventually(t, func() bool { return h.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	a.Close()

	assert.Eventually(t, func() bool { return h.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWS_RejectsPlainRequest(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	ts, h := newTestServer(t)
	dial(t, ts)
	require.Eventually(t, func() bool { return h.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Connections)
}

func TestMetrics(t *testing.T) {
	ts, h := newTestServer(t)
	dial(t, ts)
	require.Eventually(t, func() bool { return h.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "relay_connections 1")
}
