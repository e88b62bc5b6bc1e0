package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/stream/protocol"
)

func testStreamConfig() *config.StreamConfig {
	return &config.StreamConfig{
		QueueSize:              16,
		PingInterval:           time.Minute,
		MaxMissedPings:         2,
		MaxTopicsPerConnection: 10,
		WriteTimeout:           time.Second,
		MaxMessageSize:         4096,
		ShutdownGrace:          10 * time.Millisecond,
	}
}

func newTestServer(t *testing.T, cfg *config.StreamConfig) (*Registry, *httptest.Server) {
	t.Helper()
	registry := NewRegistry(cfg.MaxTopicsPerConnection)
	server := httptest.NewServer(NewHandler(registry, cfg, []string{"*"}))
	t.Cleanup(server.Close)
	return registry, server
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + query
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })
	return ws
}

func read(t *testing.T, ws *websocket.Conn) received {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg received
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func connect(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	ws := dial(t, server, "")
	msg := read(t, ws)
	require.Equal(t, string(protocol.Connected), msg.Type)
	require.NotEmpty(t, msg.ConnectionID)
	return ws
}

func subscribe(t *testing.T, ws *websocket.Conn, channels ...string) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(protocol.SubscribeMessage{Type: protocol.Subscribe, Channels: channels}))
	msg := read(t, ws)
	require.Equal(t, string(protocol.SubscriptionConfirm), msg.Type)
	require.Equal(t, channels, msg.Channels)
}

func TestHandlerRoutesCorridorUpdatesToSubscribers(t *testing.T) {
	registry, server := newTestServer(t, testStreamConfig())
	usdc := connect(t, server)
	eur := connect(t, server)

	subscribe(t, usdc, protocol.CorridorTopic("USDC-XLM"))
	subscribe(t, eur, protocol.CorridorTopic("EUR-PHP"))

	require.NoError(t, registry.Publish(protocol.CorridorTopic("USDC-XLM"), corridorUpdate("USDC-XLM", 4)))
	require.NoError(t, registry.Publish(protocol.CorridorTopic("EUR-PHP"), corridorUpdate("EUR-PHP", 2)))

	got := read(t, usdc)
	assert.Equal(t, string(protocol.CorridorUpdate), got.Type)
	assert.Equal(t, "USDC-XLM", got.CorridorKey)
	assert.Equal(t, 4, got.PaymentCount)

	got = read(t, eur)
	assert.Equal(t, "EUR-PHP", got.CorridorKey)
	assert.Equal(t, 2, got.PaymentCount)
}

func TestHandlerAnswersPingAndRejectsInvalidFrames(t *testing.T) {
	_, server := newTestServer(t, testStreamConfig())
	ws := connect(t, server)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, string(protocol.Pong), read(t, ws).Type)

	// unknown types are ignored, so the next reply belongs to the invalid frame
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
	reply := read(t, ws)
	assert.Equal(t, string(protocol.Error), reply.Type)
	assert.NotEmpty(t, reply.Message)

	require.NoError(t, ws.WriteJSON(protocol.SubscribeMessage{Type: protocol.Subscribe, Channels: []string{"nope"}}))
	assert.Equal(t, string(protocol.Error), read(t, ws).Type)
}

func TestHandlerRequiresToken(t *testing.T) {
	cfg := testStreamConfig()
	cfg.AuthToken = "s3cret"
	_, server := newTestServer(t, cfg)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=wrong", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	ws := dial(t, server, "?token=s3cret")
	assert.Equal(t, string(protocol.Connected), read(t, ws).Type)
}

func TestHandlerShutdownSendsServerShutdown(t *testing.T) {
	cfg := testStreamConfig()
	registry, server := newTestServer(t, cfg)
	ws := connect(t, server)
	subscribe(t, ws, protocol.AlertsTopic)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- registry.Shutdown(ctx, cfg.ShutdownGrace) }()

	msg := read(t, ws)
	assert.Equal(t, "ServerShutdown", msg.Type)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
	require.NoError(t, <-done)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestHandlerDropsClosedClients(t *testing.T) {
	registry, server := newTestServer(t, testStreamConfig())
	ws := connect(t, server)
	subscribe(t, ws, protocol.AlertsTopic)
	require.NoError(t, ws.Close())

	assert.Eventually(t, func() bool {
		stats, err := registry.Stats()
		return err == nil && stats.Connections == 0 && stats.Topics == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandlerEvictsUnresponsiveClients(t *testing.T) {
	cfg := testStreamConfig()
	cfg.PingInterval = 20 * time.Millisecond
	cfg.MaxMissedPings = 1
	registry, server := newTestServer(t, cfg)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer ws.Close()
	// never read, so control pings are never answered with pongs

	assert.Eventually(t, func() bool {
		stats, err := registry.Stats()
		return err == nil && stats.Connections == 0
	}, 2*time.Second, 10*time.Millisecond)
}
