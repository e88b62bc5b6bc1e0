package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/stream/protocol"
)

type CloseReason int32

const (
	ReasonClientGone CloseReason = iota
	ReasonSlow
	ReasonUnresponsive
	ReasonShutdown
)

func (r CloseReason) String() string {
	switch r {
	case ReasonSlow:
		return "slow"
	case ReasonUnresponsive:
		return "unresponsive"
	case ReasonShutdown:
		return "shutdown"
	}
	return "client_gone"
}

func (r CloseReason) closeCode() int {
	switch r {
	case ReasonSlow:
		return websocket.CloseTryAgainLater
	case ReasonUnresponsive:
		return websocket.ClosePolicyViolation
	case ReasonShutdown:
		return websocket.CloseGoingAway
	}
	return websocket.CloseNormalClosure
}

// Connection is one push client. Its outbound queue is bounded and only the
// registry sends into it; only the write pump reads from it.
type Connection struct {
	id     string
	send   chan []byte
	ws     *websocket.Conn
	reason atomic.Int32

	closeOnce sync.Once
	closing   chan struct{}
	closed    chan struct{}

	lastActivity atomic.Int64
}

// NewConnection creates a connection without a socket. Messages enqueued to
// it can be read from Messages.
func NewConnection(queueSize int) *Connection {
	return newConnection(nil, queueSize)
}

func newConnection(ws *websocket.Conn, queueSize int) *Connection {
	c := &Connection{
		id:      uuid.NewString(),
		send:    make(chan []byte, queueSize),
		ws:      ws,
		closing: make(chan struct{}),
		closed:  make(chan struct{}),
	}
	c.touch()
	return c
}

func (c *Connection) ID() string {
	return c.id
}

// Messages exposes the outbound queue of a connection without a socket.
func (c *Connection) Messages() <-chan []byte {
	return c.send
}

// Closed is closed once the connection is fully torn down.
func (c *Connection) Closed() <-chan struct{} {
	return c.closed
}

func (c *Connection) CloseReason() CloseReason {
	return CloseReason(c.reason.Load())
}

// Close asks the connection to close. Only the first reason is kept.
func (c *Connection) Close(reason CloseReason) {
	c.closeOnce.Do(func() {
		c.reason.Store(int32(reason))
		close(c.closing)
		if c.ws == nil {
			close(c.closed)
		}
	})
}

// enqueue is a non-blocking send; false means the queue is full.
func (c *Connection) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Connection) lastActive() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// writePump owns every write to the socket: queued messages, liveness pings
// and the final close frame.
func (c *Connection) writePump(registry *Registry, cfg *config.StreamConfig, logger zerolog.Logger) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		close(c.closed)
	}()

	missed := 0
	var lastPing time.Time
	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug().Err(err).Msg("failed to write to connection")
				c.Close(ReasonClientGone)
				return
			}
		case now := <-ticker.C:
			if !lastPing.IsZero() && c.lastActive().Before(lastPing) {
				missed++
			} else {
				missed = 0
			}
			if missed >= cfg.MaxMissedPings {
				logger.Info().Int("missedPings", missed).Msg("closing unresponsive connection")
				registry.Evict(c.id, ReasonUnresponsive)
				c.Close(ReasonUnresponsive)
				c.writeClose(cfg.WriteTimeout)
				return
			}
			lastPing = now
			if err := c.writePing(now, cfg.WriteTimeout); err != nil {
				logger.Debug().Err(err).Msg("failed to ping connection")
				c.Close(ReasonClientGone)
				return
			}
		case <-c.closing:
			if c.CloseReason() == ReasonShutdown {
				c.flush(cfg.WriteTimeout)
			}
			c.writeClose(cfg.WriteTimeout)
			return
		}
	}
}

// flush writes whatever is still queued, without waiting for more.
func (c *Connection) flush(timeout time.Duration) {
	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(timeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) writePing(now time.Time, timeout time.Duration) error {
	deadline := now.Add(timeout)
	if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return err
	}
	data, err := protocol.Encode(protocol.NewPing(now))
	if err != nil {
		return err
	}
	_ = c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Connection) writeClose(timeout time.Duration) {
	reason := c.CloseReason()
	msg := websocket.FormatCloseMessage(reason.closeCode(), reason.String())
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(timeout))
}

// readPump reads client frames until the socket fails, then drops the
// connection from the registry.
func (c *Connection) readPump(registry *Registry, cfg *config.StreamConfig, logger zerolog.Logger) {
	defer func() {
		c.Close(ReasonClientGone)
		if err := registry.Drop(c.id); err != nil && !errors.Is(err, ErrRegistryClosed) {
			logger.Warn().Err(err).Msg("failed to drop connection")
		}
	}()

	c.ws.SetReadLimit(cfg.MaxMessageSize)
	c.ws.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("connection closed unexpectedly")
			}
			return
		}
		c.touch()
		c.handleFrame(registry, data, logger)
	}
}

func (c *Connection) handleFrame(registry *Registry, data []byte, logger zerolog.Logger) {
	msg, err := protocol.DecodeClientMessage(data)
	if errors.Is(err, protocol.ErrUnknownMessageType) {
		logger.Debug().Err(err).Msg("ignoring message")
		return
	}
	if err != nil {
		c.reply(registry, protocol.NewError("invalid message format"), logger)
		return
	}

	switch m := msg.(type) {
	case *protocol.SubscribeMessage:
		if m.Type == protocol.Subscribe {
			err = registry.Subscribe(c.id, m.Channels)
		} else {
			err = registry.Unsubscribe(c.id, m.Channels)
		}
		if err != nil && !errors.Is(err, ErrRegistryClosed) {
			c.reply(registry, protocol.NewError(err.Error()), logger)
		}
	case *protocol.PingMessage:
		if m.Type == protocol.Ping {
			c.reply(registry, protocol.NewPong(time.Now()), logger)
		}
	}
}

func (c *Connection) reply(registry *Registry, msg protocol.Message, logger zerolog.Logger) {
	if err := registry.Send(c.id, msg); err != nil && !errors.Is(err, ErrRegistryClosed) {
		logger.Warn().Err(err).Msg("failed to reply to connection")
	}
}

// serve runs both pumps. It returns immediately.
func (c *Connection) serve(ctx context.Context, registry *Registry, cfg *config.StreamConfig) {
	logger := log.Ctx(ctx).With().Str("connectionId", c.id).Logger()
	go c.writePump(registry, cfg, logger)
	go c.readPump(registry, cfg, logger)
}
