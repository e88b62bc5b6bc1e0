package stream

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/utils"
)

// Handler upgrades HTTP requests to push connections.
type Handler struct {
	registry *Registry
	cfg      *config.StreamConfig
	upgrader websocket.Upgrader
}

func NewHandler(registry *Registry, cfg *config.StreamConfig, allowedOrigins []string) *Handler {
	return &Handler{
		registry: registry,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowedOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || utils.Contains(allowedOrigins, "*") {
			return true
		}
		return utils.Contains(allowedOrigins, origin)
	}
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.cfg.AuthToken == "" {
		return true
	}
	token := r.URL.Query().Get("token")
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.AuthToken)) == 1
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if !h.authorized(r) {
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return
	}
	if h.registry.IngressClosed() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied to the client
		logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := newConnection(ws, h.cfg.QueueSize)
	if err := h.registry.Register(conn); err != nil {
		logger.Info().Err(err).Msg("rejecting connection")
		conn.Close(ReasonShutdown)
		conn.writeClose(h.cfg.WriteTimeout)
		ws.Close()
		return
	}

	logger.Debug().Str("connectionId", conn.ID()).Msg("connection opened")
	// the request context ends with this handler, the pumps keep only its logger
	conn.serve(logger.WithContext(context.Background()), h.registry, h.cfg)
}
