package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/api/handlers"
	"github.com/stellar-insights/ledger-stream-service/internal/api/middlewares"
	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/services"
)

type Server struct {
	httpServer *http.Server
	handlers   *handlers.Handler
	stream     http.Handler
}

// New builds the HTTP server. stream serves push connection upgrades.
func New(
	ctx context.Context, cfg *config.Config, services *services.Services,
	loop handlers.LoopStateReader, registry handlers.ConnectionStats, stream http.Handler,
) (*Server, error) {
	r := chi.NewRouter()

	if cfg.Server.LogLevel != "" {
		logLevel, err := zerolog.ParseLevel(cfg.Server.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("error while parsing log level: %w", err)
		}
		zerolog.SetGlobalLevel(logLevel)
	}

	r.Use(middlewares.CorsMiddleware(cfg))
	r.Use(middlewares.SecurityHeadersMiddleware())
	r.Use(middlewares.TracingMiddleware)
	r.Use(middlewares.LoggingMiddleware)
	r.Use(middlewares.ContentLengthMiddleware(cfg))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		WriteTimeout: cfg.Server.WriteTimeout,
		ReadTimeout:  cfg.Server.ReadTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		Handler:      r,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	handlers, err := handlers.New(ctx, cfg, services, loop, registry)
	if err != nil {
		return nil, fmt.Errorf("error while setting up handlers: %w", err)
	}

	server := &Server{
		httpServer: srv,
		handlers:   handlers,
		stream:     stream,
	}
	server.SetupRoutes(r)
	return server, nil
}

// Start blocks serving requests. It returns nil once Shutdown or Close is
// called.
func (a *Server) Start() error {
	log.Info().Msgf("Starting server on %s", a.httpServer.Addr)
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *Server) Shutdown(ctx context.Context) error {
	return a.httpServer.Shutdown(ctx)
}

func (a *Server) Close() error {
	return a.httpServer.Close()
}

func (a *Server) Handler() http.Handler {
	return a.httpServer.Handler
}
