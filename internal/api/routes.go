package api

import (
	"github.com/go-chi/chi"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/stellar-insights/ledger-stream-service/docs"
)

func (a *Server) SetupRoutes(r *chi.Mux) {
	handlers := a.handlers
	r.Get("/healthcheck", registerHandler(handlers.HealthCheck))

	r.Get("/v1/ingestion/status", registerHandler(handlers.GetIngestionStatus))
	if a.stream != nil {
		r.Handle("/v1/ws", a.stream)
	}

	r.Get("/swagger/*", httpSwagger.WrapHandler)
}
