package handlers

import (
	"context"
	"net/http"

	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/ingestion"
	"github.com/stellar-insights/ledger-stream-service/internal/services"
	"github.com/stellar-insights/ledger-stream-service/internal/stream"
)

type LoopStateReader interface {
	State() ingestion.State
}

type ConnectionStats interface {
	Stats() (stream.Stats, error)
}

type Handler struct {
	config   *config.Config
	services *services.Services
	loop     LoopStateReader
	registry ConnectionStats
}

type PublicResponse[T any] struct {
	Data T `json:"data"`
}

type Result struct {
	Data   interface{}
	Status int
}

// NewResult returns a successful result, with default status code 200
func NewResult[T any](data T) *Result {
	res := &PublicResponse[T]{Data: data}
	return &Result{Data: res, Status: http.StatusOK}
}

func New(
	ctx context.Context, cfg *config.Config, services *services.Services,
	loop LoopStateReader, registry ConnectionStats,
) (*Handler, error) {
	return &Handler{
		config:   cfg,
		services: services,
		loop:     loop,
		registry: registry,
	}, nil
}
