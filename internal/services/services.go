package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/cache"
	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/db"
	"github.com/stellar-insights/ledger-stream-service/internal/deadletter"
)

// Service layer contains the business logic of the periodic jobs and the
// operational endpoints, and owns the storage clients they share.
type Services struct {
	DbClient   db.DBClient
	Cache      cache.Cache
	DeadLetter deadletter.Client
	cfg        *config.Config
}

func New(ctx context.Context, cfg *config.Config) (*Services, error) {
	dbClient, err := db.New(ctx, cfg.Db)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("error while creating db client")
		return nil, err
	}
	cacheClient, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		dbClient.Close()
		log.Ctx(ctx).Error().Err(err).Msg("error while creating cache client")
		return nil, err
	}
	deadLetter, err := deadletter.New(ctx, cfg.DeadLetter)
	if err != nil {
		dbClient.Close()
		_ = cacheClient.Close()
		log.Ctx(ctx).Error().Err(err).Msg("error while creating dead letter client")
		return nil, err
	}
	if err := deadLetter.Setup(ctx); err != nil {
		dbClient.Close()
		_ = cacheClient.Close()
		_ = deadLetter.Close(ctx)
		return nil, fmt.Errorf("error while setting up dead letter store: %w", err)
	}
	return NewWithClients(cfg, dbClient, cacheClient, deadLetter), nil
}

func NewWithClients(
	cfg *config.Config, dbClient db.DBClient, cacheClient cache.Cache, deadLetter deadletter.Client,
) *Services {
	return &Services{
		DbClient:   dbClient,
		Cache:      cacheClient,
		DeadLetter: deadLetter,
		cfg:        cfg,
	}
}

// DoHealthCheck pings every store the service depends on.
func (s *Services) DoHealthCheck(ctx context.Context) error {
	var errs []error
	if err := s.DbClient.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("db: %w", err))
	}
	if err := s.Cache.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}
	if err := s.DeadLetter.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dead letter store: %w", err))
	}
	return errors.Join(errs...)
}
