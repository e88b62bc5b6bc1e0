package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stellar-insights/ledger-stream-service/internal/config"
)

type Database struct {
	Pool *pgxpool.Pool
	cfg  config.DbConfig
}

func New(ctx context.Context, cfg config.DbConfig) (*Database, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid db address: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	return &Database{
		Pool: pool,
		cfg:  cfg,
	}, nil
}

func (db *Database) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close releases every pooled connection. It blocks until acquired
// connections are returned to the pool.
func (db *Database) Close() {
	db.Pool.Close()
}
