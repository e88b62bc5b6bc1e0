package config

import (
	"errors"
	"time"
)

var shutdownEnvBindings = map[string]string{
	"shutdown.graceful_timeout":   "SHUTDOWN_GRACEFUL_TIMEOUT",
	"shutdown.background_timeout": "SHUTDOWN_BACKGROUND_TIMEOUT",
	"shutdown.db_timeout":         "SHUTDOWN_DB_TIMEOUT",
}

// ShutdownConfig holds the per-phase shutdown budgets, in seconds.
type ShutdownConfig struct {
	GracefulTimeout   int `mapstructure:"graceful_timeout"`
	BackgroundTimeout int `mapstructure:"background_timeout"`
	DbTimeout         int `mapstructure:"db_timeout"`
}

func (cfg *ShutdownConfig) Validate() error {
	if cfg.GracefulTimeout <= 0 {
		return errors.New("SHUTDOWN_GRACEFUL_TIMEOUT must be a positive integer")
	}
	if cfg.BackgroundTimeout <= 0 {
		return errors.New("SHUTDOWN_BACKGROUND_TIMEOUT must be a positive integer")
	}
	if cfg.DbTimeout <= 0 {
		return errors.New("SHUTDOWN_DB_TIMEOUT must be a positive integer")
	}
	return nil
}

func (cfg *ShutdownConfig) Graceful() time.Duration {
	return time.Duration(cfg.GracefulTimeout) * time.Second
}

func (cfg *ShutdownConfig) Background() time.Duration {
	return time.Duration(cfg.BackgroundTimeout) * time.Second
}

func (cfg *ShutdownConfig) Db() time.Duration {
	return time.Duration(cfg.DbTimeout) * time.Second
}

func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		GracefulTimeout:   30,
		BackgroundTimeout: 10,
		DbTimeout:         5,
	}
}
