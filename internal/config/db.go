package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const (
	maxPoolConnections = 100
)

// DbConfig points at the relational store holding ledgers, transactions,
// payments and the ingestion cursor.
type DbConfig struct {
	Address        string        `mapstructure:"address"`
	MaxConns       int32         `mapstructure:"max-conns"`
	MinConns       int32         `mapstructure:"min-conns"`
	ConnectTimeout time.Duration `mapstructure:"connect-timeout"`
}

func (cfg *DbConfig) Validate() error {
	if cfg.Address == "" {
		return fmt.Errorf("missing db address")
	}

	u, err := url.Parse(cfg.Address)
	if err != nil {
		return fmt.Errorf("invalid db address: %w", err)
	}

	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported db scheme: %s", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("missing host in db address")
	}

	if cfg.MaxConns <= 0 {
		return fmt.Errorf("max conns must be greater than 0")
	}

	if cfg.MinConns < 0 || cfg.MinConns > cfg.MaxConns {
		return fmt.Errorf("min conns must be between 0 and max conns")
	}

	// Below is adding as a safety net to avoid exhausting the database.
	if cfg.MaxConns > maxPoolConnections {
		return fmt.Errorf("max conns must not exceed %d", maxPoolConnections)
	}

	if cfg.ConnectTimeout < 0 {
		return fmt.Errorf("connect timeout cannot be negative")
	}

	return nil
}

// DeadLetterConfig points at the document store keeping records that could
// not be processed: malformed upstream records and failed webhook deliveries.
type DeadLetterConfig struct {
	DbName  string `mapstructure:"db-name"`
	Address string `mapstructure:"address"`
}

func (cfg *DeadLetterConfig) Validate() error {
	if cfg.Address == "" {
		return fmt.Errorf("missing dead letter db address")
	}

	if cfg.DbName == "" {
		return fmt.Errorf("missing dead letter db name")
	}

	u, err := url.Parse(cfg.Address)
	if err != nil {
		return fmt.Errorf("invalid dead letter db address: %w", err)
	}

	if u.Scheme != "mongodb" {
		return fmt.Errorf("unsupported dead letter db scheme: %s", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("missing host in dead letter db address")
	}

	port := u.Port()
	if port == "" {
		return fmt.Errorf("missing port in dead letter db address")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid port in dead letter db address: %w", err)
	}

	if portNum < 1024 || portNum > 65535 {
		return fmt.Errorf("port number must be between 1024 and 65535 (inclusive)")
	}

	return nil
}

type CacheConfig struct {
	Address    string        `mapstructure:"address"`
	DefaultTTL time.Duration `mapstructure:"default-ttl"`
}

func (cfg *CacheConfig) Validate() error {
	if cfg.Address == "" {
		return fmt.Errorf("missing cache address")
	}

	u, err := url.Parse(cfg.Address)
	if err != nil {
		return fmt.Errorf("invalid cache address: %w", err)
	}

	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return fmt.Errorf("unsupported cache scheme: %s", u.Scheme)
	}

	if cfg.DefaultTTL <= 0 {
		return fmt.Errorf("cache default ttl must be positive")
	}

	return nil
}
