package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

type HorizonConfig struct {
	Url string `mapstructure:"url"`
	// Request timeout in milliseconds
	RequestTimeout int `mapstructure:"request-timeout"`
	PageLimit      int `mapstructure:"page-limit"`
}

func (cfg *HorizonConfig) Validate() error {
	u, err := url.Parse(cfg.Url)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid horizon url: %q", cfg.Url)
	}

	if cfg.RequestTimeout <= 0 {
		return errors.New("horizon request timeout must be positive")
	}

	// Horizon rejects page sizes above 200
	if cfg.PageLimit <= 0 || cfg.PageLimit > 200 {
		return errors.New("horizon page limit must be between 1 and 200")
	}
	return nil
}

type MalformedPolicy string

const (
	// MalformedHalt stops ingestion on any malformed record.
	MalformedHalt MalformedPolicy = "halt"
	// MalformedSkip drops malformed records inside a valid ledger. The ledger
	// row itself is still written, so no sequence gap can appear.
	MalformedSkip MalformedPolicy = "skip"
)

type IngestionConfig struct {
	StartLedger               uint32          `mapstructure:"start-ledger"`
	BatchSize                 int             `mapstructure:"batch-size"`
	PollInterval              time.Duration   `mapstructure:"poll-interval"`
	MaxRetries                int             `mapstructure:"max-retries"`
	InitialBackoff            time.Duration   `mapstructure:"initial-backoff"`
	MaxBackoff                time.Duration   `mapstructure:"max-backoff"`
	RetryCoolDown             time.Duration   `mapstructure:"retry-cool-down"`
	UnitTimeout               time.Duration   `mapstructure:"unit-timeout"`
	MalformedPolicy           MalformedPolicy `mapstructure:"malformed-policy"`
	SkipEmptyMalformedLedgers bool            `mapstructure:"skip-empty-malformed-ledgers"`
	EventBufferSize           int             `mapstructure:"event-buffer-size"`
}

func (cfg *IngestionConfig) Validate() error {
	if cfg.BatchSize <= 0 || cfg.BatchSize > 200 {
		return errors.New("ingestion batch size must be between 1 and 200")
	}

	if cfg.PollInterval <= 0 {
		return errors.New("ingestion poll interval must be positive")
	}

	if cfg.MaxRetries <= 0 {
		return errors.New("ingestion max retries must be positive")
	}

	if cfg.InitialBackoff <= 0 || cfg.MaxBackoff < cfg.InitialBackoff {
		return errors.New("ingestion backoff must be positive and max backoff must not be lower than initial backoff")
	}

	if cfg.RetryCoolDown <= 0 {
		return errors.New("ingestion retry cool down must be positive")
	}

	if cfg.UnitTimeout <= 0 {
		return errors.New("ingestion unit timeout must be positive")
	}

	switch cfg.MalformedPolicy {
	case "":
		cfg.MalformedPolicy = MalformedHalt
	case MalformedHalt, MalformedSkip:
	default:
		return fmt.Errorf("unknown malformed policy: %s", cfg.MalformedPolicy)
	}

	if cfg.EventBufferSize <= 0 {
		return errors.New("ingestion event buffer size must be positive")
	}
	return nil
}
