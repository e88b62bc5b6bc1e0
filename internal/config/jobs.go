package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

type JobConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Interval in seconds
	Interval int `mapstructure:"interval"`
}

func (cfg *JobConfig) Validate(name string) error {
	if cfg.Enabled && cfg.Interval <= 0 {
		return fmt.Errorf("job %s must have a positive interval", name)
	}
	return nil
}

type JobsConfig struct {
	MetricsSync          JobConfig     `mapstructure:"metrics-sync"`
	TrustlineAggregation JobConfig     `mapstructure:"trustline-aggregation"`
	CacheInvalidation    JobConfig     `mapstructure:"cache-invalidation"`
	AggregationWindow    time.Duration `mapstructure:"aggregation-window"`
	MaxIngestionLag      time.Duration `mapstructure:"max-ingestion-lag"`
}

func (cfg *JobsConfig) Validate() error {
	if err := cfg.MetricsSync.Validate("metrics-sync"); err != nil {
		return err
	}
	if err := cfg.TrustlineAggregation.Validate("trustline-aggregation"); err != nil {
		return err
	}
	if err := cfg.CacheInvalidation.Validate("cache-invalidation"); err != nil {
		return err
	}
	if cfg.AggregationWindow <= 0 {
		return errors.New("aggregation window must be positive")
	}
	if cfg.MaxIngestionLag <= 0 {
		return errors.New("max ingestion lag must be positive")
	}
	return nil
}

type WebhookEndpoint struct {
	Url    string   `mapstructure:"url"`
	Secret string   `mapstructure:"secret"`
	Events []string `mapstructure:"events"`
}

type WebhookConfig struct {
	Endpoints      []WebhookEndpoint `mapstructure:"endpoints"`
	MaxRetries     int               `mapstructure:"max-retries"`
	InitialBackoff time.Duration     `mapstructure:"initial-backoff"`
	// Request timeout in milliseconds
	RequestTimeout int `mapstructure:"request-timeout"`
}

func (cfg *WebhookConfig) Validate() error {
	for _, endpoint := range cfg.Endpoints {
		u, err := url.Parse(endpoint.Url)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid webhook url: %q", endpoint.Url)
		}
		if endpoint.Secret == "" {
			return fmt.Errorf("webhook %s is missing a signing secret", endpoint.Url)
		}
	}

	if cfg.MaxRetries <= 0 {
		return errors.New("webhook max retries must be positive")
	}

	if cfg.InitialBackoff <= 0 {
		return errors.New("webhook initial backoff must be positive")
	}

	if cfg.RequestTimeout <= 0 {
		return errors.New("webhook request timeout must be positive")
	}
	return nil
}
