package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/strkey"
)

type StreamConfig struct {
	QueueSize              int           `mapstructure:"queue-size"`
	PingInterval           time.Duration `mapstructure:"ping-interval"`
	MaxMissedPings         int           `mapstructure:"max-missed-pings"`
	MaxTopicsPerConnection int           `mapstructure:"max-topics-per-connection"`
	WriteTimeout           time.Duration `mapstructure:"write-timeout"`
	MaxMessageSize         int64         `mapstructure:"max-message-size"`
	ShutdownGrace          time.Duration `mapstructure:"shutdown-grace"`
	// Optional shared token expected in the `token` query parameter
	AuthToken string `mapstructure:"auth-token"`
}

func (cfg *StreamConfig) Validate() error {
	if cfg.QueueSize <= 0 {
		return errors.New("stream queue size must be positive")
	}

	if cfg.PingInterval <= 0 {
		return errors.New("stream ping interval must be positive")
	}

	if cfg.MaxMissedPings <= 0 {
		return errors.New("stream max missed pings must be positive")
	}

	if cfg.MaxTopicsPerConnection <= 0 {
		return errors.New("stream max topics per connection must be positive")
	}

	if cfg.WriteTimeout <= 0 {
		return errors.New("stream write timeout must be positive")
	}

	if cfg.MaxMessageSize <= 0 {
		return errors.New("stream max message size must be positive")
	}

	if cfg.ShutdownGrace < 0 {
		return errors.New("stream shutdown grace cannot be negative")
	}
	return nil
}

type AnchorConfig struct {
	Id       string   `mapstructure:"id"`
	Name     string   `mapstructure:"name"`
	Accounts []string `mapstructure:"accounts"`
}

// DerivationConfig holds the thresholds used to turn ingested rows into
// corridor, anchor and alert events.
type DerivationConfig struct {
	LargePaymentAmount  string         `mapstructure:"large-payment-amount"`
	WarningSuccessRate  float64        `mapstructure:"warning-success-rate"`
	ErrorSuccessRate    float64        `mapstructure:"error-success-rate"`
	CriticalSuccessRate float64        `mapstructure:"critical-success-rate"`
	MinSampleSize       int            `mapstructure:"min-sample-size"`
	SnapshotTTL         time.Duration  `mapstructure:"snapshot-ttl"`
	Anchors             []AnchorConfig `mapstructure:"anchors"`
}

func (cfg *DerivationConfig) Validate() error {
	if cfg.LargePaymentAmount != "" {
		if _, err := decimal.NewFromString(cfg.LargePaymentAmount); err != nil {
			return fmt.Errorf("invalid large payment amount: %w", err)
		}
	}

	if !(cfg.CriticalSuccessRate <= cfg.ErrorSuccessRate && cfg.ErrorSuccessRate <= cfg.WarningSuccessRate) {
		return errors.New("success rate thresholds must satisfy critical <= error <= warning")
	}

	if cfg.WarningSuccessRate > 100 || cfg.CriticalSuccessRate < 0 {
		return errors.New("success rate thresholds must be within 0 and 100")
	}

	if cfg.MinSampleSize <= 0 {
		return errors.New("min sample size must be positive")
	}

	if cfg.SnapshotTTL <= 0 {
		return errors.New("snapshot ttl must be positive")
	}

	for _, anchor := range cfg.Anchors {
		if anchor.Id == "" {
			return errors.New("anchor id must not be empty")
		}
		for _, account := range anchor.Accounts {
			if !strkey.IsValidEd25519PublicKey(account) {
				return fmt.Errorf("anchor %s has invalid account %s", anchor.Id, account)
			}
		}
	}
	return nil
}
