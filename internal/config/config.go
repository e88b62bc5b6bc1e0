package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Db         DbConfig         `mapstructure:"db"`
	DeadLetter DeadLetterConfig `mapstructure:"dead-letter"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Horizon    HorizonConfig    `mapstructure:"horizon"`
	Ingestion  IngestionConfig  `mapstructure:"ingestion"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Derivation DerivationConfig `mapstructure:"derivation"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Shutdown   ShutdownConfig   `mapstructure:"shutdown"`
}

func (cfg *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&cfg.Server,
		&cfg.Db,
		&cfg.DeadLetter,
		&cfg.Cache,
		&cfg.Queue,
		&cfg.Horizon,
		&cfg.Ingestion,
		&cfg.Stream,
		&cfg.Derivation,
		&cfg.Jobs,
		&cfg.Webhook,
		&cfg.Metrics,
		&cfg.Shutdown,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// New returns a fully parsed Config object from a given file directory
func New(cfgFile string) (*Config, error) {
	_, err := os.Stat(cfgFile)
	if err != nil {
		return nil, err
	}

	viper.SetConfigFile(cfgFile)

	viper.AutomaticEnv()
	/*
		Below code will replace nested fields in yml into `_` and any `-` into `__` when you try to override this config via env variable
		To give an example:
		1. `some.config.a` can be overriden by `SOME_CONFIG_A`
		2. `some.config-a` can be overriden by `SOME_CONFIG__A`
		This is to avoid using `-` in the environment variable as it's not supported in all os terminal/bash
		Note: vipner package use `.` as delimitter by default. Read more here: https://pkg.go.dev/github.com/spf13/viper#readme-accessing-nested-keys
	*/
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "__"))

	// Shutdown timeouts are part of the deployment contract and must be
	// overridable even when the config file omits them.
	for key, env := range shutdownEnvBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	err = viper.ReadInConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err = viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
