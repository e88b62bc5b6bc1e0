package config

import (
	"fmt"
)

type QueueConfig struct {
	Url                    string `mapstructure:"url"`
	QueueUser              string `mapstructure:"user"`
	QueuePassword          string `mapstructure:"password"`
	WebhookQueueName       string `mapstructure:"webhook_queue_name"`
	QueueProcessingTimeout int    `mapstructure:"processing_timeout"`
}

func (cfg *QueueConfig) Validate() error {
	if cfg.Url == "" {
		return fmt.Errorf("missing queue url")
	}

	if cfg.QueueUser == "" || cfg.QueuePassword == "" {
		return fmt.Errorf("missing queue credentials")
	}

	if cfg.WebhookQueueName == "" {
		return fmt.Errorf("missing webhook queue name")
	}

	if cfg.QueueProcessingTimeout <= 0 {
		return fmt.Errorf("queue processing timeout must be a positive integer")
	}
	return nil
}

func (cfg *QueueConfig) AmqpURI() string {
	return fmt.Sprintf("amqp://%s:%s@%s", cfg.QueueUser, cfg.QueuePassword, cfg.Url)
}
