package queue

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/queue/client"
)

type MessageHandler func(ctx context.Context, messageBody string) error

type Queues struct {
	WebhookQueueClient client.QueueClient
	processingTimeout  time.Duration
}

func New(cfg config.QueueConfig) (*Queues, error) {
	webhookQueueClient, err := client.NewQueueClient(cfg.AmqpURI(), cfg.WebhookQueueName)
	if err != nil {
		return nil, err
	}
	return &Queues{
		WebhookQueueClient: webhookQueueClient,
		processingTimeout:  time.Duration(cfg.QueueProcessingTimeout) * time.Second,
	}, nil
}

func (q *Queues) ProcessingTimeout() time.Duration {
	return q.processingTimeout
}

// Turn off all message processing
func (q *Queues) StopReceivingMessages() error {
	return q.WebhookQueueClient.Stop()
}

// Close satisfies the supervisor's resource contract.
func (q *Queues) Close(ctx context.Context) error {
	return q.StopReceivingMessages()
}

func (q *Queues) IsConnectionHealthy() error {
	if err := q.WebhookQueueClient.Ping(); err != nil {
		return errors.Join(errors.New("webhook queue is not healthy"), err)
	}
	return nil
}

// ProcessMessages consumes the queue until ctx is cancelled or the broker
// closes the delivery channel. Each message gets its own timeout. Handled
// messages are acknowledged; failed messages are handed back to the broker.
func ProcessMessages(
	ctx context.Context, queueClient client.QueueClient, handler MessageHandler, timeout time.Duration,
) error {
	messagesChan, err := queueClient.ReceiveMessages()
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("queueName", queueClient.GetQueueName()).
			Msg("error setting up message channel from queue")
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-messagesChan:
			if !ok {
				return nil
			}
			handleMessage(ctx, queueClient, handler, timeout, message)
		}
	}
}

func handleMessage(
	ctx context.Context, queueClient client.QueueClient, handler MessageHandler,
	timeout time.Duration, message client.QueueMessage,
) {
	logger := log.Ctx(ctx).With().Str("queueName", queueClient.GetQueueName()).Logger()

	// The in-flight message is finished even if shutdown starts meanwhile,
	// bounded by the processing timeout.
	msgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := handler(msgCtx, message.Body); err != nil {
		logger.Error().Err(err).Msg("error while processing message from queue")
		if reqErr := queueClient.ReQueueMessage(message.Receipt); reqErr != nil {
			logger.Error().Err(reqErr).Msg("error while requeueing message")
		}
		return
	}

	if delErr := queueClient.DeleteMessage(message.Receipt); delErr != nil {
		logger.Error().Err(delErr).Msg("error while deleting message from queue")
	}
}
