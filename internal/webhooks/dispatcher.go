package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/deadletter"
	"github.com/stellar-insights/ledger-stream-service/internal/observability/metrics"
	"github.com/stellar-insights/ledger-stream-service/internal/queue"
	"github.com/stellar-insights/ledger-stream-service/internal/queue/client"
	"github.com/stellar-insights/ledger-stream-service/internal/types"
	"github.com/stellar-insights/ledger-stream-service/internal/utils"
)

const maxDeliveryBackoff = 30 * time.Second

type DeadLetterStore interface {
	SaveUnprocessableMessage(ctx context.Context, kind deadletter.MessageKind, messageBody, receipt, reason string) error
}

type Poster interface {
	Post(ctx context.Context, endpointURL string, headers map[string]string, payload []byte) *types.Error
}

// Dispatcher consumes the webhook queue and posts each envelope to the
// endpoints subscribed to its event. A delivery that still fails after
// MaxRetries attempts is dead-lettered and the queue message acknowledged.
type Dispatcher struct {
	queue          client.QueueClient
	poster         Poster
	deadLetter     DeadLetterStore
	endpoints      []config.WebhookEndpoint
	maxRetries     int
	initialBackoff time.Duration
	timeout        time.Duration
}

func NewDispatcher(
	queueClient client.QueueClient, poster Poster, deadLetter DeadLetterStore,
	cfg *config.WebhookConfig, processingTimeout time.Duration,
) *Dispatcher {
	return &Dispatcher{
		queue:          queueClient,
		poster:         poster,
		deadLetter:     deadLetter,
		endpoints:      cfg.Endpoints,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		timeout:        processingTimeout,
	}
}

// Run blocks until ctx is cancelled or the queue stops delivering.
func (d *Dispatcher) Run(ctx context.Context) error {
	return queue.ProcessMessages(ctx, d.queue, d.HandleMessage, d.timeout)
}

// HandleMessage delivers one queue message. It only returns an error when a
// failure could not be recorded, so the broker redelivers the message.
func (d *Dispatcher) HandleMessage(ctx context.Context, messageBody string) error {
	var delivery Delivery
	if err := json.Unmarshal([]byte(messageBody), &delivery); err != nil {
		receipt := "webhook:invalid:" + uuid.NewString()
		return d.deadLetter.SaveUnprocessableMessage(
			ctx, deadletter.WebhookDelivery, messageBody, receipt, fmt.Sprintf("invalid delivery: %v", err),
		)
	}

	envelope := delivery.Envelope
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope %s: %w", envelope.Id, err)
	}

	logger := log.Ctx(ctx).With().Str("webhookId", envelope.Id).Str("event", envelope.Event).Logger()
	for _, endpoint := range matchingEndpoints(d.endpoints, envelope.Event, delivery.Endpoint) {
		deliverErr := d.deliver(ctx, endpoint, envelope, payload)
		if deliverErr == nil {
			metrics.RecordWebhookDelivery(envelope.Event, metrics.Success)
			continue
		}
		metrics.RecordWebhookDelivery(envelope.Event, metrics.Error)
		logger.Warn().Err(deliverErr).Str("endpoint", endpoint.Url).Msg("webhook delivery failed, dead-lettering")

		failed, err := json.Marshal(Delivery{Endpoint: endpoint.Url, Envelope: envelope})
		if err != nil {
			return fmt.Errorf("failed to marshal failed delivery: %w", err)
		}
		receipt := fmt.Sprintf("webhook:%s:%s", envelope.Id, endpoint.Url)
		if err := d.deadLetter.SaveUnprocessableMessage(
			ctx, deadletter.WebhookDelivery, string(failed), receipt, deliverErr.Error(),
		); err != nil {
			return fmt.Errorf("failed to dead-letter webhook %s: %w", receipt, err)
		}
	}
	return nil
}

func (d *Dispatcher) deliver(
	ctx context.Context, endpoint config.WebhookEndpoint, envelope Envelope, payload []byte,
) error {
	headers := map[string]string{
		SignatureHeader: Sign(endpoint.Secret, payload),
		EventHeader:     envelope.Event,
		IdHeader:        envelope.Id,
	}

	var lastErr *types.Error
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		if attempt > 0 {
			if err := utils.SleepContext(ctx, utils.Backoff(d.initialBackoff, maxDeliveryBackoff, attempt-1)); err != nil {
				return fmt.Errorf("gave up after %d attempts: %w", attempt, lastErr)
			}
		}
		lastErr = d.poster.Post(ctx, endpoint.Url, headers, payload)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", d.maxRetries, lastErr)
}

// retryable reports whether another attempt could succeed. Client errors
// other than rate limiting and timeouts are permanent.
func retryable(err *types.Error) bool {
	switch {
	case err.StatusCode >= http.StatusInternalServerError:
		return true
	case err.StatusCode == http.StatusTooManyRequests, err.StatusCode == http.StatusRequestTimeout:
		return true
	}
	return false
}
