package scripts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/deadletter"
	"github.com/stellar-insights/ledger-stream-service/internal/queue/client"
	"github.com/stellar-insights/ledger-stream-service/internal/webhooks"
)

type DeadLetterStore interface {
	FindUnprocessableMessages(ctx context.Context, kind deadletter.MessageKind) ([]deadletter.UnprocessableMessageDocument, error)
	DeleteUnprocessableMessage(ctx context.Context, receipt string) error
}

// ReplayWebhookDeliveries puts every dead-lettered webhook delivery back on the
// webhook queue. A delivery is removed from the dead-letter store only once it
// is queued again. It returns the number of replayed deliveries.
func ReplayWebhookDeliveries(ctx context.Context, queue client.QueueClient, store DeadLetterStore) (int, error) {
	messages, err := store.FindUnprocessableMessages(ctx, deadletter.WebhookDelivery)
	if err != nil {
		return 0, fmt.Errorf("failed to retrieve dead-lettered webhook deliveries: %w", err)
	}

	log.Ctx(ctx).Info().Int("count", len(messages)).Msg("found dead-lettered webhook deliveries")

	replayed := 0
	for _, msg := range messages {
		var delivery webhooks.Delivery
		if err := json.Unmarshal([]byte(msg.MessageBody), &delivery); err != nil || delivery.Envelope.Id == "" {
			// kept in the store for manual inspection
			log.Ctx(ctx).Warn().Str("receipt", msg.Receipt).Msg("skipping unreadable webhook delivery")
			continue
		}

		if err := queue.SendMessage(ctx, msg.MessageBody); err != nil {
			return replayed, fmt.Errorf("failed to queue delivery %s: %w", msg.Receipt, err)
		}

		if err := store.DeleteUnprocessableMessage(ctx, msg.Receipt); err != nil {
			return replayed, fmt.Errorf("failed to delete delivery %s: %w", msg.Receipt, err)
		}
		replayed++
	}

	log.Ctx(ctx).Info().Int("replayed", replayed).Msg("Replay of webhook deliveries completed.")
	return replayed, nil
}
