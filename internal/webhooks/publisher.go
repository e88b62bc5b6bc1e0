package webhooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/queue/client"
	"github.com/stellar-insights/ledger-stream-service/internal/utils"
)

// Publisher enqueues webhook events. Events no endpoint subscribes to are
// dropped before reaching the queue.
type Publisher struct {
	queue     client.QueueClient
	endpoints []config.WebhookEndpoint
}

func NewPublisher(queue client.QueueClient, endpoints []config.WebhookEndpoint) *Publisher {
	return &Publisher{queue: queue, endpoints: endpoints}
}

func (p *Publisher) Publish(ctx context.Context, event string, data any) error {
	if len(matchingEndpoints(p.endpoints, event, "")) == 0 {
		return nil
	}
	envelope, err := NewEnvelope(event, data)
	if err != nil {
		return err
	}
	body, err := json.Marshal(Delivery{Envelope: *envelope})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook delivery: %w", err)
	}
	return p.queue.SendMessage(ctx, string(body))
}

// matchingEndpoints returns the endpoints subscribed to event. An endpoint
// without an event filter receives everything. When target is set only the
// endpoint with that url is considered.
func matchingEndpoints(endpoints []config.WebhookEndpoint, event, target string) []config.WebhookEndpoint {
	var matched []config.WebhookEndpoint
	for _, endpoint := range endpoints {
		if target != "" && endpoint.Url != target {
			continue
		}
		if len(endpoint.Events) == 0 || utils.Contains(endpoint.Events, event) {
			matched = append(matched, endpoint)
		}
	}
	return matched
}
