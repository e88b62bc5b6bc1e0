package stream

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/cache"
	"github.com/stellar-insights/ledger-stream-service/internal/events"
	"github.com/stellar-insights/ledger-stream-service/internal/stream/protocol"
	"github.com/stellar-insights/ledger-stream-service/internal/webhooks"
)

type Publisher interface {
	Publish(topic string, msg protocol.Message) error
}

type WebhookPublisher interface {
	Publish(ctx context.Context, event string, data any) error
}

// Broadcaster fans derived events out to topics. It also keeps the latest
// corridor and anchor snapshots in the cache and hands webhook-worthy events
// to the webhook queue. Cache and webhook failures never hold back fan-out.
type Broadcaster struct {
	input       <-chan events.Event
	registry    Publisher
	cache       cache.Cache
	webhooks    WebhookPublisher
	snapshotTTL time.Duration

	anchorStatus map[string]string
}

// NewBroadcaster creates a broadcaster. cache and webhooks are optional.
func NewBroadcaster(
	input <-chan events.Event, registry Publisher, snapshotCache cache.Cache,
	webhookPublisher WebhookPublisher, snapshotTTL time.Duration,
) *Broadcaster {
	return &Broadcaster{
		input:        input,
		registry:     registry,
		cache:        snapshotCache,
		webhooks:     webhookPublisher,
		snapshotTTL:  snapshotTTL,
		anchorStatus: make(map[string]string),
	}
}

// Topics resolves the topics an event is published to.
func Topics(e events.Event) []string {
	switch e.Type() {
	case protocol.NewPayment:
		return []string{protocol.PaymentsTopic(e.Pair), protocol.CorridorTopic(e.Pair)}
	case protocol.CorridorUpdate:
		return []string{protocol.CorridorTopic(e.Pair)}
	case protocol.HealthAlert:
		if e.Pair == "" {
			return []string{protocol.AlertsTopic}
		}
		return []string{protocol.CorridorTopic(e.Pair), protocol.AlertsTopic}
	case protocol.AnchorUpdate:
		return []string{protocol.AnchorTopic(e.AnchorID)}
	}
	return nil
}

// Run consumes events until ctx is cancelled, then publishes whatever is
// already buffered before returning.
func (b *Broadcaster) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			b.drain(ctx)
			return nil
		case e, ok := <-b.input:
			if !ok {
				return nil
			}
			b.handle(ctx, e)
		}
	}
}

func (b *Broadcaster) drain(ctx context.Context) {
	// side effects still get a short window after cancellation
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	drained := 0
	for {
		select {
		case e, ok := <-b.input:
			if !ok {
				return
			}
			b.handle(drainCtx, e)
			drained++
		default:
			if drained > 0 {
				log.Ctx(ctx).Info().Int("events", drained).Msg("published buffered events before stopping")
			}
			return
		}
	}
}

func (b *Broadcaster) handle(ctx context.Context, e events.Event) {
	logger := log.Ctx(ctx)
	for _, topic := range Topics(e) {
		if err := b.registry.Publish(topic, e.Message); err != nil {
			logger.Warn().Err(err).Str("topic", topic).Msg("failed to publish event")
		}
	}

	switch msg := e.Message.(type) {
	case *protocol.NewPaymentMessage:
		b.enqueueWebhook(ctx, webhooks.EventPaymentCreated, msg)
	case *protocol.CorridorUpdateMessage:
		b.cacheSnapshot(ctx, cache.CorridorKey(e.Pair), msg)
	case *protocol.HealthAlertMessage:
		if msg.Severity != protocol.SeverityInfo {
			b.enqueueWebhook(ctx, webhooks.EventCorridorHealthDegraded, msg)
		}
	case *protocol.AnchorUpdateMessage:
		b.cacheSnapshot(ctx, cache.AnchorKey(e.AnchorID), msg)
		previous, known := b.anchorStatus[msg.AnchorID]
		b.anchorStatus[msg.AnchorID] = msg.Status
		if known && previous != msg.Status {
			b.enqueueWebhook(ctx, webhooks.EventAnchorStatusChanged, msg)
		}
	}
}

func (b *Broadcaster) cacheSnapshot(ctx context.Context, key string, msg protocol.Message) {
	if b.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, b.cache, key, msg, b.snapshotTTL); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to cache snapshot")
	}
}

func (b *Broadcaster) enqueueWebhook(ctx context.Context, event string, data any) {
	if b.webhooks == nil {
		return
	}
	if err := b.webhooks.Publish(ctx, event, data); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("event", event).Msg("failed to enqueue webhook event")
	}
}
