package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-insights/ledger-stream-service/internal/events"
	"github.com/stellar-insights/ledger-stream-service/internal/stream/protocol"
	"github.com/stellar-insights/ledger-stream-service/internal/webhooks"
)

type published struct {
	topic string
	typ   protocol.MessageType
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []published
}

func (p *recordingPublisher) Publish(topic string, msg protocol.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, published{topic: topic, typ: msg.MessageType()})
	return nil
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.published...)
}

type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[string]string)}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	return nil
}

func (m *memoryCache) InvalidatePattern(context.Context, string) (int64, error) { return 0, nil }
func (m *memoryCache) Ping(context.Context) error                              { return nil }
func (m *memoryCache) Close() error                                            { return nil }

type recordingWebhooks struct {
	mu     sync.Mutex
	events []string
}

func (w *recordingWebhooks) Publish(_ context.Context, event string, _ any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, event)
	return nil
}

func (w *recordingWebhooks) all() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.events...)
}

func paymentEvent(pair string) events.Event {
	return events.Event{
		Pair: pair,
		Message: &protocol.NewPaymentMessage{
			Type: protocol.NewPayment, CorridorID: pair, PaymentID: "op-1",
			LedgerSequence: 101, AssetCode: "USDC", Amount: decimal.NewFromInt(10), Successful: true,
		},
	}
}

func anchorEvent(status string) events.Event {
	return events.Event{
		AnchorID: "circle",
		Message: &protocol.AnchorUpdateMessage{
			Type: protocol.AnchorUpdate, AnchorID: "circle", Name: "Circle", Status: status,
		},
	}
}

func TestTopics(t *testing.T) {
	pair := "USDC-XLM"
	assert.Equal(t, []string{"payments:USDC-XLM", "corridor:USDC-XLM"}, Topics(paymentEvent(pair)))
	assert.Equal(t, []string{"corridor:USDC-XLM"},
		Topics(events.Event{Pair: pair, Message: corridorUpdate(pair, 1)}))
	assert.Equal(t, []string{"corridor:USDC-XLM", "alerts"},
		Topics(events.Event{Pair: pair, Message: protocol.NewHealthAlert(pair, protocol.SeverityWarning, "low", time.Now())}))
	assert.Equal(t, []string{"alerts"},
		Topics(events.Event{Message: protocol.NewHealthAlert("", protocol.SeverityError, "lagging", time.Now())}))
	assert.Equal(t, []string{"anchor:circle"}, Topics(anchorEvent(events.AnchorStatusGreen)))
	assert.Nil(t, Topics(events.Event{Message: protocol.NewPong(time.Now())}))
}

func TestBroadcasterPublishesCachesAndEnqueuesWebhooks(t *testing.T) {
	input := make(chan events.Event, 16)
	publisher := &recordingPublisher{}
	snapshots := newMemoryCache()
	hooks := &recordingWebhooks{}
	broadcaster := NewBroadcaster(input, publisher, snapshots, hooks, time.Minute)

	pair := "USDC-XLM"
	input <- paymentEvent(pair)
	input <- events.Event{Pair: pair, Message: corridorUpdate(pair, 1)}
	input <- events.Event{Pair: pair, Message: protocol.NewHealthAlert(pair, protocol.SeverityInfo, "large payment", time.Now())}
	input <- events.Event{Pair: pair, Message: protocol.NewHealthAlert(pair, protocol.SeverityCritical, "failing", time.Now())}
	input <- anchorEvent(events.AnchorStatusGreen)
	input <- anchorEvent(events.AnchorStatusGreen)
	input <- anchorEvent(events.AnchorStatusRed)
	close(input)

	require.NoError(t, broadcaster.Run(context.Background()))

	assert.Equal(t, []published{
		{"payments:USDC-XLM", protocol.NewPayment},
		{"corridor:USDC-XLM", protocol.NewPayment},
		{"corridor:USDC-XLM", protocol.CorridorUpdate},
		{"corridor:USDC-XLM", protocol.HealthAlert},
		{"alerts", protocol.HealthAlert},
		{"corridor:USDC-XLM", protocol.HealthAlert},
		{"alerts", protocol.HealthAlert},
		{"anchor:circle", protocol.AnchorUpdate},
		{"anchor:circle", protocol.AnchorUpdate},
		{"anchor:circle", protocol.AnchorUpdate},
	}, publisher.all())

	// the first anchor status is a baseline, only the change is a webhook
	assert.Equal(t, []string{
		webhooks.EventPaymentCreated,
		webhooks.EventCorridorHealthDegraded,
		webhooks.EventAnchorStatusChanged,
	}, hooks.all())

	assert.Contains(t, snapshots.values["corridor:USDC-XLM"], `"corridor_key":"USDC-XLM"`)
	assert.Contains(t, snapshots.values["anchor:circle"], `"status":"red"`)
}

func TestBroadcasterIgnoresCacheFailures(t *testing.T) {
	input := make(chan events.Event, 1)
	publisher := &recordingPublisher{}
	snapshots := newMemoryCache()
	snapshots.err = errors.New("redis unavailable")
	broadcaster := NewBroadcaster(input, publisher, snapshots, nil, time.Minute)

	input <- events.Event{Pair: "EUR-PHP", Message: corridorUpdate("EUR-PHP", 2)}
	close(input)
	require.NoError(t, broadcaster.Run(context.Background()))

	assert.Len(t, publisher.all(), 1)
}

func TestBroadcasterDrainsBufferedEventsOnCancel(t *testing.T) {
	input := make(chan events.Event, 8)
	publisher := &recordingPublisher{}
	broadcaster := NewBroadcaster(input, publisher, nil, nil, time.Minute)

	for i := 0; i < 3; i++ {
		input <- events.Event{Pair: "EUR-PHP", Message: corridorUpdate("EUR-PHP", i)}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, broadcaster.Run(ctx))
	assert.Len(t, publisher.all(), 3)
}
