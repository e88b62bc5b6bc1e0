package scripts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stellar-insights/ledger-stream-service/internal/deadletter"
	"github.com/stellar-insights/ledger-stream-service/internal/queue/client"
	testmock "github.com/stellar-insights/ledger-stream-service/tests/mocks"
)

type fakeQueue struct {
	sent    []string
	sendErr error
}

func (f *fakeQueue) SendMessage(_ context.Context, body string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, body)
	return nil
}

func (f *fakeQueue) ReceiveMessages() (<-chan client.QueueMessage, error) { return nil, nil }
func (f *fakeQueue) DeleteMessage(string) error                           { return nil }
func (f *fakeQueue) ReQueueMessage(string) error                          { return nil }
func (f *fakeQueue) Ping() error                                          { return nil }
func (f *fakeQueue) Stop() error                                          { return nil }
func (f *fakeQueue) GetQueueName() string                                 { return "webhook_delivery_queue" }

const delivery = `{"endpoint":"https://hooks.example.com/a","envelope":{"id":"evt-1","event":"payment.created","timestamp":1714564800,"data":{}}}`

func TestReplayRequeuesAndDeletes(t *testing.T) {
	store := testmock.NewDeadLetterClient(t)
	queue := &fakeQueue{}
	store.On("FindUnprocessableMessages", mock.Anything, deadletter.WebhookDelivery).Return([]deadletter.UnprocessableMessageDocument{
		{Kind: deadletter.WebhookDelivery, MessageBody: delivery, Receipt: "webhook:evt-1:https://hooks.example.com/a"},
		{Kind: deadletter.WebhookDelivery, MessageBody: "not json", Receipt: "webhook:invalid:1"},
	}, nil)
	store.On("DeleteUnprocessableMessage", mock.Anything, "webhook:evt-1:https://hooks.example.com/a").Return(nil)

	replayed, err := ReplayWebhookDeliveries(context.Background(), queue, store)

	require.NoError(t, err)
	assert.Equal(t, 1, replayed)
	assert.Equal(t, []string{delivery}, queue.sent)
}

func TestReplayKeepsDeliveryWhenQueueFails(t *testing.T) {
	store := testmock.NewDeadLetterClient(t)
	queue := &fakeQueue{sendErr: errors.New("channel closed")}
	store.On("FindUnprocessableMessages", mock.Anything, deadletter.WebhookDelivery).Return([]deadletter.UnprocessableMessageDocument{
		{Kind: deadletter.WebhookDelivery, MessageBody: delivery, Receipt: "webhook:evt-1:https://hooks.example.com/a"},
	}, nil)

	replayed, err := ReplayWebhookDeliveries(context.Background(), queue, store)

	assert.ErrorContains(t, err, "channel closed")
	assert.Zero(t, replayed)
	store.AssertNotCalled(t, "DeleteUnprocessableMessage", mock.Anything, mock.Anything)
}
