package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClientMessage(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"subscribe","channels":["corridor:USDC-XLM"]}`))
	require.NoError(t, err)
	sub, ok := msg.(*SubscribeMessage)
	require.True(t, ok)
	assert.Equal(t, Subscribe, sub.MessageType())
	assert.Equal(t, []string{"corridor:USDC-XLM"}, sub.Channels)

	msg, err = DecodeClientMessage([]byte(`{"type":"ping","timestamp":12}`))
	require.NoError(t, err)
	assert.Equal(t, Ping, msg.MessageType())

	_, err = DecodeClientMessage([]byte(`{"type":"snapshot_update"}`))
	assert.ErrorIs(t, err, ErrUnknownMessageType)

	_, err = DecodeClientMessage([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = DecodeClientMessage([]byte(`{"channels":[]}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = DecodeClientMessage([]byte(`{"type":"subscribe","channels":"corridor:USDC-XLM"}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestServerMessagesAreTagged(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	payment := &NewPaymentMessage{
		Type:       NewPayment,
		CorridorID: "USDC-XLM",
		Amount:     decimal.RequireFromString("12.5"),
		Successful: true,
		Timestamp:  ts,
	}
	data, err := Encode(payment)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "new_payment", decoded["type"])
	assert.Equal(t, "USDC-XLM", decoded["corridor_id"])
	assert.Equal(t, "12.5", decoded["amount"])
	assert.Equal(t, "2024-05-01T10:00:00Z", decoded["timestamp"])

	data, err = Encode(NewServerShutdown(""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ServerShutdown"}`, string(data))

	data, err = Encode(NewSubscriptionConfirm(nil, StatusUnsubscribed))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"subscription_confirm","channels":[],"status":"unsubscribed"}`, string(data))
}

func TestCorridorUpdateOmitsUnknownMetrics(t *testing.T) {
	data, err := Encode(&CorridorUpdateMessage{Type: CorridorUpdate, CorridorKey: "EUR-PHP"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "success_rate")
	assert.NotContains(t, string(data), "health_score")
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "USDC-XLM", CorridorPair("XLM", "USDC"))
	assert.Equal(t, "USDC-XLM", CorridorPair("USDC", "XLM"))
	assert.Equal(t, "corridor:USDC-XLM", CorridorTopic("USDC-XLM"))
	assert.Equal(t, "payments:EUR-PHP", PaymentsTopic("EUR-PHP"))
	assert.Equal(t, "anchor:circle", AnchorTopic("circle"))

	for _, valid := range []string{"alerts", "corridor:USDC-XLM", "payments:EUR-PHP", "anchor:circle"} {
		assert.NoError(t, ValidateTopic(valid), valid)
	}
	for _, invalid := range []string{"", "corridor:", "corridor:USDC", "payments:USDC-", "anchor:", "ledgers", "corridor:USDC-XLM-EUR"} {
		assert.Error(t, ValidateTopic(invalid), invalid)
	}
}
