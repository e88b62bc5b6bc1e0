package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	EventPaymentCreated         = "payment.created"
	EventCorridorHealthDegraded = "corridor.health_degraded"
	EventAnchorStatusChanged    = "anchor.status_changed"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	EventHeader     = "X-Webhook-Event"
	IdHeader        = "X-Webhook-Id"

	signaturePrefix = "sha256="
)

// Envelope is the body posted to webhook endpoints. Id is stable across
// retries and replays so receivers can drop duplicates.
type Envelope struct {
	Id        string          `json:"id"`
	Event     string          `json:"event"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func NewEnvelope(event string, data any) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return &Envelope{
		Id:        uuid.NewString(),
		Event:     event,
		Timestamp: time.Now().Unix(),
		Data:      raw,
	}, nil
}

// Delivery is the message carried by the webhook queue. An empty Endpoint
// targets every endpoint subscribed to the event; a set one targets only that
// endpoint, which is how dead-lettered deliveries are replayed.
type Delivery struct {
	Endpoint string   `json:"endpoint,omitempty"`
	Envelope Envelope `json:"envelope"`
}

// Sign returns the signature header value for payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header value in constant time.
func Verify(secret string, payload []byte, signature string) bool {
	if !strings.HasPrefix(signature, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}
