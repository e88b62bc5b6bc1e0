package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type MessageType string

const (
	// client to server
	Subscribe   MessageType = "subscribe"
	Unsubscribe MessageType = "unsubscribe"

	// server to client
	SubscriptionConfirm MessageType = "subscription_confirm"
	CorridorUpdate      MessageType = "corridor_update"
	HealthAlert         MessageType = "health_alert"
	NewPayment          MessageType = "new_payment"
	AnchorUpdate        MessageType = "anchor_update"
	Connected           MessageType = "connected"
	Error               MessageType = "error"
	ServerShutdown      MessageType = "ServerShutdown"

	// both directions
	Ping MessageType = "ping"
	Pong MessageType = "pong"
)

const (
	StatusSubscribed   = "subscribed"
	StatusUnsubscribed = "unsubscribed"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

var (
	ErrInvalidMessage     = errors.New("invalid message")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Message is any frame of the push protocol.
type Message interface {
	MessageType() MessageType
}

type SubscribeMessage struct {
	Type     MessageType `json:"type"`
	Channels []string    `json:"channels"`
}

func (m *SubscribeMessage) MessageType() MessageType { return m.Type }

type SubscriptionConfirmMessage struct {
	Type     MessageType `json:"type"`
	Channels []string    `json:"channels"`
	Status   string      `json:"status"`
}

func (m *SubscriptionConfirmMessage) MessageType() MessageType { return m.Type }

func NewSubscriptionConfirm(channels []string, status string) *SubscriptionConfirmMessage {
	if channels == nil {
		channels = []string{}
	}
	return &SubscriptionConfirmMessage{Type: SubscriptionConfirm, Channels: channels, Status: status}
}

type CorridorUpdateMessage struct {
	Type         MessageType      `json:"type"`
	CorridorKey  string           `json:"corridor_key"`
	AssetACode   string           `json:"asset_a_code"`
	AssetAIssuer string           `json:"asset_a_issuer"`
	AssetBCode   string           `json:"asset_b_code"`
	AssetBIssuer string           `json:"asset_b_issuer"`
	SuccessRate  *float64         `json:"success_rate,omitempty"`
	HealthScore  *float64         `json:"health_score,omitempty"`
	PaymentCount int              `json:"payment_count"`
	Volume       *decimal.Decimal `json:"volume,omitempty"`
	LastUpdated  *time.Time       `json:"last_updated,omitempty"`
}

func (m *CorridorUpdateMessage) MessageType() MessageType { return m.Type }

type HealthAlertMessage struct {
	Type       MessageType `json:"type"`
	CorridorID string      `json:"corridor_id"`
	Severity   Severity    `json:"severity"`
	Message    string      `json:"message"`
	Timestamp  time.Time   `json:"timestamp"`
}

func (m *HealthAlertMessage) MessageType() MessageType { return m.Type }

func NewHealthAlert(corridorID string, severity Severity, message string, timestamp time.Time) *HealthAlertMessage {
	return &HealthAlertMessage{
		Type:       HealthAlert,
		CorridorID: corridorID,
		Severity:   severity,
		Message:    message,
		Timestamp:  timestamp,
	}
}

type NewPaymentMessage struct {
	Type           MessageType     `json:"type"`
	CorridorID     string          `json:"corridor_id"`
	PaymentID      string          `json:"payment_id"`
	LedgerSequence uint32          `json:"ledger_sequence"`
	AssetCode      string          `json:"asset_code"`
	Amount         decimal.Decimal `json:"amount"`
	Successful     bool            `json:"successful"`
	Timestamp      time.Time       `json:"timestamp"`
}

func (m *NewPaymentMessage) MessageType() MessageType { return m.Type }

type AnchorUpdateMessage struct {
	Type             MessageType `json:"type"`
	AnchorID         string      `json:"anchor_id"`
	Name             string      `json:"name"`
	ReliabilityScore float64     `json:"reliability_score"`
	Status           string      `json:"status"`
}

func (m *AnchorUpdateMessage) MessageType() MessageType { return m.Type }

type PingMessage struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

func (m *PingMessage) MessageType() MessageType { return m.Type }

func NewPing(now time.Time) *PingMessage {
	return &PingMessage{Type: Ping, Timestamp: now.Unix()}
}

func NewPong(now time.Time) *PingMessage {
	return &PingMessage{Type: Pong, Timestamp: now.Unix()}
}

type ConnectedMessage struct {
	Type         MessageType `json:"type"`
	ConnectionID string      `json:"connection_id"`
}

func (m *ConnectedMessage) MessageType() MessageType { return m.Type }

func NewConnected(connectionID string) *ConnectedMessage {
	return &ConnectedMessage{Type: Connected, ConnectionID: connectionID}
}

type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func (m *ErrorMessage) MessageType() MessageType { return m.Type }

func NewError(message string) *ErrorMessage {
	return &ErrorMessage{Type: Error, Message: message}
}

type ServerShutdownMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message,omitempty"`
}

func (m *ServerShutdownMessage) MessageType() MessageType { return m.Type }

func NewServerShutdown(message string) *ServerShutdownMessage {
	return &ServerShutdownMessage{Type: ServerShutdown, Message: message}
}

// DecodeClientMessage decodes a frame sent by a client. Frames that are not
// JSON objects with a type fail with ErrInvalidMessage. Well-formed frames of
// a type clients may not send fail with ErrUnknownMessageType.
func DecodeClientMessage(data []byte) (Message, error) {
	var envelope struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if envelope.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}

	var msg Message
	switch envelope.Type {
	case Subscribe, Unsubscribe:
		msg = &SubscribeMessage{}
	case Ping, Pong:
		msg = &PingMessage{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, envelope.Type)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return msg, nil
}

// Encode serializes a server message once so it can be fanned out as-is.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
