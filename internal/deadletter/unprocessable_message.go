package deadletter

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const UnprocessableMsgCollection = "unprocessable_messages"

type MessageKind string

const (
	// MalformedRecord is an upstream record dropped by the ingestion loop.
	MalformedRecord MessageKind = "malformed_record"
	// WebhookDelivery is a webhook event whose delivery attempts were exhausted.
	WebhookDelivery MessageKind = "webhook_delivery"
)

type UnprocessableMessageDocument struct {
	Kind        MessageKind `bson:"kind"`
	MessageBody string      `bson:"message_body"`
	Receipt     string      `bson:"receipt"`
	Reason      string      `bson:"reason"`
	CreatedAt   time.Time   `bson:"created_at"`
}

func NewUnprocessableMessageDocument(kind MessageKind, messageBody, receipt, reason string) *UnprocessableMessageDocument {
	return &UnprocessableMessageDocument{
		Kind:        kind,
		MessageBody: messageBody,
		Receipt:     receipt,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	}
}

// SaveUnprocessableMessage upserts on receipt, so recording the same failure
// twice keeps a single document.
func (db *Database) SaveUnprocessableMessage(ctx context.Context, kind MessageKind, messageBody, receipt, reason string) error {
	client := db.Client.Database(db.DbName).Collection(UnprocessableMsgCollection)

	doc := NewUnprocessableMessageDocument(kind, messageBody, receipt, reason)
	filter := bson.M{"receipt": receipt}
	_, err := client.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	return err
}

func (db *Database) FindUnprocessableMessages(ctx context.Context, kind MessageKind) ([]UnprocessableMessageDocument, error) {
	client := db.Client.Database(db.DbName).Collection(UnprocessableMsgCollection)
	filter := bson.M{"kind": kind}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := client.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var unprocessableMessages []UnprocessableMessageDocument
	if err = cursor.All(ctx, &unprocessableMessages); err != nil {
		return nil, err
	}

	return unprocessableMessages, nil
}

func (db *Database) DeleteUnprocessableMessage(ctx context.Context, receipt string) error {
	client := db.Client.Database(db.DbName).Collection(UnprocessableMsgCollection)
	filter := bson.M{"receipt": receipt}
	_, err := client.DeleteOne(ctx, filter)
	return err
}
