package deadletter

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-insights/ledger-stream-service/internal/config"
)

// setupTestDeadLetter connects to TEST_MONGO_ADDRESS and drops the collection.
// The test is skipped when it is not set.
func setupTestDeadLetter(t *testing.T) *Database {
	address := os.Getenv("TEST_MONGO_ADDRESS")
	if address == "" {
		t.Skip("TEST_MONGO_ADDRESS is not set")
	}
	ctx := context.Background()
	db, err := New(ctx, config.DeadLetterConfig{Address: address, DbName: "ledger-stream-service-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(context.Background()) })

	require.NoError(t, db.Client.Database(db.DbName).Collection(UnprocessableMsgCollection).Drop(ctx))
	require.NoError(t, db.Setup(ctx))
	return db
}

func TestUnprocessableMessageShouldBeStoredInDB(t *testing.T) {
	db := setupTestDeadLetter(t)
	ctx := context.Background()

	require.NoError(t, db.SaveUnprocessableMessage(ctx, WebhookDelivery, `{"event":"payment.created"}`, "evt-1", "timeout"))
	// saving the same receipt twice keeps one document
	require.NoError(t, db.SaveUnprocessableMessage(ctx, WebhookDelivery, `{"event":"payment.created"}`, "evt-1", "503"))
	require.NoError(t, db.SaveUnprocessableMessage(ctx, MalformedRecord, `{"id":"op-1"}`, "ledger-101-op-1", "bad amount"))

	docs, err := db.FindUnprocessableMessages(ctx, WebhookDelivery)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, `{"event":"payment.created"}`, docs[0].MessageBody)
	assert.Equal(t, "503", docs[0].Reason)

	require.NoError(t, db.DeleteUnprocessableMessage(ctx, "evt-1"))
	docs, err = db.FindUnprocessableMessages(ctx, WebhookDelivery)
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = db.FindUnprocessableMessages(ctx, MalformedRecord)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestNewUnprocessableMessageDocument(t *testing.T) {
	doc := NewUnprocessableMessageDocument(MalformedRecord, "body", "receipt", "reason")
	assert.Equal(t, MalformedRecord, doc.Kind)
	assert.Equal(t, "receipt", doc.Receipt)
	assert.False(t, doc.CreatedAt.IsZero())
}
