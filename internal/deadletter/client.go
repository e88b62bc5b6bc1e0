package deadletter

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stellar-insights/ledger-stream-service/internal/config"
)

// Client is the store for records the service accepted but could not
// process: malformed upstream records and undeliverable webhooks.
type Client interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	SaveUnprocessableMessage(ctx context.Context, kind MessageKind, messageBody, receipt, reason string) error
	FindUnprocessableMessages(ctx context.Context, kind MessageKind) ([]UnprocessableMessageDocument, error)
	DeleteUnprocessableMessage(ctx context.Context, receipt string) error
}

type Database struct {
	DbName string
	Client *mongo.Client
}

func New(ctx context.Context, cfg config.DeadLetterConfig) (*Database, error) {
	clientOps := options.Client().ApplyURI(cfg.Address)
	client, err := mongo.Connect(ctx, clientOps)
	if err != nil {
		return nil, err
	}

	return &Database{
		DbName: cfg.DbName,
		Client: client,
	}, nil
}

func (db *Database) Ping(ctx context.Context) error {
	return db.Client.Ping(ctx, nil)
}

func (db *Database) Close(ctx context.Context) error {
	return db.Client.Disconnect(ctx)
}

// Setup creates the collection and its indexes. It is safe to call on every
// start.
func (db *Database) Setup(ctx context.Context) error {
	database := db.Client.Database(db.DbName)

	names, err := database.ListCollectionNames(ctx, bson.M{"name": UnprocessableMsgCollection})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	if len(names) == 0 {
		if err := database.CreateCollection(ctx, UnprocessableMsgCollection); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", UnprocessableMsgCollection, err)
		}
		log.Debug().Msg("Collection created successfully: " + UnprocessableMsgCollection)
	}

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "receipt", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "created_at", Value: 1}}},
	}
	if _, err := database.Collection(UnprocessableMsgCollection).Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes on %s: %w", UnprocessableMsgCollection, err)
	}

	log.Info().Msg("Dead letter collection and indexes created successfully.")
	return nil
}
