package db

import (
	"context"
	"time"

	"github.com/stellar-insights/ledger-stream-service/internal/db/model"
	"github.com/stellar-insights/ledger-stream-service/internal/types"
)

type DBClient interface {
	Ping(ctx context.Context) error
	Close()
	// GetCursor returns the ingestion cursor, or a zero cursor when ingestion
	// never ran against this database.
	GetCursor(ctx context.Context) (*types.Cursor, error)
	// AdvanceCursor moves the cursor forward. Moving it backwards fails with
	// a CursorRegressionError.
	AdvanceCursor(ctx context.Context, sequence uint32, pagingToken string) error
	// SaveLedgerUnit upserts the ledger, its transactions and its payments in a
	// single transaction. Saving the same unit twice is a no-op.
	SaveLedgerUnit(ctx context.Context, unit types.LedgerUnit) error
	FindLatestLedger(ctx context.Context) (*types.Ledger, error)
	AggregateAssetPayments(ctx context.Context, since time.Time) ([]model.AssetPaymentStats, error)
	AggregateAssetHolders(ctx context.Context, since time.Time) ([]model.AssetHolderStats, error)
}
