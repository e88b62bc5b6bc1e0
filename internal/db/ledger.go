package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/stellar-insights/ledger-stream-service/internal/types"
)

// Natural keys double as idempotency keys: redelivered rows hit the conflict
// target and are left untouched.
const (
	upsertLedgerSQL = `INSERT INTO ledgers (sequence, hash, close_time, transaction_count, operation_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sequence) DO NOTHING`
	upsertTransactionSQL = `INSERT INTO transactions (hash, ledger_sequence, source_account, fee, operation_count, successful)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (hash) DO NOTHING`
	upsertPaymentSQL = `INSERT INTO ledger_payments
		(id, ledger_sequence, transaction_hash, operation_type, source_account, destination, asset_code, asset_issuer, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`
	latestLedgerSQL = `SELECT sequence, hash, close_time, transaction_count, operation_count
		FROM ledgers ORDER BY sequence DESC LIMIT 1`
)

func (db *Database) SaveLedgerUnit(ctx context.Context, unit types.LedgerUnit) error {
	return TxWithRetries(ctx, func(ctx context.Context) error {
		return pgx.BeginTxFunc(ctx, db.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
			return tx.SendBatch(ctx, buildLedgerUnitBatch(unit)).Close()
		})
	})
}

// buildLedgerUnitBatch queues the ledger first, then its transactions, then
// its payments, so foreign keys are satisfied in statement order.
func buildLedgerUnitBatch(unit types.LedgerUnit) *pgx.Batch {
	batch := &pgx.Batch{}
	l := unit.Ledger
	batch.Queue(upsertLedgerSQL, int64(l.Sequence), l.Hash, l.CloseTime, l.TransactionCount, l.OperationCount)

	for _, tx := range unit.Transactions {
		batch.Queue(upsertTransactionSQL,
			tx.Hash, int64(tx.LedgerSequence), tx.SourceAccount, tx.Fee, tx.OperationCount, tx.Successful,
		)
	}

	for _, p := range unit.Payments {
		batch.Queue(upsertPaymentSQL,
			p.ID, int64(p.LedgerSequence), p.TransactionHash, p.OperationType,
			p.SourceAccount, p.Destination, p.AssetCode, p.AssetIssuer, p.Amount,
		)
	}
	return batch
}

func (db *Database) FindLatestLedger(ctx context.Context) (*types.Ledger, error) {
	var (
		sequence int64
		ledger   types.Ledger
	)
	err := db.Pool.QueryRow(ctx, latestLedgerSQL).Scan(
		&sequence, &ledger.Hash, &ledger.CloseTime, &ledger.TransactionCount, &ledger.OperationCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Key: "ledgers", Message: "no ledger has been ingested yet"}
		}
		return nil, err
	}
	ledger.Sequence = uint32(sequence)
	return &ledger, nil
}
