package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stellar-insights/ledger-stream-service/internal/db/model"
)

// Payments may be indexed before their parent transaction, so the join is a
// LEFT JOIN and payments with an unknown outcome are counted separately.
const (
	aggregateAssetPaymentsSQL = `SELECT p.asset_code, COALESCE(p.asset_issuer, ''),
			COUNT(*),
			COUNT(*) FILTER (WHERE t.successful IS TRUE),
			COUNT(*) FILTER (WHERE t.successful IS FALSE),
			COALESCE(SUM(p.amount), 0)
		FROM ledger_payments p
		JOIN ledgers l ON l.sequence = p.ledger_sequence
		LEFT JOIN transactions t ON t.hash = p.transaction_hash
		WHERE l.close_time >= $1
		GROUP BY p.asset_code, COALESCE(p.asset_issuer, '')
		ORDER BY p.asset_code`
	aggregateAssetHoldersSQL = `SELECT p.asset_code, COALESCE(p.asset_issuer, ''),
			COUNT(DISTINCT p.destination),
			COUNT(DISTINCT p.source_account)
		FROM ledger_payments p
		JOIN ledgers l ON l.sequence = p.ledger_sequence
		WHERE l.close_time >= $1
		GROUP BY p.asset_code, COALESCE(p.asset_issuer, '')
		ORDER BY p.asset_code`
)

func (db *Database) AggregateAssetPayments(ctx context.Context, since time.Time) ([]model.AssetPaymentStats, error) {
	rows, err := db.Pool.Query(ctx, aggregateAssetPaymentsSQL, since)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AssetPaymentStats, error) {
		var stats model.AssetPaymentStats
		err := row.Scan(
			&stats.AssetCode, &stats.AssetIssuer, &stats.PaymentCount,
			&stats.SuccessfulCount, &stats.FailedCount, &stats.Volume,
		)
		return stats, err
	})
}

func (db *Database) AggregateAssetHolders(ctx context.Context, since time.Time) ([]model.AssetHolderStats, error) {
	rows, err := db.Pool.Query(ctx, aggregateAssetHoldersSQL, since)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AssetHolderStats, error) {
		var stats model.AssetHolderStats
		err := row.Scan(&stats.AssetCode, &stats.AssetIssuer, &stats.ReceivingAccounts, &stats.SendingAccounts)
		return stats, err
	})
}
