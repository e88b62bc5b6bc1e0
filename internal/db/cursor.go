package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/stellar-insights/ledger-stream-service/internal/types"
)

const (
	selectCursorSQL = `SELECT last_ledger_sequence, COALESCE(cursor, ''), updated_at FROM ingestion_cursor LIMIT 1`
	// The WHERE clause makes the update conditional so a stale writer can
	// never move the cursor backwards.
	advanceCursorSQL = `UPDATE ingestion_cursor
		SET last_ledger_sequence = $1, cursor = $2, updated_at = NOW()
		WHERE last_ledger_sequence <= $1`
	currentSequenceSQL = `SELECT last_ledger_sequence FROM ingestion_cursor LIMIT 1 FOR UPDATE`
	insertCursorSQL    = `INSERT INTO ingestion_cursor (last_ledger_sequence, cursor, updated_at) VALUES ($1, $2, NOW())`
)

func (db *Database) GetCursor(ctx context.Context) (*types.Cursor, error) {
	var (
		sequence int64
		cursor   types.Cursor
	)
	err := db.Pool.QueryRow(ctx, selectCursorSQL).Scan(&sequence, &cursor.PagingToken, &cursor.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &types.Cursor{}, nil
		}
		return nil, err
	}
	cursor.LastSequence = uint32(sequence)
	return &cursor, nil
}

func (db *Database) AdvanceCursor(ctx context.Context, sequence uint32, pagingToken string) error {
	return TxWithRetries(ctx, func(ctx context.Context) error {
		return pgx.BeginTxFunc(ctx, db.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, advanceCursorSQL, int64(sequence), pagingToken)
			if err != nil {
				return err
			}
			if tag.RowsAffected() > 0 {
				return nil
			}

			var current int64
			err = tx.QueryRow(ctx, currentSequenceSQL).Scan(&current)
			if errors.Is(err, pgx.ErrNoRows) {
				_, err = tx.Exec(ctx, insertCursorSQL, int64(sequence), pagingToken)
				return err
			}
			if err != nil {
				return err
			}
			return &CursorRegressionError{Current: uint32(current), Requested: sequence}
		})
	})
}
