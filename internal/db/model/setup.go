package model

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/utils"
)

const (
	CursorTable      = "ingestion_cursor"
	LedgerTable      = "ledgers"
	TransactionTable = "transactions"
	PaymentTable     = "ledger_payments"
)

// The schema is owned by the migration tooling. The service only checks that
// the columns it writes are present.
var tables = map[string][]string{
	CursorTable:      {"last_ledger_sequence", "cursor", "updated_at"},
	LedgerTable:      {"sequence", "hash", "close_time", "transaction_count", "operation_count"},
	TransactionTable: {"hash", "ledger_sequence", "source_account", "fee", "operation_count", "successful"},
	PaymentTable: {
		"id", "ledger_sequence", "transaction_hash", "operation_type",
		"source_account", "destination", "asset_code", "asset_issuer", "amount",
	},
}

const listColumnsSQL = `SELECT column_name FROM information_schema.columns
	WHERE table_schema = current_schema() AND table_name = $1`

func Setup(ctx context.Context, cfg *config.Config) error {
	// Create a context with timeout.
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, cfg.Db.Address)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	for _, table := range utils.SortedKeys(tables) {
		if err := verifyTable(ctx, conn, table, tables[table]); err != nil {
			return err
		}
	}

	log.Info().Msg("Database schema verified successfully.")
	return nil
}

func verifyTable(ctx context.Context, conn *pgx.Conn, table string, columns []string) error {
	rows, err := conn.Query(ctx, listColumnsSQL, table)
	if err != nil {
		return fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	if len(existing) == 0 {
		return fmt.Errorf("missing table %s, run the migrations first", table)
	}

	for _, column := range columns {
		if !utils.Contains(existing, column) {
			return fmt.Errorf("table %s is missing column %s", table, column)
		}
	}

	log.Debug().Msg("Table verified successfully: " + table)
	return nil
}
