package db

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/utils"
)

const (
	DefaultMaxAttempts    = 4 // max attempt INCLUDES the first execution
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultBackoffFactor  = 2
)

// TxWithRetries runs txnFunc and re-runs it with exponential backoff while it
// fails with a transient error. txnFunc must open and commit its own
// transaction so that every attempt starts from a clean state.
func TxWithRetries(ctx context.Context, txnFunc func(ctx context.Context) error) error {
	var (
		err     error
		backoff = DefaultInitialBackoff
	)

	for attempt := 1; attempt <= DefaultMaxAttempts; attempt++ {
		err = txnFunc(ctx)
		if err == nil {
			return nil
		}

		if IsTransientError(err) && attempt < DefaultMaxAttempts && ctx.Err() == nil {
			log.Ctx(ctx).Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).
				Msg("transaction failed with retryable error")
			utils.Sleep(backoff)
			backoff *= DefaultBackoffFactor
			continue
		}

		log.Ctx(ctx).Error().Err(err).Int("attempt", attempt).Msg("transaction failed")
		return err
	}
	return err
}
