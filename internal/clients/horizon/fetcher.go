package horizon

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/types"
)

// Number of ledgers whose transactions and payments are fetched in parallel.
const subFetchConcurrency = 4

// RawLedger is a ledger as returned by Horizon, before validation.
type RawLedger struct {
	Ledger       LedgerRecord
	Transactions []TransactionRecord
	Payments     []PaymentRecord
}

type RawBatch struct {
	Ledgers []RawLedger
}

func (b *RawBatch) IsEmpty() bool {
	return b == nil || len(b.Ledgers) == 0
}

type Fetcher struct {
	client      HorizonClientInterface
	batchSize   int
	startLedger uint32
}

func NewFetcher(client HorizonClientInterface, cfg *config.IngestionConfig) *Fetcher {
	return &Fetcher{
		client:      client,
		batchSize:   cfg.BatchSize,
		startLedger: cfg.StartLedger,
	}
}

// FetchNext returns the ledgers closed after the cursor, each with its
// transactions and payments. An empty batch means the cursor is at the tip.
// Errors are classified as TransientIO or MalformedUpstreamData.
func (f *Fetcher) FetchNext(ctx context.Context, cursor types.Cursor) (*RawBatch, error) {
	pagingToken, err := f.resolvePagingToken(ctx, cursor)
	if err != nil {
		return nil, err
	}

	ledgers, apiErr := f.client.GetLedgers(ctx, pagingToken, f.batchSize)
	if apiErr != nil {
		return nil, classify(apiErr)
	}
	if len(ledgers) == 0 {
		return &RawBatch{}, nil
	}

	for _, ledger := range ledgers {
		if !validSequence(ledger.Sequence) {
			return nil, types.NewMalformedError("ledger %s has invalid sequence %d", ledger.ID, ledger.Sequence)
		}
	}

	raw := make([]RawLedger, len(ledgers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(subFetchConcurrency)
	for i := range ledgers {
		i := i
		ledger := ledgers[i]
		sequence := uint32(ledger.Sequence)
		g.Go(func() error {
			txs, apiErr := f.client.GetLedgerTransactions(gctx, sequence)
			if apiErr != nil {
				return classify(apiErr)
			}
			payments, apiErr := f.client.GetLedgerPayments(gctx, sequence)
			if apiErr != nil {
				return classify(apiErr)
			}
			raw[i] = RawLedger{Ledger: ledger, Transactions: txs, Payments: payments}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Debug().
		Int64("from", ledgers[0].Sequence).
		Int64("to", ledgers[len(ledgers)-1].Sequence).
		Msg("fetched ledgers from horizon")
	return &RawBatch{Ledgers: raw}, nil
}

func (f *Fetcher) resolvePagingToken(ctx context.Context, cursor types.Cursor) (string, error) {
	switch {
	case cursor.PagingToken != "":
		return cursor.PagingToken, nil
	case cursor.LastSequence > 0:
		return LedgerPagingToken(cursor.LastSequence), nil
	case f.startLedger > 0:
		return LedgerPagingToken(f.startLedger - 1), nil
	}

	latest, apiErr := f.client.GetLatestLedger(ctx)
	if apiErr != nil {
		return "", classify(apiErr)
	}
	if !validSequence(latest.Sequence) {
		return "", types.NewMalformedError("latest ledger has invalid sequence %d", latest.Sequence)
	}
	log.Ctx(ctx).Info().Int64("sequence", latest.Sequence).
		Msg("no cursor and no start ledger configured, starting from the latest ledger")
	return LedgerPagingToken(uint32(latest.Sequence) - 1), nil
}

func validSequence(sequence int64) bool {
	return sequence > 0 && sequence <= int64(^uint32(0))
}

// classify maps a client error onto the ingestion error kinds.
func classify(err *types.Error) error {
	switch {
	case err.ErrorCode == types.InvalidResponse:
		return types.NewKindError(types.MalformedUpstreamData, err)
	case err.StatusCode >= http.StatusInternalServerError,
		err.StatusCode == http.StatusTooManyRequests,
		err.StatusCode == http.StatusRequestTimeout,
		// Horizon nodes behind a load balancer can lag behind each other
		err.StatusCode == http.StatusNotFound:
		return types.NewTransientError(err)
	default:
		return types.NewKindError(types.MalformedUpstreamData, fmt.Errorf("unexpected horizon response: %w", err))
	}
}
