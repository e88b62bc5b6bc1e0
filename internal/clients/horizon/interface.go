package horizon

import (
	"context"
	"net/http"

	"github.com/stellar-insights/ledger-stream-service/internal/types"
)

type HorizonClientInterface interface {
	GetBaseURL() string
	GetDefaultRequestTimeout() int
	GetHttpClient() *http.Client
	// GetLatestLedger returns the most recently closed ledger.
	GetLatestLedger(ctx context.Context) (*LedgerRecord, *types.Error)
	/*
		GetLedgers returns up to limit ledgers closed after the given paging token,
		in ascending order.
		Refer to https://developers.stellar.org/docs/data/horizon/api-reference/list-all-ledgers
	*/
	GetLedgers(ctx context.Context, pagingToken string, limit int) ([]LedgerRecord, *types.Error)
	// GetLedgerTransactions returns every transaction of a ledger, failed ones included.
	GetLedgerTransactions(ctx context.Context, sequence uint32) ([]TransactionRecord, *types.Error)
	// GetLedgerPayments returns every payment-like operation of a ledger, failed ones included.
	GetLedgerPayments(ctx context.Context, sequence uint32) ([]PaymentRecord, *types.Error)
}
