package horizon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	baseclient "github.com/stellar-insights/ledger-stream-service/internal/clients/base"
	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/types"
)

type LedgerRecord struct {
	ID                         string    `json:"id"`
	PagingToken                string    `json:"paging_token"`
	Hash                       string    `json:"hash"`
	Sequence                   int64     `json:"sequence"`
	SuccessfulTransactionCount int32     `json:"successful_transaction_count"`
	FailedTransactionCount     *int32    `json:"failed_transaction_count"`
	OperationCount             int32     `json:"operation_count"`
	ClosedAt                   time.Time `json:"closed_at"`
}

// TransactionCount is the number of transactions in the ledger, failed ones included.
func (l *LedgerRecord) TransactionCount() int32 {
	count := l.SuccessfulTransactionCount
	if l.FailedTransactionCount != nil {
		count += *l.FailedTransactionCount
	}
	return count
}

type TransactionRecord struct {
	ID             string      `json:"id"`
	PagingToken    string      `json:"paging_token"`
	Successful     bool        `json:"successful"`
	Hash           string      `json:"hash"`
	Ledger         int64       `json:"ledger"`
	SourceAccount  string      `json:"source_account"`
	FeeCharged     json.Number `json:"fee_charged"`
	OperationCount int32       `json:"operation_count"`
}

// PaymentRecord is the flattened union of the operation types returned by
// the payments endpoint: payment, path payments, create_account and account_merge.
type PaymentRecord struct {
	ID                    string `json:"id"`
	PagingToken           string `json:"paging_token"`
	Type                  string `json:"type"`
	TransactionHash       string `json:"transaction_hash"`
	TransactionSuccessful bool   `json:"transaction_successful"`
	SourceAccount         string `json:"source_account"`

	From        string `json:"from"`
	To          string `json:"to"`
	AssetType   string `json:"asset_type"`
	AssetCode   string `json:"asset_code"`
	AssetIssuer string `json:"asset_issuer"`
	Amount      string `json:"amount"`

	SourceAssetType   string `json:"source_asset_type"`
	SourceAssetCode   string `json:"source_asset_code"`
	SourceAssetIssuer string `json:"source_asset_issuer"`
	SourceAmount      string `json:"source_amount"`

	Funder          string `json:"funder"`
	Account         string `json:"account"`
	StartingBalance string `json:"starting_balance"`
	Into            string `json:"into"`
}

type recordsPage[T any] struct {
	Embedded struct {
		Records []T `json:"records"`
	} `json:"_embedded"`
}

type HorizonClient struct {
	config        *config.HorizonConfig
	httpClient    *http.Client
	defaultHeader map[string]string
}

func NewHorizonClient(config *config.HorizonConfig) *HorizonClient {
	httpClient := &http.Client{}
	defaultHeader := map[string]string{
		"Accept": "application/hal+json",
	}
	return &HorizonClient{
		config,
		httpClient,
		defaultHeader,
	}
}

// Necessary for the BaseClient interface
func (c *HorizonClient) GetBaseURL() string {
	return strings.TrimRight(c.config.Url, "/")
}

func (c *HorizonClient) GetDefaultRequestTimeout() int {
	return c.config.RequestTimeout
}

func (c *HorizonClient) GetHttpClient() *http.Client {
	return c.httpClient
}

func (c *HorizonClient) GetLatestLedger(ctx context.Context) (*LedgerRecord, *types.Error) {
	query := url.Values{}
	query.Set("order", "desc")
	query.Set("limit", "1")
	records, err := fetchPage[LedgerRecord](ctx, c, "/ledgers", query)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, types.NewErrorWithMsg(
			http.StatusBadGateway, types.InvalidResponse, "horizon returned no ledgers",
		)
	}
	return &records[0], nil
}

func (c *HorizonClient) GetLedgers(
	ctx context.Context, pagingToken string, limit int,
) ([]LedgerRecord, *types.Error) {
	query := url.Values{}
	query.Set("order", "asc")
	query.Set("limit", strconv.Itoa(limit))
	if pagingToken != "" {
		query.Set("cursor", pagingToken)
	}
	return fetchPage[LedgerRecord](ctx, c, "/ledgers", query)
}

func (c *HorizonClient) GetLedgerTransactions(
	ctx context.Context, sequence uint32,
) ([]TransactionRecord, *types.Error) {
	path := fmt.Sprintf("/ledgers/%d/transactions", sequence)
	return fetchAll(ctx, c, path, func(r TransactionRecord) string { return r.PagingToken })
}

func (c *HorizonClient) GetLedgerPayments(
	ctx context.Context, sequence uint32,
) ([]PaymentRecord, *types.Error) {
	path := fmt.Sprintf("/ledgers/%d/payments", sequence)
	return fetchAll(ctx, c, path, func(r PaymentRecord) string { return r.PagingToken })
}

func fetchPage[T any](
	ctx context.Context, c *HorizonClient, path string, query url.Values,
) ([]T, *types.Error) {
	opts := &baseclient.BaseClientOptions{
		Path:    path,
		Query:   query,
		Headers: c.defaultHeader,
	}
	resp, err := baseclient.SendRequest[any, recordsPage[T]](
		ctx, c, http.MethodGet, opts, nil,
	)
	if err != nil {
		return nil, err
	}
	return resp.Embedded.Records, nil
}

// fetchAll follows the paging tokens of a per-ledger collection until a short page.
func fetchAll[T any](
	ctx context.Context, c *HorizonClient, path string, pagingToken func(T) string,
) ([]T, *types.Error) {
	var all []T
	cursor := ""
	for {
		query := url.Values{}
		query.Set("order", "asc")
		query.Set("limit", strconv.Itoa(c.config.PageLimit))
		query.Set("include_failed", "true")
		if cursor != "" {
			query.Set("cursor", cursor)
		}
		records, err := fetchPage[T](ctx, c, path, query)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
		if len(records) < c.config.PageLimit {
			return all, nil
		}
		next := pagingToken(records[len(records)-1])
		if next == "" || next == cursor {
			return nil, types.NewErrorWithMsg(
				http.StatusBadGateway, types.InvalidResponse,
				fmt.Sprintf("horizon returned a full page without a usable paging token at %s", path),
			)
		}
		cursor = next
	}
}

// LedgerPagingToken returns the paging token Horizon assigns to a ledger.
// Ledger ids are total-order ids with only the ledger part set.
func LedgerPagingToken(sequence uint32) string {
	return strconv.FormatInt(int64(sequence)<<32, 10)
}
