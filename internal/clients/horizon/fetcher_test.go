package horizon

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/types"
)

const (
	ledgersPage = `{"_embedded":{"records":[
		{"id":"l101","paging_token":"433791696896","hash":"aa01","sequence":101,
		 "successful_transaction_count":1,"failed_transaction_count":0,"operation_count":1,
		 "closed_at":"2024-05-01T10:00:00Z"},
		{"id":"l102","paging_token":"438086664192","hash":"aa02","sequence":102,
		 "successful_transaction_count":0,"failed_transaction_count":1,"operation_count":1,
		 "closed_at":"2024-05-01T10:00:05Z"}]}}`
	transactionsPage = `{"_embedded":{"records":[
		{"id":"t%[1]d","paging_token":"p%[1]d","successful":true,"hash":"tx%[1]d","ledger":%[1]d,
		 "source_account":"GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN",
		 "fee_charged":"100","operation_count":1}]}}`
	paymentsPage = `{"_embedded":{"records":[
		{"id":"op%[1]d","paging_token":"op%[1]d","type":"payment","transaction_hash":"tx%[1]d",
		 "transaction_successful":true,
		 "source_account":"GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN",
		 "from":"GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN",
		 "to":"GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN",
		 "asset_type":"native","amount":"10.0000000"}]}}`
)

func newTestFetcher(t *testing.T, handler http.HandlerFunc) *Fetcher {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewHorizonClient(&config.HorizonConfig{
		Url:            server.URL,
		RequestTimeout: 2000,
		PageLimit:      200,
	})
	return NewFetcher(client, &config.IngestionConfig{BatchSize: 10, StartLedger: 101})
}

func ledgerSequence(path string) int {
	var sequence int
	_, _ = fmt.Sscanf(path, "/ledgers/%d/", &sequence)
	return sequence
}

func TestFetchNextReturnsLedgersWithTheirRecords(t *testing.T) {
	var ledgerCursor atomic.Value
	fetcher := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/ledgers":
			ledgerCursor.Store(r.URL.Query().Get("cursor"))
			assert.Equal(t, "asc", r.URL.Query().Get("order"))
			assert.Equal(t, "10", r.URL.Query().Get("limit"))
			fmt.Fprint(w, ledgersPage)
		case strings.HasSuffix(r.URL.Path, "/transactions"):
			assert.Equal(t, "true", r.URL.Query().Get("include_failed"))
			fmt.Fprintf(w, transactionsPage, ledgerSequence(r.URL.Path))
		case strings.HasSuffix(r.URL.Path, "/payments"):
			fmt.Fprintf(w, paymentsPage, ledgerSequence(r.URL.Path))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	batch, err := fetcher.FetchNext(context.Background(), types.Cursor{})
	require.NoError(t, err)
	require.Len(t, batch.Ledgers, 2)

	// start ledger 101 means the cursor points right before it
	assert.Equal(t, LedgerPagingToken(100), ledgerCursor.Load())

	for i, expected := range []int64{101, 102} {
		ledger := batch.Ledgers[i]
		assert.Equal(t, expected, ledger.Ledger.Sequence)
		require.Len(t, ledger.Transactions, 1)
		assert.Equal(t, fmt.Sprintf("tx%d", expected), ledger.Transactions[0].Hash)
		require.Len(t, ledger.Payments, 1)
		assert.Equal(t, fmt.Sprintf("op%d", expected), ledger.Payments[0].ID)
	}
	assert.Equal(t, int32(1), batch.Ledgers[1].Ledger.TransactionCount())
}

func TestFetchNextUsesCursorPagingToken(t *testing.T) {
	fetcher := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "438086664192", r.URL.Query().Get("cursor"))
		fmt.Fprint(w, `{"_embedded":{"records":[]}}`)
	})

	batch, err := fetcher.FetchNext(context.Background(), types.Cursor{LastSequence: 102, PagingToken: "438086664192"})
	require.NoError(t, err)
	assert.True(t, batch.IsEmpty())
}

func TestFetchNextDerivesTokenFromSequence(t *testing.T) {
	fetcher := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, LedgerPagingToken(102), r.URL.Query().Get("cursor"))
		fmt.Fprint(w, `{"_embedded":{"records":[]}}`)
	})

	_, err := fetcher.FetchNext(context.Background(), types.Cursor{LastSequence: 102})
	require.NoError(t, err)
}

func TestFetchNextStartsFromLatestLedgerWithoutStartLedger(t *testing.T) {
	fetcher := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("order") == "desc" {
			fmt.Fprint(w, `{"_embedded":{"records":[{"id":"l500","sequence":500,"hash":"ff"}]}}`)
			return
		}
		assert.Equal(t, LedgerPagingToken(499), r.URL.Query().Get("cursor"))
		fmt.Fprint(w, `{"_embedded":{"records":[]}}`)
	})
	fetcher.startLedger = 0

	_, err := fetcher.FetchNext(context.Background(), types.Cursor{})
	require.NoError(t, err)
}

func TestFetchNextClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   types.ErrorKind
	}{
		{"server error", http.StatusInternalServerError, "", types.TransientIO},
		{"rate limited", http.StatusTooManyRequests, "", types.TransientIO},
		{"bad request", http.StatusBadRequest, "", types.MalformedUpstreamData},
		{"undecodable body", http.StatusOK, "{not json", types.MalformedUpstreamData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			_, err := fetcher.FetchNext(context.Background(), types.Cursor{LastSequence: 1})
			require.Error(t, err)
			assert.Equal(t, tt.kind, types.KindOf(err))
		})
	}
}

func TestFetchNextRejectsInvalidSequence(t *testing.T) {
	fetcher := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"_embedded":{"records":[{"id":"bad","sequence":-4}]}}`)
	})
	_, err := fetcher.FetchNext(context.Background(), types.Cursor{LastSequence: 1})
	assert.True(t, types.IsMalformed(err))
}

func TestGetLedgerPaymentsFollowsPages(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprint(w, `{"_embedded":{"records":[{"id":"1","paging_token":"a"},{"id":"2","paging_token":"b"}]}}`)
		case "b":
			fmt.Fprint(w, `{"_embedded":{"records":[{"id":"3","paging_token":"c"}]}}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()
	client := NewHorizonClient(&config.HorizonConfig{Url: server.URL, RequestTimeout: 2000, PageLimit: 2})

	payments, err := client.GetLedgerPayments(context.Background(), 7)
	require.Nil(t, err)
	assert.Len(t, payments, 3)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLedgerPagingToken(t *testing.T) {
	assert.Equal(t, "433791696896", LedgerPagingToken(101))
	assert.Equal(t, "0", LedgerPagingToken(0))
}
