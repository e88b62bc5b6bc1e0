package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-insights/ledger-stream-service/internal/clients/horizon"
	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/db"
	"github.com/stellar-insights/ledger-stream-service/internal/deadletter"
	"github.com/stellar-insights/ledger-stream-service/internal/events"
	"github.com/stellar-insights/ledger-stream-service/internal/stream/protocol"
	"github.com/stellar-insights/ledger-stream-service/internal/types"
)

const (
	sourceAccount = "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"
	destAccount   = "GBRPYHIL2CI3FNQ4BXLFMNDLFJUNPU2HY3ZMFSHONUCEOASW7QC7OX2H"
	usdcIssuer    = "GDUKMGUGDZQK6YHYA5Z6AY2G4XDSZPSZ3SW5UN3ARVMO6QSRDWP5YLEX"
)

type fakeStore struct {
	mu           sync.Mutex
	cursor       types.Cursor
	ledgers      map[uint32]types.Ledger
	transactions map[string]types.Transaction
	payments     map[string]types.Payment
	operations   []string

	failSaves  int
	advanceErr error
	// saveGate, when set, blocks SaveLedgerUnit until it is closed
	saveGate    chan struct{}
	saveStarted chan struct{}
}

func newFakeStore(lastSequence uint32) *fakeStore {
	return &fakeStore{
		cursor:       types.Cursor{LastSequence: lastSequence},
		ledgers:      make(map[uint32]types.Ledger),
		transactions: make(map[string]types.Transaction),
		payments:     make(map[string]types.Payment),
	}
}

func (s *fakeStore) GetCursor(context.Context) (*types.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cursor := s.cursor
	return &cursor, nil
}

func (s *fakeStore) AdvanceCursor(_ context.Context, sequence uint32, pagingToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.advanceErr != nil {
		err := s.advanceErr
		s.advanceErr = nil
		return err
	}
	if sequence < s.cursor.LastSequence {
		return &db.CursorRegressionError{Current: s.cursor.LastSequence, Requested: sequence}
	}
	s.operations = append(s.operations, fmt.Sprintf("advance:%d", sequence))
	s.cursor = types.Cursor{LastSequence: sequence, PagingToken: pagingToken, UpdatedAt: time.Now()}
	return nil
}

func (s *fakeStore) SaveLedgerUnit(ctx context.Context, unit types.LedgerUnit) error {
	s.mu.Lock()
	gate, started := s.saveGate, s.saveStarted
	s.mu.Unlock()
	if gate != nil {
		close(started)
		<-gate
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveGate = nil
	if s.failSaves > 0 {
		s.failSaves--
		s.operations = append(s.operations, fmt.Sprintf("save-failed:%d", unit.Ledger.Sequence))
		return errors.New("connection reset by peer")
	}
	s.operations = append(s.operations, fmt.Sprintf("save:%d", unit.Ledger.Sequence))
	s.ledgers[unit.Ledger.Sequence] = unit.Ledger
	for _, tx := range unit.Transactions {
		s.transactions[tx.Hash] = tx
	}
	for _, p := range unit.Payments {
		s.payments[p.ID] = p
	}
	return nil
}

func (s *fakeStore) lastSequence() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor.LastSequence
}

type fakeFetcher struct {
	mu        sync.Mutex
	ledgers   []horizon.RawLedger
	batchSize int
	// redeliver ignores the cursor and always returns every ledger
	redeliver bool
	errs      []error
	calls     int
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) FetchNext(_ context.Context, cursor types.Cursor) (*horizon.RawBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	batch := &horizon.RawBatch{}
	for _, ledger := range f.ledgers {
		if !f.redeliver && uint32(ledger.Ledger.Sequence) <= cursor.LastSequence {
			continue
		}
		if len(batch.Ledgers) == f.batchSize {
			break
		}
		batch.Ledgers = append(batch.Ledgers, ledger)
	}
	return batch, nil
}

type fakeDeadLetter struct {
	mu       sync.Mutex
	receipts []string
}

func (d *fakeDeadLetter) SaveUnprocessableMessage(_ context.Context, kind deadletter.MessageKind, _, receipt, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.receipts = append(d.receipts, string(kind)+"|"+receipt)
	return nil
}

func rawLedger(sequence uint32) horizon.RawLedger {
	return horizon.RawLedger{
		Ledger: horizon.LedgerRecord{
			ID:                         fmt.Sprintf("l%d", sequence),
			PagingToken:                horizon.LedgerPagingToken(sequence),
			Hash:                       fmt.Sprintf("hash-%d", sequence),
			Sequence:                   int64(sequence),
			SuccessfulTransactionCount: 1,
			OperationCount:             1,
			ClosedAt:                   time.Date(2024, 5, 1, 10, 0, int(sequence%60), 0, time.UTC),
		},
		Transactions: []horizon.TransactionRecord{{
			ID:             fmt.Sprintf("tx%d", sequence),
			Hash:           fmt.Sprintf("tx%d", sequence),
			Ledger:         int64(sequence),
			Successful:     true,
			SourceAccount:  sourceAccount,
			FeeCharged:     json.Number("100"),
			OperationCount: 1,
		}},
		Payments: []horizon.PaymentRecord{{
			ID:                    fmt.Sprintf("op%d", sequence),
			Type:                  opPathPaymentStrictSend,
			TransactionHash:       fmt.Sprintf("tx%d", sequence),
			TransactionSuccessful: true,
			SourceAccount:         sourceAccount,
			From:                  sourceAccount,
			To:                    destAccount,
			AssetType:             "credit_alphanum4",
			AssetCode:             "USDC",
			AssetIssuer:           usdcIssuer,
			Amount:                "10.5000000",
			SourceAssetType:       assetTypeNative,
		}},
	}
}

func testIngestionConfig() *config.IngestionConfig {
	return &config.IngestionConfig{
		BatchSize:       10,
		PollInterval:    5 * time.Millisecond,
		MaxRetries:      3,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      4 * time.Millisecond,
		RetryCoolDown:   10 * time.Millisecond,
		UnitTimeout:     time.Second,
		MalformedPolicy: config.MalformedHalt,
		EventBufferSize: 64,
	}
}

// runUntil runs the loop until the cursor reaches target, then cancels it.
func runUntil(t *testing.T, loop *Loop, store *fakeStore, target uint32) error {
	return runUntilCondition(t, loop, func() bool { return store.lastSequence() >= target })
}

func runUntilCondition(t *testing.T, loop *Loop, condition func() bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, condition, 2*time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("ingestion loop did not stop")
		return nil
	}
}

func TestLoopIngestsBatchAndAdvancesCursor(t *testing.T) {
	store := newFakeStore(100)
	fetcher := &fakeFetcher{ledgers: []horizon.RawLedger{rawLedger(101), rawLedger(102)}, batchSize: 10}
	loop := NewLoop(store, fetcher, nil, testIngestionConfig(), events.Rules{}, nil)

	require.NoError(t, runUntil(t, loop, store, 102))

	assert.Len(t, store.ledgers, 2)
	assert.Contains(t, store.ledgers, uint32(101))
	assert.Contains(t, store.ledgers, uint32(102))
	assert.Equal(t, uint32(102), store.cursor.LastSequence)
	assert.Equal(t, horizon.LedgerPagingToken(102), store.cursor.PagingToken)
	assert.Equal(t, []string{"save:101", "advance:101", "save:102", "advance:102"}, store.operations)
	assert.Equal(t, Stopped, loop.State())

	// redelivering 101 afterwards changes nothing
	fetcher.mu.Lock()
	fetcher.ledgers = []horizon.RawLedger{rawLedger(101)}
	fetcher.redeliver = true
	fetcher.calls = 0
	fetcher.mu.Unlock()
	loop = NewLoop(store, fetcher, nil, testIngestionConfig(), events.Rules{}, nil)
	require.NoError(t, runUntilCondition(t, loop, func() bool { return fetcher.callCount() >= 3 }))
	assert.Len(t, store.ledgers, 2)
	assert.Len(t, store.transactions, 2)
	assert.Len(t, store.payments, 2)
	assert.Equal(t, uint32(102), store.cursor.LastSequence)
	assert.Len(t, store.operations, 4)
}

func TestLoopRetriesStorageFailuresWithoutAdvancing(t *testing.T) {
	store := newFakeStore(100)
	store.failSaves = 4
	fetcher := &fakeFetcher{ledgers: []horizon.RawLedger{rawLedger(101)}, batchSize: 10}
	loop := NewLoop(store, fetcher, nil, testIngestionConfig(), events.Rules{}, nil)

	require.NoError(t, runUntil(t, loop, store, 101))

	assert.Equal(t, []string{
		"save-failed:101", "save-failed:101", "save-failed:101", "save-failed:101",
		"save:101", "advance:101",
	}, store.operations)
}

func TestLoopReplaysUnitAfterCrashBeforeAdvance(t *testing.T) {
	store := newFakeStore(100)
	store.advanceErr = types.NewFatalError(errors.New("process crashed"))
	fetcher := &fakeFetcher{ledgers: []horizon.RawLedger{rawLedger(101), rawLedger(102)}, batchSize: 10}

	loop := NewLoop(store, fetcher, nil, testIngestionConfig(), events.Rules{}, nil)
	err := loop.Run(context.Background())
	require.True(t, types.IsFatal(err))
	assert.Equal(t, uint32(100), store.lastSequence())
	assert.Len(t, store.ledgers, 1)

	// restart
	loop = NewLoop(store, fetcher, nil, testIngestionConfig(), events.Rules{}, nil)
	require.NoError(t, runUntil(t, loop, store, 102))
	assert.Len(t, store.ledgers, 2)
	assert.Len(t, store.payments, 2)
	assert.Equal(t, []string{"save:101", "save:101", "advance:101", "save:102", "advance:102"}, store.operations)
}

func TestLoopHaltsOnSequenceGap(t *testing.T) {
	store := newFakeStore(100)
	fetcher := &fakeFetcher{ledgers: []horizon.RawLedger{rawLedger(101), rawLedger(103)}, batchSize: 10}
	loop := NewLoop(store, fetcher, nil, testIngestionConfig(), events.Rules{}, nil)

	err := loop.Run(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsFatal(err))
	assert.Contains(t, err.Error(), "gap")
	// nothing of the batch is written, the gap is detected before persisting
	assert.Equal(t, uint32(100), store.lastSequence())
	assert.Empty(t, store.ledgers)
}

func TestLoopRetriesTransientFetchErrors(t *testing.T) {
	store := newFakeStore(100)
	fetcher := &fakeFetcher{
		ledgers:   []horizon.RawLedger{rawLedger(101)},
		batchSize: 10,
		errs: []error{
			types.NewTransientError(errors.New("503")),
			types.NewTransientError(errors.New("timeout")),
			types.NewTransientError(errors.New("reset")),
			types.NewTransientError(errors.New("429")),
		},
	}
	loop := NewLoop(store, fetcher, nil, testIngestionConfig(), events.Rules{}, nil)

	require.NoError(t, runUntil(t, loop, store, 101))
	assert.Empty(t, fetcher.errs)
}

func TestLoopEscalatesRepeatedMalformedResponses(t *testing.T) {
	store := newFakeStore(100)
	fetcher := &fakeFetcher{batchSize: 10}
	for i := 0; i < 3; i++ {
		fetcher.errs = append(fetcher.errs, types.NewMalformedError("bad page %d", i))
	}
	loop := NewLoop(store, fetcher, nil, testIngestionConfig(), events.Rules{}, nil)

	err := loop.Run(context.Background())
	assert.True(t, types.IsFatal(err))
}

func TestLoopMalformedPolicy(t *testing.T) {
	malformed := rawLedger(101)
	malformed.Payments = append(malformed.Payments, horizon.PaymentRecord{
		ID: "bad-op", Type: opPayment, TransactionHash: "tx101",
		From: sourceAccount, To: destAccount, AssetType: assetTypeNative, Amount: "1.123456789",
	})

	t.Run("halt", func(t *testing.T) {
		store := newFakeStore(100)
		fetcher := &fakeFetcher{ledgers: []horizon.RawLedger{malformed}, batchSize: 10}
		loop := NewLoop(store, fetcher, &fakeDeadLetter{}, testIngestionConfig(), events.Rules{}, nil)

		err := loop.Run(context.Background())
		assert.True(t, types.IsFatal(err))
		assert.Equal(t, uint32(100), store.lastSequence())
		assert.Empty(t, store.ledgers)
	})

	t.Run("skip", func(t *testing.T) {
		store := newFakeStore(100)
		fetcher := &fakeFetcher{ledgers: []horizon.RawLedger{malformed, rawLedger(102)}, batchSize: 10}
		deadLetter := &fakeDeadLetter{}
		cfg := testIngestionConfig()
		cfg.MalformedPolicy = config.MalformedSkip
		loop := NewLoop(store, fetcher, deadLetter, cfg, events.Rules{}, nil)

		require.NoError(t, runUntil(t, loop, store, 102))
		assert.Len(t, store.ledgers, 2)
		assert.Contains(t, store.payments, "op101")
		assert.NotContains(t, store.payments, "bad-op")
		assert.Equal(t, []string{"malformed_record|ledger:101:op:bad-op"}, deadLetter.receipts)
	})
}

func TestLoopSkipsEmptyMalformedLedgerWhenConfigured(t *testing.T) {
	empty := horizon.RawLedger{Ledger: horizon.LedgerRecord{ID: "l101", Sequence: 101}}

	store := newFakeStore(100)
	fetcher := &fakeFetcher{ledgers: []horizon.RawLedger{empty, rawLedger(102)}, batchSize: 10}
	loop := NewLoop(store, fetcher, &fakeDeadLetter{}, testIngestionConfig(), events.Rules{}, nil)
	assert.True(t, types.IsFatal(loop.Run(context.Background())))

	deadLetter := &fakeDeadLetter{}
	cfg := testIngestionConfig()
	cfg.SkipEmptyMalformedLedgers = true
	loop = NewLoop(store, fetcher, deadLetter, cfg, events.Rules{}, nil)
	require.NoError(t, runUntil(t, loop, store, 102))
	assert.NotContains(t, store.ledgers, uint32(101))
	assert.Contains(t, store.ledgers, uint32(102))
	assert.Equal(t, []string{"malformed_record|ledger:101"}, deadLetter.receipts)
	assert.Equal(t, []string{"advance:101", "save:102", "advance:102"}, store.operations)
}

func TestLoopCompletesInProgressUnitOnShutdown(t *testing.T) {
	store := newFakeStore(100)
	store.saveGate = make(chan struct{})
	store.saveStarted = make(chan struct{})
	fetcher := &fakeFetcher{ledgers: []horizon.RawLedger{rawLedger(101), rawLedger(102)}, batchSize: 10}
	loop := NewLoop(store, fetcher, nil, testIngestionConfig(), events.Rules{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	<-store.saveStarted
	assert.Equal(t, Persisting, loop.State())
	cancel()
	close(store.saveGate)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ingestion loop did not drain")
	}
	// 101 was in progress and is fully acknowledged, 102 is never started
	assert.Equal(t, uint32(101), store.lastSequence())
	assert.Equal(t, []string{"save:101", "advance:101"}, store.operations)
	assert.Equal(t, Stopped, loop.State())
}

func TestLoopHandsDerivedEventsToBroadcaster(t *testing.T) {
	store := newFakeStore(100)
	fetcher := &fakeFetcher{ledgers: []horizon.RawLedger{rawLedger(101)}, batchSize: 10}
	output := make(chan events.Event, 16)
	loop := NewLoop(store, fetcher, nil, testIngestionConfig(), events.Rules{MinSampleSize: 1}, output)

	require.NoError(t, runUntilCondition(t, loop, func() bool { return len(output) >= 2 }))

	payment := <-output
	assert.Equal(t, protocol.NewPayment, payment.Type())
	assert.Equal(t, "USDC-XLM", payment.Pair)
	update := <-output
	assert.Equal(t, protocol.CorridorUpdate, update.Type())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "persisting", Persisting.String())
	assert.Equal(t, "draining", Draining.String())
	assert.Equal(t, "state(42)", State(42).String())
}
