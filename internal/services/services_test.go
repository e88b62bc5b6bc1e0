package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/db"
	"github.com/stellar-insights/ledger-stream-service/internal/db/model"
	"github.com/stellar-insights/ledger-stream-service/internal/stream/protocol"
	"github.com/stellar-insights/ledger-stream-service/internal/types"
	testmock "github.com/stellar-insights/ledger-stream-service/tests/mocks"
)

func testConfig() *config.Config {
	return &config.Config{
		Cache: config.CacheConfig{DefaultTTL: time.Minute},
		Jobs: config.JobsConfig{
			MetricsSync:          config.JobConfig{Enabled: true, Interval: 300},
			TrustlineAggregation: config.JobConfig{Enabled: true, Interval: 60},
			AggregationWindow:    time.Hour,
			MaxIngestionLag:      5 * time.Minute,
		},
	}
}

func TestSyncAssetMetricsCachesStatsAndReportsLag(t *testing.T) {
	dbClient := testmock.NewDBClient(t)
	cacheClient := testmock.NewCache(t)
	svc := NewWithClients(testConfig(), dbClient, cacheClient, testmock.NewDeadLetterClient(t))

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	dbClient.On("AggregateAssetPayments", mock.Anything, now.Add(-time.Hour)).Return([]model.AssetPaymentStats{
		{AssetCode: "USDC", AssetIssuer: "GISSUER", PaymentCount: 3, SuccessfulCount: 2, FailedCount: 1, Volume: decimal.NewFromInt(30)},
	}, nil)
	cacheClient.On("Set", mock.Anything, "asset_metrics:USDC:GISSUER",
		`{"asset_code":"USDC","asset_issuer":"GISSUER","payment_count":3,"success_rate":66.67,"volume":"30","window_start":1714561200}`,
		10*time.Minute,
	).Return(nil)
	dbClient.On("FindLatestLedger", mock.Anything).Return(&types.Ledger{Sequence: 101, CloseTime: now.Add(-10 * time.Minute)}, nil)

	alerts, err := svc.SyncAssetMetrics(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	alert, ok := alerts[0].Message.(*protocol.HealthAlertMessage)
	require.True(t, ok)
	assert.Equal(t, protocol.SeverityError, alert.Severity)
	assert.Empty(t, alerts[0].Pair)
	assert.Contains(t, alert.Message, "last ledger 101")
}

func TestSyncAssetMetricsWithoutLedgers(t *testing.T) {
	dbClient := testmock.NewDBClient(t)
	svc := NewWithClients(testConfig(), dbClient, testmock.NewCache(t), testmock.NewDeadLetterClient(t))

	dbClient.On("AggregateAssetPayments", mock.Anything, mock.Anything).Return(nil, nil)
	dbClient.On("FindLatestLedger", mock.Anything).Return(nil, &db.NotFoundError{Key: "ledgers"})

	alerts, err := svc.SyncAssetMetrics(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestSyncAssetMetricsFailsOnStorageError(t *testing.T) {
	dbClient := testmock.NewDBClient(t)
	svc := NewWithClients(testConfig(), dbClient, testmock.NewCache(t), testmock.NewDeadLetterClient(t))
	dbClient.On("AggregateAssetPayments", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	_, err := svc.SyncAssetMetrics(context.Background(), time.Now())
	assert.ErrorContains(t, err, "connection reset")
}

func TestAggregateTrustlines(t *testing.T) {
	dbClient := testmock.NewDBClient(t)
	cacheClient := testmock.NewCache(t)
	svc := NewWithClients(testConfig(), dbClient, cacheClient, testmock.NewDeadLetterClient(t))

	dbClient.On("AggregateAssetHolders", mock.Anything, mock.Anything).Return([]model.AssetHolderStats{
		{AssetCode: "USDC", AssetIssuer: "GA", ReceivingAccounts: 4, SendingAccounts: 2},
		{AssetCode: "XLM", ReceivingAccounts: 9, SendingAccounts: 7},
	}, nil)
	cacheClient.On("Set", mock.Anything, "asset_holders:USDC:GA", mock.Anything, mock.Anything).Return(nil)
	cacheClient.On("Set", mock.Anything, "asset_holders:XLM:", mock.Anything, mock.Anything).Return(nil)

	count, err := svc.AggregateTrustlines(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInvalidateSnapshots(t *testing.T) {
	cacheClient := testmock.NewCache(t)
	svc := NewWithClients(testConfig(), testmock.NewDBClient(t), cacheClient, testmock.NewDeadLetterClient(t))

	cacheClient.On("InvalidatePattern", mock.Anything, "corridor:*").Return(int64(3), nil)
	cacheClient.On("InvalidatePattern", mock.Anything, "anchor:*").Return(int64(1), nil)

	removed, err := svc.InvalidateSnapshots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)
}

func TestDoHealthCheck(t *testing.T) {
	dbClient := testmock.NewDBClient(t)
	cacheClient := testmock.NewCache(t)
	deadLetter := testmock.NewDeadLetterClient(t)
	svc := NewWithClients(testConfig(), dbClient, cacheClient, deadLetter)

	dbClient.On("Ping", mock.Anything).Return(nil)
	cacheClient.On("Ping", mock.Anything).Return(errors.New("redis down")).Once()
	deadLetter.On("Ping", mock.Anything).Return(nil)

	err := svc.DoHealthCheck(context.Background())
	assert.ErrorContains(t, err, "cache: redis down")

	cacheClient.On("Ping", mock.Anything).Return(nil)
	assert.NoError(t, svc.DoHealthCheck(context.Background()))
}
