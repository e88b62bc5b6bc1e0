package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/cache"
	"github.com/stellar-insights/ledger-stream-service/internal/db"
	"github.com/stellar-insights/ledger-stream-service/internal/db/model"
	"github.com/stellar-insights/ledger-stream-service/internal/events"
	"github.com/stellar-insights/ledger-stream-service/internal/stream/protocol"
)

type AssetMetricsPublic struct {
	AssetCode    string   `json:"asset_code"`
	AssetIssuer  string   `json:"asset_issuer"`
	PaymentCount int64    `json:"payment_count"`
	SuccessRate  *float64 `json:"success_rate,omitempty"`
	Volume       string   `json:"volume"`
	WindowStart  int64    `json:"window_start"`
}

type AssetHoldersPublic struct {
	AssetCode         string `json:"asset_code"`
	AssetIssuer       string `json:"asset_issuer"`
	ReceivingAccounts int64  `json:"receiving_accounts"`
	SendingAccounts   int64  `json:"sending_accounts"`
	WindowStart       int64  `json:"window_start"`
}

// SyncAssetMetrics caches per-asset payment metrics over the aggregation
// window. It returns a health alert when the newest ingested ledger is older
// than the allowed ingestion lag.
func (s *Services) SyncAssetMetrics(ctx context.Context, now time.Time) ([]events.Event, error) {
	since := now.Add(-s.cfg.Jobs.AggregationWindow)
	stats, err := s.DbClient.AggregateAssetPayments(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate asset payments: %w", err)
	}

	ttl := s.aggregateTTL()
	for _, stat := range stats {
		metrics := toAssetMetricsPublic(stat, since)
		key := cache.AssetMetricsKey(stat.AssetCode, stat.AssetIssuer)
		if err := cache.SetJSON(ctx, s.Cache, key, metrics, ttl); err != nil {
			return nil, fmt.Errorf("failed to cache %s: %w", key, err)
		}
	}
	log.Ctx(ctx).Debug().Int("assets", len(stats)).Msg("synced asset metrics")

	alert, err := s.checkIngestionLag(ctx, now)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, nil
	}
	return []events.Event{*alert}, nil
}

func toAssetMetricsPublic(stat model.AssetPaymentStats, since time.Time) AssetMetricsPublic {
	metrics := AssetMetricsPublic{
		AssetCode:    stat.AssetCode,
		AssetIssuer:  stat.AssetIssuer,
		PaymentCount: stat.PaymentCount,
		Volume:       stat.Volume.String(),
		WindowStart:  since.Unix(),
	}
	if rate, ok := stat.SuccessRate(); ok {
		rounded := math.Round(rate*100) / 100
		metrics.SuccessRate = &rounded
	}
	return metrics
}

func (s *Services) checkIngestionLag(ctx context.Context, now time.Time) (*events.Event, error) {
	latest, err := s.DbClient.FindLatestLedger(ctx)
	if err != nil {
		if db.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find latest ledger: %w", err)
	}
	lag := now.Sub(latest.CloseTime)
	if lag <= s.cfg.Jobs.MaxIngestionLag {
		return nil, nil
	}
	log.Ctx(ctx).Warn().Uint32("sequence", latest.Sequence).Dur("lag", lag).Msg("ingestion is lagging")
	message := fmt.Sprintf("ingestion is %s behind, last ledger %d", lag.Truncate(time.Second), latest.Sequence)
	return &events.Event{Message: protocol.NewHealthAlert("", protocol.SeverityError, message, now)}, nil
}

// AggregateTrustlines caches the distinct receiving and sending accounts per
// asset over the aggregation window, a proxy for active trustlines.
func (s *Services) AggregateTrustlines(ctx context.Context, now time.Time) (int, error) {
	since := now.Add(-s.cfg.Jobs.AggregationWindow)
	holders, err := s.DbClient.AggregateAssetHolders(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate asset holders: %w", err)
	}

	ttl := s.aggregateTTL()
	for _, holder := range holders {
		key := cache.AssetHoldersKey(holder.AssetCode, holder.AssetIssuer)
		public := AssetHoldersPublic{
			AssetCode:         holder.AssetCode,
			AssetIssuer:       holder.AssetIssuer,
			ReceivingAccounts: holder.ReceivingAccounts,
			SendingAccounts:   holder.SendingAccounts,
			WindowStart:       since.Unix(),
		}
		if err := cache.SetJSON(ctx, s.Cache, key, public, ttl); err != nil {
			return 0, fmt.Errorf("failed to cache %s: %w", key, err)
		}
	}
	return len(holders), nil
}

// InvalidateSnapshots drops the cached corridor and anchor snapshots. The
// broadcaster writes them again on the next derived event.
func (s *Services) InvalidateSnapshots(ctx context.Context) (int64, error) {
	var total int64
	for _, pattern := range []string{cache.CorridorKeyPattern, cache.AnchorKeyPattern} {
		removed, err := s.Cache.InvalidatePattern(ctx, pattern)
		if err != nil {
			return total, fmt.Errorf("failed to invalidate %s: %w", pattern, err)
		}
		total += removed
	}
	return total, nil
}

// Aggregates are refreshed on every run, so they only need to outlive the
// longest aggregation interval.
func (s *Services) aggregateTTL() time.Duration {
	ttl := s.cfg.Cache.DefaultTTL
	for _, job := range []int{s.cfg.Jobs.MetricsSync.Interval, s.cfg.Jobs.TrustlineAggregation.Interval} {
		if interval := 2 * time.Duration(job) * time.Second; interval > ttl {
			ttl = interval
		}
	}
	return ttl
}
