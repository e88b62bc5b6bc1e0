package events

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/stream/protocol"
	"github.com/stellar-insights/ledger-stream-service/internal/types"
)

const (
	AnchorStatusGreen  = "green"
	AnchorStatusYellow = "yellow"
	AnchorStatusRed    = "red"

	greenReliability  = 98.0
	yellowReliability = 90.0
)

// Event is a derived event together with the keys the broadcaster needs to
// resolve its topics.
type Event struct {
	Message  protocol.Message
	Pair     string
	AnchorID string
}

func (e Event) Type() protocol.MessageType {
	return e.Message.MessageType()
}

type Rules struct {
	// Zero disables large payment alerts
	LargePaymentAmount  decimal.Decimal
	WarningSuccessRate  float64
	ErrorSuccessRate    float64
	CriticalSuccessRate float64
	MinSampleSize       int
	Anchors             []config.AnchorConfig
}

func NewRules(cfg *config.DerivationConfig) Rules {
	rules := Rules{
		WarningSuccessRate:  cfg.WarningSuccessRate,
		ErrorSuccessRate:    cfg.ErrorSuccessRate,
		CriticalSuccessRate: cfg.CriticalSuccessRate,
		MinSampleSize:       cfg.MinSampleSize,
		Anchors:             cfg.Anchors,
	}
	if cfg.LargePaymentAmount != "" {
		// validated when the config was loaded
		rules.LargePaymentAmount = decimal.RequireFromString(cfg.LargePaymentAmount)
	}
	return rules
}

type corridorStats struct {
	pair        string
	assetA      asset
	assetB      asset
	total       int
	successful  int
	volume      decimal.Decimal
	lastUpdated time.Time
}

type asset struct {
	code   string
	issuer string
}

// Derive computes the events of newly committed ledger units. It has no side
// effects and is deterministic: payments come first in ledger order, then one
// update per corridor in order of first appearance, then anchors in
// configuration order.
func Derive(units []types.LedgerUnit, rules Rules) []Event {
	var derived []Event
	corridors := make(map[string]*corridorStats)
	var corridorOrder []string

	for _, unit := range units {
		closeTime := unit.Ledger.CloseTime
		for _, payment := range unit.Payments {
			pair := protocol.CorridorPair(payment.SourceAssetCode, payment.AssetCode)
			derived = append(derived, Event{
				Pair: pair,
				Message: &protocol.NewPaymentMessage{
					Type:           protocol.NewPayment,
					CorridorID:     pair,
					PaymentID:      payment.ID,
					LedgerSequence: payment.LedgerSequence,
					AssetCode:      payment.AssetCode,
					Amount:         payment.Amount,
					Successful:     payment.Successful,
					Timestamp:      closeTime,
				},
			})

			if !rules.LargePaymentAmount.IsZero() && payment.Amount.GreaterThanOrEqual(rules.LargePaymentAmount) {
				derived = append(derived, Event{
					Pair: pair,
					Message: protocol.NewHealthAlert(pair, protocol.SeverityInfo, fmt.Sprintf(
						"large payment of %s %s in corridor %s", payment.Amount.String(), payment.AssetCode, pair,
					), closeTime),
				})
			}

			stats, ok := corridors[pair]
			if !ok {
				stats = newCorridorStats(pair, payment)
				corridors[pair] = stats
				corridorOrder = append(corridorOrder, pair)
			}
			stats.add(payment, closeTime)
		}
	}

	for _, pair := range corridorOrder {
		stats := corridors[pair]
		successRate := stats.successRate()
		healthScore := healthScore(successRate, stats.total, rules.MinSampleSize)
		lastUpdated := stats.lastUpdated
		volume := stats.volume
		derived = append(derived, Event{
			Pair: pair,
			Message: &protocol.CorridorUpdateMessage{
				Type:         protocol.CorridorUpdate,
				CorridorKey:  pair,
				AssetACode:   stats.assetA.code,
				AssetAIssuer: stats.assetA.issuer,
				AssetBCode:   stats.assetB.code,
				AssetBIssuer: stats.assetB.issuer,
				SuccessRate:  &successRate,
				HealthScore:  &healthScore,
				PaymentCount: stats.total,
				Volume:       &volume,
				LastUpdated:  &lastUpdated,
			},
		})

		if severity, breached := rules.severityFor(successRate, stats.total); breached {
			derived = append(derived, Event{
				Pair: pair,
				Message: protocol.NewHealthAlert(pair, severity, fmt.Sprintf(
					"corridor %s success rate dropped to %.2f%% over %d payments", pair, successRate, stats.total,
				), lastUpdated),
			})
		}
	}

	return append(derived, deriveAnchors(units, rules.Anchors)...)
}

func newCorridorStats(pair string, payment types.Payment) *corridorStats {
	a := asset{code: payment.SourceAssetCode, issuer: payment.SourceAssetIssuer}
	b := asset{code: payment.AssetCode, issuer: payment.AssetIssuer}
	if a.code > b.code || (a.code == b.code && a.issuer > b.issuer) {
		a, b = b, a
	}
	return &corridorStats{pair: pair, assetA: a, assetB: b}
}

func (s *corridorStats) add(payment types.Payment, at time.Time) {
	s.total++
	if payment.Successful {
		s.successful++
	}
	s.volume = s.volume.Add(payment.Amount)
	if at.After(s.lastUpdated) {
		s.lastUpdated = at
	}
}

func (s *corridorStats) successRate() float64 {
	return SuccessRate(s.successful, s.total)
}

// SuccessRate returns successful/total as a percentage rounded to two decimals.
func SuccessRate(successful, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(successful) / float64(total) * 100)
}

// healthScore discounts the success rate of corridors with few payments.
func healthScore(successRate float64, total, minSampleSize int) float64 {
	confidence := 1.0
	if minSampleSize > 0 && total < minSampleSize {
		confidence = float64(total) / float64(minSampleSize)
	}
	return round2(successRate * confidence)
}

func (r Rules) severityFor(successRate float64, total int) (protocol.Severity, bool) {
	if total < r.MinSampleSize {
		return "", false
	}
	switch {
	case successRate < r.CriticalSuccessRate:
		return protocol.SeverityCritical, true
	case successRate < r.ErrorSuccessRate:
		return protocol.SeverityError, true
	case successRate < r.WarningSuccessRate:
		return protocol.SeverityWarning, true
	}
	return "", false
}

func deriveAnchors(units []types.LedgerUnit, anchors []config.AnchorConfig) []Event {
	var derived []Event
	for _, anchor := range anchors {
		accounts := make(map[string]struct{}, len(anchor.Accounts))
		for _, account := range anchor.Accounts {
			accounts[account] = struct{}{}
		}

		total, successful := 0, 0
		for _, unit := range units {
			for _, payment := range unit.Payments {
				_, fromAnchor := accounts[payment.SourceAccount]
				_, toAnchor := accounts[payment.Destination]
				if !fromAnchor && !toAnchor {
					continue
				}
				total++
				if payment.Successful {
					successful++
				}
			}
		}
		if total == 0 {
			continue
		}

		reliability := SuccessRate(successful, total)
		name := anchor.Name
		if name == "" {
			name = anchor.Id
		}
		derived = append(derived, Event{
			AnchorID: anchor.Id,
			Message: &protocol.AnchorUpdateMessage{
				Type:             protocol.AnchorUpdate,
				AnchorID:         anchor.Id,
				Name:             name,
				ReliabilityScore: reliability,
				Status:           AnchorStatus(reliability),
			},
		})
	}
	return derived
}

func AnchorStatus(reliability float64) string {
	switch {
	case reliability >= greenReliability:
		return AnchorStatusGreen
	case reliability >= yellowReliability:
		return AnchorStatusYellow
	}
	return AnchorStatusRed
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
