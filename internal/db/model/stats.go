package model

import "github.com/shopspring/decimal"

type AssetPaymentStats struct {
	AssetCode       string          `json:"asset_code"`
	AssetIssuer     string          `json:"asset_issuer"`
	PaymentCount    int64           `json:"payment_count"`
	SuccessfulCount int64           `json:"successful_count"`
	FailedCount     int64           `json:"failed_count"`
	Volume          decimal.Decimal `json:"volume"`
}

// SuccessRate is the percentage of payments with a known outcome that
// succeeded. It returns false when no outcome is known yet.
func (s AssetPaymentStats) SuccessRate() (float64, bool) {
	known := s.SuccessfulCount + s.FailedCount
	if known == 0 {
		return 0, false
	}
	return float64(s.SuccessfulCount) / float64(known) * 100, true
}

type AssetHolderStats struct {
	AssetCode         string `json:"asset_code"`
	AssetIssuer       string `json:"asset_issuer"`
	ReceivingAccounts int64  `json:"receiving_accounts"`
	SendingAccounts   int64  `json:"sending_accounts"`
}
