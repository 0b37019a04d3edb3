// Package risk validates per-account risk settings and evaluates live
// account numbers against them.
package risk

import "journal-core/pkg/db"

// Field bounds enforced by the validator. Values are fractions of equity
// except MarginCallLevel which is a fraction of the margin requirement.
const (
	MinMaxDrawdown = 0.01
	MaxMaxDrawdown = 0.50

	MinExposurePerPair = 0.01
	MaxExposurePerPair = 0.20

	MinMarginCallLevel = 0.10
	MaxMarginCallLevel = 1.00

	MaxRiskPerTrade = 0.10

	minLotStep = 0.01
)

// DefaultSettings returns the process-wide defaults applied when an account
// has no stored settings.
func DefaultSettings(accountID string) db.RiskSettings {
	return db.RiskSettings{
		AccountID:          accountID,
		MaxDrawdown:        0.10,
		MaxExposurePerPair: 0.05,
		MinEquity:          100,
		MarginCallLevel:    0.50,
		RiskPerTrade:       0.01,
		MaxLotSize:         10,
	}
}

// Position is one open position considered during live risk evaluation.
type Position struct {
	Symbol   string  `json:"symbol"`
	Volume   float64 `json:"volume"`
	Exposure float64 `json:"exposure"` // notional value in account currency
}

// AccountSnapshot carries the live numbers checked against the settings.
type AccountSnapshot struct {
	Balance   float64    `json:"balance"`
	Equity    float64    `json:"equity"`
	Margin    float64    `json:"margin"`
	Positions []Position `json:"positions"`
}

// CheckResult is the outcome of a live risk evaluation. When a limit is
// breached, Reason names the first failing check.
type CheckResult struct {
	OK     bool    `json:"ok"`
	Reason string  `json:"reason,omitempty"`
	Value  float64 `json:"value,omitempty"`
	Limit  float64 `json:"limit,omitempty"`
}
