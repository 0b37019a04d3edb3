package risk

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"journal-core/pkg/db"
)

// Store is the persistence surface the manager needs.
type Store interface {
	GetRiskSettings(ctx context.Context, accountID string) (*db.RiskSettings, error)
	UpsertRiskSettings(ctx context.Context, s db.RiskSettings) error
}

// Manager persists validated risk settings and evaluates live account
// numbers against them.
type Manager struct {
	store Store
}

// NewManager creates a Manager backed by the given store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// GetSettings returns the stored settings for an account, falling back to
// defaults when none exist. The fallback is not persisted; defaults only
// become a row once the user saves them.
func (m *Manager) GetSettings(ctx context.Context, accountID string) (db.RiskSettings, error) {
	s, err := m.store.GetRiskSettings(ctx, accountID)
	if errors.Is(err, db.ErrNotFound) {
		return DefaultSettings(accountID), nil
	}
	if err != nil {
		return db.RiskSettings{}, err
	}
	return *s, nil
}

// SaveSettings validates and overwrites the settings row for an account.
func (m *Manager) SaveSettings(ctx context.Context, s db.RiskSettings) error {
	if violations := Validate(s); len(violations) > 0 {
		return fmt.Errorf("invalid risk settings: %s", violations[0])
	}
	if err := m.store.UpsertRiskSettings(ctx, s); err != nil {
		return err
	}
	log.Printf("✓ risk settings saved for account %s (drawdown %.0f%%, exposure %.0f%%)",
		s.AccountID, s.MaxDrawdown*100, s.MaxExposurePerPair*100)
	return nil
}

// CheckRiskLimits evaluates a live snapshot against the account's settings.
// Checks run in a fixed order and stop at the first breach: drawdown,
// margin level, minimum equity, then per-symbol exposure.
func (m *Manager) CheckRiskLimits(ctx context.Context, accountID string, snap AccountSnapshot) (CheckResult, error) {
	settings, err := m.GetSettings(ctx, accountID)
	if err != nil {
		return CheckResult{}, err
	}
	return evaluate(settings, snap), nil
}

func evaluate(s db.RiskSettings, snap AccountSnapshot) CheckResult {
	if snap.Balance > 0 {
		drawdown := (snap.Balance - snap.Equity) / snap.Balance
		if drawdown > s.MaxDrawdown {
			return CheckResult{Reason: "max drawdown exceeded", Value: drawdown, Limit: s.MaxDrawdown}
		}
	}

	if snap.Margin > 0 {
		marginLevel := snap.Equity / snap.Margin
		if marginLevel < s.MarginCallLevel {
			return CheckResult{Reason: "margin level below margin call threshold", Value: marginLevel, Limit: s.MarginCallLevel}
		}
	}

	if snap.Equity < s.MinEquity {
		return CheckResult{Reason: "equity below minimum", Value: snap.Equity, Limit: s.MinEquity}
	}

	if snap.Equity > 0 {
		exposure := make(map[string]float64)
		for _, p := range snap.Positions {
			exposure[p.Symbol] += p.Exposure
		}
		for symbol, total := range exposure {
			share := total / snap.Equity
			if share > s.MaxExposurePerPair {
				return CheckResult{
					Reason: "exposure limit exceeded for " + symbol,
					Value:  share,
					Limit:  s.MaxExposurePerPair,
				}
			}
		}
	}

	return CheckResult{OK: true}
}

// CalculatePositionSize derives a lot size from risk-per-trade and the
// stop-loss distance in account currency per lot. The result is rounded
// down to the nearest 0.01 lot and capped at the configured maximum.
func (m *Manager) CalculatePositionSize(ctx context.Context, accountID string, equity, stopLossPerLot float64) (float64, error) {
	if stopLossPerLot <= 0 {
		return 0, fmt.Errorf("stop loss distance must be positive, got %.2f", stopLossPerLot)
	}
	settings, err := m.GetSettings(ctx, accountID)
	if err != nil {
		return 0, err
	}

	riskAmount := equity * settings.RiskPerTrade
	lots := riskAmount / stopLossPerLot
	lots = math.Floor(lots/minLotStep) * minLotStep
	if lots > settings.MaxLotSize {
		lots = settings.MaxLotSize
	}
	if lots < 0 {
		lots = 0
	}
	return lots, nil
}
