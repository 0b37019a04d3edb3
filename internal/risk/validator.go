package risk

import (
	"fmt"

	"journal-core/pkg/db"
)

// Validate checks every field of the settings against its allowed range and
// returns the full list of violations. It never mutates the input.
func Validate(s db.RiskSettings) []string {
	var violations []string

	if s.MaxDrawdown < MinMaxDrawdown || s.MaxDrawdown > MaxMaxDrawdown {
		violations = append(violations, fmt.Sprintf(
			"maxDrawdown must be between %.0f%% and %.0f%%, got %.1f%%",
			MinMaxDrawdown*100, MaxMaxDrawdown*100, s.MaxDrawdown*100))
	}
	if s.MaxExposurePerPair < MinExposurePerPair || s.MaxExposurePerPair > MaxExposurePerPair {
		violations = append(violations, fmt.Sprintf(
			"maxExposurePerPair must be between %.0f%% and %.0f%%, got %.1f%%",
			MinExposurePerPair*100, MaxExposurePerPair*100, s.MaxExposurePerPair*100))
	}
	if s.MinEquity < 0 {
		violations = append(violations, fmt.Sprintf(
			"minEquity must not be negative, got %.2f", s.MinEquity))
	}
	if s.MarginCallLevel < MinMarginCallLevel || s.MarginCallLevel > MaxMarginCallLevel {
		violations = append(violations, fmt.Sprintf(
			"marginCallLevel must be between %.0f%% and %.0f%%, got %.1f%%",
			MinMarginCallLevel*100, MaxMarginCallLevel*100, s.MarginCallLevel*100))
	}
	if s.RiskPerTrade <= 0 || s.RiskPerTrade > MaxRiskPerTrade {
		violations = append(violations, fmt.Sprintf(
			"riskPerTrade must be above 0%% and at most %.0f%%, got %.1f%%",
			MaxRiskPerTrade*100, s.RiskPerTrade*100))
	}
	if s.MaxLotSize <= 0 {
		violations = append(violations, fmt.Sprintf(
			"maxLotSize must be positive, got %.2f", s.MaxLotSize))
	}
	for name, cap := range map[string]*float64{
		"maxDailyLoss":   s.MaxDailyLoss,
		"maxWeeklyLoss":  s.MaxWeeklyLoss,
		"maxMonthlyLoss": s.MaxMonthlyLoss,
	} {
		if cap != nil && *cap <= 0 {
			violations = append(violations, fmt.Sprintf(
				"%s must be positive when set, got %.2f", name, *cap))
		}
	}

	return violations
}

// IsValid reports whether the settings pass every bound.
func IsValid(s db.RiskSettings) bool {
	return len(Validate(s)) == 0
}
