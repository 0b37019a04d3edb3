package risk

import (
	"testing"

	"journal-core/pkg/db"
)

func validSettings() db.RiskSettings {
	return DefaultSettings("acct-1")
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*db.RiskSettings)
		valid  bool
	}{
		{"defaults pass", func(s *db.RiskSettings) {}, true},
		{"drawdown 10% valid", func(s *db.RiskSettings) { s.MaxDrawdown = 0.1 }, true},
		{"drawdown 60% invalid", func(s *db.RiskSettings) { s.MaxDrawdown = 0.6 }, false},
		{"drawdown below 1% invalid", func(s *db.RiskSettings) { s.MaxDrawdown = 0.005 }, false},
		{"drawdown at 50% boundary valid", func(s *db.RiskSettings) { s.MaxDrawdown = 0.5 }, true},
		{"exposure 25% invalid", func(s *db.RiskSettings) { s.MaxExposurePerPair = 0.25 }, false},
		{"exposure 20% boundary valid", func(s *db.RiskSettings) { s.MaxExposurePerPair = 0.2 }, true},
		{"margin call 5% invalid", func(s *db.RiskSettings) { s.MarginCallLevel = 0.05 }, false},
		{"margin call 100% valid", func(s *db.RiskSettings) { s.MarginCallLevel = 1.0 }, true},
		{"risk per trade zero invalid", func(s *db.RiskSettings) { s.RiskPerTrade = 0 }, false},
		{"risk per trade 10% boundary valid", func(s *db.RiskSettings) { s.RiskPerTrade = 0.1 }, true},
		{"risk per trade 11% invalid", func(s *db.RiskSettings) { s.RiskPerTrade = 0.11 }, false},
		{"negative min equity invalid", func(s *db.RiskSettings) { s.MinEquity = -1 }, false},
		{"zero lot cap invalid", func(s *db.RiskSettings) { s.MaxLotSize = 0 }, false},
		{"negative daily loss cap invalid", func(s *db.RiskSettings) { v := -10.0; s.MaxDailyLoss = &v }, false},
		{"positive daily loss cap valid", func(s *db.RiskSettings) { v := 500.0; s.MaxDailyLoss = &v }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(&s)
			if got := IsValid(s); got != tt.valid {
				t.Errorf("IsValid = %v, want %v (violations: %v)", got, tt.valid, Validate(s))
			}
		})
	}
}

func TestValidateReportsAllViolations(t *testing.T) {
	s := validSettings()
	s.MaxDrawdown = 0.9
	s.RiskPerTrade = 0.5
	s.MinEquity = -5

	violations := Validate(s)
	if len(violations) != 3 {
		t.Fatalf("expected 3 violations, got %d: %v", len(violations), violations)
	}
}
