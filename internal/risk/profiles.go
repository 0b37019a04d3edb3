package risk

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"journal-core/pkg/db"
)

// profileFile is the on-disk shape of a risk profile preset file.
type profileFile struct {
	Profiles map[string]profileSpec `yaml:"profiles"`
}

type profileSpec struct {
	MaxDrawdown        float64  `yaml:"max_drawdown"`
	MaxExposurePerPair float64  `yaml:"max_exposure_per_pair"`
	MinEquity          float64  `yaml:"min_equity"`
	MarginCallLevel    float64  `yaml:"margin_call_level"`
	RiskPerTrade       float64  `yaml:"risk_per_trade"`
	MaxDailyLoss       *float64 `yaml:"max_daily_loss,omitempty"`
	MaxWeeklyLoss      *float64 `yaml:"max_weekly_loss,omitempty"`
	MaxMonthlyLoss     *float64 `yaml:"max_monthly_loss,omitempty"`
	MaxLotSize         float64  `yaml:"max_lot_size"`
}

// LoadProfiles reads named risk presets from a YAML file. Every profile must
// pass validation; a file with one bad profile is rejected whole.
func LoadProfiles(path string) (map[string]db.RiskSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read risk profiles: %w", err)
	}

	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse risk profiles: %w", err)
	}
	if len(file.Profiles) == 0 {
		return nil, fmt.Errorf("risk profile file %s defines no profiles", path)
	}

	profiles := make(map[string]db.RiskSettings, len(file.Profiles))
	for name, spec := range file.Profiles {
		s := db.RiskSettings{
			MaxDrawdown:        spec.MaxDrawdown,
			MaxExposurePerPair: spec.MaxExposurePerPair,
			MinEquity:          spec.MinEquity,
			MarginCallLevel:    spec.MarginCallLevel,
			RiskPerTrade:       spec.RiskPerTrade,
			MaxDailyLoss:       spec.MaxDailyLoss,
			MaxWeeklyLoss:      spec.MaxWeeklyLoss,
			MaxMonthlyLoss:     spec.MaxMonthlyLoss,
			MaxLotSize:         spec.MaxLotSize,
		}
		if violations := Validate(s); len(violations) > 0 {
			return nil, fmt.Errorf("risk profile %q: %s", name, violations[0])
		}
		profiles[name] = s
	}
	return profiles, nil
}

// ApplyProfile copies a named preset onto an account and persists it.
func (m *Manager) ApplyProfile(ctx context.Context, accountID string, profiles map[string]db.RiskSettings, name string) error {
	preset, ok := profiles[name]
	if !ok {
		return fmt.Errorf("unknown risk profile %q", name)
	}
	preset.AccountID = accountID
	return m.SaveSettings(ctx, preset)
}
