package db

import "time"

// Account is a stored trading account row. The password is encrypted at rest
// and only decrypted when building a provider call.
type Account struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	RemoteID          string    `json:"remote_id"`
	Name              string    `json:"name"`
	Login             string    `json:"login"`
	PasswordEncrypted string    `json:"-"`
	Server            string    `json:"server"`
	Platform          string    `json:"platform"`
	State             string    `json:"state"`
	ConnectionStatus  string    `json:"connection_status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// BrokerServer is a persisted candidate connection server with its
// reliability score, maintained by the server monitor.
type BrokerServer struct {
	ID               int64      `json:"id"`
	BrokerName       string     `json:"broker_name"`
	ServerName       string     `json:"server_name"`
	Address          string     `json:"address"`
	Platform         string     `json:"platform"`
	Region           string     `json:"region"`
	Reliability      float64    `json:"reliability"`
	IsActive         bool       `json:"is_active"`
	ConnectionStatus string     `json:"connection_status"`
	LastCheckedAt    *time.Time `json:"last_checked_at,omitempty"`
}

// RiskSettings is the per-account risk configuration row.
type RiskSettings struct {
	AccountID          string   `json:"account_id"`
	MaxDrawdown        float64  `json:"max_drawdown"`
	MaxExposurePerPair float64  `json:"max_exposure_per_pair"`
	MinEquity          float64  `json:"min_equity"`
	MarginCallLevel    float64  `json:"margin_call_level"`
	RiskPerTrade       float64  `json:"risk_per_trade"`
	MaxDailyLoss       *float64 `json:"max_daily_loss,omitempty"`
	MaxWeeklyLoss      *float64 `json:"max_weekly_loss,omitempty"`
	MaxMonthlyLoss     *float64 `json:"max_monthly_loss,omitempty"`
	MaxLotSize         float64  `json:"max_lot_size"`
}

// AuditEvent is a persisted security/operational event row.
type AuditEvent struct {
	ID        string    `json:"id"`
	EventType string    `json:"event_type"`
	Severity  string    `json:"severity"`
	UserID    string    `json:"user_id"`
	AccountID string    `json:"account_id,omitempty"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
