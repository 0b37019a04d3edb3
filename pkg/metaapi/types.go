package metaapi

import "time"

// Platform identifies the MetaTrader generation an account runs on.
type Platform string

const (
	PlatformMT4 Platform = "mt4"
	PlatformMT5 Platform = "mt5"
)

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	return p == PlatformMT4 || p == PlatformMT5
}

// AccountState is the remote lifecycle state of a trading account.
type AccountState string

const (
	StateDeploying  AccountState = "DEPLOYING"
	StateDeployed   AccountState = "DEPLOYED"
	StateUndeployed AccountState = "UNDEPLOYED"
)

// ConnectionStatus is the broker link status of a deployed account.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "CONNECTING"
	StatusConnected    ConnectionStatus = "CONNECTED"
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
)

// TradingAccount is an account provisioned on the remote service.
// Invariant: ConnectionStatus may only be CONNECTED while State is DEPLOYED.
type TradingAccount struct {
	ID               string           `json:"_id"`
	Login            string           `json:"login"`
	Name             string           `json:"name"`
	Server           string           `json:"server"`
	Platform         Platform         `json:"platform"`
	State            AccountState     `json:"state"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
	Magic            int              `json:"magic"`
	Region           string           `json:"region,omitempty"`
}

// NewAccountRequest carries the fields required to create an account.
type NewAccountRequest struct {
	Login    string   `json:"login"`
	Password string   `json:"password"`
	Server   string   `json:"server"`
	Platform Platform `json:"platform"`
	Format   string   `json:"application"`
	Name     string   `json:"name,omitempty"`
	Magic    int      `json:"magic"`
}

// BrokerServer is one candidate connection server for a broker.
type BrokerServer struct {
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	Platform    Platform `json:"platform"`
	Region      string   `json:"region,omitempty"`
	Reliability float64  `json:"reliability"`
}

// AccountMetrics is the remote metrics document for one account.
type AccountMetrics struct {
	Balance        float64   `json:"balance"`
	Equity         float64   `json:"equity"`
	Margin         float64   `json:"margin"`
	FreeMargin     float64   `json:"freeMargin"`
	Profit         float64   `json:"profit"`
	Trades         int       `json:"trades"`
	WonTrades      int       `json:"wonTradesPercent"`
	AbsoluteGain   float64   `json:"absoluteGain"`
	MaxDrawdown    float64   `json:"maxDrawdownPercent"`
	UpdatedAt      time.Time `json:"updatedAt"`
	MonthlyGain    float64   `json:"monthlyGain"`
	DailyGrowth    float64   `json:"dailyGrowth"`
	DepositsAmount float64   `json:"deposits"`
}

// HistoricalTrade is one closed trade from the remote trade history.
type HistoricalTrade struct {
	ID         string    `json:"_id"`
	Symbol     string    `json:"symbol"`
	Type       string    `json:"type"` // DEAL_TYPE_BUY / DEAL_TYPE_SELL
	Volume     float64   `json:"volume"`
	OpenPrice  float64   `json:"openPrice"`
	ClosePrice float64   `json:"closePrice"`
	Profit     float64   `json:"profit"`
	OpenTime   time.Time `json:"openTime"`
	CloseTime  time.Time `json:"closeTime"`
}

// remoteError is the wire shape of remote API failures.
type remoteError struct {
	ID      string `json:"id,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message"`
}
