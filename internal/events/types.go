package events

// Event enumerates high-level topics inside the journal core.
type Event string

const (
	EventAccountCreated     Event = "account.created"
	EventAccountDeployed    Event = "account.deployed"
	EventAccountUndeployed  Event = "account.undeployed"
	EventAccountRemoved     Event = "account.removed"
	EventConnectionUp       Event = "connection.up"
	EventConnectionLost     Event = "connection.lost"
	EventRiskAlert          Event = "risk.alert"
	EventServerHealthChange Event = "server.health_change"
	EventAuditRecorded      Event = "audit.recorded"
)

// AccountPayload describes account lifecycle transitions pushed to subscribers.
type AccountPayload struct {
	AccountID string `json:"accountId"`
	UserID    string `json:"userId"`
	State     string `json:"state"`
}

// ConnectionPayload describes realtime connection status changes.
type ConnectionPayload struct {
	AccountID string `json:"accountId"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// RiskPayload carries a risk limit breach to subscribers.
type RiskPayload struct {
	AccountID string `json:"accountId"`
	Reason    string `json:"reason"`
	Value     float64 `json:"value"`
	Limit     float64 `json:"limit"`
}
